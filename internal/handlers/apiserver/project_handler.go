package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"devconnect/internal/middleware"
	"devconnect/internal/models"
	"devconnect/internal/services"
	"devconnect/internal/storage"
)

// ProjectHandler 封装了项目相关的 HTTP 处理器方法。
type ProjectHandler struct {
	projectService services.ProjectService
}

// NewProjectHandler 创建一个新的 ProjectHandler 实例。
func NewProjectHandler(ps services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: ps}
}

// Create handles POST /api/v1/projects
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetProfileIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	var input services.ProjectInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	project, err := h.projectService.CreateProject(r.Context(), ownerID, input)
	if err != nil {
		if errors.Is(err, services.ErrProjectTitleMissing) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
		} else {
			log.Printf("Error creating project for profile %d: %v", ownerID, err)
			writeJSONError(w, "创建项目失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusCreated, project)
}

// Get handles GET /api/v1/projects/{projectID}
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseIDVar(r, "projectID")
	if !ok {
		writeJSONError(w, "无效的项目ID格式", http.StatusBadRequest)
		return
	}

	project, err := h.projectService.GetProject(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, services.ErrProjectNotFound) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
		} else {
			log.Printf("Error fetching project %d: %v", projectID, err)
			writeJSONError(w, "获取项目失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, project)
}

// Update handles PUT /api/v1/projects/{projectID}
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetProfileIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	projectID, ok := parseIDVar(r, "projectID")
	if !ok {
		writeJSONError(w, "无效的项目ID格式", http.StatusBadRequest)
		return
	}

	var input services.ProjectInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	project, err := h.projectService.UpdateProject(r.Context(), ownerID, projectID, input)
	if err != nil {
		if errors.Is(err, services.ErrProjectNotFound) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
		} else if errors.Is(err, services.ErrNotProjectOwner) {
			writeJSONError(w, err.Error(), http.StatusForbidden)
		} else {
			log.Printf("Error updating project %d by profile %d: %v", projectID, ownerID, err)
			writeJSONError(w, "更新项目失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, project)
}

// List handles GET /api/v1/projects?status=...&tech=...&q=...
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := storage.ProjectFilter{
		Status: models.ProjectStatus(r.URL.Query().Get("status")),
		Tech:   r.URL.Query().Get("tech"),
		Query:  r.URL.Query().Get("q"),
	}

	projects, err := h.projectService.ListProjects(r.Context(), filter)
	if err != nil {
		log.Printf("Error listing projects: %v", err)
		writeJSONError(w, "获取项目列表失败", http.StatusInternalServerError)
		return
	}
	if projects == nil {
		projects = []*models.ProjectWithOwner{}
	}
	writeJSONResponse(w, http.StatusOK, projects)
}
