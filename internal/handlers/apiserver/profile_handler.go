package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"devconnect/internal/middleware"
	"devconnect/internal/models"
	"devconnect/internal/services"

	"github.com/gorilla/mux"
)

// ProfileHandler 封装了用户资料相关的 HTTP 处理器方法。
type ProfileHandler struct {
	profileService    services.ProfileService
	projectService    services.ProjectService
	connectionService services.ConnectionService
}

// NewProfileHandler 创建一个新的 ProfileHandler 实例。
func NewProfileHandler(ps services.ProfileService, prjs services.ProjectService, cs services.ConnectionService) *ProfileHandler {
	return &ProfileHandler{profileService: ps, projectService: prjs, connectionService: cs}
}

// ProfileView 是资料页的响应: 资料本身、名下项目, 以及 (已登录且
// 非本人时) 查看者相对该用户的连接状态。
type ProfileView struct {
	Profile          *models.Profile          `json:"profile"`
	Projects         []models.Project         `json:"projects"`
	ConnectionStatus *models.ConnectionStatus `json:"connectionStatus,omitempty"`
}

// GetByUsername 同时挂在公开路由和认证路由上:
// 未登录时只返回资料和项目, 登录后额外附带派生的连接状态。
func (h *ProfileHandler) GetByUsername(w http.ResponseWriter, r *http.Request) {
	username, ok := mux.Vars(r)["username"]
	if !ok || username == "" {
		writeJSONError(w, "缺少用户名", http.StatusBadRequest)
		return
	}

	profile, err := h.profileService.GetProfileByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, services.ErrProfileNotFound) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
		} else {
			log.Printf("Error fetching profile %s: %v", username, err)
			writeJSONError(w, "获取用户资料失败", http.StatusInternalServerError)
		}
		return
	}

	projects, err := h.projectService.ListProjectsByOwner(r.Context(), profile.ID)
	if err != nil {
		log.Printf("Error fetching projects for profile %d: %v", profile.ID, err)
		projects = []models.Project{}
	}
	if projects == nil {
		projects = []models.Project{}
	}

	view := ProfileView{Profile: profile, Projects: projects}
	if viewerID, ok := middleware.GetProfileIDFromContext(r.Context()); ok && viewerID != profile.ID {
		status := h.connectionService.ResolveStatus(r.Context(), viewerID, profile.ID)
		view.ConnectionStatus = &status
	}

	writeJSONResponse(w, http.StatusOK, view)
}

// GetMe handles GET /api/v1/me
func (h *ProfileHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.GetProfileIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	profile, err := h.profileService.GetProfileByID(r.Context(), profileID)
	if err != nil {
		if errors.Is(err, services.ErrProfileNotFound) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
		} else {
			log.Printf("Error fetching profile %d: %v", profileID, err)
			writeJSONError(w, "获取用户资料失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, profile)
}

// UpdateMe handles PATCH /api/v1/me
func (h *ProfileHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.GetProfileIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	var input services.ProfileUpdateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	profile, err := h.profileService.UpdateProfile(r.Context(), profileID, input)
	if err != nil {
		if errors.Is(err, services.ErrProfileNotFound) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
		} else {
			log.Printf("Error updating profile %d: %v", profileID, err)
			writeJSONError(w, "更新用户资料失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, profile)
}

// Search handles GET /api/v1/profiles/search?q=...&skill=...
func (h *ProfileHandler) Search(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.GetProfileIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	query := r.URL.Query().Get("q")
	skill := r.URL.Query().Get("skill")
	if query == "" && skill == "" {
		writeJSONError(w, "缺少搜索条件 (q 或 skill)", http.StatusBadRequest)
		return
	}

	profiles, err := h.profileService.SearchProfiles(r.Context(), query, skill, profileID)
	if err != nil {
		log.Printf("Error searching profiles (q=%q, skill=%q): %v", query, skill, err)
		writeJSONError(w, "搜索用户失败", http.StatusInternalServerError)
		return
	}
	if profiles == nil {
		profiles = []models.Profile{}
	}
	writeJSONResponse(w, http.StatusOK, profiles)
}
