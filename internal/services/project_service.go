package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"devconnect/internal/models"
	"devconnect/internal/storage"

	"gorm.io/gorm"
)

var (
	ErrProjectNotFound     = errors.New("项目不存在")
	ErrNotProjectOwner     = errors.New("您不是此项目的所有者")
	ErrProjectTitleMissing = errors.New("项目标题不能为空")
)

// ProjectInput 是创建/更新项目的输入。
type ProjectInput struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	TechStack          []string `json:"techStack"`
	Status             string   `json:"status"`
	ContributorsNeeded []string `json:"contributorsNeeded"`
	GithubURL          string   `json:"githubUrl"`
	DemoURL            string   `json:"demoUrl"`
}

// ProjectService 定义了项目相关服务的接口。
type ProjectService interface {
	CreateProject(ctx context.Context, ownerID uint, input ProjectInput) (*models.Project, error)
	GetProject(ctx context.Context, projectID uint) (*models.ProjectWithOwner, error)
	UpdateProject(ctx context.Context, ownerID, projectID uint, input ProjectInput) (*models.Project, error)
	ListProjects(ctx context.Context, filter storage.ProjectFilter) ([]*models.ProjectWithOwner, error)
	ListProjectsByOwner(ctx context.Context, ownerID uint) ([]models.Project, error)
}

// projectService 是 ProjectService 的实现。
type projectService struct {
	projectRepo storage.ProjectRepository
	profileRepo storage.ProfileRepository
}

// NewProjectService 创建一个新的 ProjectService 实例。
func NewProjectService(projectRepo storage.ProjectRepository, profileRepo storage.ProfileRepository) ProjectService {
	return &projectService{projectRepo: projectRepo, profileRepo: profileRepo}
}

// CreateProject 创建一个新项目, 默认状态为 open。
func (s *projectService) CreateProject(ctx context.Context, ownerID uint, input ProjectInput) (*models.Project, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, ErrProjectTitleMissing
	}

	status := models.ProjectStatusOpen
	if input.Status == string(models.ProjectStatusClosed) {
		status = models.ProjectStatusClosed
	}

	project := &models.Project{
		Title:              strings.TrimSpace(input.Title),
		Description:        input.Description,
		TechStack:          input.TechStack,
		Status:             status,
		OwnerID:            ownerID,
		ContributorsNeeded: input.ContributorsNeeded,
		GithubURL:          input.GithubURL,
		DemoURL:            input.DemoURL,
	}

	if err := s.projectRepo.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("创建项目失败: %w", err)
	}
	return project, nil
}

// GetProject 获取单个项目及其所有者的基本信息。
func (s *projectService) GetProject(ctx context.Context, projectID uint) (*models.ProjectWithOwner, error) {
	project, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("获取项目 %d 失败: %w", projectID, err)
	}

	owner, err := s.profileRepo.GetBasicInfoByID(ctx, project.OwnerID)
	if err != nil {
		log.Printf("Error fetching owner info for project %d (owner %d): %v", project.ID, project.OwnerID, err)
		owner = nil
	}

	return &models.ProjectWithOwner{Project: *project, Owner: owner}, nil
}

// UpdateProject 更新项目, 只有所有者可以修改。
func (s *projectService) UpdateProject(ctx context.Context, ownerID, projectID uint, input ProjectInput) (*models.Project, error) {
	project, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("获取项目 %d 失败: %w", projectID, err)
	}

	if project.OwnerID != ownerID {
		return nil, ErrNotProjectOwner
	}

	if strings.TrimSpace(input.Title) != "" {
		project.Title = strings.TrimSpace(input.Title)
	}
	project.Description = input.Description
	if input.TechStack != nil {
		project.TechStack = input.TechStack
	}
	if input.Status == string(models.ProjectStatusOpen) || input.Status == string(models.ProjectStatusClosed) {
		project.Status = models.ProjectStatus(input.Status)
	}
	if input.ContributorsNeeded != nil {
		project.ContributorsNeeded = input.ContributorsNeeded
	}
	project.GithubURL = input.GithubURL
	project.DemoURL = input.DemoURL

	if err := s.projectRepo.Update(ctx, project); err != nil {
		return nil, fmt.Errorf("更新项目 %d 失败: %w", projectID, err)
	}
	return project, nil
}

// ListProjects 按过滤条件列出项目, 附带所有者基本信息。
func (s *projectService) ListProjects(ctx context.Context, filter storage.ProjectFilter) ([]*models.ProjectWithOwner, error) {
	projects, err := s.projectRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("获取项目列表失败: %w", err)
	}

	result := make([]*models.ProjectWithOwner, 0, len(projects))
	for _, project := range projects {
		owner, err := s.profileRepo.GetBasicInfoByID(ctx, project.OwnerID)
		if err != nil {
			log.Printf("Error fetching owner info for project %d (owner %d): %v", project.ID, project.OwnerID, err)
			continue
		}
		result = append(result, &models.ProjectWithOwner{Project: project, Owner: owner})
	}
	return result, nil
}

// ListProjectsByOwner 列出某个用户拥有的全部项目。
func (s *projectService) ListProjectsByOwner(ctx context.Context, ownerID uint) ([]models.Project, error) {
	projects, err := s.projectRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("获取用户 %d 的项目失败: %w", ownerID, err)
	}
	return projects, nil
}
