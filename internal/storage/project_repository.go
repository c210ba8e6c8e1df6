package storage

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"devconnect/internal/models"
)

// ProjectFilter narrows down project listings. Zero values mean "no
// constraint".
type ProjectFilter struct {
	Status models.ProjectStatus
	Tech   string // 技术栈标签
	Query  string // 标题/描述的模糊搜索
}

// ProjectRepository defines the interface for project data operations.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, projectID uint) (*models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	List(ctx context.Context, filter ProjectFilter) ([]models.Project, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]models.Project, error)
}

type gormProjectRepository struct {
	db *gorm.DB
}

// NewGormProjectRepository creates a new GORM-based ProjectRepository.
func NewGormProjectRepository(db *gorm.DB) ProjectRepository {
	return &gormProjectRepository{db: db}
}

func (r *gormProjectRepository) Create(ctx context.Context, project *models.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *gormProjectRepository) GetByID(ctx context.Context, projectID uint) (*models.Project, error) {
	var project models.Project
	err := r.db.WithContext(ctx).First(&project, projectID).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *gormProjectRepository) Update(ctx context.Context, project *models.Project) error {
	if project.ID == 0 {
		return gorm.ErrMissingWhereClause
	}
	return r.db.WithContext(ctx).Save(project).Error
}

// List retrieves projects matching the filter, newest first.
func (r *gormProjectRepository) List(ctx context.Context, filter ProjectFilter) ([]models.Project, error) {
	var projects []models.Project
	tx := r.db.WithContext(ctx).Model(&models.Project{})

	if filter.Status != "" {
		tx = tx.Where("status = ?", filter.Status)
	}
	if filter.Tech != "" {
		// tech_stack 以 JSON 数组落库，模糊匹配序列化文本即可。
		tx = tx.Where("LOWER(tech_stack) LIKE ?", "%"+strings.ToLower(filter.Tech)+"%")
	}
	if filter.Query != "" {
		searchTerm := "%" + strings.ToLower(filter.Query) + "%"
		tx = tx.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", searchTerm, searchTerm)
	}

	err := tx.Order("created_at DESC").Limit(50).Find(&projects).Error
	return projects, err
}

// ListByOwner retrieves all projects owned by the given profile, newest first.
func (r *gormProjectRepository) ListByOwner(ctx context.Context, ownerID uint) ([]models.Project, error) {
	var projects []models.Project
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&projects).Error
	return projects, err
}
