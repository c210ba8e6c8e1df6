package storage

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"devconnect/internal/models"
)

// ProfileRepository defines the interface for profile data operations.
type ProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
	GetByID(ctx context.Context, id uint) (*models.Profile, error)
	GetByUsername(ctx context.Context, username string) (*models.Profile, error)
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
	Update(ctx context.Context, profile *models.Profile) error
	SearchProfiles(ctx context.Context, query, skill string, currentProfileID uint) ([]models.Profile, error)
	GetBasicInfoByID(ctx context.Context, id uint) (*models.ProfileBasicInfo, error)
	GetMultipleBasicInfoByIDs(ctx context.Context, profileIDs []uint) ([]*models.ProfileBasicInfo, error)
}

// gormProfileRepository implements ProfileRepository using GORM.
type gormProfileRepository struct {
	db *gorm.DB
}

// NewGormProfileRepository creates a new GORM-based ProfileRepository.
func NewGormProfileRepository(db *gorm.DB) ProfileRepository {
	return &gormProfileRepository{db: db}
}

// Create creates a new profile record in the database.
func (r *gormProfileRepository) Create(ctx context.Context, profile *models.Profile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}

// GetByID retrieves a profile by its ID.
func (r *gormProfileRepository) GetByID(ctx context.Context, id uint) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).First(&profile, id).Error
	if err != nil {
		return nil, err // Handles gorm.ErrRecordNotFound as well
	}
	return &profile, nil
}

// GetByUsername retrieves a profile by its unique username.
func (r *gormProfileRepository) GetByUsername(ctx context.Context, username string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetByEmail retrieves a profile by its email.
func (r *gormProfileRepository) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Update updates an existing profile record in the database.
func (r *gormProfileRepository) Update(ctx context.Context, profile *models.Profile) error {
	if profile.ID == 0 {
		return gorm.ErrMissingWhereClause
	}
	return r.db.WithContext(ctx).Save(profile).Error
}

// SearchProfiles 在 username 和 name 字段上进行大小写不敏感的模糊匹配，
// 可选地再按技能标签过滤，并排除当前用户自己。
func (r *gormProfileRepository) SearchProfiles(ctx context.Context, query, skill string, currentProfileID uint) ([]models.Profile, error) {
	var profiles []models.Profile
	tx := r.db.WithContext(ctx).Model(&models.Profile{}).
		Where("id != ?", currentProfileID)

	if query != "" {
		searchTerm := "%" + strings.ToLower(query) + "%"
		tx = tx.Where("LOWER(username) LIKE ? OR LOWER(name) LIKE ?", searchTerm, searchTerm)
	}
	if skill != "" {
		// skills 以 JSON 数组落库；对序列化文本做模糊匹配即可，
		// 低流量的开发者目录不需要更精确的谓词。
		tx = tx.Where("LOWER(skills) LIKE ?", "%"+strings.ToLower(skill)+"%")
	}

	err := tx.
		Select("id", "username", "name", "bio", "avatar_url", "location", "skills", "github_url", "website_url", "linkedin_url").
		Limit(20).
		Find(&profiles).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return profiles, nil // 搜索无结果不是错误
		}
		return nil, err
	}
	return profiles, nil
}

// GetBasicInfoByID retrieves minimal public profile info by ID.
func (r *gormProfileRepository) GetBasicInfoByID(ctx context.Context, id uint) (*models.ProfileBasicInfo, error) {
	var basicInfo models.ProfileBasicInfo
	err := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Select("id", "username", "name", "avatar_url").
		Where("id = ?", id).
		First(&basicInfo).Error
	if err != nil {
		return nil, err
	}
	return &basicInfo, nil
}

// GetMultipleBasicInfoByIDs retrieves minimal public profile info for a list of IDs.
func (r *gormProfileRepository) GetMultipleBasicInfoByIDs(ctx context.Context, profileIDs []uint) ([]*models.ProfileBasicInfo, error) {
	var basicInfos []*models.ProfileBasicInfo
	if len(profileIDs) == 0 {
		return basicInfos, nil
	}

	err := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Select("id", "username", "name", "avatar_url").
		Where("id IN ?", profileIDs).
		Find(&basicInfos).Error

	if err != nil {
		return nil, err
	}
	return basicInfos, nil
}
