package services

import (
	"context"
	"errors"
	"fmt"

	"devconnect/internal/devtypes"
	"devconnect/internal/models"
	"devconnect/internal/realtime"
	"devconnect/internal/storage"

	"gorm.io/gorm"
)

// ProfileUpdateInput 是部分更新的输入。nil 字段保持不变；
// 非 nil 的空值表示清空该字段。
type ProfileUpdateInput struct {
	Name        *string   `json:"name"`
	Bio         *string   `json:"bio"`
	AvatarURL   *string   `json:"avatarUrl"`
	Location    *string   `json:"location"`
	Skills      *[]string `json:"skills"`
	GithubURL   *string   `json:"githubUrl"`
	WebsiteURL  *string   `json:"websiteUrl"`
	LinkedinURL *string   `json:"linkedinUrl"`
}

// ProfileService 定义了用户资料相关服务的接口。
type ProfileService interface {
	GetProfileByID(ctx context.Context, profileID uint) (*models.Profile, error)
	GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, profileID uint, input ProfileUpdateInput) (*models.Profile, error)
	SearchProfiles(ctx context.Context, query, skill string, currentProfileID uint) ([]models.Profile, error)
}

// profileService 是 ProfileService 的实现。
type profileService struct {
	profileRepo storage.ProfileRepository
	notifier    realtime.Notifier
}

// NewProfileService 创建一个新的 ProfileService 实例。
func NewProfileService(profileRepo storage.ProfileRepository, notifier realtime.Notifier) ProfileService {
	return &profileService{profileRepo: profileRepo, notifier: notifier}
}

// GetProfileByID 获取用户公开的个人资料。
func (s *profileService) GetProfileByID(ctx context.Context, profileID uint) (*models.Profile, error) {
	profile, err := s.profileRepo.GetByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("获取用户 %d 失败: %w", profileID, err)
	}
	profile.PasswordHash = ""
	return profile, nil
}

// GetProfileByUsername 按用户名获取公开资料。
func (s *profileService) GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error) {
	profile, err := s.profileRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("获取用户 %s 失败: %w", username, err)
	}
	profile.PasswordHash = ""
	return profile, nil
}

// UpdateProfile 更新用户的个人资料, 只有设置了的字段会被修改。
func (s *profileService) UpdateProfile(ctx context.Context, profileID uint, input ProfileUpdateInput) (*models.Profile, error) {
	profile, err := s.profileRepo.GetByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("更新用户资料失败，用户 %d 未找到: %w", profileID, err)
	}

	updated := false
	if input.Name != nil && profile.Name != *input.Name {
		profile.Name = *input.Name
		updated = true
	}
	if input.Bio != nil && profile.Bio != *input.Bio {
		profile.Bio = *input.Bio
		updated = true
	}
	if input.AvatarURL != nil && profile.AvatarURL != *input.AvatarURL {
		profile.AvatarURL = *input.AvatarURL
		updated = true
	}
	if input.Location != nil && profile.Location != *input.Location {
		profile.Location = *input.Location
		updated = true
	}
	if input.Skills != nil {
		profile.Skills = *input.Skills
		updated = true
	}
	if input.GithubURL != nil && profile.GithubURL != *input.GithubURL {
		profile.GithubURL = *input.GithubURL
		updated = true
	}
	if input.WebsiteURL != nil && profile.WebsiteURL != *input.WebsiteURL {
		profile.WebsiteURL = *input.WebsiteURL
		updated = true
	}
	if input.LinkedinURL != nil && profile.LinkedinURL != *input.LinkedinURL {
		profile.LinkedinURL = *input.LinkedinURL
		updated = true
	}

	if !updated {
		profile.PasswordHash = ""
		return profile, nil // 没有字段被更新
	}

	if err := s.profileRepo.Update(ctx, profile); err != nil {
		return nil, fmt.Errorf("更新用户 %d 资料失败: %w", profileID, err)
	}

	if s.notifier != nil {
		s.notifier.Publish(devtypes.ChangeEvent{
			Table:    devtypes.TableProfiles,
			Action:   devtypes.ChangeActionUpdate,
			RecordID: profile.ID,
			UserA:    profile.ID,
		})
	}

	profile.PasswordHash = ""
	return profile, nil
}

// SearchProfiles 按用户名/姓名/技能搜索其他用户。
func (s *profileService) SearchProfiles(ctx context.Context, query, skill string, currentProfileID uint) ([]models.Profile, error) {
	profiles, err := s.profileRepo.SearchProfiles(ctx, query, skill, currentProfileID)
	if err != nil {
		return nil, fmt.Errorf("搜索用户失败: %w", err)
	}
	for i := range profiles {
		profiles[i].PasswordHash = ""
	}
	return profiles, nil
}
