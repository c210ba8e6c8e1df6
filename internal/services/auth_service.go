package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"devconnect/internal/auth"
	"devconnect/internal/config"
	"devconnect/internal/models"
	"devconnect/internal/storage"

	"gorm.io/gorm"
)

var (
	ErrProfileAlreadyExists = errors.New("用户名或邮箱已存在")
	ErrInvalidCredentials   = errors.New("无效的用户名或密码")
	ErrProfileNotFound      = errors.New("用户未找到")
)

// AuthService 定义了用户认证服务的接口。
type AuthService interface {
	Register(ctx context.Context, username, name, email, password string) (*models.Profile, error)
	Login(ctx context.Context, usernameOrEmail, password string) (token string, profile *models.Profile, err error)
	Logout(ctx context.Context, claims *auth.Claims) error
}

// authService 是 AuthService 的实现。
type authService struct {
	profileRepo storage.ProfileRepository
	blacklist   auth.TokenBlacklist
	cfg         config.Config // 包含 AuthConfig
}

// NewAuthService 创建一个新的 AuthService 实例。
func NewAuthService(profileRepo storage.ProfileRepository, blacklist auth.TokenBlacklist, cfg config.Config) AuthService {
	return &authService{
		profileRepo: profileRepo,
		blacklist:   blacklist,
		cfg:         cfg,
	}
}

// Register 处理用户注册逻辑。
func (s *authService) Register(ctx context.Context, username, name, email, password string) (*models.Profile, error) {
	// 检查用户名是否存在
	_, err := s.profileRepo.GetByUsername(ctx, username)
	if err == nil {
		return nil, ErrProfileAlreadyExists // 用户名已存在
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("检查用户名时出错: %w", err)
	}

	// 检查邮箱是否存在
	if email != "" {
		_, err = s.profileRepo.GetByEmail(ctx, email)
		if err == nil {
			return nil, ErrProfileAlreadyExists // 邮箱已存在
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("检查邮箱时出错: %w", err)
		}
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("密码哈希失败: %w", err)
	}

	newProfile := &models.Profile{
		Username:     username,
		Name:         name,
		Email:        email,
		PasswordHash: hashedPassword,
	}

	if err := s.profileRepo.Create(ctx, newProfile); err != nil {
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}

	return newProfile, nil
}

// Login 处理用户登录逻辑。
func (s *authService) Login(ctx context.Context, usernameOrEmail, password string) (string, *models.Profile, error) {
	var profile *models.Profile
	var err error

	// 尝试通过用户名查找用户
	profile, err = s.profileRepo.GetByUsername(ctx, usernameOrEmail)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// 如果用户名未找到，尝试通过邮箱查找
		profile, err = s.profileRepo.GetByEmail(ctx, usernameOrEmail)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrProfileNotFound
		} else if err != nil {
			return "", nil, fmt.Errorf("通过邮箱查找用户失败: %w", err)
		}
	} else if err != nil {
		return "", nil, fmt.Errorf("通过用户名查找用户失败: %w", err)
	}

	if !auth.CheckPasswordHash(password, profile.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := auth.GenerateToken(profile.ID, profile.Username, s.cfg.Auth)
	if err != nil {
		return "", nil, fmt.Errorf("生成令牌失败: %w", err)
	}

	return token, profile, nil
}

// Logout 将当前令牌的 jti 加入黑名单, 使其在剩余有效期内失效。
func (s *authService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" {
		return nil // 没有 jti 的令牌无从吊销
	}

	expTime := time.Now().Add(s.cfg.Auth.JWTExpiry)
	if claims.ExpiresAt != nil {
		expTime = claims.ExpiresAt.Time
	}
	if err := s.blacklist.Add(ctx, claims.ID, expTime); err != nil {
		log.Printf("Error blacklisting token jti %s: %v", claims.ID, err)
		return fmt.Errorf("吊销令牌失败: %w", err)
	}
	return nil
}
