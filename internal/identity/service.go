package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/auth"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/config"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/errs"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/logger"
)

// Service 用户注册/登录。
type Service struct {
	repo    *Repo
	authCfg config.AuthConfig
	log     logger.Logger
}

func NewService(repo *Repo, authCfg config.AuthConfig, log logger.Logger) *Service {
	return &Service{repo: repo, authCfg: authCfg, log: log}
}

// RegisterInput 注册入参。Roles 为空时默认注册为车主。
type RegisterInput struct {
	Username        string
	Password        string
	FullName        string
	Phone           string
	Email           string
	Roles           []string
	ServiceCenterID string
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, errs.Validation("username is required")
	}
	if len(in.Password) < 8 {
		return nil, errs.Validation("password must be at least 8 characters")
	}

	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return nil, errs.Validation("username already taken")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	roles := in.Roles
	if len(roles) == 0 {
		roles = []string{RoleCustomer}
	}

	salt, err := GenerateSaltHex()
	if err != nil {
		return nil, err
	}
	hash, err := HashPassword(in.Password, salt)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:              uuid.NewString(),
		Username:        username,
		PasswordHash:    hash,
		PasswordSalt:    salt,
		FullName:        in.FullName,
		Phone:           in.Phone,
		Email:           in.Email,
		Roles:           RolesJoin(roles),
		ServiceCenterID: in.ServiceCenterID,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"user_id": u.ID,
		"roles":   u.Roles,
	}).Info("user registered")
	return u, nil
}

// Login 校验口令并签发 access token。
// 用户名不存在与口令错误返回同一个错误，不泄露账号是否存在。
func (s *Service) Login(ctx context.Context, username, password string) (token string, expiresAt time.Time, err error) {
	u, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", time.Time{}, errs.PermissionDenied("invalid username or password")
		}
		return "", time.Time{}, err
	}
	if !VerifyPassword(password, u.PasswordSalt, u.PasswordHash) {
		return "", time.Time{}, errs.PermissionDenied("invalid username or password")
	}

	token, expiresAt, err = auth.GenerateAccessToken(s.authCfg, u.ID, u.RolesSlice(), 24*time.Hour)
	if err != nil {
		return "", time.Time{}, err
	}

	s.log.WithField("user_id", u.ID).Info("user logged in")
	return token, expiresAt, nil
}

// GetUser 查询用户资料，普通用户只能查自己。
func (s *Service) GetUser(ctx context.Context, actor Actor, userID string) (*User, error) {
	if actor.ID != userID && !actor.IsElevated() {
		return nil, errs.PermissionDenied("you can only view your own profile")
	}
	u, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("user", userID)
		}
		return nil, err
	}
	return u, nil
}
