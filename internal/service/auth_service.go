package service

import (
	"context"
	"errors"
	"interview_prep_backend/internal/config"
	"interview_prep_backend/internal/model"
	"interview_prep_backend/internal/repository"
	"interview_prep_backend/internal/util"
	"interview_prep_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// LoginRecorder 登录活动的进度侧记录
type LoginRecorder interface {
	RecordLogin(ctx context.Context, userID uint) error
}

type AuthService struct {
	UserRepo *repository.UserRepository
	Logins   LoginRecorder
	Cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, logins LoginRecorder, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo: userRepo,
		Logins:   logins,
		Cfg:      cfg,
	}
}

func (s *AuthService) Register(user *model.User) error {
	_, err := s.UserRepo.FindByEmail(user.Email)
	if err == nil {
		return util.ErrEmailRegistered
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.Password = string(hashedPassword)
	if user.Role == "" {
		user.Role = model.Candidate
	}
	return s.UserRepo.Create(user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	user, err := s.UserRepo.FindByEmail(email)
	if err != nil {
		return "", nil, errors.New("invalid credentials")
	}
	if user.Disabled {
		return "", nil, util.ErrAccessDenied
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, errors.New("invalid credentials")
	}

	if err := s.UserRepo.UpdateLastLogin(user.ID); err != nil {
		logger.Log.Warn("failed to update last login", zap.Uint("userId", user.ID), zap.Error(err))
	}
	// 登录活动进度落账失败不阻断登录
	if err := s.Logins.RecordLogin(ctx, user.ID); err != nil {
		logger.Log.Warn("failed to record login activity", zap.Uint("userId", user.ID), zap.Error(err))
	}

	token, err := util.GenerateJWT(user.ID, string(user.Role), user.Email, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *AuthService) GetCurrentUser(c *gin.Context) *model.User {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		return nil
	}

	user, err := s.UserRepo.FindByID(claims.UserID)
	if err != nil {
		return nil
	}
	return user
}
