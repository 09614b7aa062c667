package service

import (
	"context"
	"fmt"
	"interview_prep_backend/internal/model"
	"interview_prep_backend/internal/repository"
	"interview_prep_backend/internal/util"
	"io"
	"path/filepath"
	"time"
)

type UserService struct {
	UserRepo *repository.UserRepository
	Storage  *StorageService
}

func NewUserService(userRepo *repository.UserRepository, storage *StorageService) *UserService {
	return &UserService{UserRepo: userRepo, Storage: storage}
}

func (s *UserService) GetProfile(userID uint) (*model.User, error) {
	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		return nil, util.ErrUserNotFound
	}
	return user, nil
}

// UpdateProfileRequest 可更新的个人资料字段
type UpdateProfileRequest struct {
	Name       string `json:"name"`
	TargetRole string `json:"targetRole"`
	Experience string `json:"experience"`
	Language   string `json:"language"`
}

func (s *UserService) UpdateProfile(userID uint, req *UpdateProfileRequest) (*model.User, error) {
	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		return nil, util.ErrUserNotFound
	}

	if req.Name != "" {
		user.Name = req.Name
	}
	if req.TargetRole != "" {
		user.TargetRole = req.TargetRole
	}
	if req.Experience != "" {
		user.Experience = req.Experience
	}
	if req.Language != "" {
		user.Language = req.Language
	}

	if err := s.UserRepo.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

// UploadAvatar 上传头像并更新用户记录
func (s *UserService) UploadAvatar(ctx context.Context, userID uint, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		return "", util.ErrUserNotFound
	}

	key := fmt.Sprintf("avatars/%d_%d%s", userID, time.Now().Unix(), filepath.Ext(filename))
	url, err := s.Storage.Upload(ctx, key, reader, size, contentType)
	if err != nil {
		return "", err
	}

	user.Avatar = url
	if err := s.UserRepo.Update(user); err != nil {
		return "", err
	}
	return url, nil
}

// UploadResume 上传简历并更新用户记录，简历内容用于面试画像
func (s *UserService) UploadResume(ctx context.Context, userID uint, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		return "", util.ErrUserNotFound
	}

	key := fmt.Sprintf("resumes/%d_%d%s", userID, time.Now().Unix(), filepath.Ext(filename))
	url, err := s.Storage.Upload(ctx, key, reader, size, contentType)
	if err != nil {
		return "", err
	}

	user.Resume = url
	if err := s.UserRepo.Update(user); err != nil {
		return "", err
	}
	return url, nil
}
