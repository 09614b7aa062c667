package repository

import (
	"errors"
	"interview_prep_backend/internal/model"

	"gorm.io/gorm"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

// GetOrCreate 懒创建用户的聚合统计记录
func (r *ProgressRepository) GetOrCreate(userID uint) (*model.UserProgress, error) {
	var p model.UserProgress
	err := r.DB.Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p = model.UserProgress{UserID: userID}
		if err := r.DB.Create(&p).Error; err != nil {
			return nil, err
		}
		return &p, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProgressRepository) Save(p *model.UserProgress) error {
	return r.DB.Save(p).Error
}
