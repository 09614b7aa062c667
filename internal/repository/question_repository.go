package repository

import (
	"interview_prep_backend/internal/model"
	"interview_prep_backend/internal/util"

	"gorm.io/gorm"
)

type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

func (r *QuestionRepository) Create(q *model.Question) error {
	return r.DB.Create(q).Error
}

func (r *QuestionRepository) FindByID(id uint) (*model.Question, error) {
	var q model.Question
	err := r.DB.First(&q, id).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *QuestionRepository) Update(q *model.Question) error {
	return r.DB.Save(q).Error
}

func (r *QuestionRepository) Delete(id uint) error {
	return r.DB.Delete(&model.Question{}, id).Error
}

func (r *QuestionRepository) List(page, limit int, category string, qType model.QuestionType) ([]model.Question, int64, error) {
	var questions []model.Question
	var total int64

	query := r.DB.Model(&model.Question{})
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if qType != "" {
		query = query.Where("type = ?", qType)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Offset(offset).Limit(limit).Order("id DESC").Find(&questions).Error
	return questions, total, err
}

// SampleConstraints 题库采样约束
type SampleConstraints struct {
	Categories []string
	Count      int
	Difficulty string
	Type       model.QuestionType
}

// Sample 从题库随机抽取满足约束的题目。题量不足时返回
// ErrItemPoolExhausted，而不是静默抽取少于请求数量的题目
func (r *QuestionRepository) Sample(c SampleConstraints) ([]model.Question, error) {
	if c.Count <= 0 {
		return nil, util.ErrInvalidParameters
	}

	query := r.DB.Model(&model.Question{}).Where("enabled = ?", true)
	if len(c.Categories) > 0 {
		query = query.Where("category IN ?", c.Categories)
	}
	if c.Difficulty != "" {
		query = query.Where("difficulty = ?", c.Difficulty)
	}
	if c.Type != "" {
		query = query.Where("type = ?", c.Type)
	}

	var questions []model.Question
	err := query.Order("RAND()").Limit(c.Count).Find(&questions).Error
	if err != nil {
		return nil, err
	}
	if len(questions) < c.Count {
		return nil, util.ErrItemPoolExhausted
	}
	return questions, nil
}
