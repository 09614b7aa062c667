package service

import (
	"interview_prep_backend/internal/model"
	"interview_prep_backend/internal/repository"
	"interview_prep_backend/internal/util"
)

// QuestionService 题库管理，仅管理端使用
type QuestionService struct {
	QuestionRepo *repository.QuestionRepository
}

func NewQuestionService(questionRepo *repository.QuestionRepository) *QuestionService {
	return &QuestionService{QuestionRepo: questionRepo}
}

func (s *QuestionService) Create(q *model.Question) error {
	if err := validateQuestion(q); err != nil {
		return err
	}
	return s.QuestionRepo.Create(q)
}

func (s *QuestionService) Get(id uint) (*model.Question, error) {
	return s.QuestionRepo.FindByID(id)
}

func (s *QuestionService) Update(q *model.Question) error {
	if err := validateQuestion(q); err != nil {
		return err
	}
	return s.QuestionRepo.Update(q)
}

func (s *QuestionService) Delete(id uint) error {
	return s.QuestionRepo.Delete(id)
}

func (s *QuestionService) List(page, limit int, category string, qType model.QuestionType) ([]model.Question, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.QuestionRepo.List(page, limit, category, qType)
}

func validateQuestion(q *model.Question) error {
	if q.Content == "" || q.Category == "" {
		return util.ErrInvalidParameters
	}
	switch q.Type {
	case model.QuestionMultipleChoice:
		if len(q.Options) < 2 || q.Answer < 0 || q.Answer >= len(q.Options) {
			return util.ErrInvalidParameters
		}
	case model.QuestionCoding:
		if len(q.TestCases) == 0 || q.LanguageID <= 0 {
			return util.ErrInvalidParameters
		}
	case model.QuestionOpen:
		if q.Rubric == "" {
			return util.ErrInvalidParameters
		}
	default:
		return util.ErrInvalidParameters
	}
	return nil
}
