package repository

import (
	"errors"
	"interview_prep_backend/internal/model"
	"interview_prep_backend/internal/util"
	"time"

	"gorm.io/gorm"
)

type SessionRepository struct {
	DB *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

func (r *SessionRepository) Create(s *model.PracticeSession) error {
	return r.DB.Create(s).Error
}

func (r *SessionRepository) FindByID(id string) (*model.PracticeSession, error) {
	var s model.PracticeSession
	err := r.DB.Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveAnswers 作答集合的条件写回：仅当会话仍处于非终态时更新
// answers列并确保状态进入in_progress。返回是否真正写入；false
// 表示会话在读取与写回之间被并发完成或放弃。
// status/score/completed_at只允许由CompleteConditionally写入，
// 这里绝不触碰评分字段
func (r *SessionRepository) SaveAnswers(id string, answers map[int]model.SubmittedAnswer) (bool, error) {
	res := r.DB.Model(&model.PracticeSession{}).
		Where("id = ? AND status IN ?", id, model.NonTerminalStatuses).
		Updates(map[string]interface{}{
			"answers": answers,
			"status":  model.StatusInProgress,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateConfig 仅更新配置列（面试影子副本），同样以非终态为条件，
// 避免迟到的影子写回覆盖已完成会话
func (r *SessionRepository) UpdateConfig(id string, cfg model.SessionConfig) (bool, error) {
	res := r.DB.Model(&model.PracticeSession{}).
		Where("id = ? AND status IN ?", id, model.NonTerminalStatuses).
		Update("config", cfg)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateStatus 无条件状态切换，仅用于created->in_progress这类
// 幂等的touch操作
func (r *SessionRepository) UpdateStatus(id string, from, to model.SessionStatus) error {
	return r.DB.Model(&model.PracticeSession{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to).
		Error
}

// CompleteConditionally 完成操作的一等CAS原语：仅当当前状态仍在
// expected集合内时，单条条件更新写入终态、得分与完成时间。
// 返回是否真正发生了状态切换；false表示另一并发请求已抢先完成
func (r *SessionRepository) CompleteConditionally(id string, expected []model.SessionStatus, score, correct int, completedAt time.Time) (bool, error) {
	res := r.DB.Model(&model.PracticeSession{}).
		Where("id = ? AND status IN ?", id, expected).
		Updates(map[string]interface{}{
			"status":       model.StatusCompleted,
			"score":        score,
			"correct":      correct,
			"completed_at": completedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AbandonStale 将超过阈值未活动的进行中会话批量置为abandoned
func (r *SessionRepository) AbandonStale(olderThan time.Time) (int64, error) {
	res := r.DB.Model(&model.PracticeSession{}).
		Where("status IN ? AND updated_at < ?", model.NonTerminalStatuses, olderThan).
		Update("status", model.StatusAbandoned)
	return res.RowsAffected, res.Error
}

func (r *SessionRepository) ListByUser(userID uint, page, limit int) ([]model.PracticeSession, int64, error) {
	var sessions []model.PracticeSession
	var total int64

	query := r.DB.Model(&model.PracticeSession{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Offset(offset).Limit(limit).Order("created_at DESC").Find(&sessions).Error
	return sessions, total, err
}
