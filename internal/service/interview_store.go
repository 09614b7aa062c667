package service

import (
	"sync"
	"time"

	"interview_prep_backend/internal/model"
)

// ConversationalSession AI面试的内存态：对话轮次、提问游标和
// 各维度的临时分数（只按最大值合并，不会回落）。
// 不保证持久：进程重启即丢失，恢复依赖会话行内的影子副本
type ConversationalSession struct {
	SessionID     string                 `json:"sessionId"`
	Profile       model.InterviewProfile `json:"profile"`
	Turns         []ChatTurn             `json:"turns"`
	QuestionIndex int                    `json:"questionIndex"`
	Budget        int                    `json:"budget"`
	Communication int                    `json:"communication"`
	Technical     int                    `json:"technical"`
	Behavioral    int                    `json:"behavioral"`
	TouchedAt     time.Time              `json:"touchedAt"`
}

// MergeScores 各维度分数按最大值合并，只增不减
func (cs *ConversationalSession) MergeScores(communication, technical, behavioral int) {
	if communication > cs.Communication {
		cs.Communication = communication
	}
	if technical > cs.Technical {
		cs.Technical = technical
	}
	if behavioral > cs.Behavioral {
		cs.Behavioral = behavioral
	}
}

// InterviewSessionStore 按会话ID键控的临时存储。实现不要求跨进程
// 共享：多实例部署下其他实例必然miss，由恢复协议兜底
type InterviewSessionStore interface {
	Get(sessionID string) (*ConversationalSession, bool)
	Set(session *ConversationalSession)
	Delete(sessionID string)
}

// MemorySessionStore 进程内实现，带TTL定期清理。
// 清理协程由Close终止
type MemorySessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]*ConversationalSession
	ttl       time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	s := &MemorySessionStore{
		sessions: make(map[string]*ConversationalSession),
		ttl:      ttl,
		done:     make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.mu.Lock()
				for id, sess := range s.sessions {
					if time.Since(sess.TouchedAt) > s.ttl {
						delete(s.sessions, id)
					}
				}
				s.mu.Unlock()
			}
		}
	}()

	return s
}

// Close 停止清理协程，可重复调用
func (s *MemorySessionStore) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *MemorySessionStore) Get(sessionID string) (*ConversationalSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	return sess, ok
}

func (s *MemorySessionStore) Set(session *ConversationalSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.TouchedAt = time.Now()
	s.sessions[session.SessionID] = session
}

func (s *MemorySessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
