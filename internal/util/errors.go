package util

import "errors"

var (
	ErrUserNotFound            = errors.New("用户不存在")
	ErrEmailRegistered         = errors.New("该邮箱已被注册")
	ErrInvalidParameters       = errors.New("invalid parameters")
	ErrItemPoolExhausted       = errors.New("item pool exhausted")
	ErrSessionNotFound         = errors.New("session not found")
	ErrAccessDenied            = errors.New("access denied")
	ErrSessionNotActive        = errors.New("session not active")
	ErrConcurrentStateConflict = errors.New("concurrent state conflict")
	ErrUpstreamUnavailable     = errors.New("upstream service unavailable")
	ErrAIServiceUnavailable    = errors.New("AI service not configured")
)
