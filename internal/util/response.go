package util

import (
	"errors"
	"interview_prep_backend/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PageResponse 分页响应结构
type PageResponse struct {
	List  interface{} `json:"list"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Resource not found")
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error", zap.Error(err))
	InternalServerError(c)
}

// DomainError 将业务错误映射为对应的HTTP状态码
func DomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidParameters):
		Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrItemPoolExhausted):
		Error(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrUserNotFound):
		Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAccessDenied):
		Forbidden(c)
	case errors.Is(err, ErrSessionNotActive):
		Error(c, http.StatusConflict, err.Error())
	case errors.Is(err, ErrConcurrentStateConflict):
		// 可重试，客户端应稍后重新发起请求
		Error(c, http.StatusConflict, err.Error())
	case errors.Is(err, ErrAIServiceUnavailable):
		Error(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrUpstreamUnavailable):
		Error(c, http.StatusBadGateway, err.Error())
	default:
		LogInternalError(c, err)
	}
}
