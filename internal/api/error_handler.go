package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/routine-gin/internal/engine"
)

// APIError API 错误
type APIError struct {
	Code    int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	return e.Message
}

// ErrorHandlerMiddleware 错误处理中间件
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()

			var apiErr *APIError
			if errors.As(err, &apiErr) {
				Error(c, apiErr.Code, apiErr.Message, apiErr.Detail)
			} else {
				Error(c, http.StatusInternalServerError, "internal server error", err.Error())
			}
		}
	}
}

// WrapError 包装错误
func WrapError(err error, code int, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Detail:  err.Error(),
	}
}

// EngineError 将引擎错误分类映射为 HTTP 响应
// 四类错误都可由调用方修正后重试;未识别的错误按 500 处理
func EngineError(c *gin.Context, err error, operation string) {
	var notFoundErr *engine.NotFoundError
	var conflictErr *engine.ConflictError
	var invalidStateErr *engine.InvalidStateError
	var validationErr *engine.ValidationError

	switch {
	case errors.As(err, &notFoundErr):
		Error(c, http.StatusNotFound, notFoundErr.Resource+" not found", err.Error())
	case errors.As(err, &conflictErr):
		Error(c, http.StatusConflict, "time window conflict", err.Error())
	case errors.As(err, &invalidStateErr):
		Error(c, http.StatusConflict, "invalid state for "+operation, err.Error())
	case errors.As(err, &validationErr):
		Error(c, http.StatusUnprocessableEntity, "finish gate validation failed", err.Error())
	default:
		Error(c, http.StatusInternalServerError, "failed to "+operation, err.Error())
	}
}
