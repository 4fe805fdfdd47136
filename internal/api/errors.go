package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"matchbook/internal/engine"
)

// ErrorResponse is the standardized error body.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// ErrorCode identifies an error class to API consumers.
type ErrorCode string

const (
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrCodeInvalidOrder   ErrorCode = "INVALID_ORDER"
	ErrCodeDuplicateOrder ErrorCode = "DUPLICATE_ORDER_ID"
	ErrCodeOrderNotFound  ErrorCode = "ORDER_NOT_FOUND"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeConflict       ErrorCode = "CONFLICT"
	ErrCodeInternalError  ErrorCode = "INTERNAL_ERROR"
)

// AbortWithError aborts the request with a standardized error body.
func AbortWithError(c *gin.Context, status int, code ErrorCode, message string) {
	c.AbortWithStatusJSON(status, &ErrorResponse{
		Error:   string(code),
		Message: message,
	})
}

// AbortWithEngineError maps the engine's error taxonomy onto HTTP
// status codes: invalid orders are the caller's fault, duplicate ids
// conflict with existing state, unknown ids are absent resources.
func AbortWithEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidOrder):
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidOrder, err.Error())
	case errors.Is(err, engine.ErrDuplicateOrderID):
		AbortWithError(c, http.StatusConflict, ErrCodeDuplicateOrder, err.Error())
	case errors.Is(err, engine.ErrOrderNotFound):
		AbortWithError(c, http.StatusNotFound, ErrCodeOrderNotFound, err.Error())
	default:
		AbortWithError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
	}
}

// SuccessResponse wraps a successful payload.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// NewSuccessResponse creates a success body.
func NewSuccessResponse(data interface{}, message string) *SuccessResponse {
	return &SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	}
}
