package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pavitra93/go-simulation-admin/shared/logging"
	"github.com/pavitra93/go-simulation-admin/shared/repository"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ListData wraps a page of results
type ListData struct {
	Items any `json:"items"`
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
	Count int `json:"count"`
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse sends an error response
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

// StatusFor maps a repository error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, repository.ErrScopeViolation):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrInvalidField):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrTransient), errors.Is(err, ErrCircuitOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFromRepository writes the response for an error returned by a
// repository or service. Internal failures are logged and their detail is
// not sent to the client.
func ErrorFromRepository(c *gin.Context, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusInternalServerError:
		logging.FromContext(c.Request.Context()).WithError(err).Error("Request failed")
		ErrorResponse(c, status, "internal server error")
	case http.StatusServiceUnavailable:
		logging.FromContext(c.Request.Context()).WithError(err).Warn("Storage unavailable")
		ErrorResponse(c, status, "service temporarily unavailable")
	case http.StatusNotFound:
		ErrorResponse(c, status, "resource not found")
	default:
		ErrorResponse(c, status, err.Error())
	}
}

// BadRequestResponse sends a 400 Bad Request response
func BadRequestResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, message)
}

// UnauthorizedResponse sends a 401 Unauthorized response
func UnauthorizedResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusUnauthorized, message)
}

// ForbiddenResponse sends a 403 Forbidden response
func ForbiddenResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusForbidden, message)
}

// NotFoundResponse sends a 404 Not Found response
func NotFoundResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusNotFound, message)
}

// ServiceUnavailableResponse sends a 503 Service Unavailable response
func ServiceUnavailableResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusServiceUnavailable, message)
}

// CreatedResponse sends a 201 Created response
func CreatedResponse(c *gin.Context, message string, data interface{}) {
	SuccessResponse(c, http.StatusCreated, message, data)
}

// OKResponse sends a 200 OK response
func OKResponse(c *gin.Context, message string, data interface{}) {
	SuccessResponse(c, http.StatusOK, message, data)
}

// PageResponse sends a 200 OK response carrying a page of items
func PageResponse[T any](c *gin.Context, items []T, skip, limit int) {
	if items == nil {
		items = []T{}
	}
	OKResponse(c, "", ListData{Items: items, Skip: skip, Limit: limit, Count: len(items)})
}
