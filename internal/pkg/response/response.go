package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Machine-readable result codes carried alongside the HTTP status.
const (
	CodeSessionExpired   = "SESSION_EXPIRED"
	CodeLoginRequired    = "LOGIN_REQUIRED"
	CodeAdminRequired    = "ADMIN_REQUIRED"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeAccountLocked    = "ACCOUNT_LOCKED"
	CodeBadCredentials   = "BAD_CREDENTIALS"
	CodeAuthError        = "AUTH_ERROR"
	CodeRateLimited      = "RATE_LIMITED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeInternalError    = "INTERNAL_ERROR"
)

// Response defines the standard API response format.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Success sends a successful response with a message and optional data.
func Success(c *gin.Context, status int, message string, data interface{}) {
	if status == 0 {
		status = http.StatusOK
	}

	c.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error sends a standardized error response and short-circuits the chain.
func Error(c *gin.Context, status int, message, code string) {
	c.Abort()
	c.JSON(status, Response{
		Success: false,
		Message: message,
		Code:    code,
	})
}

// ValidationError sends a 400 Bad Request response for invalid input.
func ValidationError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message, CodeBadRequest)
}

// Unauthorized sends a 401 Unauthorized response.
func Unauthorized(c *gin.Context, message, code string) {
	Error(c, http.StatusUnauthorized, message, code)
}

// Forbidden sends a 403 Forbidden response.
func Forbidden(c *gin.Context, message, code string) {
	Error(c, http.StatusForbidden, message, code)
}

// NotFound sends a 404 Not Found response.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message, CodeNotFound)
}

// Internal sends a 500 Internal Server Error response.
func Internal(c *gin.Context, message, code string) {
	Error(c, http.StatusInternalServerError, message, code)
}
