package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the JSON error body
type ErrorResponse struct {
	// Human-readable error message
	Error string `json:"error"`
	// Machine-readable error code (e.g., INVALID_INPUT, NOT_FOUND)
	Code   string `json:"code"`
	Status int    `json:"status"`
	// Additional error context (validation errors, field names)
	Details map[string]interface{} `json:"details,omitempty"`
}

// Common error codes
const (
	ErrInvalidInput     = "INVALID_INPUT"
	ErrNotFound         = "NOT_FOUND"
	ErrAlreadyInstalled = "ALREADY_INSTALLED"
)

// RespondError sends {"error": "...", "code": "...", "status": 400}
func RespondError(c *gin.Context, status int, code string, message string, details ...map[string]interface{}) {
	if shouldRespondText(c) {
		c.String(status, "%s: %s\n", code, message)
		return
	}

	response := ErrorResponse{
		Error:  message,
		Code:   code,
		Status: status,
	}
	if len(details) > 0 {
		response.Details = details[0]
	}
	c.JSON(status, response)
}

// shouldRespondText checks for Accept: text/plain
func shouldRespondText(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/plain")
}

// WantsJSON reports whether the client prefers JSON over the HTML wizard
func WantsJSON(c *gin.Context) bool {
	accept := c.GetHeader("Accept")

	if strings.Contains(accept, "application/json") {
		return true
	}
	if c.Query("format") == "json" {
		return true
	}

	// CLI tools that did not ask for HTML
	userAgent := c.GetHeader("User-Agent")
	if strings.Contains(userAgent, "curl") ||
		strings.Contains(userAgent, "wget") ||
		strings.Contains(userAgent, "HTTPie") {
		if !strings.Contains(accept, "text/html") {
			return true
		}
	}

	return false
}

// NotFound returns a 404 Not Found error
func NotFound(c *gin.Context, message string) {
	RespondError(c, http.StatusNotFound, ErrNotFound, message)
}
