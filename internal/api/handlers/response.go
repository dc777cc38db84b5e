package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/certlink/internal/certificate"
	"github.com/adamscao/certlink/internal/registry"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// RespondError sends an error response
func RespondError(c *gin.Context, statusCode int, errorCode string, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// RespondCertError maps codec and registry errors onto HTTP responses:
// rejected input is a client error, a tampered token is unprocessable,
// and a configuration problem is the server's fault.
func RespondCertError(c *gin.Context, err error) {
	status, code := certErrorStatus(err)

	resp := ErrorResponse{Error: code, Message: err.Error()}
	var certErr *certificate.Error
	if errors.As(err, &certErr) {
		resp.Field = certErr.Field
		if certErr.Kind == certificate.KindConfig {
			resp.Message = "certificate service is misconfigured"
		}
	}

	c.JSON(status, resp)
}

func certErrorStatus(err error) (int, string) {
	if errors.Is(err, registry.ErrNotFound) {
		return http.StatusNotFound, "not_found"
	}

	switch certificate.KindOf(err) {
	case certificate.KindValidation:
		return http.StatusBadRequest, "validation_error"
	case certificate.KindFormat:
		return http.StatusBadRequest, "invalid_token"
	case certificate.KindIntegrity:
		return http.StatusUnprocessableEntity, "tampered_token"
	case certificate.KindConfig:
		return http.StatusInternalServerError, "config_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// GetClientIP gets the real client IP address
func GetClientIP(c *gin.Context) string {
	// Try X-Forwarded-For header first (for proxied requests)
	if ip := c.GetHeader("X-Forwarded-For"); ip != "" {
		first, _, _ := strings.Cut(ip, ",")
		return strings.TrimSpace(first)
	}

	// Try X-Real-IP header
	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return ip
	}

	// Fall back to RemoteAddr
	return c.ClientIP()
}
