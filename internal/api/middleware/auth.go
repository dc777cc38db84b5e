package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/certlink/internal/auth"
)

// Header names for admin credentials
const (
	AdminTokenHeader = "X-Admin-Token"
	AdminTOTPHeader  = "X-Admin-TOTP"
)

// FailureFunc is called when a request is rejected
type FailureFunc func(c *gin.Context, reason string)

// AdminAuth middleware checks for the admin token and, when totpSecret
// is set, a current TOTP code
func AdminAuth(adminToken, totpSecret string, onFailure FailureFunc) gin.HandlerFunc {
	tokenHash := ""
	if adminToken != "" {
		tokenHash = auth.HashToken(adminToken)
	}

	reject := func(c *gin.Context, status int, code, message string) {
		if onFailure != nil {
			onFailure(c, message)
		}
		c.AbortWithStatusJSON(status, gin.H{
			"error":   code,
			"message": message,
		})
	}

	return func(c *gin.Context) {
		if tokenHash == "" {
			reject(c, http.StatusServiceUnavailable, "admin_disabled", "Admin endpoints are disabled")
			return
		}

		token := c.GetHeader(AdminTokenHeader)
		if token == "" {
			reject(c, http.StatusUnauthorized, "unauthorized", "Admin token required")
			return
		}

		if !auth.VerifyToken(token, tokenHash) {
			reject(c, http.StatusForbidden, "forbidden", "Invalid admin token")
			return
		}

		if totpSecret != "" {
			code := c.GetHeader(AdminTOTPHeader)
			if code == "" {
				reject(c, http.StatusUnauthorized, "totp_required", "TOTP code required")
				return
			}
			valid, err := auth.ValidateTOTP(totpSecret, code, time.Now())
			if err != nil || !valid {
				reject(c, http.StatusForbidden, "invalid_totp", "Invalid TOTP code")
				return
			}
		}

		c.Next()
	}
}
