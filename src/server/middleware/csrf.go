package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CSRFConfig holds CSRF protection configuration
type CSRFConfig struct {
	Enabled     bool
	TokenLength int
	CookieName  string
	HeaderName  string
	FormField   string
	// Secure forces the Secure cookie flag; TLS requests always get it
	Secure bool
}

// DefaultCSRFConfig returns default CSRF configuration
func DefaultCSRFConfig() CSRFConfig {
	return CSRFConfig{
		Enabled:     true,
		TokenLength: 32,
		CookieName:  "memberkit_csrf",
		HeaderName:  "X-CSRF-Token",
		FormField:   "csrf_token",
	}
}

// CSRFProtection uses the double submit cookie pattern. Safe methods get a
// token in the cookie and in the gin context as "csrf_token"; every other
// method must echo the cookie in the form field or header.
func CSRFProtection(cfg CSRFConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		cookieToken, _ := c.Cookie(cfg.CookieName)

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			if cookieToken == "" {
				cookieToken = generateCSRFToken(cfg.TokenLength)
				setCSRFCookie(c, cfg, cookieToken)
			}
			c.Set("csrf_token", cookieToken)
			c.Next()
			return
		}

		if cookieToken == "" {
			abortCSRF(c, "CSRF token missing")
			return
		}

		requestToken := c.PostForm(cfg.FormField)
		if requestToken == "" {
			requestToken = c.GetHeader(cfg.HeaderName)
		}
		if requestToken == "" {
			abortCSRF(c, "CSRF token not provided")
			return
		}
		if subtle.ConstantTimeCompare([]byte(requestToken), []byte(cookieToken)) != 1 {
			abortCSRF(c, "CSRF token validation failed")
			return
		}

		c.Set("csrf_token", cookieToken)
		c.Next()
	}
}

func abortCSRF(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"error":  message + ". Reload the page and try again.",
		"code":   "FORBIDDEN",
		"status": http.StatusForbidden,
	})
}

func generateCSRFToken(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func setCSRFCookie(c *gin.Context, cfg CSRFConfig, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(cfg.CookieName, token, 0, "/", "", cfg.Secure || c.Request.TLS != nil, true)
}
