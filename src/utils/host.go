package utils

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequestScheme returns http or https, trusting X-Forwarded-Proto
func RequestScheme(c *gin.Context) string {
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		return strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	if c.Request.TLS != nil {
		return "https"
	}
	return "http"
}

// RequestHost returns the host the browser used, reverse proxy headers first
func RequestHost(c *gin.Context) string {
	for _, header := range []string{"X-Forwarded-Host", "X-Real-Host", "X-Original-Host"} {
		if host := c.GetHeader(header); host != "" {
			return strings.TrimSpace(strings.Split(host, ",")[0])
		}
	}
	return c.Request.Host
}

// SiteURL derives the public URL of the membership site from a wizard
// request: the installer is served from basePath below the site root.
func SiteURL(c *gin.Context, basePath string) string {
	root := c.Request.URL.Path
	if i := strings.Index(root, basePath); basePath != "" && i >= 0 {
		root = root[:i]
	} else {
		root = ""
	}
	return RequestScheme(c) + "://" + RequestHost(c) + strings.TrimRight(root, "/")
}

// GetClientIP extracts the real client IP from reverse proxy headers
func GetClientIP(c *gin.Context) string {
	if ip := c.GetHeader("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return ip
	}
	// X-Forwarded-For is "client, proxy1, proxy2"
	if ip := c.GetHeader("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	return c.ClientIP()
}

// IsLoopback reports whether host names the local machine
func IsLoopback(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
