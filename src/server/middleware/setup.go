package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/apimgr/memberkit/src/config"
)

// InstalledGuard serves show instead of the wizard once installed reports
// true. Sessions that were already running when the marker appeared, or
// that were started with ?force=1, keep going so the wizard can finish.
func InstalledGuard(installed func() bool, active func(*gin.Context) bool, show gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !installed() || config.IsTruthy(c.Query("force")) || active(c) {
			c.Next()
			return
		}
		show(c)
		c.Abort()
	}
}
