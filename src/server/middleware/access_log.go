package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/apimgr/memberkit/src/utils"
)

// slowRequest is the duration after which a request is logged as an error.
// Schema installation on a remote database takes a few seconds.
const slowRequest = 10 * time.Second

// AccessLogger writes one access log line per request
func AccessLogger(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		logger.Access(utils.GetClientIP(c), "-", c.Request.Method, c.Request.URL.Path, c.Request.Proto,
			c.Writer.Status(), int64(c.Writer.Size()), c.Request.Referer(), c.Request.UserAgent())

		if duration > slowRequest {
			logger.Error("Slow request: %s %s took %v", c.Request.Method, c.Request.URL.Path, duration)
		}
	}
}
