package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/httprate"
)

const (
	// DefaultRequestsPerWindow bounds wizard submissions per client IP
	DefaultRequestsPerWindow = 30
	DefaultWindow            = time.Minute
)

// RateLimit limits requests per client IP. Database credentials are tested
// on every database step submission, so this also throttles guessing.
func RateLimit(requests int, window time.Duration) gin.HandlerFunc {
	if requests <= 0 {
		requests = DefaultRequestsPerWindow
	}
	if window <= 0 {
		window = DefaultWindow
	}

	limiter := httprate.NewRateLimiter(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		// the gin handler below writes the response
		httprate.WithLimitHandler(func(http.ResponseWriter, *http.Request) {}),
	)

	return func(c *gin.Context) {
		allowed := false
		limiter.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			allowed = true
		})).ServeHTTP(c.Writer, c.Request)

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":  "Too many requests. Please try again later.",
				"code":   "RATE_LIMITED",
				"status": http.StatusTooManyRequests,
			})
			return
		}
		c.Next()
	}
}
