package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/apimgr/memberkit/src/config"
	"github.com/apimgr/memberkit/src/server/session"
)

// HealthHandler reports process liveness for monitoring
type HealthHandler struct {
	cfg     *config.Config
	store   *session.Store
	version string
	started time.Time
}

// NewHealthHandler creates a health handler
func NewHealthHandler(cfg *config.Config, store *session.Store, version string) *HealthHandler {
	return &HealthHandler{cfg: cfg, store: store, version: version, started: time.Now()}
}

// HealthCheck handles GET /healthz
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "memberkit-installer",
		"version":   h.version,
		"mode":      h.cfg.Mode,
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"installed": IsInstalled(h.cfg),
		"sessions":  h.store.Count(),
		"runtime": gin.H{
			"go":         runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	})
}
