// Package server assembles the installer's gin engine and HTTP server.
package server

import (
	"context"
	"embed"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apimgr/memberkit/src/config"
	"github.com/apimgr/memberkit/src/server/handler"
	"github.com/apimgr/memberkit/src/server/middleware"
	"github.com/apimgr/memberkit/src/server/session"
	"github.com/apimgr/memberkit/src/utils"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// LoadTemplates parses the embedded wizard templates
func LoadTemplates() (*template.Template, error) {
	return template.ParseFS(templatesFS, "templates/*.tmpl")
}

// Server is the installer web server
type Server struct {
	cfg    *config.Config
	logger *utils.Logger
	store  *session.Store
	engine *gin.Engine
	setup  *handler.SetupHandler
	srv    *http.Server
}

// New builds the engine and routes for ctl
func New(cfg *config.Config, ctl *handler.Controller, store *session.Store, logger *utils.Logger) (*Server, error) {
	tmpl, err := LoadTemplates()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		store:  store,
		setup:  handler.NewSetupHandler(ctl, store, cfg, logger),
	}

	r := gin.New()
	r.SetTrustedProxies([]string{"127.0.0.1", "::1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"})

	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLogger(logger))
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.BodySizeLimit(middleware.DefaultMaxBodySize))
	r.SetHTMLTemplate(tmpl)

	health := handler.NewHealthHandler(cfg, store, ctl.Version)
	r.GET("/healthz", health.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	base := basePath(cfg.Server.BasePath)
	if base != "/" {
		r.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusFound, base)
		})
	}

	csrf := middleware.DefaultCSRFConfig()
	csrf.Enabled = cfg.Server.CSRF
	csrf.Secure = cfg.Session.Secure

	guard := middleware.InstalledGuard(
		func() bool { return handler.IsInstalled(cfg) },
		s.activeSession,
		s.setup.ShowInstalled,
	)

	wizard := r.Group(base)
	wizard.Use(middleware.CSRFProtection(csrf))
	wizard.Use(guard)
	wizard.GET("", s.setup.ShowStep)
	post := []gin.HandlerFunc{s.setup.Submit}
	if cfg.RateLimit.Enabled {
		post = append([]gin.HandlerFunc{middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window)}, post...)
	}
	wizard.POST("", post...)

	if cfg.Server.StatusAPI {
		status := r.Group(strings.TrimRight(base, "/"))
		status.Use(cors.New(corsConfig(cfg.Server.CORSOrigins)))
		status.GET("/status", s.setup.Status)
	}

	r.NoRoute(func(c *gin.Context) {
		handler.NotFound(c, "Page not found")
	})

	logger.Debug("Installer routes mounted at %s", base)

	s.engine = r
	s.srv = &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Address, strconv.Itoa(cfg.Server.Port)),
		Handler: r,
		// Schema installation on a slow host can take a while
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   120 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	return s, nil
}

func basePath(p string) string {
	return "/" + strings.Trim(p, "/")
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Accept", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// activeSession reports whether the request belongs to a running wizard
func (s *Server) activeSession(c *gin.Context) bool {
	id, err := c.Cookie(s.store.CookieName())
	if err != nil {
		return false
	}
	_, ok := s.store.Get(id)
	return ok
}

// Handler returns the gin engine
func (s *Server) Handler() http.Handler {
	return s.engine
}

// OnComplete registers fn to run once the installer removed itself
func (s *Server) OnComplete(fn func()) {
	s.setup.OnComplete = fn
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.srv.Addr
}

// ListenAndServe serves until Shutdown; http.ErrServerClosed is not an error
func (s *Server) ListenAndServe() error {
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
