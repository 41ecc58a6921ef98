// Package session keeps one InstallationContext per browser session.
package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/apimgr/memberkit/src/config"
	"github.com/apimgr/memberkit/src/database"
	"github.com/apimgr/memberkit/src/server/metrics"
	"github.com/apimgr/memberkit/src/server/service"
)

// InstallationContext is the state threaded between wizard steps
type InstallationContext struct {
	ID string
	// Step is the step the wizard shows next, MaxStep the furthest reached
	Step    int
	MaxStep int

	DB              *database.Credentials
	Admin           *service.AdminInfo
	SiteName        string
	SiteURL         string
	SelectedModules []string
	// Written files from the configuration step, shown on completion
	Generated []string
	CreatedAt time.Time

	mu sync.Mutex
}

// Lock serializes step handling for one session, so a double submit runs
// the steps one after the other
func (ic *InstallationContext) Lock() { ic.mu.Lock() }

// Unlock releases Lock
func (ic *InstallationContext) Unlock() { ic.mu.Unlock() }

// Store holds contexts in memory with a sliding TTL
type Store struct {
	cache      *cache.Cache
	ttl        time.Duration
	cookieName string
	secure     bool
}

// NewStore creates a store. Expired contexts are purged by the cache janitor.
func NewStore(cfg config.SessionConfig) *Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	name := cfg.CookieName
	if name == "" {
		name = "memberkit_install"
	}

	c := cache.New(ttl, ttl/4)
	c.OnEvicted(func(string, interface{}) {
		metrics.SessionsActive.Dec()
	})

	return &Store{cache: c, ttl: ttl, cookieName: name, secure: cfg.Secure}
}

// CookieName returns the session cookie name
func (s *Store) CookieName() string {
	return s.cookieName
}

// Create starts a new context at step 1
func (s *Store) Create() *InstallationContext {
	ic := &InstallationContext{
		ID:        uuid.New().String(),
		Step:      1,
		MaxStep:   1,
		CreatedAt: time.Now(),
	}
	s.cache.Set(ic.ID, ic, cache.DefaultExpiration)
	metrics.SessionsActive.Inc()
	return ic
}

// Get returns the context for id
func (s *Store) Get(id string) (*InstallationContext, bool) {
	if id == "" {
		return nil, false
	}
	v, found := s.cache.Get(id)
	if !found {
		return nil, false
	}
	ic, ok := v.(*InstallationContext)
	return ic, ok
}

// Touch extends the lifetime of ic
func (s *Store) Touch(ic *InstallationContext) {
	s.cache.Set(ic.ID, ic, cache.DefaultExpiration)
}

// Destroy removes the context for id
func (s *Store) Destroy(id string) {
	s.cache.Delete(id)
}

// Count returns the number of live contexts
func (s *Store) Count() int {
	return s.cache.ItemCount()
}

// Load returns the request's context, creating one and setting the cookie
// when the cookie is missing or the context has expired
func (s *Store) Load(c *gin.Context) *InstallationContext {
	if id, err := c.Cookie(s.cookieName); err == nil {
		if ic, ok := s.Get(id); ok {
			s.Touch(ic)
			return ic
		}
	}

	ic := s.Create()
	s.setCookie(c, ic.ID, int(s.ttl.Seconds()))
	return ic
}

// Clear destroys ic and expires the cookie
func (s *Store) Clear(c *gin.Context, ic *InstallationContext) {
	s.Destroy(ic.ID)
	s.setCookie(c, "", -1)
}

func (s *Store) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cookieName, value, maxAge, "/", "", s.secure || c.Request.TLS != nil, true)
}
