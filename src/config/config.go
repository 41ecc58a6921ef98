package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the installer configuration (installer.yml)
type Config struct {
	Mode string `yaml:"mode"` // development, production

	Server       ServerConfig       `yaml:"server"`
	Paths        PathsConfig        `yaml:"paths"`
	Session      SessionConfig      `yaml:"session"`
	Database     DatabaseConfig     `yaml:"database"`
	Install      InstallConfig      `yaml:"install"`
	Requirements RequirementsConfig `yaml:"requirements"`
	Modules      ModulesConfig      `yaml:"modules"`
	Cleanup      CleanupConfig      `yaml:"cleanup"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	Address   string `yaml:"address"`
	Port      int    `yaml:"port"`
	BasePath  string `yaml:"base_path"`
	CSRF      bool   `yaml:"csrf"`
	StatusAPI bool   `yaml:"status_api"`
	// Origins allowed to read the JSON status endpoint
	CORSOrigins []string `yaml:"cors_origins"`
}

// PathsConfig locates the membership application on disk
type PathsConfig struct {
	AppRoot      string `yaml:"app_root"`
	InstallerDir string `yaml:"installer_dir"`
	LogDir       string `yaml:"log_dir"`
	// Marker file whose presence means the application is installed
	Marker string `yaml:"marker"`
}

// SessionConfig controls InstallationContext storage
type SessionConfig struct {
	CookieName string        `yaml:"cookie_name"`
	TTL        time.Duration `yaml:"ttl"`
	Secure     bool          `yaml:"secure"`
}

// DatabaseConfig holds driver-level defaults, credentials come from the wizard
type DatabaseConfig struct {
	Driver         string        `yaml:"driver"` // mysql, sqlite
	DefaultHost    string        `yaml:"default_host"`
	DefaultPort    int           `yaml:"default_port"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Charset        string        `yaml:"charset"`
	Collation      string        `yaml:"collation"`
}

// InstallConfig holds provisioning policy
type InstallConfig struct {
	// adopt: an existing admin row is updated in place; reject: report a conflict
	AdminConflict string `yaml:"admin_conflict"`
	// argon2id or bcrypt
	PasswordHash string `yaml:"password_hash"`
	LoginPath    string `yaml:"login_path"`
	// Overrides the site URL derived from the request
	SiteURL         string `yaml:"site_url"`
	MinPasswordLen  int    `yaml:"min_password_length"`
	DefaultLanguage string `yaml:"default_language"`
	DefaultTimezone string `yaml:"default_timezone"`
}

// RequirementsConfig drives the requirements probe
type RequirementsConfig struct {
	CheckPHP           bool     `yaml:"check_php"`
	PHPBinary          string   `yaml:"php_binary"`
	MinPHPVersion      string   `yaml:"min_php_version"`
	PHPExtensions      []string `yaml:"php_extensions"`
	OptionalExtensions []string `yaml:"optional_extensions"`
	WritableDirs       []string `yaml:"writable_dirs"`
	RecommendedDiskMB  int64    `yaml:"recommended_disk_mb"`
	MinMemoryLimitMB   int64    `yaml:"min_memory_limit_mb"`
}

// ModulesConfig locates the module registry
type ModulesConfig struct {
	// Optional YAML file replacing the embedded registry
	RegistryPath string `yaml:"registry_path"`
	Dir          string `yaml:"dir"`
}

// CleanupConfig lists installer files removed on completion
type CleanupConfig struct {
	Files []string `yaml:"files"`
}

// RateLimitConfig limits wizard submissions per client IP
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:   "0.0.0.0",
			Port:      8080,
			BasePath:  "/install",
			CSRF:      true,
			StatusAPI: true,
		},
		Paths: PathsConfig{
			AppRoot:      ".",
			InstallerDir: "install",
			LogDir:       "logs",
			Marker:       "config/database.php",
		},
		Session: SessionConfig{
			CookieName: "memberkit_install",
			TTL:        2 * time.Hour,
		},
		Database: DatabaseConfig{
			Driver:         "mysql",
			DefaultHost:    "localhost",
			DefaultPort:    3306,
			ConnectTimeout: 5 * time.Second,
			Charset:        "utf8mb4",
			Collation:      "utf8mb4_unicode_ci",
		},
		Install: InstallConfig{
			AdminConflict:   "adopt",
			PasswordHash:    "argon2id",
			LoginPath:       "/login.php",
			MinPasswordLen:  8,
			DefaultLanguage: "en",
			DefaultTimezone: "UTC",
		},
		Requirements: RequirementsConfig{
			CheckPHP:           true,
			PHPBinary:          "php",
			MinPHPVersion:      "7.4.0",
			PHPExtensions:      []string{"pdo", "pdo_mysql", "json", "mbstring", "openssl", "session"},
			OptionalExtensions: []string{"curl", "gd", "zip", "intl"},
			WritableDirs:       []string{"config", "includes", "lang", "modules", "logs"},
			RecommendedDiskMB:  100,
			MinMemoryLimitMB:   128,
		},
		Modules: ModulesConfig{
			Dir: "modules",
		},
		Cleanup: CleanupConfig{
			Files: []string{"install/index.php", "install/schema.sql", "install/assets", "install.php"},
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 30,
			Window:   time.Minute,
		},
	}
}

// LoadConfig loads installer.yml, applying it over the defaults.
// An explicit path must exist; otherwise the search path is used and a
// missing file means defaults.
func LoadConfig(path string) (*Config, string, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("MEMBERKIT_CONFIG")
	}
	explicit := path != ""
	if !explicit {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if explicit || !os.IsNotExist(err) {
				return nil, "", fmt.Errorf("failed to read config %s: %w", path, err)
			}
			path = ""
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, "", fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// applyEnv applies environment overrides
func (c *Config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if root := os.Getenv("MEMBERKIT_APP_ROOT"); root != "" {
		c.Paths.AppRoot = root
	}
	c.Mode = string(DetectMode(c.Mode))
}

// Validate checks values that would otherwise fail deep inside a step
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %s. Supported: mysql, sqlite", c.Database.Driver)
	}
	switch c.Install.AdminConflict {
	case "adopt", "reject":
	default:
		return fmt.Errorf("install.admin_conflict must be adopt or reject, got %q", c.Install.AdminConflict)
	}
	switch c.Install.PasswordHash {
	case "argon2id", "bcrypt":
	default:
		return fmt.Errorf("install.password_hash must be argon2id or bcrypt, got %q", c.Install.PasswordHash)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path must start with /")
	}
	if c.Install.MinPasswordLen < 8 {
		c.Install.MinPasswordLen = 8
	}
	return nil
}

// IsDevelopment reports whether the installer runs in development mode
func (c *Config) IsDevelopment() bool {
	return Mode(c.Mode) == ModeDevelopment
}

// AppPath resolves a path relative to the application root
func (c *Config) AppPath(elem ...string) string {
	return filepath.Join(append([]string{c.Paths.AppRoot}, elem...)...)
}

// LogDir returns the absolute-or-root-relative log directory
func (c *Config) LogDir() string {
	if filepath.IsAbs(c.Paths.LogDir) {
		return c.Paths.LogDir
	}
	return c.AppPath(c.Paths.LogDir)
}

// findConfigFile searches for installer.yml in common locations
func findConfigFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	searchPaths := []string{
		filepath.Join(cwd, "installer.yml"),
		filepath.Join(cwd, "install", "installer.yml"),
		"/etc/memberkit/installer.yml",
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// IsTruthy reports whether an environment-style value means true
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on", "enable", "enabled":
		return true
	}
	return false
}
