package service

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/apimgr/memberkit/src/database"
	"github.com/apimgr/memberkit/src/utils"
)

//go:embed defaults/settings.yml
var defaultSettingsYAML []byte

// Setting is one row of the settings catalog
type Setting struct {
	Key         string `yaml:"key"`
	Value       string `yaml:"value"`
	Type        string `yaml:"type"`
	Category    string `yaml:"-"`
	Description string `yaml:"description"`
	Public      bool   `yaml:"public"`
	Required    bool   `yaml:"required"`
}

type settingsCategory struct {
	Category string    `yaml:"category"`
	Settings []Setting `yaml:"settings"`
}

var (
	defaultSettingsOnce sync.Once
	defaultSettings     []Setting
	defaultSettingsErr  error
)

// DefaultSettings returns the embedded catalog in file order
func DefaultSettings() ([]Setting, error) {
	defaultSettingsOnce.Do(func() {
		defaultSettings, defaultSettingsErr = parseSettings(defaultSettingsYAML)
	})
	return defaultSettings, defaultSettingsErr
}

func parseSettings(data []byte) ([]Setting, error) {
	var categories []settingsCategory
	if err := yaml.Unmarshal(data, &categories); err != nil {
		return nil, fmt.Errorf("failed to parse settings catalog: %w", err)
	}

	seen := make(map[string]bool)
	var out []Setting
	for _, cat := range categories {
		for _, s := range cat.Settings {
			if s.Key == "" {
				return nil, fmt.Errorf("setting without key in category %s", cat.Category)
			}
			if seen[s.Key] {
				return nil, fmt.Errorf("duplicate setting key %s", s.Key)
			}
			seen[s.Key] = true
			s.Category = cat.Category
			if s.Type == "" {
				s.Type = "string"
			}
			out = append(out, s)
		}
	}
	return out, nil
}

// Derived carries the wizard input installation-derived settings come from
type Derived struct {
	AdminEmail  string
	SiteName    string
	SiteURL     string
	AdminUserID int64
}

// DerivedKeys are the only keys written after the catalog has been seeded
var DerivedKeys = []string{
	"admin_email",
	"site_name",
	"site_url",
	"primary_admin_id",
	"mail_from_address",
	"mail_from_name",
	"installation_date",
}

// SettingsSeeder writes the default catalog once and keeps the
// installation-derived keys current
type SettingsSeeder struct {
	dialect database.Dialect
	logger  *utils.Logger
	now     func() time.Time
}

// NewSettingsSeeder creates a seeder
func NewSettingsSeeder(dialect database.Dialect, logger *utils.Logger) *SettingsSeeder {
	return &SettingsSeeder{dialect: dialect, logger: logger, now: time.Now}
}

// SeedDefaults inserts the catalog when the settings table is empty. Any
// existing row makes it a no-op so customized values survive a reinstall.
func (s *SettingsSeeder) SeedDefaults(ctx context.Context, q database.Execer) (int, error) {
	return s.seed(ctx, q, false)
}

func (s *SettingsSeeder) seed(ctx context.Context, q database.Execer, tolerant bool) (int, error) {
	count, err := database.CountRows(ctx, q, s.dialect, "settings")
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Debug("Settings table has %d rows, keeping existing values", count)
		return 0, nil
	}

	catalog, err := DefaultSettings()
	if err != nil {
		return 0, err
	}

	stmt := fmt.Sprintf("INSERT INTO %s (setting_key, setting_value, setting_type, category, description, is_public, is_required) VALUES (?, ?, ?, ?, ?, ?, ?)",
		s.dialect.Quote("settings"))

	inserted := 0
	var firstErr error
	for _, st := range catalog {
		_, err := database.ExecContext(ctx, q, database.TimeoutWrite, stmt,
			st.Key, st.Value, st.Type, st.Category, st.Description, boolInt(st.Public), boolInt(st.Required))
		if err == nil {
			inserted++
			continue
		}
		if !tolerant {
			return inserted, fmt.Errorf("failed to insert setting %s: %w", st.Key, err)
		}
		if database.Classify(err).Benign() {
			continue
		}
		s.logger.Warn("Setting %s not inserted: %v", st.Key, err)
		if firstErr == nil {
			firstErr = fmt.Errorf("failed to insert setting %s: %w", st.Key, err)
		}
	}

	s.logger.Info("Seeded %d default settings", inserted)
	return inserted, firstErr
}

// UpsertInstallationDerived writes the whitelisted installation keys,
// inserting or updating each by setting_key
func (s *SettingsSeeder) UpsertInstallationDerived(ctx context.Context, q database.Execer, d Derived) error {
	now := s.now().UTC()
	stamp := now.Format("2006-01-02 15:04:05")

	values := map[string]Setting{
		"admin_email":       {Value: d.AdminEmail, Type: "string", Category: "general"},
		"site_name":         {Value: d.SiteName, Type: "string", Category: "general"},
		"site_url":          {Value: d.SiteURL, Type: "string", Category: "general"},
		"primary_admin_id":  {Value: strconv.FormatInt(d.AdminUserID, 10), Type: "integer", Category: "system"},
		"mail_from_address": {Value: d.AdminEmail, Type: "string", Category: "email"},
		"mail_from_name":    {Value: d.SiteName, Type: "string", Category: "email"},
		"installation_date": {Value: stamp, Type: "string", Category: "system"},
	}

	stmt := s.dialect.UpsertSQL("settings",
		[]string{"setting_key", "setting_value", "setting_type", "category", "updated_at"},
		"setting_key",
		[]string{"setting_value", "updated_at"})

	for _, key := range DerivedKeys {
		v := values[key]
		if _, err := database.ExecContext(ctx, q, database.TimeoutWrite, stmt, key, v.Value, v.Type, v.Category, stamp); err != nil {
			return fmt.Errorf("failed to upsert setting %s: %w", key, err)
		}
	}
	s.logger.Debug("Updated %d installation settings", len(DerivedKeys))
	return nil
}

// LoadSettings reads the current settings as a key/value map
func LoadSettings(ctx context.Context, q database.Execer, d database.Dialect) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, database.TimeoutSimpleSelect)
	defer cancel()

	rows, err := q.QueryContext(ctx, "SELECT setting_key, setting_value FROM "+d.Quote("settings"))
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key string
		var value *string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		if value != nil {
			out[key] = *value
		}
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
