package service

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/apimgr/memberkit/src/database"
	"github.com/apimgr/memberkit/src/utils"
)

func testConfigData() ConfigData {
	return ConfigData{
		DB: database.Credentials{
			Driver:   database.DriverMySQL,
			Host:     "localhost",
			Port:     3307,
			Name:     "members",
			User:     "app",
			Password: `pa'ss\word`,
		},
		Charset:     "utf8mb4",
		SiteName:    "Members Area",
		SiteURL:     "https://example.com/club",
		AdminEmail:  "admin@example.com",
		LoginPath:   "/login.php",
		Modules:     []string{"hcaptcha", "smtp"},
		InstallID:   "01HTESTINSTALL",
		InstalledAt: "2026-03-01 12:00:00",
		Version:     "1.0.0",
		Language:    "en",
		Timezone:    "UTC",
	}
}

func TestGenerateWritesAllFiles(t *testing.T) {
	root := t.TempDir()
	g, err := NewConfigGenerator(root, utils.NewDiscardLogger())
	if err != nil {
		t.Fatalf("NewConfigGenerator() error = %v", err)
	}

	written, err := g.Generate(testConfigData())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(written) != len(generatedFiles) {
		t.Errorf("wrote %d files, want %d", len(written), len(generatedFiles))
	}
	if written[len(written)-1] != "config/database.php" {
		t.Errorf("database config must be written last, got %v", written)
	}
	for _, f := range generatedFiles {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(f.path))); err != nil {
			t.Errorf("%s missing: %v", f.path, err)
		}
	}

	dbConfig, err := os.ReadFile(filepath.Join(root, "config", "database.php"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"define('DB_HOST', 'localhost');",
		"define('DB_PORT', 3307);",
		"define('DB_NAME', 'members');",
		`define('DB_PASS', 'pa\'ss\\word');`,
		"define('DB_DRIVER', 'mysql');",
	} {
		if !strings.Contains(string(dbConfig), want) {
			t.Errorf("database.php missing %q", want)
		}
	}

	if runtime.GOOS != "windows" {
		info, _ := os.Stat(filepath.Join(root, "config", "database.php"))
		if info.Mode().Perm() != 0640 {
			t.Errorf("database.php mode = %o, want 640", info.Mode().Perm())
		}
	}

	htaccess, _ := os.ReadFile(filepath.Join(root, ".htaccess"))
	if !strings.Contains(string(htaccess), "RewriteBase /club/") {
		t.Errorf("root .htaccess missing rewrite base:\n%s", htaccess)
	}
}

func TestGenerateWriteFailure(t *testing.T) {
	root := t.TempDir()
	// a regular file where the config directory should be
	if err := os.WriteFile(filepath.Join(root, "config"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	g, err := NewConfigGenerator(root, utils.NewDiscardLogger())
	if err != nil {
		t.Fatal(err)
	}

	_, err = g.Generate(testConfigData())
	var we *ConfigWriteError
	if !errors.As(err, &we) {
		t.Fatalf("expected ConfigWriteError, got %v", err)
	}
	if !strings.HasPrefix(we.Path, "config/") {
		t.Errorf("failing path = %s", we.Path)
	}
	if _, err := os.Stat(filepath.Join(root, "includes", "settings.php")); err == nil {
		t.Error("generation should stop at the first failure")
	}
}

func TestPHPString(t *testing.T) {
	tests := map[string]string{
		"plain":      "'plain'",
		"it's":       `'it\'s'`,
		`back\slash`: `'back\\slash'`,
		`end\`:       `'end\\'`,
		"$var {x}":   "'$var {x}'",
		"":           "''",
	}
	for in, want := range tests {
		if got := PHPString(in); got != want {
			t.Errorf("PHPString(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestConfigDataHelpers(t *testing.T) {
	tests := []struct {
		url  string
		base string
	}{
		{"https://example.com", "/"},
		{"https://example.com/", "/"},
		{"https://example.com/club", "/club/"},
		{"http://localhost:8080/a/b/", "/a/b/"},
	}
	for _, tt := range tests {
		if got := (ConfigData{SiteURL: tt.url}).RewriteBase(); got != tt.base {
			t.Errorf("RewriteBase(%s) = %s, want %s", tt.url, got, tt.base)
		}
	}

	if got := (ConfigData{}).DBPort(); got != "3306" {
		t.Errorf("default DBPort = %s", got)
	}
}
