package service

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/apimgr/memberkit/src/database"
	"github.com/apimgr/memberkit/src/utils"
)

//go:embed templates/config/*.tmpl
var configTemplatesFS embed.FS

// ConfigData is everything the generated PHP files need
type ConfigData struct {
	DB          database.Credentials
	Charset     string
	SiteName    string
	SiteURL     string
	AdminEmail  string
	LoginPath   string
	Modules     []string
	InstallID   string
	InstalledAt string
	Version     string
	Language    string
	Timezone    string
	Debug       bool
}

// DBPort returns the port as a PHP integer literal
func (d ConfigData) DBPort() string {
	if d.DB.Port == 0 {
		return "3306"
	}
	return strconv.Itoa(d.DB.Port)
}

// RewriteBase is the URL path of the site root for mod_rewrite
func (d ConfigData) RewriteBase() string {
	base := "/"
	if i := strings.Index(d.SiteURL, "://"); i >= 0 {
		rest := d.SiteURL[i+3:]
		if j := strings.Index(rest, "/"); j >= 0 {
			base = rest[j:]
		}
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

type generatedFile struct {
	path     string
	template string
	mode     os.FileMode
}

// generatedFiles lists outputs relative to the application root. The
// database config doubles as the installed marker, so it is written last.
var generatedFiles = []generatedFile{
	{"config/app.php", "app.php.tmpl", 0644},
	{"includes/settings.php", "settings.php.tmpl", 0644},
	{"includes/modules.php", "modules.php.tmpl", 0644},
	{"lang/lang_en.php", "lang_en.php.tmpl", 0644},
	{".htaccess", "htaccess_root.tmpl", 0644},
	{"config/.htaccess", "htaccess_deny.tmpl", 0644},
	{"includes/.htaccess", "htaccess_deny.tmpl", 0644},
	{"modules/.htaccess", "htaccess_deny.tmpl", 0644},
	{"logs/.htaccess", "htaccess_deny.tmpl", 0644},
	{"robots.txt", "robots.txt.tmpl", 0644},
	{"maintenance.php", "maintenance.php.tmpl", 0644},
	{"config/database.php", "database.php.tmpl", 0640},
}

// ConfigGenerator writes the configuration files the application boots from
type ConfigGenerator struct {
	appRoot   string
	templates *template.Template
	logger    *utils.Logger
}

// NewConfigGenerator creates a generator rooted at appRoot
func NewConfigGenerator(appRoot string, logger *utils.Logger) (*ConfigGenerator, error) {
	tmpl, err := template.New("config").Funcs(template.FuncMap{
		"php":  PHPString,
		"join": strings.Join,
	}).ParseFS(configTemplatesFS, "templates/config/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse config templates: %w", err)
	}
	return &ConfigGenerator{appRoot: appRoot, templates: tmpl, logger: logger}, nil
}

// Generate renders and writes every file. A write failure is fatal and
// returned as *ConfigWriteError; permission changes are best-effort.
func (g *ConfigGenerator) Generate(data ConfigData) ([]string, error) {
	var written []string
	for _, f := range generatedFiles {
		var buf bytes.Buffer
		if err := g.templates.ExecuteTemplate(&buf, f.template, data); err != nil {
			return written, &ConfigWriteError{Path: f.path, Err: err}
		}

		path := filepath.Join(g.appRoot, filepath.FromSlash(f.path))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return written, &ConfigWriteError{Path: f.path, Err: err}
		}
		if err := os.WriteFile(path, buf.Bytes(), f.mode); err != nil {
			return written, &ConfigWriteError{Path: f.path, Err: err}
		}
		// WriteFile keeps the mode of an existing file
		if err := os.Chmod(path, f.mode); err != nil {
			g.logger.Warn("Could not set permissions on %s: %v", f.path, err)
		}
		written = append(written, f.path)
		g.logger.Debug("Wrote %s", f.path)
	}

	g.logger.Info("Generated %d configuration files", len(written))
	return written, nil
}

// PHPString renders s as a single-quoted PHP string literal
func PHPString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}
