package service

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/apimgr/memberkit/src/database"
	"github.com/apimgr/memberkit/src/server/metrics"
	"github.com/apimgr/memberkit/src/utils"
)

//go:embed defaults/modules.yml
var defaultModulesYAML []byte

//go:embed templates/modules/*.tmpl
var moduleTemplatesFS embed.FS

// Hook binds a module method to a named extension point
type Hook struct {
	Method   string `yaml:"method" json:"method"`
	Priority int    `yaml:"priority" json:"priority"`
}

// ModuleDefinition is one registry entry
type ModuleDefinition struct {
	Name        string                 `yaml:"name"`
	Title       string                 `yaml:"title"`
	Description string                 `yaml:"description"`
	Version     string                 `yaml:"version"`
	AutoEnable  bool                   `yaml:"auto_enable"`
	Settings    map[string]interface{} `yaml:"settings"`
	Hooks       map[string][]Hook      `yaml:"hooks"`
}

// Registry maps module names to definitions, keeping file order
type Registry struct {
	defs  map[string]ModuleDefinition
	order []string
}

// LoadRegistry parses the embedded registry, or the file at path when set
func LoadRegistry(path string) (*Registry, error) {
	data := defaultModulesYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read module registry: %w", err)
		}
		data = b
	}
	return ParseRegistry(data)
}

// ParseRegistry parses registry YAML
func ParseRegistry(data []byte) (*Registry, error) {
	var defs []ModuleDefinition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse module registry: %w", err)
	}

	r := &Registry{defs: make(map[string]ModuleDefinition, len(defs))}
	for _, d := range defs {
		d.Name = strings.ToLower(strings.TrimSpace(d.Name))
		if !database.ValidIdentifier(d.Name) {
			return nil, fmt.Errorf("invalid module name %q", d.Name)
		}
		if _, dup := r.defs[d.Name]; dup {
			return nil, fmt.Errorf("duplicate module %s", d.Name)
		}
		if d.Version == "" {
			d.Version = "1.0.0"
		}
		if d.Title == "" {
			d.Title = d.Name
		}
		r.defs[d.Name] = d
		r.order = append(r.order, d.Name)
	}
	return r, nil
}

// Lookup returns the definition for name
func (r *Registry) Lookup(name string) (ModuleDefinition, bool) {
	d, ok := r.defs[strings.ToLower(name)]
	return d, ok
}

// All returns definitions in registry order
func (r *Registry) All() []ModuleDefinition {
	out := make([]ModuleDefinition, len(r.order))
	for i, name := range r.order {
		out[i] = r.defs[name]
	}
	return out
}

// moduleManifest is written to modules/<name>/module.json
type moduleManifest struct {
	Name        string                 `json:"name"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Version     string                 `json:"version"`
	Class       string                 `json:"class"`
	File        string                 `json:"file"`
	AutoEnable  bool                   `json:"auto_enable"`
	Settings    map[string]interface{} `json:"settings"`
	Hooks       map[string][]Hook      `json:"hooks"`
	InstalledAt string                 `json:"installed_at"`
}

// ModuleProvisioner registers selected modules and writes their files
type ModuleProvisioner struct {
	registry  *Registry
	dialect   database.Dialect
	dir       string
	templates *template.Template
	logger    *utils.Logger
	now       func() time.Time
}

// NewModuleProvisioner creates a provisioner writing under dir
func NewModuleProvisioner(registry *Registry, dialect database.Dialect, dir string, logger *utils.Logger) (*ModuleProvisioner, error) {
	tmpl, err := template.ParseFS(moduleTemplatesFS, "templates/modules/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse module templates: %w", err)
	}
	return &ModuleProvisioner{
		registry:  registry,
		dialect:   dialect,
		dir:       dir,
		templates: tmpl,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Install upserts the module row and writes module.json plus the stub class
func (m *ModuleProvisioner) Install(ctx context.Context, q database.Execer, name string) error {
	def, ok := m.registry.Lookup(name)
	if !ok {
		return &ModuleError{Module: name, Err: ErrUnknownModule}
	}

	if err := m.register(ctx, q, def); err != nil {
		return &ModuleError{Module: def.Name, Err: err}
	}
	if err := m.writeFiles(def); err != nil {
		return &ModuleError{Module: def.Name, Err: err}
	}

	m.logger.Info("Installed module %s v%s", def.Name, def.Version)
	return nil
}

// InstallAll installs each module; one failure does not stop the rest
func (m *ModuleProvisioner) InstallAll(ctx context.Context, q database.Execer, names []string) BatchResult {
	var result BatchResult
	for _, name := range names {
		if err := m.Install(ctx, q, name); err != nil {
			m.logger.Warn("Module install failed: %v", err)
			result.add(name, OutcomeFailed, err)
			metrics.RecordModuleInstall(name, string(OutcomeFailed))
			continue
		}
		result.add(name, OutcomeApplied, nil)
		metrics.RecordModuleInstall(name, string(OutcomeApplied))
	}
	return result
}

func (m *ModuleProvisioner) register(ctx context.Context, q database.Execer, def ModuleDefinition) error {
	settings, err := json.Marshal(def.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	hooks, err := json.Marshal(def.Hooks)
	if err != nil {
		return fmt.Errorf("failed to encode hooks: %w", err)
	}

	stmt := m.dialect.UpsertSQL("modules",
		[]string{"name", "title", "description", "version", "settings", "hooks", "is_enabled", "updated_at"},
		"name",
		[]string{"title", "description", "version", "settings", "hooks", "updated_at"})

	now := m.now().UTC().Format("2006-01-02 15:04:05")
	if _, err := database.ExecContext(ctx, q, database.TimeoutWrite, stmt,
		def.Name, def.Title, def.Description, def.Version, string(settings), string(hooks), boolInt(def.AutoEnable), now); err != nil {
		return fmt.Errorf("failed to register module: %w", err)
	}
	return nil
}

func (m *ModuleProvisioner) writeFiles(def ModuleDefinition) error {
	dir := filepath.Join(m.dir, def.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create module directory: %w", err)
	}

	class := ModuleClassName(def.Name)
	stamp := m.now().UTC().Format(time.RFC3339)

	manifest, err := json.MarshalIndent(moduleManifest{
		Name:        def.Name,
		Title:       def.Title,
		Description: def.Description,
		Version:     def.Version,
		Class:       class,
		File:        def.Name + ".php",
		AutoEnable:  def.AutoEnable,
		Settings:    def.Settings,
		Hooks:       def.Hooks,
		InstalledAt: stamp,
	}, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "module.json"), append(manifest, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	tmplName := def.Name + ".php.tmpl"
	if m.templates.Lookup(tmplName) == nil {
		tmplName = "default.php.tmpl"
	}
	var buf bytes.Buffer
	data := struct {
		Module      ModuleDefinition
		Class       string
		GeneratedAt string
	}{def, class, stamp}
	if err := m.templates.ExecuteTemplate(&buf, tmplName, data); err != nil {
		return fmt.Errorf("failed to render module class: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, def.Name+".php"), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write module class: %w", err)
	}
	return nil
}

// ModuleClassName turns "google_analytics" into "GoogleAnalyticsModule"
func ModuleClassName(name string) string {
	var b strings.Builder
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' }) {
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	b.WriteString("Module")
	return b.String()
}
