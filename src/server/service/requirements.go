package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/apimgr/memberkit/src/config"
)

// phpProbeScript prints the interpreter facts the probe needs as JSON
const phpProbeScript = `echo json_encode([
  "version" => PHP_VERSION,
  "extensions" => array_map("strtolower", get_loaded_extensions()),
  "memory_limit" => ini_get("memory_limit"),
  "max_execution_time" => ini_get("max_execution_time"),
]);`

// CommandRunner runs an external command and returns its stdout
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// Run executes name with args
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, err
}

// Check is one requirement line of the report
type Check struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Recommendation is advisory and never blocks the wizard
type Recommendation struct {
	Name        string `json:"name"`
	Current     string `json:"current"`
	Recommended string `json:"recommended"`
	OK          bool   `json:"ok"`
}

// Report is the RequirementsProbe result
type Report struct {
	Requirements    []Check          `json:"requirements"`
	Optional        []Check          `json:"optional"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Passed reports whether every mandatory requirement passed
func (r Report) Passed() bool {
	for _, c := range r.Requirements {
		if !c.Passed {
			return false
		}
	}
	return true
}

// RequirementMap returns name -> passed for the mandatory checks
func (r Report) RequirementMap() map[string]bool {
	m := make(map[string]bool, len(r.Requirements))
	for _, c := range r.Requirements {
		m[c.Name] = c.Passed
	}
	return m
}

// Failed returns the mandatory checks that did not pass
func (r Report) Failed() []Check {
	var out []Check
	for _, c := range r.Requirements {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

type phpFacts struct {
	Version          string   `json:"version"`
	Extensions       []string `json:"extensions"`
	MemoryLimit      string   `json:"memory_limit"`
	MaxExecutionTime string   `json:"max_execution_time"`
}

// RequirementsProbe inspects the host the membership application will run on
type RequirementsProbe struct {
	cfg       config.RequirementsConfig
	appRoot   string
	runner    CommandRunner
	freeSpace func(path string) (uint64, error)
}

// NewRequirementsProbe creates a probe. A nil runner uses ExecRunner.
func NewRequirementsProbe(cfg config.RequirementsConfig, appRoot string, runner CommandRunner) *RequirementsProbe {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &RequirementsProbe{cfg: cfg, appRoot: appRoot, runner: runner, freeSpace: diskFree}
}

// Check runs every probe. Only the writable directory checks touch the
// filesystem: missing directories are created and the attempt is reported.
func (p *RequirementsProbe) Check(ctx context.Context) Report {
	var r Report

	var facts *phpFacts
	if p.cfg.CheckPHP {
		var err error
		facts, err = p.probePHP(ctx)
		r.Requirements = append(r.Requirements, p.versionCheck(facts, err))

		loaded := make(map[string]bool)
		if facts != nil {
			for _, ext := range facts.Extensions {
				loaded[strings.ToLower(ext)] = true
			}
		}
		for _, ext := range p.cfg.PHPExtensions {
			r.Requirements = append(r.Requirements, Check{
				Name:   "ext_" + ext,
				Label:  fmt.Sprintf("PHP extension %s", ext),
				Passed: loaded[strings.ToLower(ext)],
			})
		}
		for _, ext := range p.cfg.OptionalExtensions {
			r.Optional = append(r.Optional, Check{
				Name:   "ext_" + ext,
				Label:  fmt.Sprintf("PHP extension %s", ext),
				Passed: loaded[strings.ToLower(ext)],
			})
		}
	}

	r.Requirements = append(r.Requirements, p.writableCheck("app_root", "Application root", p.appRoot, false))
	for _, dir := range p.cfg.WritableDirs {
		r.Requirements = append(r.Requirements,
			p.writableCheck("writable_"+dir, dir+"/ writable", filepath.Join(p.appRoot, dir), true))
	}

	if facts != nil {
		r.Recommendations = append(r.Recommendations, p.memoryRecommendation(facts.MemoryLimit))
		r.Recommendations = append(r.Recommendations, executionRecommendation(facts.MaxExecutionTime))
	}
	r.Recommendations = append(r.Recommendations, p.diskRecommendation())

	return r
}

func (p *RequirementsProbe) probePHP(ctx context.Context) (*phpFacts, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	binary := p.cfg.PHPBinary
	if binary == "" {
		binary = "php"
	}
	out, err := p.runner.Run(ctx, binary, "-r", phpProbeScript)
	if err != nil {
		return nil, err
	}
	var facts phpFacts
	if err := json.Unmarshal(bytes.TrimSpace(out), &facts); err != nil {
		return nil, fmt.Errorf("unexpected php output: %w", err)
	}
	return &facts, nil
}

func (p *RequirementsProbe) versionCheck(facts *phpFacts, err error) Check {
	c := Check{Name: "php_version", Label: fmt.Sprintf("PHP %s or newer", p.cfg.MinPHPVersion)}
	if err != nil {
		c.Detail = fmt.Sprintf("PHP not available: %v", err)
		return c
	}
	ok, perr := versionAtLeast(facts.Version, p.cfg.MinPHPVersion)
	if perr != nil {
		c.Detail = perr.Error()
		return c
	}
	c.Passed = ok
	c.Detail = "found " + facts.Version
	return c
}

func (p *RequirementsProbe) writableCheck(name, label, dir string, create bool) Check {
	c := Check{Name: name, Label: label}
	if create {
		if err := os.MkdirAll(dir, 0755); err != nil {
			c.Detail = fmt.Sprintf("cannot create: %v", err)
			return c
		}
	}
	f, err := os.CreateTemp(dir, ".memberkit-write-*")
	if err != nil {
		c.Detail = fmt.Sprintf("not writable: %v", err)
		return c
	}
	f.Close()
	os.Remove(f.Name())
	c.Passed = true
	return c
}

func (p *RequirementsProbe) memoryRecommendation(limit string) Recommendation {
	rec := Recommendation{
		Name:        "memory_limit",
		Current:     limit,
		Recommended: fmt.Sprintf("%dM", p.cfg.MinMemoryLimitMB),
	}
	n, ok := parseIniBytes(limit)
	rec.OK = ok && (n < 0 || n >= p.cfg.MinMemoryLimitMB*1024*1024)
	return rec
}

func executionRecommendation(v string) Recommendation {
	rec := Recommendation{Name: "max_execution_time", Current: v, Recommended: "30"}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	rec.OK = err == nil && (n == 0 || n >= 30)
	return rec
}

func (p *RequirementsProbe) diskRecommendation() Recommendation {
	rec := Recommendation{Name: "disk_space", Recommended: fmt.Sprintf("%d MB", p.cfg.RecommendedDiskMB)}
	free, err := p.freeSpace(p.appRoot)
	if err != nil {
		rec.Current = "unknown"
		return rec
	}
	mb := int64(free / (1024 * 1024))
	rec.Current = fmt.Sprintf("%d MB", mb)
	rec.OK = mb >= p.cfg.RecommendedDiskMB
	return rec
}

// parseIniBytes parses php.ini shorthand such as 128M, 1G or -1 (unlimited)
func parseIniBytes(v string) (int64, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if v == "-1" {
		return -1, true
	}
	mult := int64(1)
	switch strings.ToUpper(v[len(v)-1:]) {
	case "K":
		mult = 1024
	case "M":
		mult = 1024 * 1024
	case "G":
		mult = 1024 * 1024 * 1024
	}
	if mult > 1 {
		v = v[:len(v)-1]
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n * mult, true
}

// versionAtLeast compares dotted versions; suffixes like "-dev" or "RC1" on
// a component are ignored
func versionAtLeast(have, want string) (bool, error) {
	h, err := parseVersion(have)
	if err != nil {
		return false, err
	}
	w, err := parseVersion(want)
	if err != nil {
		return false, err
	}
	for i := 0; i < 3; i++ {
		if h[i] != w[i] {
			return h[i] > w[i], nil
		}
	}
	return true, nil
}

func parseVersion(s string) ([3]int, error) {
	var v [3]int
	parts := strings.SplitN(strings.TrimSpace(s), ".", 4)
	if len(parts) < 2 {
		return v, fmt.Errorf("unable to parse version %q", s)
	}
	for i := 0; i < 3 && i < len(parts); i++ {
		p := parts[i]
		for j := 0; j < len(p); j++ {
			if p[j] < '0' || p[j] > '9' {
				p = p[:j]
				break
			}
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return v, fmt.Errorf("unable to parse version %q", s)
		}
		v[i] = n
	}
	return v, nil
}
