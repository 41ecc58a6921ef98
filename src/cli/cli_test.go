package cli

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/apimgr/memberkit/src/server/service"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(BuildInfo{Version: "1.2.3", CommitID: "abc123", BuildDate: "today"})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "v1.2.3") || !strings.Contains(out, "abc123") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigCommandPrintsDefaults(t *testing.T) {
	t.Setenv("MEMBERKIT_CONFIG", "")
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	out, err := runCommand(t, "config")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"built-in defaults", "base_path: /install", "marker: config/database.php"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCheckCommandFailsOnUnwritableRoot(t *testing.T) {
	dir := t.TempDir()
	cfgPath := dir + "/installer.yml"
	if err := os.WriteFile(cfgPath, []byte("requirements:\n  check_php: false\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := runCommand(t, "check", "--config", cfgPath, "--app-root", dir+"/missing")
	if err != errRequirementsFailed {
		t.Fatalf("err = %v, output:\n%s", err, out)
	}
	if !strings.Contains(out, "requirement(s) not met") {
		t.Errorf("output = %q", out)
	}
}

func TestPrintReport(t *testing.T) {
	report := service.Report{
		Requirements: []service.Check{
			{Name: "php_version", Label: "PHP 7.4.0 or newer", Passed: true, Detail: "found 8.2.0"},
			{Name: "ext_pdo", Label: "PHP extension pdo"},
		},
		Recommendations: []service.Recommendation{{Name: "disk_space", Current: "10 MB", Recommended: "100 MB"}},
	}
	var out bytes.Buffer
	printReport(&out, report, newCheckStyles(false))

	text := out.String()
	for _, want := range []string{"PHP 7.4.0 or newer", "(found 8.2.0)", "PHP extension pdo", "disk_space: 10 MB", "1 requirement(s) not met"} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q:\n%s", want, text)
		}
	}
}
