package service

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/apimgr/memberkit/src/utils"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCleanupRemovesInstallerFiles(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "install", "index.php"))
	touch(t, filepath.Join(root, "install", "assets", "style.css"))
	touch(t, filepath.Join(root, "install.php"))
	touch(t, filepath.Join(root, "config", "database.php"))

	c := NewCleanup(root, "install", []string{"install/index.php", "install/assets", "install.php", "setup.sql"}, utils.NewDiscardLogger())
	result := c.Run()

	if !result.OK() {
		t.Fatalf("Run() failed items: %+v", result.Failed())
	}
	if got := result.Count(OutcomeApplied); got != 4 {
		t.Errorf("applied = %d, want 4 (3 files and the empty directory)", got)
	}
	if got := result.Count(OutcomeSkipped); got != 1 {
		t.Errorf("skipped = %d, want 1", got)
	}
	for _, gone := range []string{"install", "install.php"} {
		if _, err := os.Stat(filepath.Join(root, gone)); !os.IsNotExist(err) {
			t.Errorf("%s still exists", gone)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "config", "database.php")); err != nil {
		t.Error("cleanup must not touch generated config")
	}
}

func TestCleanupLeavesNonEmptyInstallerDir(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "install", "index.php"))
	touch(t, filepath.Join(root, "install", "notes.txt"))

	result := NewCleanup(root, "install", []string{"install/index.php"}, utils.NewDiscardLogger()).Run()
	if !result.OK() {
		t.Fatalf("unexpected failures: %+v", result.Failed())
	}
	if _, err := os.Stat(filepath.Join(root, "install", "notes.txt")); err != nil {
		t.Error("non-empty installer directory must be left in place")
	}
}

func TestCleanupRejectsPathsOutsideRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "app")
	touch(t, filepath.Join(parent, "outside.txt"))
	touch(t, filepath.Join(root, "keep.txt"))

	result := NewCleanup(root, "", []string{"../outside.txt", "."}, utils.NewDiscardLogger()).Run()
	failed := result.Failed()
	if len(failed) != 2 {
		t.Fatalf("failed = %+v, want both paths rejected", failed)
	}
	for _, item := range failed {
		if !errors.Is(item.Err, errOutsideRoot) {
			t.Errorf("%s: err = %v", item.Name, item.Err)
		}
	}
	if _, err := os.Stat(filepath.Join(parent, "outside.txt")); err != nil {
		t.Error("file outside root was removed")
	}
	if _, err := os.Stat(filepath.Join(root, "keep.txt")); err != nil {
		t.Error("application root was removed")
	}
}
