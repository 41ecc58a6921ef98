package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apimgr/memberkit/src/utils"
)

var errOutsideRoot = errors.New("path escapes application root")

// Cleanup removes the installer's own files once the operator confirms
type Cleanup struct {
	appRoot      string
	installerDir string
	files        []string
	logger       *utils.Logger
}

// NewCleanup creates a cleanup for files relative to appRoot
func NewCleanup(appRoot, installerDir string, files []string, logger *utils.Logger) *Cleanup {
	return &Cleanup{appRoot: appRoot, installerDir: installerDir, files: files, logger: logger}
}

// Run deletes each configured path and then the installer directory if it is
// empty. Failures are logged and reported but never stop the run.
func (c *Cleanup) Run() BatchResult {
	var result BatchResult

	for _, rel := range c.files {
		path, err := c.resolve(rel)
		if err != nil {
			c.logger.Warn("Cleanup skipped %s: %v", rel, err)
			result.add(rel, OutcomeFailed, err)
			continue
		}
		if _, err := os.Lstat(path); os.IsNotExist(err) {
			result.add(rel, OutcomeSkipped, nil)
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			c.logger.Warn("Cleanup could not remove %s: %v", rel, err)
			result.add(rel, OutcomeFailed, err)
			continue
		}
		c.logger.Info("Removed %s", rel)
		result.add(rel, OutcomeApplied, nil)
	}

	if c.installerDir != "" {
		c.removeIfEmpty(&result)
	}
	return result
}

func (c *Cleanup) removeIfEmpty(result *BatchResult) {
	dir, err := c.resolve(c.installerDir)
	if err != nil {
		result.add(c.installerDir, OutcomeFailed, err)
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("Cleanup could not read %s: %v", c.installerDir, err)
		}
		return
	}
	if len(entries) > 0 {
		c.logger.Info("Installer directory %s not empty, leaving it in place", c.installerDir)
		result.add(c.installerDir, OutcomeSkipped, nil)
		return
	}
	if err := os.Remove(dir); err != nil {
		c.logger.Warn("Cleanup could not remove %s: %v", c.installerDir, err)
		result.add(c.installerDir, OutcomeFailed, err)
		return
	}
	c.logger.Info("Removed installer directory %s", c.installerDir)
	result.add(c.installerDir, OutcomeApplied, nil)
}

func (c *Cleanup) resolve(rel string) (string, error) {
	root, err := filepath.Abs(c.appRoot)
	if err != nil {
		return "", err
	}
	path := filepath.Join(root, filepath.FromSlash(rel))
	if path == root || !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", rel, errOutsideRoot)
	}
	return path, nil
}
