package service

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/apimgr/memberkit/src/config"
	"github.com/apimgr/memberkit/src/utils"
)

const reloadDebounce = 500 * time.Millisecond

// ConfigWatcher watches installer.yml and hands reloaded configs to a callback
type ConfigWatcher struct {
	watcher    *fsnotify.Watcher
	configPath string
	reloadFunc func(*config.Config) error
	logger     *utils.Logger
	stopOnce   sync.Once
	stopChan   chan struct{}
}

// NewConfigWatcher creates a new config file watcher
func NewConfigWatcher(configPath string, reloadFunc func(*config.Config) error, logger *utils.Logger) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &ConfigWatcher{
		watcher:    watcher,
		configPath: configPath,
		reloadFunc: reloadFunc,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}, nil
}

// Start begins watching. The directory is watched because editors often
// replace the file instead of writing it.
func (cw *ConfigWatcher) Start() error {
	if err := cw.watcher.Add(filepath.Dir(cw.configPath)); err != nil {
		return err
	}
	cw.logger.Info("Watching for config file changes: %s", cw.configPath)

	go func() {
		var debounceTimer *time.Timer

		for {
			select {
			case event, ok := <-cw.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(cw.configPath) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(reloadDebounce, cw.reload)

			case err, ok := <-cw.watcher.Errors:
				if !ok {
					return
				}
				cw.logger.Warn("Config watcher error: %v", err)

			case <-cw.stopChan:
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				return
			}
		}
	}()

	return nil
}

func (cw *ConfigWatcher) reload() {
	cfg, _, err := config.LoadConfig(cw.configPath)
	if err != nil {
		cw.logger.Error("Failed to load changed config: %v", err)
		return
	}
	if err := cw.reloadFunc(cfg); err != nil {
		cw.logger.Error("Failed to apply changed config: %v", err)
		return
	}
	cw.logger.Info("Configuration reloaded")
}

// Stop stops the watcher
func (cw *ConfigWatcher) Stop() error {
	var err error
	cw.stopOnce.Do(func() {
		close(cw.stopChan)
		err = cw.watcher.Close()
	})
	return err
}
