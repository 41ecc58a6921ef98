package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/apimgr/memberkit/src/config"
	"github.com/apimgr/memberkit/src/server"
	"github.com/apimgr/memberkit/src/server/handler"
	"github.com/apimgr/memberkit/src/server/metrics"
	"github.com/apimgr/memberkit/src/server/service"
	"github.com/apimgr/memberkit/src/server/session"
	"github.com/apimgr/memberkit/src/utils"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	address string
	port    int
	appRoot string
}

func newServeCommand(root *rootOptions, info BuildInfo) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the installation wizard",
		Long: "Serve the six-step installation wizard until the installer removes\n" +
			"itself or the process receives SIGINT or SIGTERM.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, root, opts, info)
		},
	}
	cmd.Flags().StringVar(&opts.address, "address", "", "listen address (overrides server.address)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "listen port (overrides server.port and PORT)")
	cmd.Flags().StringVar(&opts.appRoot, "app-root", "", "membership application root (overrides paths.app_root)")
	return cmd
}

func (o *serveOptions) apply(cfg *config.Config) {
	if o.address != "" {
		cfg.Server.Address = o.address
	}
	if o.port > 0 {
		cfg.Server.Port = o.port
	}
	if o.appRoot != "" {
		cfg.Paths.AppRoot = o.appRoot
	}
}

func runServe(cmd *cobra.Command, root *rootOptions, opts *serveOptions, info BuildInfo) error {
	cfg, cfgPath, err := config.LoadConfig(root.configPath)
	if err != nil {
		return err
	}
	opts.apply(cfg)

	debug := root.debug || config.IsDebug(config.Mode(cfg.Mode))
	logger, err := utils.NewLogger(cfg.LogDir(), debug)
	if err != nil {
		return err
	}
	defer logger.Close()

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics.Init(info.Version, info.CommitID, info.BuildDate)

	registry, err := service.LoadRegistry(cfg.Modules.RegistryPath)
	if err != nil {
		return err
	}
	probe := service.NewRequirementsProbe(cfg.Requirements, cfg.Paths.AppRoot, nil)

	ctl := handler.NewController(cfg, probe, registry, logger)
	ctl.Version = info.Version
	ctl.InstallID = ulid.Make().String()

	srv, err := server.New(cfg, ctl, session.NewStore(cfg.Session), logger)
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	finished := make(chan struct{})
	var finishOnce sync.Once
	srv.OnComplete(func() {
		finishOnce.Do(func() { close(finished) })
	})

	if cfgPath != "" {
		watcher, err := service.NewConfigWatcher(cfgPath, func(next *config.Config) error {
			logger.SetDebug(root.debug || config.IsDebug(config.Mode(next.Mode)))
			return nil
		}, logger)
		if err != nil {
			logger.Warn("Config watcher unavailable: %v", err)
		} else if err := watcher.Start(); err != nil {
			logger.Warn("Config watcher unavailable: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	logger.Info("Installer %s starting, run %s, app root %s", info.Version, ctl.InstallID, cfg.Paths.AppRoot)
	if cfgPath != "" {
		logger.Info("Using config %s", cfgPath)
	}
	if !utils.IsLoopback(cfg.Server.Address) {
		logger.Warn("Installer listening on %s; anyone who can reach it can install the application", cfg.Server.Address)
	}
	if stdoutIsTerminal() {
		utils.DisplayInstallerBanner(info.Version, cfg.Server.Port, cfg.Server.BasePath, cfg.Paths.AppRoot, handler.IsInstalled(cfg))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve on %s: %w", srv.Addr(), err)
		}
		return nil
	case sig := <-sigChan:
		logger.Info("Received %s, shutting down", sig)
	case <-finished:
		logger.Info("Installation finished, shutting down")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shut down: %v", err)
		return err
	}
	logger.Info("Installer exited")
	return nil
}
