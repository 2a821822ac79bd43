package main

import (
	"net/http"
	"time"

	"github.com/zama-app/zamad/internal/audit"
	"github.com/zama-app/zamad/internal/config"
	"github.com/zama-app/zamad/internal/executor"
	"github.com/zama-app/zamad/internal/health"
	"github.com/zama-app/zamad/internal/logging"
	"github.com/zama-app/zamad/internal/ollama"
	"github.com/zama-app/zamad/internal/updater"
	"github.com/zama-app/zamad/internal/version"
)

// components holds everything the commands share, built from one config.
type components struct {
	runner   *executor.Runner
	monitor  *health.Monitor
	audit    *audit.Logger
	launcher *health.Launcher
	oracle   *version.Oracle
	updater  *updater.Updater
	puller   *ollama.Puller
}

func newComponents(cfg *config.Config) *components {
	c := &components{
		runner:  executor.New(),
		monitor: health.NewMonitor(),
	}

	if cfg.AuditEnabled {
		a, err := audit.NewLogger(cfg.DataDir, cfg.AuditMaxSizeMB, cfg.AuditMaxBackups)
		if err != nil {
			log.Warn("audit log unavailable, continuing without it", logging.KeyError, err)
		} else {
			c.audit = a
		}
	}

	opts := []health.Option{health.WithMonitor(c.monitor), health.WithAudit(c.audit)}
	if cfg.DetectProcess {
		opts = append(opts, health.WithProcessFinder(health.SystemProcessFinder{}))
	}
	c.launcher = health.NewLauncher(health.LauncherConfig{
		Endpoint:       cfg.ServerEndpoint,
		Binary:         cfg.OllamaBinary,
		Args:           cfg.LaunchArgs,
		ProcessName:    cfg.ProcessName,
		ProbeTimeout:   cfg.ProbeTimeout(),
		StartupGrace:   cfg.StartupGrace(),
		ConfirmTimeout: cfg.ConfirmTimeout(),
	}, &http.Client{}, opts...)

	c.oracle = version.NewOracle(cfg.ManifestURL, &http.Client{Timeout: 30 * time.Second})
	c.updater = updater.New(
		updater.Config{
			VersionFile:    cfg.VersionFile,
			InstallerURL:   cfg.InstallerURL,
			InstallTimeout: cfg.InstallTimeout(),
		},
		c.oracle,
		updater.NewFetcher(nil, cfg.DownloadRetries),
		updater.NewUninstaller(cfg.InstallPaths, c.runner, c.audit),
		c.runner,
		c.monitor,
		c.audit,
	)

	c.puller = ollama.NewPuller(cfg.OllamaBinary, c.runner, c.audit)
	return c
}

func (c *components) Close() error {
	return c.audit.Close()
}
