package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zama-app/zamad/internal/audit"
	"github.com/zama-app/zamad/internal/workerpool"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the inference server if needed, check for updates, and stay up until signalled",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon() error {
	c := newComponents(cfg)
	defer c.Close()

	log.Info("starting zamad", "version", buildVersion, "pid", os.Getpid(), "endpoint", cfg.ServerEndpoint)
	c.audit.Log(audit.EventDaemonStart, "", map[string]any{"version": buildVersion})

	pool := workerpool.New(2, 4)
	pool.Submit("ensure-running", func(ctx context.Context) {
		c.launcher.EnsureRunning(ctx)
	})
	if cfg.AutoUpdate {
		pool.Submit("update", func(ctx context.Context) {
			c.updater.Run(ctx)
		})
	} else {
		log.Info("automatic updates disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down zamad")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if !pool.Shutdown(shutdownCtx) {
		log.Warn("background tasks still running at shutdown")
	}

	c.audit.Log(audit.EventDaemonStop, "", nil)
	return nil
}
