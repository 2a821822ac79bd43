package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zama-app/zamad/internal/health"
)

var ensureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Make sure the inference server is running, starting it if necessary",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newComponents(cfg)
		defer c.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		res, err := c.launcher.EnsureRunning(ctx)
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		if err != nil || res.State != health.Running {
			return fmt.Errorf("inference server %s", res.State)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ensureCmd)
}
