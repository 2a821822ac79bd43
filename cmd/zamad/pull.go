package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zama-app/zamad/internal/executor"
)

var pullCmd = &cobra.Command{
	Use:   "pull <model>",
	Short: "Download a model, streaming progress as it arrives",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newComponents(cfg)
		defer c.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		_, err := c.puller.Pull(ctx, args[0], func(l executor.Line) {
			fmt.Fprintln(out, l.Text)
		})
		return err
	},
}

func init() {
	rootCmd.AddCommand(pullCmd)
}
