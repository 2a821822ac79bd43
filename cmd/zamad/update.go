package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zama-app/zamad/internal/updater"
	"github.com/zama-app/zamad/internal/version"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check for a newer Zama release and install it",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newComponents(cfg)
		defer c.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rep := c.updater.Run(ctx)
		fmt.Fprintln(cmd.OutOrStdout(), rep.Message)
		switch rep.Outcome {
		case updater.OutcomeAborted, updater.OutcomeFailed:
			return rep.Err
		}
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Compare the installed and published versions without changing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newComponents(cfg)
		defer c.Close()

		res, err := c.updater.Check(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "current:  %s\n", displayVersion(res.Current))
		fmt.Fprintf(out, "latest:   %s\n", displayVersion(res.Latest))
		fmt.Fprintf(out, "update:   %t\n", res.UpdateAvailable)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(checkCmd)
}

// displayVersion shows the canonical form next to the raw value when they
// differ, and flags values that are not semver.
func displayVersion(v string) string {
	canon, ok := version.Canonical(v)
	switch {
	case !ok:
		return v + " (not semver)"
	case canon != v:
		return fmt.Sprintf("%s (%s)", v, canon)
	}
	return v
}
