package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zama-app/zamad/internal/executor"
)

// serviceManager installs zamad as a per-user login service.
type serviceManager interface {
	unitPath() (string, error)
	render(binary string) string
	enable(ctx context.Context, r *executor.Runner, unit string) error
	disable(ctx context.Context, r *executor.Runner, unit string) error
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage zamad as a per-user login service",
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Start zamad run at login",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := currentServiceManager()
		if err != nil {
			return err
		}
		unit, err := m.unitPath()
		if err != nil {
			return err
		}

		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("determine executable path: %w", err)
		}
		if exe, err = filepath.EvalSymlinks(exe); err != nil {
			return fmt.Errorf("resolve executable path: %w", err)
		}

		if err := os.MkdirAll(filepath.Dir(unit), 0755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(unit), err)
		}
		if err := os.WriteFile(unit, []byte(m.render(exe)), 0644); err != nil {
			return fmt.Errorf("write %s: %w", unit, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Service definition written to %s\n", unit)

		if err := m.enable(cmd.Context(), executor.New(), unit); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "zamad will start at login.")
		return nil
	},
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop starting zamad at login",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := currentServiceManager()
		if err != nil {
			return err
		}
		unit, err := m.unitPath()
		if err != nil {
			return err
		}

		if err := m.disable(cmd.Context(), executor.New(), unit); err != nil {
			log.Warn("disabling service failed", "error", err)
		}
		if err := os.Remove(unit); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", unit, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "zamad service removed.")
		return nil
	},
}

func init() {
	serviceCmd.AddCommand(serviceInstallCmd)
	serviceCmd.AddCommand(serviceUninstallCmd)
	rootCmd.AddCommand(serviceCmd)
}

// runTool runs a service manager command and turns a non-zero exit into an
// error carrying its output.
func runTool(ctx context.Context, r *executor.Runner, name string, args ...string) error {
	out, err := r.Run(ctx, executor.Command{Name: name, Args: args})
	if err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("%s %s: %s: %s", name, strings.Join(args, " "), out.Exit, out.Tail(5))
	}
	return nil
}
