package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/zama-app/zamad/internal/audit"
	"github.com/zama-app/zamad/internal/executor"
	"github.com/zama-app/zamad/internal/logging"
)

// CommandRunner runs a command to completion. *executor.Runner implements it.
type CommandRunner interface {
	Run(ctx context.Context, c executor.Command) (*executor.Outcome, error)
}

// Uninstaller moves the installed application to the user's trash.
type Uninstaller struct {
	paths  []string
	runner CommandRunner
	audit  *audit.Logger
	goos   string
}

func NewUninstaller(paths []string, runner CommandRunner, a *audit.Logger) *Uninstaller {
	return &Uninstaller{paths: paths, runner: runner, audit: a, goos: runtime.GOOS}
}

// Uninstall trashes the first candidate path that exists and returns it.
// ErrNotFound means no candidate exists; ErrTrashMoveFailed covers both a
// failed spawn and a non-zero exit of the trash command.
func (u *Uninstaller) Uninstall(ctx context.Context) (string, error) {
	path := u.find()
	if path == "" {
		return "", &Error{Kind: ErrNotFound, Target: strings.Join(u.paths, ", ")}
	}

	cmd := trashCommand(u.goos, path)
	log.Info("moving app to trash", logging.KeyPath, path, "command", cmd.Name)

	out, err := u.runner.Run(ctx, cmd)
	success := err == nil && out != nil && out.Success
	details := map[string]any{"command": cmd.Name, "success": success}
	if out != nil {
		details["exit"] = out.Exit
	}
	u.audit.Log(audit.EventTrashMove, path, details)

	if err != nil {
		return "", &Error{Kind: ErrTrashMoveFailed, Target: path, Err: err}
	}
	if !out.Success {
		return "", &Error{Kind: ErrTrashMoveFailed, Target: path, Err: fmt.Errorf("%s %s: %s", cmd.Name, out.Exit, out.Tail(5))}
	}
	return path, nil
}

func (u *Uninstaller) find() string {
	for _, p := range u.paths {
		if !filepath.IsAbs(p) {
			log.Warn("ignoring relative install path", logging.KeyPath, p)
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// trashCommand builds the trash move for goos. The path is always its own
// argv element and never part of interpreted script text. Install paths are
// absolute, so they cannot be mistaken for flags.
func trashCommand(goos, path string) executor.Command {
	if goos == "darwin" {
		return executor.Command{
			Name: "osascript",
			Args: []string{
				"-e", "on run argv",
				"-e", `tell application "Finder" to delete POSIX file (item 1 of argv)`,
				"-e", "end run",
				path,
			},
		}
	}
	return executor.Command{Name: "gio", Args: []string{"trash", "--", path}}
}
