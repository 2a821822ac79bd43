// Package updater performs the unattended self-update: compare the local
// version with the published one, move the installed app to the trash, then
// download, verify and run the installer script.
package updater

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/zama-app/zamad/internal/audit"
	"github.com/zama-app/zamad/internal/executor"
	"github.com/zama-app/zamad/internal/health"
	"github.com/zama-app/zamad/internal/logging"
	"github.com/zama-app/zamad/internal/version"
)

var log = logging.L("updater")

// Outcome is the terminal state of one update run.
type Outcome string

const (
	OutcomeAborted   Outcome = "aborted"
	OutcomeUpToDate  Outcome = "up_to_date"
	OutcomeInstalled Outcome = "installed"
	OutcomeFailed    Outcome = "failed"
)

// Report summarizes one Run. Err is set for aborted and failed runs.
type Report struct {
	RunID   string  `json:"runId" yaml:"runId"`
	Outcome Outcome `json:"outcome" yaml:"outcome"`
	Current string  `json:"current,omitempty" yaml:"current,omitempty"`
	Latest  string  `json:"latest,omitempty" yaml:"latest,omitempty"`
	Message string  `json:"message" yaml:"message"`
	Err     error   `json:"-" yaml:"-"`
}

// CheckResult is the version comparison without any side effects.
type CheckResult struct {
	Current         string `json:"current" yaml:"current"`
	Latest          string `json:"latest" yaml:"latest"`
	UpdateAvailable bool   `json:"updateAvailable" yaml:"updateAvailable"`
}

// LatestSource reports the published version. *version.Oracle implements it.
type LatestSource interface {
	FetchLatest(ctx context.Context) (string, error)
}

// Config holds the orchestrator's locations and limits.
type Config struct {
	VersionFile    string
	InstallerURL   string
	InstallTimeout time.Duration // zero means no limit beyond the caller's context
}

// Updater runs the update flow. It keeps no state between runs.
type Updater struct {
	cfg         Config
	latest      LatestSource
	fetcher     *Fetcher
	uninstaller *Uninstaller
	runner      CommandRunner
	monitor     *health.Monitor
	audit       *audit.Logger
}

// New wires an Updater. monitor and auditLog may be nil.
func New(cfg Config, latest LatestSource, fetcher *Fetcher, uninstaller *Uninstaller, runner CommandRunner, monitor *health.Monitor, auditLog *audit.Logger) *Updater {
	return &Updater{
		cfg:         cfg,
		latest:      latest,
		fetcher:     fetcher,
		uninstaller: uninstaller,
		runner:      runner,
		monitor:     monitor,
		audit:       auditLog,
	}
}

// Check reads the local version, fetches the published one and compares
// them. A local read failure returns before any network request.
func (u *Updater) Check(ctx context.Context) (CheckResult, error) {
	var res CheckResult

	current, err := version.ReadCurrent(u.cfg.VersionFile)
	if err != nil {
		return res, err
	}
	res.Current = current

	latest, err := u.latest.FetchLatest(ctx)
	if err != nil {
		return res, err
	}
	res.Latest = latest

	res.UpdateAvailable = version.IsUpdateAvailable(current, latest)
	return res, nil
}

// Run performs one full update attempt. It never returns an error; the
// Report says what happened and is also logged. The running process is not
// restarted after a successful install.
func (u *Updater) Run(ctx context.Context) Report {
	start := time.Now()
	runID := uuid.NewString()[:8]
	rep := u.run(ctx, runID)
	rep.RunID = runID

	attrs := []any{
		"run", runID,
		"outcome", string(rep.Outcome),
		"current", rep.Current,
		"latest", rep.Latest,
		logging.KeyDurationMs, time.Since(start).Milliseconds(),
	}
	switch rep.Outcome {
	case OutcomeAborted, OutcomeFailed:
		log.Warn(rep.Message, append(attrs, logging.KeyError, rep.Err)...)
		u.monitor.Update(health.ComponentUpdater, health.Degraded, rep.Message)
	default:
		log.Info(rep.Message, attrs...)
		u.monitor.Update(health.ComponentUpdater, health.Healthy, rep.Message)
	}

	details := map[string]any{"run": runID, "outcome": string(rep.Outcome), "current": rep.Current, "latest": rep.Latest}
	if rep.Err != nil {
		details["error"] = rep.Err.Error()
	}
	u.audit.Log(audit.EventUpdateCheck, "", details)
	return rep
}

func (u *Updater) run(ctx context.Context, runID string) Report {
	check, err := u.Check(ctx)
	rep := Report{Current: check.Current, Latest: check.Latest}
	if err != nil {
		rep.Outcome = OutcomeAborted
		rep.Message = "update check aborted"
		rep.Err = err
		return rep
	}

	if !check.UpdateAvailable {
		rep.Outcome = OutcomeUpToDate
		rep.Message = fmt.Sprintf("version %s is up to date", check.Current)
		return rep
	}
	log.Info("update available", "run", runID, "current", check.Current, "latest", check.Latest)

	if path, err := u.uninstaller.Uninstall(ctx); err != nil {
		log.Warn("could not remove installed app, continuing with install", logging.KeyError, err)
	} else {
		log.Info("installed app moved to trash", logging.KeyPath, path)
	}

	if err := u.install(ctx, runID); err != nil {
		rep.Outcome = OutcomeFailed
		rep.Message = fmt.Sprintf("update to %s failed", check.Latest)
		rep.Err = err
		return rep
	}

	rep.Outcome = OutcomeInstalled
	rep.Message = fmt.Sprintf("updated to %s; restart Zama to finish", check.Latest)
	return rep
}

// install fetches, persists and executes the installer. The script file is
// removed on every path once it has been written.
func (u *Updater) install(ctx context.Context, runID string) error {
	text, err := u.fetcher.Fetch(ctx, u.cfg.InstallerURL)
	if err != nil {
		return err
	}

	path, err := PersistScript(text)
	if err != nil {
		return &Error{Kind: ErrInstallFailed, Target: u.cfg.InstallerURL, Err: err}
	}
	defer Cleanup(path)

	if u.cfg.InstallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.cfg.InstallTimeout)
		defer cancel()
	}

	log.Info("running installer", "run", runID, logging.KeyPath, path, logging.KeyURL, u.cfg.InstallerURL)
	out, err := u.runner.Run(ctx, executor.Command{
		Name: path,
		Dir:  filepath.Dir(path),
		OnLine: func(l executor.Line) {
			log.Debug("installer output", "stream", string(l.Stream), "line", l.Text)
		},
	})

	details := map[string]any{"run": runID, "url": u.cfg.InstallerURL}
	if out != nil {
		details["exit"] = out.Exit
		details["exitCode"] = out.ExitCode
		details["durationMs"] = out.Duration.Milliseconds()
	}
	u.audit.Log(audit.EventScriptExecution, path, details)

	if err != nil {
		return &Error{Kind: ErrInstallFailed, Target: u.cfg.InstallerURL, Err: err}
	}
	if !out.Success {
		return &Error{Kind: ErrInstallFailed, Target: u.cfg.InstallerURL, Err: fmt.Errorf("installer %s: %s", out.Exit, out.Tail(10))}
	}
	return nil
}
