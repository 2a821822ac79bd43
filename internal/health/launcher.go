package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/zama-app/zamad/internal/audit"
	"github.com/zama-app/zamad/internal/logging"
)

// State is the outcome of EnsureRunning.
type State string

const (
	Running  State = "running"
	Starting State = "starting"
	Failed   State = "failed"
)

// Result describes what EnsureRunning observed or did.
type Result struct {
	State   State  `json:"state" yaml:"state"`
	Message string `json:"message" yaml:"message"`
	Spawned bool   `json:"spawned" yaml:"spawned"`
}

// LauncherConfig holds everything EnsureRunning needs to find and start the
// inference server.
type LauncherConfig struct {
	Endpoint       string
	Binary         string
	Args           []string
	ProcessName    string // empty disables the process table check
	ProbeTimeout   time.Duration
	StartupGrace   time.Duration
	ConfirmTimeout time.Duration
}

// Launcher makes sure the local inference server answers on its endpoint,
// starting it when it does not. It keeps no state between calls; every call
// probes again.
type Launcher struct {
	cfg     LauncherConfig
	client  *http.Client
	starter Starter
	finder  ProcessFinder
	monitor *Monitor
	audit   *audit.Logger
}

// Option customizes a Launcher.
type Option func(*Launcher)

func WithStarter(s Starter) Option { return func(l *Launcher) { l.starter = s } }
func WithProcessFinder(f ProcessFinder) Option { return func(l *Launcher) { l.finder = f } }
func WithMonitor(m *Monitor) Option { return func(l *Launcher) { l.monitor = m } }
func WithAudit(a *audit.Logger) Option { return func(l *Launcher) { l.audit = a } }

// NewLauncher builds a Launcher. A nil client uses http.DefaultClient; the
// per-probe timeouts come from cfg.
func NewLauncher(cfg LauncherConfig, client *http.Client, opts ...Option) *Launcher {
	if client == nil {
		client = http.DefaultClient
	}
	l := &Launcher{
		cfg:     cfg,
		client:  client,
		starter: ExecStarter{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// EnsureRunning probes the server and, if it is down, spawns it once, waits
// for the startup grace period and probes again. A failed spawn returns
// ErrLaunchFailed; a server that still does not answer returns ErrNotHealthy.
// The Result is meaningful in both cases.
func (l *Launcher) EnsureRunning(ctx context.Context) (Result, error) {
	probeErr := Probe(ctx, l.client, l.cfg.Endpoint, l.cfg.ProbeTimeout)
	if probeErr == nil {
		return l.record(Result{State: Running, Message: "inference server already running"}, nil)
	}
	log.Info("inference server not responding", logging.KeyURL, l.cfg.Endpoint, logging.KeyError, probeErr)

	spawned := false
	if l.alreadyStarting(ctx) {
		log.Info("inference server process found, waiting for it to come up", "process", l.cfg.ProcessName)
	} else {
		err := l.starter.Start(l.cfg.Binary, l.cfg.Args)
		l.audit.Log(audit.EventServerLaunch, l.cfg.Binary, map[string]any{
			"args":    l.cfg.Args,
			"success": err == nil,
		})
		if err != nil {
			res := Result{State: Failed, Message: fmt.Sprintf("failed to start %s: %v", l.cfg.Binary, err)}
			return l.record(res, fmt.Errorf("%w: %s: %w", ErrLaunchFailed, l.cfg.Binary, err))
		}
		spawned = true
	}

	if l.cfg.StartupGrace > 0 {
		timer := time.NewTimer(l.cfg.StartupGrace)
		select {
		case <-ctx.Done():
			timer.Stop()
			res := Result{State: Starting, Message: "interrupted while waiting for inference server", Spawned: spawned}
			return l.record(res, ctx.Err())
		case <-timer.C:
		}
	}

	if err := Probe(ctx, l.client, l.cfg.Endpoint, l.cfg.ConfirmTimeout); err != nil {
		res := Result{State: Failed, Message: "inference server did not become healthy", Spawned: spawned}
		return l.record(res, fmt.Errorf("%w: %w", ErrNotHealthy, err))
	}

	msg := "inference server started"
	if !spawned {
		msg = "inference server finished starting"
	}
	return l.record(Result{State: Running, Message: msg, Spawned: spawned}, nil)
}

// alreadyStarting reports whether a server process exists even though the
// endpoint did not answer. Lookup errors are logged and treated as absent.
func (l *Launcher) alreadyStarting(ctx context.Context) bool {
	if l.finder == nil || l.cfg.ProcessName == "" {
		return false
	}
	found, err := l.finder.Running(ctx, l.cfg.ProcessName)
	if err != nil {
		log.Warn("process lookup failed", "process", l.cfg.ProcessName, logging.KeyError, err)
		return false
	}
	return found
}

func (l *Launcher) record(res Result, err error) (Result, error) {
	switch res.State {
	case Running:
		l.monitor.Update(ComponentInferenceServer, Healthy, res.Message)
	case Starting:
		l.monitor.Update(ComponentInferenceServer, Degraded, res.Message)
	default:
		l.monitor.Update(ComponentInferenceServer, Unhealthy, res.Message)
	}

	if err != nil {
		log.Warn("ensure running failed", "state", string(res.State), logging.KeyError, err)
	} else {
		log.Info(res.Message, "state", string(res.State), "spawned", res.Spawned)
	}
	return res, err
}
