// Package ollama drives the ollama command line for model downloads.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zama-app/zamad/internal/audit"
	"github.com/zama-app/zamad/internal/executor"
	"github.com/zama-app/zamad/internal/logging"
)

var log = logging.L("ollama")

const maxModelNameLen = 256

var (
	ErrInvalidModel = errors.New("ollama: invalid model name")
	ErrPullFailed   = errors.New("ollama: pull failed")
)

// CommandRunner runs a command to completion. *executor.Runner implements it.
type CommandRunner interface {
	Run(ctx context.Context, c executor.Command) (*executor.Outcome, error)
}

// Puller runs "ollama pull". Each Pull owns its own process, so concurrent
// pulls do not interact.
type Puller struct {
	binary string
	runner CommandRunner
	audit  *audit.Logger
}

// NewPuller returns a Puller that invokes binary. auditLog may be nil.
func NewPuller(binary string, runner CommandRunner, auditLog *audit.Logger) *Puller {
	return &Puller{binary: binary, runner: runner, audit: auditLog}
}

// Pull downloads model and calls onLine for each line of output as it
// arrives. On a non-zero exit the Outcome is returned together with
// ErrPullFailed so the transcript can still be shown.
func (p *Puller) Pull(ctx context.Context, model string, onLine func(executor.Line)) (*executor.Outcome, error) {
	if err := ValidateModelName(model); err != nil {
		return nil, err
	}

	log.Info("pulling model", logging.KeyModel, model)
	out, err := p.runner.Run(ctx, executor.Command{
		Name:   p.binary,
		Args:   []string{"pull", model},
		OnLine: onLine,
	})

	details := map[string]any{"success": err == nil && out != nil && out.Success}
	if out != nil {
		details["exit"] = out.Exit
		details["durationMs"] = out.Duration.Milliseconds()
	}
	p.audit.Log(audit.EventModelPull, model, details)

	if err != nil {
		return out, fmt.Errorf("%w: %s: %w", ErrPullFailed, model, err)
	}
	if !out.Success {
		log.Warn("model pull failed", logging.KeyModel, model, "exit", out.Exit)
		return out, fmt.Errorf("%w: %s: %s: %s", ErrPullFailed, model, out.Exit, out.Tail(5))
	}

	log.Info("model pulled", logging.KeyModel, model, logging.KeyDurationMs, out.Duration.Milliseconds())
	return out, nil
}

// ValidateModelName accepts names like "llama3", "llama3:8b" or
// "library/mistral:latest". Names may not start with "-" so they are never
// parsed as flags.
func ValidateModelName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidModel)
	case len(name) > maxModelNameLen:
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidModel, maxModelNameLen)
	case strings.HasPrefix(name, "-"):
		return fmt.Errorf("%w: %q starts with '-'", ErrInvalidModel, name)
	}
	for _, r := range name {
		if !validModelRune(r) {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidModel, name, r)
		}
	}
	return nil
}

func validModelRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("._:/-", r)
}
