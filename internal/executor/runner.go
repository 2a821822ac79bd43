// Package executor runs external commands and captures a merged, line-based
// transcript of their stdout and stderr.
package executor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zama-app/zamad/internal/logging"
)

var log = logging.L("executor")

const (
	// MaxLineSize is the longest line accepted from either stream.
	MaxLineSize = 1024 * 1024

	lineBufferSize = 64
)

// Stream identifies which output pipe a line came from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Line is one line of process output.
type Line struct {
	Stream Stream `json:"stream"`
	Text   string `json:"text"`
}

// Command describes a process to run.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string // nil inherits the current environment

	// OnLine, if set, is called for every line in transcript order as soon as
	// it is read. It runs on the collecting goroutine and must not block for long.
	OnLine func(Line)
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Outcome is the result of one Run.
type Outcome struct {
	Success    bool          `json:"success"`
	ExitCode   int           `json:"exitCode"`
	Exit       string        `json:"exit"`
	Transcript []Line        `json:"transcript"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
}

// Text returns the transcript joined with newlines.
func (o *Outcome) Text() string {
	var b strings.Builder
	for i, l := range o.Transcript {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.Text)
	}
	return b.String()
}

// Tail returns the last n transcript lines as text, for error messages.
func (o *Outcome) Tail(n int) string {
	lines := o.Transcript
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text
	}
	return strings.Join(texts, "\n")
}

// Runner spawns processes. The zero value is ready to use; each Run owns its
// own process and pipes, so concurrent Runs are independent.
type Runner struct{}

func New() *Runner {
	return &Runner{}
}

// Run starts the command, reads stdout and stderr concurrently until both
// reach EOF, and only then waits for the exit status.
//
// A non-zero exit is reported through Outcome, not as an error. Errors are
// ErrSpawnFailed, ErrStreamRead, ErrWaitFailed, or ctx.Err() when the context
// ended the process; the Outcome is non-nil whenever the process started.
func (r *Runner) Run(ctx context.Context, c Command) (*Outcome, error) {
	outcome := &Outcome{StartedAt: time.Now(), ExitCode: -1}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &Error{Kind: ErrSpawnFailed, Name: c.Name, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &Error{Kind: ErrSpawnFailed, Name: c.Name, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &Error{Kind: ErrSpawnFailed, Name: c.Name, Err: err}
	}
	log.Debug("process started", "command", c.String(), "pid", cmd.Process.Pid)

	lines := make(chan Line, lineBufferSize)
	var readErr error

	var g errgroup.Group
	g.Go(func() error { return r.drain(cmd, stdout, Stdout, lines) })
	g.Go(func() error { return r.drain(cmd, stderr, Stderr, lines) })
	go func() {
		readErr = g.Wait()
		close(lines)
	}()

	for l := range lines {
		outcome.Transcript = append(outcome.Transcript, l)
		if c.OnLine != nil {
			c.OnLine(l)
		}
	}

	waitErr := cmd.Wait()
	outcome.Duration = time.Since(outcome.StartedAt)
	if cmd.ProcessState != nil {
		outcome.ExitCode = cmd.ProcessState.ExitCode()
		outcome.Exit = cmd.ProcessState.String()
		outcome.Success = cmd.ProcessState.Success()
	}

	switch {
	case ctx.Err() != nil && !outcome.Success:
		log.Warn("process cancelled", "command", c.Name, "exit", outcome.Exit, logging.KeyError, ctx.Err())
		return outcome, fmt.Errorf("%s: %w", c.Name, ctx.Err())
	case readErr != nil:
		outcome.Success = false
		return outcome, &Error{Kind: ErrStreamRead, Name: c.Name, Err: readErr}
	case waitErr != nil:
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return outcome, &Error{Kind: ErrWaitFailed, Name: c.Name, Err: waitErr}
		}
	}

	log.Info("process exited",
		"command", c.Name,
		"exit", outcome.Exit,
		"lines", len(outcome.Transcript),
		logging.KeyDurationMs, outcome.Duration.Milliseconds(),
	)
	return outcome, nil
}

// drain forwards every line of one stream. On a read failure the process
// group is killed so the other stream reaches EOF and Run can reap it.
func (r *Runner) drain(cmd *exec.Cmd, rd io.Reader, s Stream, out chan<- Line) error {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	sc.Split(scanLines)

	for sc.Scan() {
		out <- Line{Stream: s, Text: sc.Text()}
	}

	if err := sc.Err(); err != nil {
		if killErr := killProcessGroup(cmd); killErr != nil {
			log.Warn("failed to kill process after read error", "stream", string(s), logging.KeyError, killErr)
		}
		// Keep the pipe drained so the child can't block on a full buffer
		// between the kill and its delivery.
		io.Copy(io.Discard, rd)
		return fmt.Errorf("%s: %w", s, err)
	}
	return nil
}

// scanLines splits on "\n", "\r\n" and a lone "\r". Progress bars redraw with
// "\r", and each redraw is kept as its own line.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		// A trailing '\r' may be the first half of "\r\n".
		return 0, nil, nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
