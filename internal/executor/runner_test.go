package executor

import (
	"bufio"
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
}

func sh(script string) Command {
	return Command{Name: "sh", Args: []string{"-c", script}}
}

func TestRunCapturesBothStreams(t *testing.T) {
	skipWithoutShell(t)

	out, err := New().Run(context.Background(), sh(
		`for i in 1 2 3; do echo out$i; done; for i in 1 2; do echo err$i >&2; done`))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Success || out.ExitCode != 0 {
		t.Fatalf("expected success, got exit %q", out.Exit)
	}
	if len(out.Transcript) != 5 {
		t.Fatalf("transcript has %d lines, want 5: %v", len(out.Transcript), out.Transcript)
	}

	var stdout, stderr []string
	for _, l := range out.Transcript {
		switch l.Stream {
		case Stdout:
			stdout = append(stdout, l.Text)
		case Stderr:
			stderr = append(stderr, l.Text)
		}
	}
	if strings.Join(stdout, ",") != "out1,out2,out3" {
		t.Fatalf("stdout lines = %v", stdout)
	}
	if strings.Join(stderr, ",") != "err1,err2" {
		t.Fatalf("stderr lines = %v", stderr)
	}
}

// A child that fills the stderr pipe before touching stdout must not block.
func TestRunLargeStderrBeforeStdout(t *testing.T) {
	skipWithoutShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	script := `i=0; while [ $i -lt 5000 ]; do echo "stderr line padding padding padding $i" >&2; i=$((i+1)); done; echo done`
	out, err := New().Run(ctx, sh(script))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Transcript) != 5001 {
		t.Fatalf("transcript has %d lines, want 5001", len(out.Transcript))
	}
	last := out.Transcript[len(out.Transcript)-1]
	if last.Stream != Stdout || last.Text != "done" {
		t.Fatalf("last line = %+v", last)
	}
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	skipWithoutShell(t)

	out, err := New().Run(context.Background(), sh("echo failing; exit 3"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Success {
		t.Fatal("exit 3 reported as success")
	}
	if out.ExitCode != 3 {
		t.Fatalf("ExitCode = %d, want 3", out.ExitCode)
	}
	if out.Tail(1) != "failing" {
		t.Fatalf("Tail(1) = %q", out.Tail(1))
	}
}

func TestRunSpawnFailure(t *testing.T) {
	out, err := New().Run(context.Background(), Command{Name: "/nonexistent/zamad-test-binary"})
	if !errors.Is(err, ErrSpawnFailed) {
		t.Fatalf("expected ErrSpawnFailed, got %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil outcome, got %+v", out)
	}
}

func TestRunContextCancelKillsProcess(t *testing.T) {
	skipWithoutShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	out, err := New().Run(ctx, sh("echo started; sleep 30"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("Run did not return promptly after cancellation")
	}
	if out == nil || out.Success {
		t.Fatalf("expected failed outcome, got %+v", out)
	}
}

func TestRunOnLineSeesTranscriptOrder(t *testing.T) {
	skipWithoutShell(t)

	var seen []string
	cmd := sh("echo a; echo b >&2; echo c")
	cmd.OnLine = func(l Line) { seen = append(seen, l.Text) }

	out, err := New().Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != len(out.Transcript) {
		t.Fatalf("callback saw %d lines, transcript has %d", len(seen), len(out.Transcript))
	}
	for i, l := range out.Transcript {
		if seen[i] != l.Text {
			t.Fatalf("line %d: callback %q, transcript %q", i, seen[i], l.Text)
		}
	}
}

func TestRunCarriageReturnProgress(t *testing.T) {
	skipWithoutShell(t)

	out, err := New().Run(context.Background(), sh(`printf '10%%\r50%%\r100%%\n'`))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := out.Text(); got != "10%\n50%\n100%" {
		t.Fatalf("Text() = %q", got)
	}
}

func TestScanLines(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a\nb\n", []string{"a", "b"}},
		{"a\r\nb\r\n", []string{"a", "b"}},
		{"a\rb\rc", []string{"a", "b", "c"}},
		{"no newline", []string{"no newline"}},
		{"trailing\r", []string{"trailing"}},
		{"\n\n", []string{"", ""}},
		{"", nil},
	}
	for _, tt := range tests {
		sc := bufio.NewScanner(strings.NewReader(tt.in))
		sc.Split(scanLines)
		var got []string
		for sc.Scan() {
			got = append(got, sc.Text())
		}
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("scanLines(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOutcomeTailShorterThanN(t *testing.T) {
	o := &Outcome{Transcript: []Line{{Stream: Stdout, Text: "only"}}}
	if o.Tail(5) != "only" {
		t.Fatalf("Tail = %q", o.Tail(5))
	}
}
