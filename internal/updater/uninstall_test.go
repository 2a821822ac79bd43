package updater

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zama-app/zamad/internal/executor"
)

func TestTrashCommandPassesPathAsArgument(t *testing.T) {
	hostile := `/Applications/Za"ma.app"; do shell script "rm -rf ~"`

	mac := trashCommand("darwin", hostile)
	if mac.Name != "osascript" {
		t.Fatalf("darwin command = %q", mac.Name)
	}
	if mac.Args[len(mac.Args)-1] != hostile {
		t.Fatalf("path is not the final argv element: %v", mac.Args)
	}
	for _, a := range mac.Args[:len(mac.Args)-1] {
		if strings.Contains(a, "Za\"ma") {
			t.Fatalf("path interpolated into script text: %q", a)
		}
	}

	linux := trashCommand("linux", hostile)
	want := []string{"trash", "--", hostile}
	if linux.Name != "gio" || strings.Join(linux.Args, "\x00") != strings.Join(want, "\x00") {
		t.Fatalf("linux command = %s %v", linux.Name, linux.Args)
	}
}

func TestUninstallNotFound(t *testing.T) {
	runner := &fakeRunner{}
	u := NewUninstaller(missingPaths(t), runner, nil)

	_, err := u.Uninstall(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(runner.calls()) != 0 {
		t.Fatal("runner called with nothing to trash")
	}
}

func TestUninstallPicksFirstExisting(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "missing.app")
	second := filepath.Join(dir, "Zama.app")
	third := filepath.Join(dir, "Other.app")
	for _, p := range []string{second, third} {
		if err := os.Mkdir(p, 0755); err != nil {
			t.Fatal(err)
		}
	}

	runner := &fakeRunner{}
	u := NewUninstaller([]string{"relative/Zama.app", first, second, third}, runner, nil)
	u.goos = "darwin"

	got, err := u.Uninstall(context.Background())
	if err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if got != second {
		t.Fatalf("trashed %q, want %q", got, second)
	}
	calls := runner.calls()
	if len(calls) != 1 || calls[0].Name != "osascript" {
		t.Fatalf("calls = %v", calls)
	}
}

func TestUninstallTrashFailure(t *testing.T) {
	app := filepath.Join(t.TempDir(), "Zama.app")
	if err := os.Mkdir(app, 0755); err != nil {
		t.Fatal(err)
	}

	nonZero := &fakeRunner{outcome: &executor.Outcome{ExitCode: 2, Exit: "exit status 2"}}
	if _, err := NewUninstaller([]string{app}, nonZero, nil).Uninstall(context.Background()); !errors.Is(err, ErrTrashMoveFailed) {
		t.Fatalf("non-zero exit: expected ErrTrashMoveFailed, got %v", err)
	}

	spawnErr := &executor.Error{Kind: executor.ErrSpawnFailed, Name: "gio", Err: os.ErrNotExist}
	noBinary := &fakeRunner{err: spawnErr}
	_, err := NewUninstaller([]string{app}, noBinary, nil).Uninstall(context.Background())
	if !errors.Is(err, ErrTrashMoveFailed) || !errors.Is(err, executor.ErrSpawnFailed) {
		t.Fatalf("spawn failure: expected ErrTrashMoveFailed wrapping ErrSpawnFailed, got %v", err)
	}
}
