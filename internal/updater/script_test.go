package updater

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zama-app/zamad/internal/executor"
	"github.com/zama-app/zamad/internal/httputil"
)

func TestValidateScript(t *testing.T) {
	tests := []struct {
		text string
		ok   bool
	}{
		{"#!/bin/sh\necho hi\n", true},
		{"#!", true},
		{"echo hi", false},
		{"", false},
		{"#", false},
		{" #!/bin/sh", false},
		{"<!DOCTYPE html>", false},
	}
	for _, tt := range tests {
		err := ValidateScript(tt.text)
		if tt.ok && err != nil {
			t.Errorf("ValidateScript(%q) = %v, want nil", tt.text, err)
		}
		if !tt.ok && !errors.Is(err, ErrUntrustedContent) {
			t.Errorf("ValidateScript(%q) = %v, want ErrUntrustedContent", tt.text, err)
		}
	}
}

func TestPersistScriptRoundTrip(t *testing.T) {
	text := "#!/bin/sh\necho installing zama\n"
	path, err := PersistScript(text)
	if err != nil {
		t.Fatalf("PersistScript: %v", err)
	}
	defer Cleanup(path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != text {
		t.Fatalf("content = %q, want %q", data, text)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0755 {
			t.Fatalf("file mode = %v, want 0755", info.Mode().Perm())
		}
		dirInfo, err := os.Stat(filepath.Dir(path))
		if err != nil {
			t.Fatal(err)
		}
		if dirInfo.Mode().Perm() != 0700 {
			t.Fatalf("dir mode = %v, want 0700", dirInfo.Mode().Perm())
		}
	}
}

func TestPersistScriptUniquePaths(t *testing.T) {
	a, err := PersistScript("#!/bin/sh\n")
	if err != nil {
		t.Fatal(err)
	}
	defer Cleanup(a)
	b, err := PersistScript("#!/bin/sh\n")
	if err != nil {
		t.Fatal(err)
	}
	defer Cleanup(b)

	if a == b || filepath.Dir(a) == filepath.Dir(b) {
		t.Fatalf("two attempts share a location: %s %s", a, b)
	}
}

func TestPersistScriptRejectsUntrusted(t *testing.T) {
	path, err := PersistScript("echo hi")
	if !errors.Is(err, ErrUntrustedContent) {
		t.Fatalf("expected ErrUntrustedContent, got %v", err)
	}
	if path != "" {
		t.Fatalf("path = %q, want empty", path)
	}
}

func TestCleanupRemovesFileAndDir(t *testing.T) {
	path, err := PersistScript("#!/bin/sh\n")
	if err != nil {
		t.Fatal(err)
	}
	Cleanup(path)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file still present: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(path)); !os.IsNotExist(err) {
		t.Fatalf("dir still present: %v", err)
	}
	Cleanup(path)
}

func TestCleanupRemovesInstallerPayload(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	path, err := PersistScript("#!/bin/sh\necho payload > downloaded.tar.gz\nmkdir -p extracted && echo x > extracted/app\n")
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Dir(path)

	out, err := executor.New().Run(context.Background(), executor.Command{Name: path, Dir: dir})
	if err != nil || !out.Success {
		t.Fatalf("Run: %v %+v", err, out)
	}
	if _, err := os.Stat(filepath.Join(dir, "downloaded.tar.gz")); err != nil {
		t.Fatalf("installer did not write its payload: %v", err)
	}

	Cleanup(path)
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("installer dir %s still present after Cleanup: %v", dir, err)
	}
}

func TestCleanupLeavesForeignPrefixedDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "zama-install-foreign")
	if err := os.Mkdir(dir, 0700); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "install.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "keep"), nil, 0600); err != nil {
		t.Fatal(err)
	}
	Cleanup(path)
	if _, err := os.Stat(filepath.Join(dir, "keep")); err != nil {
		t.Fatalf("Cleanup removed a directory outside the temp dir: %v", err)
	}
}

func TestCleanupLeavesForeignDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "install.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0600); err != nil {
		t.Fatal(err)
	}
	Cleanup(path)
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("Cleanup removed a directory it did not create: %v", err)
	}
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("#!/bin/sh\n"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), 2)
	f.retry = httputil.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}

	text, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if text != "#!/bin/sh\n" || hits.Load() != 2 {
		t.Fatalf("text=%q hits=%d", text, hits.Load())
	}
}

func TestFetchNon2xxIsDownloadFailed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewFetcher(srv.Client(), 0).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed, got %v", err)
	}
}

func TestFetchOversizedBodyIsDownloadFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#!/bin/sh\n" + strings.Repeat("#", httputil.MaxBodySize)))
	}))
	defer srv.Close()

	_, err := NewFetcher(srv.Client(), 0).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrDownloadFailed) || !errors.Is(err, httputil.ErrBodyTooLarge) {
		t.Fatalf("expected ErrDownloadFailed wrapping ErrBodyTooLarge, got %v", err)
	}
}

func TestPersistedScriptRunsThroughRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	path, err := PersistScript("#!/bin/sh\necho from-installer\n")
	if err != nil {
		t.Fatal(err)
	}
	defer Cleanup(path)

	out, err := executor.New().Run(context.Background(), executor.Command{Name: "sh", Args: []string{path}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Success || out.Text() != "from-installer" {
		t.Fatalf("outcome = %+v", out)
	}
}
