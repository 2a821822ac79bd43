package version

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "version.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadCurrentReturnsVersionUnchanged(t *testing.T) {
	path := writeFile(t, `{"version":"v1.2.0-beta.1","name":"zama"}`)

	got, err := ReadCurrent(path)
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	if got != "v1.2.0-beta.1" {
		t.Fatalf("got %q, want unnormalized v1.2.0-beta.1", got)
	}
}

func TestReadCurrentMissingFile(t *testing.T) {
	_, err := ReadCurrent(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, ErrConfigMissing) {
		t.Fatalf("expected ErrConfigMissing, got %v", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected cause fs.ErrNotExist to be preserved, got %v", err)
	}
	var verr *Error
	if !errors.As(err, &verr) || verr.Source == "" {
		t.Fatalf("expected *Error with source, got %#v", err)
	}
}

func TestReadCurrentMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":       `version: 1.2.0`,
		"missing field":  `{"name":"zama"}`,
		"non-string":     `{"version":120}`,
		"null document":  `null`,
		"array document": `["1.2.0"]`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCurrent(writeFile(t, content))
			if !errors.Is(err, ErrConfigMalformed) {
				t.Fatalf("expected ErrConfigMalformed, got %v", err)
			}
		})
	}
}

func TestFetchLatest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"version":"1.3.0"}`))
	}))
	defer srv.Close()

	o := NewOracle(srv.URL, srv.Client())
	got, err := o.FetchLatest(context.Background())
	if err != nil {
		t.Fatalf("FetchLatest: %v", err)
	}
	if got != "1.3.0" {
		t.Fatalf("got %q, want 1.3.0", got)
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1", hits.Load())
	}
}

func TestFetchLatestServerErrorIsSingleAttempt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOracle(srv.URL, srv.Client()).FetchLatest(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want exactly one attempt", hits.Load())
	}
}

func TestFetchLatestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewOracle(url, nil).FetchLatest(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestFetchLatestMalformed(t *testing.T) {
	for _, body := range []string{`<html>rate limited</html>`, `{"tag":"1.3.0"}`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))

		_, err := NewOracle(srv.URL, srv.Client()).FetchLatest(context.Background())
		srv.Close()
		if !errors.Is(err, ErrRemoteMalformed) {
			t.Fatalf("body %q: expected ErrRemoteMalformed, got %v", body, err)
		}
	}
}
