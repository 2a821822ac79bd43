package updater

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zama-app/zamad/internal/httputil"
	"github.com/zama-app/zamad/internal/logging"
)

const (
	scriptMagic  = "#!"
	tempDirGlob  = "zama-install-*"
	tempFileGlob = "install-*.sh"
)

// Fetcher downloads installer scripts.
type Fetcher struct {
	client *http.Client
	retry  httputil.RetryConfig
}

// NewFetcher returns a Fetcher that retries transient failures up to
// retries times. A nil client gets a two-minute timeout.
func NewFetcher(client *http.Client, retries int) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Fetcher{client: client, retry: httputil.DefaultRetryConfig(retries)}
}

// Fetch downloads the script at url and rejects anything that does not
// start with "#!". Nothing is written to disk.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	body, err := httputil.GetBody(ctx, f.client, url, f.retry)
	if err != nil {
		return "", &Error{Kind: ErrDownloadFailed, Target: url, Err: err}
	}

	text := string(body)
	if err := ValidateScript(text); err != nil {
		log.Warn("rejected installer", logging.KeyURL, url, "bytes", len(body))
		return "", &Error{Kind: ErrUntrustedContent, Target: url}
	}
	return text, nil
}

// ValidateScript returns ErrUntrustedContent unless text starts with "#!".
func ValidateScript(text string) error {
	if !strings.HasPrefix(text, scriptMagic) {
		return ErrUntrustedContent
	}
	return nil
}

// PersistScript writes text to a uniquely named, executable file inside a
// new private directory and returns the file's path. Text that fails
// ValidateScript is never written.
func PersistScript(text string) (string, error) {
	if err := ValidateScript(text); err != nil {
		return "", err
	}

	dir, err := os.MkdirTemp("", tempDirGlob)
	if err != nil {
		return "", fmt.Errorf("create installer dir: %w", err)
	}

	f, err := os.CreateTemp(dir, tempFileGlob)
	if err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("create installer file: %w", err)
	}
	path := f.Name()

	if _, err := f.WriteString(text); err != nil {
		f.Close()
		os.RemoveAll(dir)
		return "", fmt.Errorf("write installer: %w", err)
	}
	if err := f.Close(); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("close installer: %w", err)
	}
	if err := os.Chmod(path, 0755); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("chmod installer: %w", err)
	}

	log.Debug("installer persisted", logging.KeyPath, path)
	return path, nil
}

// Cleanup removes a script written by PersistScript and its directory,
// including anything the installer left in it. Failures are logged only.
func Cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove installer", logging.KeyPath, path, logging.KeyError, err)
	}

	dir := filepath.Dir(path)
	if !strings.HasPrefix(filepath.Base(dir), strings.TrimSuffix(tempDirGlob, "*")) ||
		filepath.Dir(dir) != filepath.Clean(os.TempDir()) {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Warn("failed to remove installer dir", logging.KeyPath, dir, logging.KeyError, err)
	}
}
