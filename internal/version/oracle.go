// Package version reads the installed and published Zama versions and decides
// whether an update is due.
package version

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/zama-app/zamad/internal/httputil"
	"github.com/zama-app/zamad/internal/logging"
)

var log = logging.L("version")

// record is the shape of both the local version file and the remote manifest.
type record struct {
	Version *string `json:"version"`
}

var errNoVersionField = errors.New(`missing string field "version"`)

// parseRecord returns the version field of a JSON object.
func parseRecord(data []byte) (string, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", err
	}
	if rec.Version == nil {
		return "", errNoVersionField
	}
	return *rec.Version, nil
}

// ReadCurrent returns the version recorded in the local JSON file at path,
// exactly as written.
func ReadCurrent(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &Error{Kind: ErrConfigMissing, Source: path, Err: err}
	}

	v, err := parseRecord(data)
	if err != nil {
		return "", &Error{Kind: ErrConfigMalformed, Source: path, Err: err}
	}
	return v, nil
}

// Oracle fetches the published version manifest.
type Oracle struct {
	ManifestURL string
	client      *http.Client
}

// NewOracle returns an Oracle for manifestURL. A nil client gets a 30s timeout.
func NewOracle(manifestURL string, client *http.Client) *Oracle {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Oracle{ManifestURL: manifestURL, client: client}
}

// FetchLatest makes a single GET for the manifest and returns its version.
func (o *Oracle) FetchLatest(ctx context.Context) (string, error) {
	data, err := httputil.GetBody(ctx, o.client, o.ManifestURL, httputil.NoRetry())
	if err != nil {
		return "", &Error{Kind: ErrNetwork, Source: o.ManifestURL, Err: err}
	}

	v, err := parseRecord(data)
	if err != nil {
		return "", &Error{Kind: ErrRemoteMalformed, Source: o.ManifestURL, Err: err}
	}

	log.Debug("fetched manifest", logging.KeyURL, o.ManifestURL, "version", v)
	return v, nil
}
