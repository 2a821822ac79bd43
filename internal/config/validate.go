package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/zama-app/zamad/internal/logging"
)

var log = logging.L("config")

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationResult separates errors that must stop startup from values that
// were corrected in place.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	return append(all, r.Warnings...)
}

// Validate checks the config and returns every problem found. Out-of-range
// numbers are clamped to safe values; everything is logged as a warning.
func (c *Config) Validate() []error {
	errs := c.ValidateTiered().AllErrors()
	for _, err := range errs {
		log.Warn("config validation", logging.KeyError, err)
	}
	return errs
}

// ValidateTiered is Validate without logging, split by severity. URLs that
// the updater would fetch from are fatal when they are not http(s); bad
// numbers are clamped and reported as warnings.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	checkURL := func(key, raw string, requireHTTPS bool) {
		u, err := url.Parse(raw)
		switch {
		case err != nil:
			r.Fatals = append(r.Fatals, fmt.Errorf("%s %q is not a valid URL: %w", key, raw, err))
		case u.Scheme != "http" && u.Scheme != "https":
			r.Fatals = append(r.Fatals, fmt.Errorf("%s scheme must be http or https, got %q", key, u.Scheme))
		case u.Host == "":
			r.Fatals = append(r.Fatals, fmt.Errorf("%s %q has no host", key, raw))
		case requireHTTPS && u.Scheme != "https":
			r.Warnings = append(r.Warnings, fmt.Errorf("%s %q is not https", key, raw))
		}
	}

	checkURL("server_endpoint", c.ServerEndpoint, false)
	checkURL("manifest_url", c.ManifestURL, true)
	checkURL("installer_url", c.InstallerURL, true)

	if strings.TrimSpace(c.OllamaBinary) == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("ollama_binary must not be empty"))
	}

	if c.VersionFile == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("version_file must not be empty"))
	}

	for _, p := range c.InstallPaths {
		if !filepath.IsAbs(p) {
			r.Fatals = append(r.Fatals, fmt.Errorf("install_paths entry %q must be absolute", p))
		}
	}

	clamp := func(key string, v *int, lo, hi int) {
		if *v < lo {
			r.Warnings = append(r.Warnings, fmt.Errorf("%s %d is below minimum %d, clamping", key, *v, lo))
			*v = lo
		} else if *v > hi {
			r.Warnings = append(r.Warnings, fmt.Errorf("%s %d exceeds maximum %d, clamping", key, *v, hi))
			*v = hi
		}
	}

	clamp("probe_timeout_ms", &c.ProbeTimeoutMs, 100, 30000)
	clamp("startup_grace_seconds", &c.StartupGraceSeconds, 0, 120)
	clamp("confirm_timeout_seconds", &c.ConfirmTimeoutSeconds, 1, 120)
	clamp("install_timeout_seconds", &c.InstallTimeoutSeconds, 30, 3600)
	clamp("download_retries", &c.DownloadRetries, 0, 10)
	clamp("log_max_size_mb", &c.LogMaxSizeMB, 1, 1024)
	clamp("log_max_backups", &c.LogMaxBackups, 1, 50)
	clamp("audit_max_size_mb", &c.AuditMaxSizeMB, 1, 1024)
	clamp("audit_max_backups", &c.AuditMaxBackups, 1, 50)

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	return r
}
