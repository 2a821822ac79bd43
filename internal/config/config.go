package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultServerEndpoint is where a stock Ollama install listens.
	DefaultServerEndpoint = "http://localhost:11434/"

	DefaultManifestURL  = "https://raw.githubusercontent.com/myferr/zama/main/pkg/version.json"
	DefaultInstallerURL = "https://raw.githubusercontent.com/myferr/zama/main/scripts/install.sh"

	// DefaultVersionFile is resolved against the working directory, which for the
	// packaged app is the bundle's binary directory.
	DefaultVersionFile = "../pkg/version.json"

	configName = "zamad"
	envPrefix  = "ZAMA"
)

type Config struct {
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`

	ServerEndpoint        string   `mapstructure:"server_endpoint"`
	OllamaBinary          string   `mapstructure:"ollama_binary"`
	LaunchArgs            []string `mapstructure:"launch_args"`
	ProcessName           string   `mapstructure:"process_name"`
	DetectProcess         bool     `mapstructure:"detect_process"`
	ProbeTimeoutMs        int      `mapstructure:"probe_timeout_ms"`
	StartupGraceSeconds   int      `mapstructure:"startup_grace_seconds"`
	ConfirmTimeoutSeconds int      `mapstructure:"confirm_timeout_seconds"`

	VersionFile           string   `mapstructure:"version_file"`
	ManifestURL           string   `mapstructure:"manifest_url"`
	InstallerURL          string   `mapstructure:"installer_url"`
	InstallPaths          []string `mapstructure:"install_paths"`
	InstallTimeoutSeconds int      `mapstructure:"install_timeout_seconds"`
	DownloadRetries       int      `mapstructure:"download_retries"`
	AutoUpdate            bool     `mapstructure:"auto_update"`

	DataDir         string `mapstructure:"data_dir"`
	AuditEnabled    bool   `mapstructure:"audit_enabled"`
	AuditMaxSizeMB  int    `mapstructure:"audit_max_size_mb"`
	AuditMaxBackups int    `mapstructure:"audit_max_backups"`
}

func Default() *Config {
	return &Config{
		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  10,
		LogMaxBackups: 3,

		ServerEndpoint:        DefaultServerEndpoint,
		OllamaBinary:          "ollama",
		LaunchArgs:            []string{"serve"},
		ProcessName:           "ollama",
		DetectProcess:         true,
		ProbeTimeoutMs:        1000,
		StartupGraceSeconds:   5,
		ConfirmTimeoutSeconds: 5,

		VersionFile:           DefaultVersionFile,
		ManifestURL:           DefaultManifestURL,
		InstallerURL:          DefaultInstallerURL,
		InstallPaths:          DefaultInstallPaths(),
		InstallTimeoutSeconds: 600,
		DownloadRetries:       2,
		AutoUpdate:            true,

		DataDir:         defaultDataDir(),
		AuditEnabled:    true,
		AuditMaxSizeMB:  10,
		AuditMaxBackups: 3,
	}
}

// Load reads cfgFile (or zamad.yaml from the config dir / working dir) on top
// of Default(). ZAMA_* environment variables override file values. A missing
// config file is not an error.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()
	v := viper.New()

	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// never appear in a file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("log_max_size_mb", cfg.LogMaxSizeMB)
	v.SetDefault("log_max_backups", cfg.LogMaxBackups)
	v.SetDefault("server_endpoint", cfg.ServerEndpoint)
	v.SetDefault("ollama_binary", cfg.OllamaBinary)
	v.SetDefault("launch_args", cfg.LaunchArgs)
	v.SetDefault("process_name", cfg.ProcessName)
	v.SetDefault("detect_process", cfg.DetectProcess)
	v.SetDefault("probe_timeout_ms", cfg.ProbeTimeoutMs)
	v.SetDefault("startup_grace_seconds", cfg.StartupGraceSeconds)
	v.SetDefault("confirm_timeout_seconds", cfg.ConfirmTimeoutSeconds)
	v.SetDefault("version_file", cfg.VersionFile)
	v.SetDefault("manifest_url", cfg.ManifestURL)
	v.SetDefault("installer_url", cfg.InstallerURL)
	v.SetDefault("install_paths", cfg.InstallPaths)
	v.SetDefault("install_timeout_seconds", cfg.InstallTimeoutSeconds)
	v.SetDefault("download_retries", cfg.DownloadRetries)
	v.SetDefault("auto_update", cfg.AutoUpdate)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("audit_enabled", cfg.AuditEnabled)
	v.SetDefault("audit_max_size_mb", cfg.AuditMaxSizeMB)
	v.SetDefault("audit_max_backups", cfg.AuditMaxBackups)
}

func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMs) * time.Millisecond
}

func (c *Config) StartupGrace() time.Duration {
	return time.Duration(c.StartupGraceSeconds) * time.Second
}

func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeoutSeconds) * time.Second
}

func (c *Config) InstallTimeout() time.Duration {
	return time.Duration(c.InstallTimeoutSeconds) * time.Second
}

// ConfigDir is the per-user directory searched for zamad.yaml.
func ConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(dir, "Zama")
	}
	return filepath.Join(dir, "zama")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "zama")
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Zama")
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "Zama")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "zama")
		}
		return filepath.Join(home, ".local", "share", "zama")
	}
}

// DefaultInstallPaths lists where an installed copy of the app is looked for,
// in priority order. $HOME comes from the environment, so consumers must
// treat these paths as untrusted input.
func DefaultInstallPaths() []string {
	home := os.Getenv("HOME")
	switch runtime.GOOS {
	case "darwin":
		paths := []string{"/Applications/Zama.app"}
		if home != "" {
			paths = append(paths, filepath.Join(home, "Applications", "Zama.app"))
		}
		return paths
	default:
		paths := []string{"/opt/zama"}
		if home != "" {
			paths = append(paths, filepath.Join(home, ".local", "opt", "zama"))
		}
		return paths
	}
}
