package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zama-app/zamad/internal/config"
	"github.com/zama-app/zamad/internal/logging"
)

var (
	buildVersion = "0.1.0"
	cfgFile      string
	logLevel     string
	logFormat    string

	cfg       *config.Config
	logCloser io.Closer
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "zamad",
	Short: "Zama local server supervisor",
	Long: `zamad keeps the local Ollama inference server running, downloads models
and keeps the Zama desktop application up to date.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	// Overrides the root hook: printing the version needs no config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "zamad v%s\n", buildVersion)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is zamad.yaml in "+config.ConfigDir()+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log_level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override log_format (text, json)")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads and validates the config and configures logging. Fatal config
// problems stop the command; clamped values are logged as warnings.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		loaded.LogLevel = logLevel
	}
	if logFormat != "" {
		loaded.LogFormat = logFormat
	}

	result := loaded.ValidateTiered()

	closer, err := logging.Setup(logging.Options{
		Format:     loaded.LogFormat,
		Level:      loaded.LogLevel,
		File:       loaded.LogFile,
		MaxSizeMB:  loaded.LogMaxSizeMB,
		MaxBackups: loaded.LogMaxBackups,
	})
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	logCloser = closer

	for _, w := range result.Warnings {
		log.Warn("config warning", logging.KeyError, w)
	}
	if result.HasFatals() {
		for _, f := range result.Fatals {
			log.Error("config error", logging.KeyError, f)
		}
		return fmt.Errorf("invalid config: %w", result.Fatals[0])
	}

	cfg = loaded
	return nil
}
