package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zama-app/zamad/internal/health"
)

var statusOutput string

type serverStatus struct {
	Endpoint string  `json:"endpoint" yaml:"endpoint"`
	Healthy  bool    `json:"healthy" yaml:"healthy"`
	Error    string  `json:"error,omitempty" yaml:"error,omitempty"`
	Process  string  `json:"process,omitempty" yaml:"process,omitempty"`
	PIDs     []int32 `json:"pids,omitempty" yaml:"pids,omitempty"`
}

type versionStatus struct {
	Current         string `json:"current,omitempty" yaml:"current,omitempty"`
	Latest          string `json:"latest,omitempty" yaml:"latest,omitempty"`
	UpdateAvailable bool   `json:"updateAvailable" yaml:"updateAvailable"`
	Error           string `json:"error,omitempty" yaml:"error,omitempty"`
}

type statusReport struct {
	Version   string         `json:"version" yaml:"version"`
	Server    serverStatus   `json:"server" yaml:"server"`
	App       versionStatus  `json:"app" yaml:"app"`
	Overall   health.Status  `json:"overall" yaml:"overall"`
	Checks    []health.Check `json:"checks" yaml:"checks"`
	CheckedAt time.Time      `json:"checkedAt" yaml:"checkedAt"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report inference server health and installed/published versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		switch statusOutput {
		case "text", "json", "yaml":
		default:
			return fmt.Errorf("unknown output format %q (use text, json or yaml)", statusOutput)
		}

		c := newComponents(cfg)
		defer c.Close()

		rep := collectStatus(cmd.Context(), c)
		return writeStatus(cmd.OutOrStdout(), statusOutput, rep)
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "text", "output format: text, json or yaml")
	rootCmd.AddCommand(statusCmd)
}

func collectStatus(ctx context.Context, c *components) statusReport {
	rep := statusReport{
		Version:   buildVersion,
		Server:    serverStatus{Endpoint: cfg.ServerEndpoint},
		CheckedAt: time.Now().UTC(),
	}

	if err := health.Probe(ctx, &http.Client{}, cfg.ServerEndpoint, cfg.ProbeTimeout()); err != nil {
		rep.Server.Error = err.Error()
		c.monitor.Update(health.ComponentInferenceServer, health.Unhealthy, err.Error())
	} else {
		rep.Server.Healthy = true
		c.monitor.Update(health.ComponentInferenceServer, health.Healthy, "responding")
	}

	if cfg.ProcessName != "" {
		rep.Server.Process = cfg.ProcessName
		pids, err := health.FindProcesses(ctx, cfg.ProcessName)
		if err != nil {
			log.Debug("process lookup failed", "error", err)
		}
		rep.Server.PIDs = pids
	}

	res, err := c.updater.Check(ctx)
	rep.App = versionStatus{Current: res.Current, Latest: res.Latest, UpdateAvailable: res.UpdateAvailable}
	if err != nil {
		rep.App.Error = err.Error()
		c.monitor.Update(health.ComponentUpdater, health.Degraded, err.Error())
	} else {
		c.monitor.Update(health.ComponentUpdater, health.Healthy, "version check ok")
	}

	rep.Overall, rep.Checks = c.monitor.Snapshot()
	sort.Slice(rep.Checks, func(i, j int) bool { return rep.Checks[i].Name < rep.Checks[j].Name })
	return rep
}

func writeStatus(w io.Writer, format string, rep statusReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return enc.Close()
	}

	fmt.Fprintf(w, "zamad %s (%s)\n", rep.Version, rep.Overall)
	if rep.Server.Healthy {
		fmt.Fprintf(w, "server:   running at %s\n", rep.Server.Endpoint)
	} else {
		fmt.Fprintf(w, "server:   not responding at %s (%s)\n", rep.Server.Endpoint, rep.Server.Error)
	}
	if rep.Server.Process != "" {
		fmt.Fprintf(w, "process:  %s %v\n", rep.Server.Process, rep.Server.PIDs)
	}
	if rep.App.Error != "" {
		fmt.Fprintf(w, "app:      version check failed: %s\n", rep.App.Error)
	} else {
		fmt.Fprintf(w, "app:      %s (latest %s, update available: %t)\n", rep.App.Current, rep.App.Latest, rep.App.UpdateAvailable)
	}
	return nil
}
