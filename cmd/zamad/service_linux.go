//go:build linux

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zama-app/zamad/internal/executor"
)

const linuxServiceName = "zamad.service"

const linuxUnitTemplate = `[Unit]
Description=Zama local server supervisor
After=network-online.target

[Service]
Type=simple
ExecStart=%s run
Restart=on-failure
RestartSec=5
KillMode=process

[Install]
WantedBy=default.target
`

type systemdUser struct{}

func currentServiceManager() (serviceManager, error) {
	return systemdUser{}, nil
}

func (systemdUser) unitPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "systemd", "user", linuxServiceName), nil
}

// render fills the unit template. KillMode=process stops only zamad itself,
// so an inference server it launched keeps running across restarts.
func (systemdUser) render(binary string) string {
	return fmt.Sprintf(linuxUnitTemplate, systemdQuote(binary))
}

// systemdQuote quotes one ExecStart word, escaping specifiers and variable
// expansion as well as quotes and backslashes.
func systemdQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "%", "%%", "$", "$$")
	return `"` + r.Replace(s) + `"`
}

func (systemdUser) enable(ctx context.Context, r *executor.Runner, unit string) error {
	if err := runTool(ctx, r, "systemctl", "--user", "daemon-reload"); err != nil {
		return err
	}
	return runTool(ctx, r, "systemctl", "--user", "enable", "--now", linuxServiceName)
}

func (systemdUser) disable(ctx context.Context, r *executor.Runner, unit string) error {
	err := runTool(ctx, r, "systemctl", "--user", "disable", "--now", linuxServiceName)
	if reloadErr := runTool(ctx, r, "systemctl", "--user", "daemon-reload"); err == nil {
		err = reloadErr
	}
	return err
}
