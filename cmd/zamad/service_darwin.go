//go:build darwin

package main

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zama-app/zamad/internal/executor"
)

const darwinLabel = "app.zama.zamad"

const darwinPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>%s</string>

    <key>ProgramArguments</key>
    <array>
        <string>%s</string>
        <string>run</string>
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>KeepAlive</key>
    <dict>
        <key>SuccessfulExit</key>
        <false/>
    </dict>

    <key>ThrottleInterval</key>
    <integer>5</integer>
</dict>
</plist>
`

type launchAgent struct{}

func currentServiceManager() (serviceManager, error) {
	return launchAgent{}, nil
}

func (launchAgent) unitPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Library", "LaunchAgents", darwinLabel+".plist"), nil
}

func (launchAgent) render(binary string) string {
	return fmt.Sprintf(darwinPlistTemplate, darwinLabel, xmlEscape(binary))
}

func (launchAgent) enable(ctx context.Context, r *executor.Runner, unit string) error {
	return runTool(ctx, r, "launchctl", "bootstrap", fmt.Sprintf("gui/%d", os.Getuid()), unit)
}

func (launchAgent) disable(ctx context.Context, r *executor.Runner, unit string) error {
	return runTool(ctx, r, "launchctl", "bootout", fmt.Sprintf("gui/%d", os.Getuid()), unit)
}

func xmlEscape(s string) string {
	var b bytes.Buffer
	xml.EscapeText(&b, []byte(s))
	return b.String()
}
