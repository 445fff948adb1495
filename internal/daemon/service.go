package daemon

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// ServiceLabel names the daemon in launchd and systemd
const ServiceLabel = "com.tapedeck.daemon"

// ErrUnsupportedPlatform is returned for platforms without a service manager integration
var ErrUnsupportedPlatform = errors.New("service install is only supported on darwin and linux")

const plistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.BinaryPath}}</string>
		<string>daemon</string>
		<string>--log-file</string>
		<string>{{.LogPath}}/tapedeck.log</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardErrorPath</key>
	<string>{{.LogPath}}/tapedeck.err</string>
	<key>WorkingDirectory</key>
	<string>{{.WorkingDirectory}}</string>
</dict>
</plist>
`

const systemdTemplate = `[Unit]
Description=tapedeck music daemon
After=sound.target

[Service]
ExecStart={{.BinaryPath}} daemon --log-file {{.LogPath}}/tapedeck.log
WorkingDirectory={{.WorkingDirectory}}
Restart=on-failure
RestartSec=2

[Install]
WantedBy=default.target
`

// ServiceConfig holds the values substituted into the service definition
type ServiceConfig struct {
	Label            string
	BinaryPath       string
	LogPath          string
	WorkingDirectory string
}

// GenerateService renders the service definition for goos
func GenerateService(goos string, config ServiceConfig) (string, error) {
	if config.Label == "" {
		config.Label = ServiceLabel
	}

	var text string
	switch goos {
	case "darwin":
		text = plistTemplate
	case "linux":
		text = systemdTemplate
	default:
		return "", ErrUnsupportedPlatform
	}

	tmpl, err := template.New(goos).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse service template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, config); err != nil {
		return "", fmt.Errorf("failed to execute service template: %w", err)
	}

	return buf.String(), nil
}

// GetServicePath returns the path where the service definition should be installed
func GetServicePath(goos string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "LaunchAgents", ServiceLabel+".plist"), nil
	case "linux":
		return filepath.Join(home, ".config", "systemd", "user", "tapedeck.service"), nil
	default:
		return "", ErrUnsupportedPlatform
	}
}

// GetDefaultLogPath returns the default path for daemon logs
func GetDefaultLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ".local", "share", "tapedeck", "logs"), nil
}
