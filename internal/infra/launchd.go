package infra

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/jesse-c/kopya-sub000/internal/domain"
)

const launchdLabel = "me.jesse-c.kopya"

// LaunchAgent plist template (runs as user, starts the daemon at login).
const launchAgentTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>

    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
        <string>start</string>
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>KeepAlive</key>
    <dict>
        <key>Crashed</key>
        <true/>
    </dict>

    <key>StandardOutPath</key>
    <string>{{.LogPath}}</string>

    <key>StandardErrorPath</key>
    <string>{{.ErrorLogPath}}</string>

    <key>ProcessType</key>
    <string>Background</string>

    <key>ThrottleInterval</key>
    <integer>10</integer>
</dict>
</plist>`

type plistConfig struct {
	Label          string
	ExecutablePath string
	LogPath        string
	ErrorLogPath   string
}

// LaunchAgentManagerImpl implements domain.LaunchAgentManager for the user
// LaunchAgent location.
type LaunchAgentManagerImpl struct {
	plistDir  string
	plistPath string
	logDir    string
}

// NewLaunchAgentManager creates a LaunchAgent manager. Log output from
// launchd goes into the daemon's data directory.
func NewLaunchAgentManager(dataDir string) domain.LaunchAgentManager {
	home, _ := os.UserHomeDir()
	launchAgentsDir := filepath.Join(home, "Library/LaunchAgents")

	return &LaunchAgentManagerImpl{
		plistDir:  launchAgentsDir,
		plistPath: filepath.Join(launchAgentsDir, launchdLabel+".plist"),
		logDir:    dataDir,
	}
}

// generatePlistContent creates plist content for the given exec path.
func (m *LaunchAgentManagerImpl) generatePlistContent(execPath string) ([]byte, error) {
	config := plistConfig{
		Label:          launchdLabel,
		ExecutablePath: execPath,
		LogPath:        filepath.Join(m.logDir, "kopya.launchd.log"),
		ErrorLogPath:   filepath.Join(m.logDir, "kopya.launchd.error.log"),
	}

	tmpl, err := template.New("plist").Parse(launchAgentTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse plist template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, config); err != nil {
		return nil, fmt.Errorf("failed to execute plist template: %w", err)
	}

	return buf.Bytes(), nil
}

// Install creates and loads the LaunchAgent plist.
func (m *LaunchAgentManagerImpl) Install(execPath string) error {
	if err := os.MkdirAll(m.plistDir, 0755); err != nil {
		return err
	}

	content, err := m.generatePlistContent(execPath)
	if err != nil {
		return fmt.Errorf("failed to generate plist content: %w", err)
	}

	if err := os.WriteFile(m.plistPath, content, 0644); err != nil {
		return err
	}

	return m.load()
}

// Uninstall unloads and removes the plist.
func (m *LaunchAgentManagerImpl) Uninstall() error {
	// Unload first (ignore errors if not loaded)
	_ = m.unload()
	return os.Remove(m.plistPath)
}

// IsInstalled checks if the plist is installed.
func (m *LaunchAgentManagerImpl) IsInstalled() bool {
	_, err := os.Stat(m.plistPath)
	return err == nil
}

// GetPlistPath returns the plist file path.
func (m *LaunchAgentManagerImpl) GetPlistPath() string {
	return m.plistPath
}

// load loads the plist using launchctl.
// Note: `launchctl load` is deprecated but still works on macOS.
func (m *LaunchAgentManagerImpl) load() error {
	return exec.Command("launchctl", "load", m.plistPath).Run()
}

// unload unloads the plist using launchctl.
func (m *LaunchAgentManagerImpl) unload() error {
	return exec.Command("launchctl", "unload", m.plistPath).Run()
}

// Ensure LaunchAgentManagerImpl implements domain.LaunchAgentManager.
var _ domain.LaunchAgentManager = (*LaunchAgentManagerImpl)(nil)
