package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jesse-c/kopya-sub000/internal/domain"
)

const pidFileName = "kopya.pid"

// PidFileRegistry implements domain.DaemonRegistry using a JSON pidfile in
// the data directory. The status command reads it to find the running
// daemon.
type PidFileRegistry struct {
	path string
}

// NewPidFileRegistry creates a registry rooted in the given data directory.
func NewPidFileRegistry(dataDir string) *PidFileRegistry {
	return &PidFileRegistry{path: filepath.Join(dataDir, pidFileName)}
}

// Register saves the daemon's PID and HTTP address.
func (r *PidFileRegistry) Register(info domain.DaemonInfo) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return r.atomicWrite(info)
}

// Get returns the registered daemon info, or nil when none was registered.
func (r *PidFileRegistry) Get() (*domain.DaemonInfo, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var info domain.DaemonInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Clear removes the pidfile.
func (r *PidFileRegistry) Clear() error {
	err := os.Remove(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// atomicWrite writes the pidfile atomically (write + rename).
func (r *PidFileRegistry) atomicWrite(info domain.DaemonInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	// Write to temp file first (unique per process to avoid race)
	tmpPath := fmt.Sprintf("%s.%d.tmp", r.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath) // Clean up on failure
		return err
	}
	return nil
}

// Ensure PidFileRegistry implements domain.DaemonRegistry.
var _ domain.DaemonRegistry = (*PidFileRegistry)(nil)
