package infra

import (
	"os"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/jesse-c/kopya-sub000/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() domain.ProcessManager {
	return &ProcessManagerImpl{}
}

// IsRunning checks if a PID exists and is running.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	// On Unix, FindProcess always succeeds
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Send signal 0 to check if process exists
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// Uptime returns how long the process has been running, in seconds.
func (pm *ProcessManagerImpl) Uptime(pid int) (int64, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0, err
	}
	createdMs, err := p.CreateTime()
	if err != nil {
		return 0, err
	}
	return time.Now().Unix() - createdMs/1000, nil
}

// GetCurrentPID returns the current process PID.
func (pm *ProcessManagerImpl) GetCurrentPID() int {
	return os.Getpid()
}

// Ensure ProcessManagerImpl implements domain.ProcessManager.
var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)
