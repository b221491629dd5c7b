// Package usecase contains application business logic.
package usecase

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jesse-c/kopya-sub000/internal/domain"
	"github.com/jesse-c/kopya-sub000/internal/timeutil"
)

// PrivateModeController suspends and resumes clipboard persistence. While
// suspended, an optional deferred timer re-enables monitoring automatically.
//
// At most one timer is outstanding at any instant: Enable cancels the old
// handle before installing a new one, and both mutations happen under the
// same lock, so a superseded timer can never fire as a stale resume.
type PrivateModeController struct {
	logger *zap.Logger
	clock  func() time.Time

	mu         sync.Mutex
	monitoring bool
	resumeAt   time.Time
	timer      *time.Timer
	// gen invalidates superseded timers: a fired timer that lost the race
	// for mu must not resume monitoring if Enable or Disable ran first.
	gen uint64
}

// NewPrivateModeController creates the controller in the Active
// (monitoring) state.
func NewPrivateModeController(logger *zap.Logger) *PrivateModeController {
	return &PrivateModeController{
		logger:     logger,
		clock:      time.Now,
		monitoring: true,
	}
}

// IsMonitoring reports whether captured clipboard changes should be persisted.
func (c *PrivateModeController) IsMonitoring() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monitoring
}

// Enable suspends monitoring. When timeRange parses (e.g. "30m", "1h30m"),
// a deferred resume is armed for that duration; an absent or unparseable
// range leaves the suspension open-ended. Calling Enable while already
// suspended replaces any pending timer.
func (c *PrivateModeController) Enable(timeRange string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelTimerLocked()
	c.monitoring = false

	now := c.clock()
	r, ok := timeutil.ParseRelative(timeRange, now)
	if !ok {
		// Unparseable input is not an error: suspend indefinitely.
		c.resumeAt = time.Time{}
		c.logger.Info("private mode enabled", zap.String("duration", "indefinite"))
		return
	}

	d := r.Duration()
	c.resumeAt = now.Add(d)
	gen := c.gen
	c.timer = time.AfterFunc(d, func() { c.autoResume(gen) })
	c.logger.Info("private mode enabled",
		zap.Duration("duration", d),
		zap.Time("resume_at", c.resumeAt))
}

// Disable resumes monitoring and cancels any pending auto-resume. Calling
// it while already active is a no-op.
func (c *PrivateModeController) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.monitoring {
		return
	}

	c.cancelTimerLocked()
	c.resumeAt = time.Time{}
	c.monitoring = true
	c.logger.Info("private mode disabled, monitoring resumed")
}

// Status returns a snapshot of the state machine. Remaining is derived from
// the scheduled resume time and clamped at zero when the timer is about to
// fire.
func (c *PrivateModeController) Status() domain.PrivateStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := domain.PrivateStatus{
		Monitoring:  c.monitoring,
		TimerActive: c.timer != nil,
		ResumeAt:    c.resumeAt,
	}
	if st.TimerActive {
		if remaining := c.resumeAt.Sub(c.clock()); remaining > 0 {
			st.Remaining = remaining
		}
	}
	return st
}

// autoResume is the deferred timer action. It only takes effect when no
// Enable or Disable call superseded the timer that scheduled it.
func (c *PrivateModeController) autoResume(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.monitoring {
		return
	}

	c.timer = nil
	c.resumeAt = time.Time{}
	c.monitoring = true
	c.logger.Info("private mode timer fired, monitoring resumed")
}

// cancelTimerLocked stops and clears the pending timer, invalidating any
// fire already in flight. Caller holds mu.
func (c *PrivateModeController) cancelTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

// Ensure PrivateModeController implements domain.PrivateMode.
var _ domain.PrivateMode = (*PrivateModeController)(nil)
