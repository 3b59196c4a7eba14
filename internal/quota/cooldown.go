package quota

import (
	"sync"
	"time"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

// CooldownWindow is the backoff period that follows a quota rejection.
type CooldownWindow struct {
	ActiveUntil time.Time         `json:"active_until"`
	RetryAfter  time.Duration     `json:"retry_after"`
	Scope       engine.QuotaScope `json:"scope"`
}

// Cooldown holds the current window; it clears itself once the window has passed.
type Cooldown struct {
	mu     sync.Mutex
	window *CooldownWindow
	now    func() time.Time
}

// NewCooldown creates an empty cooldown tracker.
func NewCooldown(now func() time.Time) *Cooldown {
	if now == nil {
		now = time.Now
	}
	return &Cooldown{now: now}
}

// Trip opens a window from a quota error. Callers trip it for per-minute
// rejections; a daily rejection belongs to one key (see Rotator.Exhaust).
func (c *Cooldown) Trip(err *engine.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	retry := err.RetryAfter
	if retry <= 0 {
		retry = engine.DefaultRetryAfter
	}
	c.window = &CooldownWindow{
		ActiveUntil: c.now().Add(retry),
		RetryAfter:  retry,
		Scope:       err.Scope,
	}
}

// Active returns the open window, or nil once it has expired.
func (c *Cooldown) Active() *CooldownWindow {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.window == nil {
		return nil
	}
	if !c.now().Before(c.window.ActiveUntil) {
		c.window = nil
		return nil
	}
	w := *c.window
	return &w
}

// Check returns a QuotaExceeded error with the remaining wait while a window is open.
func (c *Cooldown) Check() error {
	w := c.Active()
	if w == nil {
		return nil
	}
	left := w.ActiveUntil.Sub(c.now())
	e := engine.QuotaError(w.Scope, left, nil)
	e.Message = "still cooling down after a quota rejection: " + e.Message
	return e
}
