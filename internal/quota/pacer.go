package quota

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Pacer serializes model calls and enforces a minimum gap between them.
// The gap is counted from the moment the previous call returned, so two calls
// never start closer together than the interval.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	lim      *rate.Limiter
	last     atomic.Int64 // unix nanos of the last completion
}

// NewPacer creates a pacer with the given cooldown. interval <= 0 disables spacing.
func NewPacer(interval time.Duration) *Pacer {
	p := &Pacer{interval: interval}
	p.lim = p.newLimiter()
	return p
}

func (p *Pacer) newLimiter() *rate.Limiter {
	if p.interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(p.interval), 1)
}

// Do waits out the cooldown, runs fn and restarts the cooldown when fn returns,
// regardless of its outcome.
func (p *Pacer) Do(ctx context.Context, fn func(context.Context) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.lim.Wait(ctx); err != nil {
		return err
	}
	err := fn(ctx)

	// window starts at completion: fresh bucket with its only token spent now
	now := time.Now()
	p.lim = p.newLimiter()
	p.lim.ReserveN(now, 1)
	p.last.Store(now.UnixNano())
	return err
}

// Interval returns the configured cooldown.
func (p *Pacer) Interval() time.Duration { return p.interval }

// ReadyIn reports how long the next call would wait.
func (p *Pacer) ReadyIn() time.Duration {
	last := p.last.Load()
	if last == 0 || p.interval <= 0 {
		return 0
	}
	if d := time.Until(time.Unix(0, last).Add(p.interval)); d > 0 {
		return d
	}
	return 0
}
