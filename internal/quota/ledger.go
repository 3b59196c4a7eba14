// Package quota tracks per-key API usage and decides which key may be used next.
package quota

import (
	"log/slog"
	"sync"
	"time"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

const dateLayout = "2006-01-02"

// KeyUsage holds the counters for one API key.
type KeyUsage struct {
	RequestsToday int    `json:"requests_today"`
	LastReset     string `json:"last_reset"`
	TotalRequests int    `json:"total_requests"`
}

// Store persists the ledger. Records are keyed by key fingerprint.
type Store interface {
	Load() (map[string]KeyUsage, error)
	Save(map[string]KeyUsage) error
}

// Ledger counts requests per key. In-memory state is authoritative:
// persistence failures are logged and never returned to callers.
type Ledger struct {
	mu    sync.Mutex
	store Store
	now   func() time.Time
	usage map[string]*KeyUsage
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a ledger backed by store and restores saved counters.
func NewLedger(store Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{store: store, now: time.Now, usage: make(map[string]*KeyUsage)}
	for _, o := range opts {
		o(l)
	}
	l.Load()
	return l
}

// Load restores counters from storage. A missing or unreadable store starts empty;
// individual records with an invalid date are reinitialized.
func (l *Ledger) Load() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.usage = make(map[string]*KeyUsage)
	if l.store == nil {
		return
	}
	saved, err := l.store.Load()
	if err != nil {
		engine.IncrStorageErrors()
		slog.Warn("ledger: load failed, starting empty", slog.Any("error", err))
		return
	}
	for id, u := range saved {
		if _, err := time.Parse(dateLayout, u.LastReset); err != nil || u.RequestsToday < 0 || u.TotalRequests < 0 {
			slog.Warn("ledger: corrupt record reinitialized", slog.String("key_id", id))
			u = KeyUsage{LastReset: l.today()}
		}
		rec := u
		l.usage[id] = &rec
	}
}

// RecordRequest counts one successful call against key and persists immediately.
func (l *Ledger) RecordRequest(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u := l.resetIfStaleLocked(key)
	u.RequestsToday++
	u.TotalRequests++
	l.persistLocked()
}

// Exhaust raises today's counter for key to at least limit, so the key is
// skipped until the next day. The lifetime total is unchanged.
func (l *Ledger) Exhaust(key string, limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u := l.resetIfStaleLocked(key)
	if u.RequestsToday < limit {
		u.RequestsToday = limit
		l.persistLocked()
	}
}

// ResetIfStale zeroes today's counter when the stored date is not today.
func (l *Ledger) ResetIfStale(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetIfStaleLocked(key)
}

// Usage returns the counters for key as they stand today, without mutating the ledger.
func (l *Ledger) Usage(key string) KeyUsage {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.usage[KeyID(key)]
	if !ok {
		return KeyUsage{LastReset: l.today()}
	}
	out := *u
	if out.LastReset != l.today() {
		out.RequestsToday = 0
		out.LastReset = l.today()
	}
	return out
}

func (l *Ledger) resetIfStaleLocked(key string) *KeyUsage {
	id := KeyID(key)
	today := l.today()
	u, ok := l.usage[id]
	if !ok {
		u = &KeyUsage{LastReset: today}
		l.usage[id] = u
		l.persistLocked()
		return u
	}
	if u.LastReset != today {
		u.RequestsToday = 0
		u.LastReset = today
		l.persistLocked()
	}
	return u
}

func (l *Ledger) persistLocked() {
	if l.store == nil {
		return
	}
	snapshot := make(map[string]KeyUsage, len(l.usage))
	for id, u := range l.usage {
		snapshot[id] = *u
	}
	if err := l.store.Save(snapshot); err != nil {
		engine.IncrStorageErrors()
		slog.Warn("ledger: persist failed, keeping in-memory state", slog.Any("error", err))
	}
}

func (l *Ledger) today() string {
	return l.now().Format(dateLayout)
}

// KeyID is the fingerprint under which a key's counters are stored.
func KeyID(key string) string {
	return engine.Fingerprint(key)
}
