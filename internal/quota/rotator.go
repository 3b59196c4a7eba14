package quota

import (
	"log/slog"
	"sync"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

// Rotator hands out API keys round-robin, skipping keys that reached the daily limit.
// The cursor stays on the last key handed out so load spreads across keys
// instead of always starting at the first one.
type Rotator struct {
	mu     sync.Mutex
	keys   []string
	cursor int
	limit  int
	ledger *Ledger
}

// NewRotator creates a rotator over keys. limit <= 0 uses the default daily limit.
func NewRotator(keys []string, ledger *Ledger, limit int) *Rotator {
	if limit <= 0 {
		limit = engine.DefaultDailyLimit
	}
	return &Rotator{keys: append([]string(nil), keys...), limit: limit, ledger: ledger}
}

// NextAvailableKey returns the first key at or after the cursor with quota left
// and moves the cursor to it. ok is false when every key is exhausted; the cursor
// is then left unchanged.
func (r *Rotator) NextAvailableKey() (key string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.scan(true)
	if !ok {
		return "", false
	}
	if idx != r.cursor {
		slog.Info("quota: rotated API key",
			slog.Int("from", r.cursor+1), slog.Int("to", idx+1),
			slog.String("key", engine.MaskKey(r.keys[idx])))
	}
	r.cursor = idx
	return r.keys[idx], true
}

// HasAvailableQuota is a dry run of NextAvailableKey: it neither moves the cursor
// nor writes to the ledger.
func (r *Rotator) HasAvailableQuota() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.scan(false)
	return ok
}

// Record counts a completed call against key.
func (r *Rotator) Record(key string) {
	r.ledger.RecordRequest(key)
}

// Exhaust marks key as used up for today after the provider rejected it with a
// daily-scope quota error, whatever the ledger counted so far.
func (r *Rotator) Exhaust(key string) {
	r.ledger.Exhaust(key, r.limit)
	slog.Warn("quota: key exhausted for today", slog.String("key", engine.MaskKey(key)))
}

// Remaining returns the calls left today across all keys.
func (r *Rotator) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, k := range r.keys {
		if left := r.limit - r.ledger.Usage(k).RequestsToday; left > 0 {
			total += left
		}
	}
	return total
}

// Len returns the number of configured keys.
func (r *Rotator) Len() int { return len(r.keys) }

// Limit returns the per-key daily limit.
func (r *Rotator) Limit() int { return r.limit }

func (r *Rotator) scan(mutate bool) (int, bool) {
	n := len(r.keys)
	for i := 0; i < n; i++ {
		idx := (r.cursor + i) % n
		key := r.keys[idx]
		if mutate {
			r.ledger.ResetIfStale(key)
		}
		if r.ledger.Usage(key).RequestsToday < r.limit {
			return idx, true
		}
	}
	return 0, false
}

// KeyStats describes one key's usage for display.
type KeyStats struct {
	Number         int    `json:"key_number"`
	Key            string `json:"key"` // masked
	RequestsToday  int    `json:"requests_today"`
	RemainingToday int    `json:"remaining_today"`
	TotalRequests  int    `json:"total_requests"`
	Current        bool   `json:"current"`
}

// Stats summarizes usage across all keys.
type Stats struct {
	TotalKeys      int        `json:"total_keys"`
	DailyLimit     int        `json:"daily_limit"`
	RemainingToday int        `json:"remaining_today"`
	Keys           []KeyStats `json:"keys"`
}

// Stats returns per-key usage with masked keys.
func (r *Rotator) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{TotalKeys: len(r.keys), DailyLimit: r.limit, Keys: make([]KeyStats, 0, len(r.keys))}
	for i, k := range r.keys {
		u := r.ledger.Usage(k)
		left := r.limit - u.RequestsToday
		if left < 0 {
			left = 0
		}
		st.RemainingToday += left
		st.Keys = append(st.Keys, KeyStats{
			Number:         i + 1,
			Key:            engine.MaskKey(k),
			RequestsToday:  u.RequestsToday,
			RemainingToday: left,
			TotalRequests:  u.TotalRequests,
			Current:        i == r.cursor,
		})
	}
	return st
}
