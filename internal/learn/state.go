package learn

import (
	"sync"
	"time"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/quota"
)

// Status is the pipeline lifecycle: idle, then running, then success or failure,
// then idle again for the next run.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// State is the pipeline state shared by every stage of one service: the
// processing guard, the last outcome and the quota cooldown.
type State struct {
	mu       sync.Mutex
	busy     bool
	last     Status
	started  time.Time
	finished time.Time
	now      func() time.Time

	Cooldown *quota.Cooldown
}

// NewState creates an idle state. now may be nil.
func NewState(now func() time.Time) *State {
	if now == nil {
		now = time.Now
	}
	return &State{last: StatusIdle, now: now, Cooldown: quota.NewCooldown(now)}
}

// Begin takes the processing guard. The returned release must be called on
// every exit path with the outcome of the run.
func (s *State) Begin() (release func(ok bool), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		engine.IncrPipelineRejections()
		return nil, engine.NewError(engine.ReasonAlreadyProcessing,
			"a video is already being processed, please wait for it to finish", nil)
	}
	s.busy = true
	s.started = s.now()

	var once sync.Once
	return func(ok bool) {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.busy = false
			s.finished = s.now()
			if ok {
				s.last = StatusSuccess
			} else {
				s.last = StatusFailure
			}
		})
	}, nil
}

// Snapshot is a point-in-time view of State.
type Snapshot struct {
	Status      Status                `json:"status"`
	LastOutcome Status                `json:"last_outcome"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	FinishedAt  *time.Time            `json:"finished_at,omitempty"`
	Cooldown    *quota.CooldownWindow `json:"cooldown,omitempty"`
}

// Snapshot reports whether a run is active, how the last one ended and any
// open cooldown window.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Status: StatusIdle, LastOutcome: s.last}
	if s.busy {
		snap.Status = StatusRunning
	}
	if !s.started.IsZero() {
		t := s.started
		snap.StartedAt = &t
	}
	if !s.finished.IsZero() {
		t := s.finished
		snap.FinishedAt = &t
	}
	s.mu.Unlock()
	snap.Cooldown = s.Cooldown.Active()
	return snap
}

// rejectQuota applies a quota rejection for key: a per-minute cap pauses every
// call through the cooldown, a daily cap retires only the key that hit it.
func (s *State) rejectQuota(rotator *quota.Rotator, key string, e *engine.Error) {
	engine.IncrQuotaRejections()
	if e.Scope == engine.ScopeDaily {
		rotator.Exhaust(key)
		return
	}
	s.Cooldown.Trip(e)
}
