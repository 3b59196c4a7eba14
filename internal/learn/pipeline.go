package learn

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/quota"
)

// StepFailure is a failure of one generation step.
type StepFailure struct {
	Step       Kind              `json:"step"`
	Reason     engine.Reason     `json:"reason"`
	Message    string            `json:"message"`
	Scope      engine.QuotaScope `json:"scope,omitempty"`
	RetryAfter *int              `json:"retry_after,omitempty"`
	RetryAt    string            `json:"retry_at,omitempty"`
}

func stepFailure(k Kind, f engine.Failure) StepFailure {
	return StepFailure{Step: k, Reason: f.Reason, Message: f.Message, Scope: f.Scope, RetryAfter: f.RetryAfter, RetryAt: f.RetryAt}
}

// Result holds whatever the pipeline produced. Missing artifacts have a
// matching entry in Failures.
type Result struct {
	ContentID string         `json:"content_id"`
	Summary   string         `json:"summary,omitempty"`
	KeyPoints string         `json:"key_points,omitempty"`
	Quiz      []QuizQuestion `json:"quiz,omitempty"`
	QuizShort bool           `json:"quiz_short,omitempty"`
	Aborted   bool           `json:"aborted,omitempty"`
	FromCache bool           `json:"from_cache,omitempty"`
	Failures  []StepFailure  `json:"failures,omitempty"`
}

// Complete reports whether all three artifacts were produced.
func (r *Result) Complete() bool {
	return r.Summary != "" && r.KeyPoints != "" && len(r.Quiz) > 0
}

// Pipeline runs the summary, key point and quiz prompts one after another.
// Every call goes through the shared pacer, uses the next key with quota left
// and is recorded against that key as soon as it succeeds.
type Pipeline struct {
	model   Model
	rotator *quota.Rotator
	pacer   *quota.Pacer
	state   *State
	now     func() time.Time
}

// NewPipeline builds a pipeline from o.
func NewPipeline(o Options) *Pipeline {
	o = o.withDefaults()
	return &Pipeline{model: o.Model, rotator: o.Rotator, pacer: o.Pacer, state: o.State, now: o.Now}
}

type step struct {
	kind   Kind
	prompt string
	apply  func(r *Result, out string) error
}

var steps = []step{
	{KindSummary, summaryPrompt, func(r *Result, out string) error {
		r.Summary = out
		return nil
	}},
	{KindKeyPoints, keyPointsPrompt, func(r *Result, out string) error {
		r.KeyPoints = out
		return nil
	}},
	{KindQuiz, quizPrompt, func(r *Result, out string) error {
		quiz, err := NormalizeQuiz(out)
		if err != nil {
			return err
		}
		r.Quiz = quiz
		r.QuizShort = IsShortQuiz(quiz)
		return nil
	}},
}

// Run generates the three artifacts for tr. The caller holds the processing guard.
// An error means nothing ran: a cooldown is open or no key has quota left.
// Once started, quota exhaustion stops the remaining steps and the partial
// result is returned; other failures only cost their own step.
func (p *Pipeline) Run(ctx context.Context, tr *Transcript) (*Result, error) {
	if tr == nil || tr.Text == "" {
		return nil, engine.NewError(engine.ReasonInvalidInput, "empty transcript", nil)
	}
	if err := p.state.Cooldown.Check(); err != nil {
		return nil, err
	}
	if !p.rotator.HasAvailableQuota() {
		return nil, p.noKey()
	}

	engine.IncrPipelineRuns()
	res := &Result{ContentID: tr.ContentID}
	start := p.now()
	slog.Info("pipeline: start", slog.String("id", tr.ContentID), slog.Int("words", engine.WordCount(tr.Text)))

	for _, st := range steps {
		err := p.runStep(ctx, st, tr.Text, res)
		if err == nil {
			continue
		}
		res.Failures = append(res.Failures, stepFailure(st.kind, engine.FailureOf(err, p.now())))
		if engine.IsQuota(err) || ctx.Err() != nil {
			res.Aborted = true
			slog.Warn("pipeline: aborted", slog.String("id", tr.ContentID),
				slog.String("step", string(st.kind)), slog.Any("error", err))
			break
		}
		slog.Warn("pipeline: step failed", slog.String("id", tr.ContentID),
			slog.String("step", string(st.kind)), slog.Any("error", err))
	}

	slog.Info("pipeline: done", slog.String("id", tr.ContentID),
		slog.Bool("complete", res.Complete()), slog.Int("failures", len(res.Failures)),
		slog.Duration("elapsed", p.now().Sub(start)))
	return res, nil
}

func (p *Pipeline) runStep(ctx context.Context, st step, transcript string, res *Result) error {
	if err := p.state.Cooldown.Check(); err != nil {
		return err
	}
	key, ok := p.rotator.NextAvailableKey()
	if !ok {
		return p.noKey()
	}

	var out string
	err := p.pacer.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = p.model.Generate(ctx, key, buildPrompt(st.prompt, transcript))
		return err
	})
	if err != nil {
		var e *engine.Error
		if errors.As(err, &e) && e.Reason == engine.ReasonQuotaExceeded {
			p.state.rejectQuota(p.rotator, key, e)
			return e
		}
		if ctx.Err() != nil {
			return engine.NewError(engine.ReasonAPIError, "processing canceled", ctx.Err())
		}
		return err
	}
	p.rotator.Record(key)
	if out == "" {
		return engine.NewError(engine.ReasonAPIError, "model returned an empty response", nil)
	}
	return st.apply(res, out)
}

func (p *Pipeline) noKey() error {
	if p.rotator.Len() == 0 {
		return engine.NewError(engine.ReasonAPIError, "no API key configured", nil)
	}
	return engine.QuotaError(engine.ScopeDaily, engine.UntilMidnight(p.now()), nil)
}
