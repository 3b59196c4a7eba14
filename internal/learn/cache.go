package learn

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

// Kind names one cached artifact. The value doubles as the storage directory.
type Kind string

const (
	KindTranscript Kind = "transcripts"
	KindSummary    Kind = "summaries"
	KindKeyPoints  Kind = "keypoints"
	KindQuiz       Kind = "quizzes"
)

// Kinds lists every artifact a fully cached entry has.
var Kinds = []Kind{KindTranscript, KindSummary, KindKeyPoints, KindQuiz}

// Record is a complete cached entry.
type Record struct {
	Transcript string         `json:"transcript"`
	Summary    string         `json:"summary"`
	KeyPoints  string         `json:"key_points"`
	Quiz       []QuizQuestion `json:"quiz"`
}

// Partial carries the artifacts to write; zero fields are skipped.
type Partial struct {
	Transcript string
	Summary    string
	KeyPoints  string
	Quiz       []QuizQuestion
}

// envelope is the on-disk and in-redis shape of one artifact.
type envelope struct {
	ContentID string          `json:"content_id"`
	Content   json.RawMessage `json:"content"`
	CachedAt  time.Time       `json:"cached_at"`
}

// artifactStore persists artifact envelopes.
type artifactStore interface {
	Get(ctx context.Context, kind Kind, id string) ([]byte, bool, error)
	Set(ctx context.Context, kind Kind, id string, data []byte) error
	Delete(ctx context.Context, kind Kind, id string) error
	Clear(ctx context.Context, kind Kind) (int, error)
	Count(ctx context.Context, kind Kind) (int, error)
}

var contentIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidContentID reports whether id can be used as a cache key.
func ValidContentID(id string) bool { return contentIDRe.MatchString(id) }

// Cache stores artifacts per content ID. The file store is authoritative;
// the optional redis mirror is consulted first and repopulated on file hits.
// Storage failures are logged and read as misses.
type Cache struct {
	primary artifactStore
	mirror  artifactStore // nil when redis is not configured
	enabled bool
	now     func() time.Time
}

// CacheOptions configures NewCache.
type CacheOptions struct {
	Dir      string
	RedisURL string
	Enabled  bool
}

// NewCache opens the file store under opts.Dir and, when opts.RedisURL is set
// and reachable, the redis mirror.
func NewCache(ctx context.Context, opts CacheOptions) *Cache {
	c := &Cache{enabled: opts.Enabled, now: time.Now}
	if !opts.Enabled {
		slog.Info("cache: disabled")
		return c
	}
	c.primary = newFileStore(opts.Dir)
	if opts.RedisURL != "" {
		if rs := dialRedisStore(ctx, opts.RedisURL); rs != nil {
			c.mirror = rs
		}
	}
	slog.Info("cache: initialized", slog.String("dir", opts.Dir), slog.Bool("redis", c.mirror != nil))
	return c
}

// IsFullyCached reports whether all four artifacts exist for id.
func (c *Cache) IsFullyCached(ctx context.Context, id string) bool {
	if !c.enabled || !ValidContentID(id) {
		return false
	}
	for _, k := range Kinds {
		if _, ok := c.read(ctx, k, id); !ok {
			return false
		}
	}
	return true
}

// Get returns the complete record for id, or false unless every artifact is present.
func (c *Cache) Get(ctx context.Context, id string) (*Record, bool) {
	if !c.enabled || !ValidContentID(id) {
		return nil, false
	}
	parts := make(map[Kind]json.RawMessage, len(Kinds))
	for _, k := range Kinds {
		raw, ok := c.read(ctx, k, id)
		if !ok {
			engine.IncrCacheMisses()
			return nil, false
		}
		parts[k] = raw
	}

	var rec Record
	for k, dst := range map[Kind]any{
		KindTranscript: &rec.Transcript,
		KindSummary:    &rec.Summary,
		KindKeyPoints:  &rec.KeyPoints,
		KindQuiz:       &rec.Quiz,
	} {
		if err := json.Unmarshal(parts[k], dst); err != nil {
			c.storageFailed("decode", k, id, err)
			engine.IncrCacheMisses()
			return nil, false
		}
	}
	engine.IncrCacheHits()
	slog.Debug("cache: hit", slog.String("id", id))
	return &rec, true
}

// GetTranscript returns the cached transcript for id alone.
func (c *Cache) GetTranscript(ctx context.Context, id string) (string, bool) {
	if !c.enabled || !ValidContentID(id) {
		return "", false
	}
	raw, ok := c.read(ctx, KindTranscript, id)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Put writes each non-empty field of p as its own artifact. The last write wins.
// The returned error is informational; callers keep going when it is non-nil.
func (c *Cache) Put(ctx context.Context, id string, p Partial) error {
	if !c.enabled {
		return nil
	}
	if !ValidContentID(id) {
		return engine.NewError(engine.ReasonInvalidInput, "invalid content id", nil)
	}
	var errs []error
	put := func(k Kind, v any) {
		if err := c.write(ctx, k, id, v); err != nil {
			errs = append(errs, err)
		}
	}
	if p.Transcript != "" {
		put(KindTranscript, p.Transcript)
	}
	if p.Summary != "" {
		put(KindSummary, p.Summary)
	}
	if p.KeyPoints != "" {
		put(KindKeyPoints, p.KeyPoints)
	}
	if len(p.Quiz) > 0 {
		put(KindQuiz, p.Quiz)
	}
	if len(errs) > 0 {
		return engine.NewError(engine.ReasonStorageUnavailable, "cache write failed", errors.Join(errs...))
	}
	return nil
}

// Clear removes the artifacts of id, or of every entry when id is empty.
// It returns the number of artifacts removed from the file store.
func (c *Cache) Clear(ctx context.Context, id string) (int, error) {
	if !c.enabled {
		return 0, nil
	}
	if id != "" && !ValidContentID(id) {
		return 0, engine.NewError(engine.ReasonInvalidInput, "invalid content id", nil)
	}
	removed := 0
	var errs []error
	for _, k := range Kinds {
		if id == "" {
			n, err := c.primary.Clear(ctx, k)
			removed += n
			if err != nil {
				errs = append(errs, err)
			}
			if c.mirror != nil {
				if _, err := c.mirror.Clear(ctx, k); err != nil {
					c.storageFailed("mirror clear", k, id, err)
				}
			}
			continue
		}
		if _, ok, _ := c.primary.Get(ctx, k, id); ok {
			removed++
		}
		if err := c.primary.Delete(ctx, k, id); err != nil {
			errs = append(errs, err)
		}
		if c.mirror != nil {
			if err := c.mirror.Delete(ctx, k, id); err != nil {
				c.storageFailed("mirror delete", k, id, err)
			}
		}
	}
	if len(errs) > 0 {
		engine.IncrStorageErrors()
		return removed, engine.NewError(engine.ReasonStorageUnavailable, "cache clear failed", errors.Join(errs...))
	}
	slog.Info("cache: cleared", slog.String("id", id), slog.Int("removed", removed))
	return removed, nil
}

// CacheStats counts stored artifacts per kind.
type CacheStats struct {
	Enabled    bool `json:"enabled"`
	Redis      bool `json:"redis"`
	Transcript int  `json:"transcripts"`
	Summary    int  `json:"summaries"`
	KeyPoints  int  `json:"keypoints"`
	Quiz       int  `json:"quizzes"`
}

// Stats reports artifact counts from the file store.
func (c *Cache) Stats(ctx context.Context) CacheStats {
	st := CacheStats{Enabled: c.enabled, Redis: c.mirror != nil}
	if !c.enabled {
		return st
	}
	counts := make(map[Kind]int, len(Kinds))
	for _, k := range Kinds {
		n, err := c.primary.Count(ctx, k)
		if err != nil {
			c.storageFailed("count", k, "", err)
		}
		counts[k] = n
	}
	st.Transcript = counts[KindTranscript]
	st.Summary = counts[KindSummary]
	st.KeyPoints = counts[KindKeyPoints]
	st.Quiz = counts[KindQuiz]
	return st
}

func (c *Cache) read(ctx context.Context, k Kind, id string) (json.RawMessage, bool) {
	if c.mirror != nil {
		data, ok, err := c.mirror.Get(ctx, k, id)
		if err != nil {
			c.storageFailed("mirror read", k, id, err)
		} else if ok {
			if env, ok := c.decode(k, id, data); ok {
				return env.Content, true
			}
		}
	}

	data, ok, err := c.primary.Get(ctx, k, id)
	if err != nil {
		c.storageFailed("read", k, id, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	env, ok := c.decode(k, id, data)
	if !ok {
		return nil, false
	}
	if c.mirror != nil {
		if err := c.mirror.Set(ctx, k, id, data); err != nil {
			c.storageFailed("mirror fill", k, id, err)
		}
	}
	return env.Content, true
}

func (c *Cache) decode(k Kind, id string, data []byte) (envelope, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || len(env.Content) == 0 {
		if err == nil {
			err = errors.New("empty content")
		}
		c.storageFailed("corrupt artifact", k, id, err)
		return env, false
	}
	return env, true
}

func (c *Cache) write(ctx context.Context, k Kind, id string, v any) error {
	content, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(envelope{ContentID: id, Content: content, CachedAt: c.now()}, "", "  ")
	if err != nil {
		return err
	}
	if err := c.primary.Set(ctx, k, id, data); err != nil {
		c.storageFailed("write", k, id, err)
		return err
	}
	if c.mirror != nil {
		if err := c.mirror.Set(ctx, k, id, data); err != nil {
			c.storageFailed("mirror write", k, id, err)
		}
	}
	return nil
}

func (c *Cache) storageFailed(op string, k Kind, id string, err error) {
	engine.IncrStorageErrors()
	slog.Warn("cache: storage unavailable",
		slog.String("reason", string(engine.ReasonStorageUnavailable)),
		slog.String("op", op), slog.String("kind", string(k)),
		slog.String("id", id), slog.Any("error", err))
}
