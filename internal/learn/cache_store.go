package learn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// fileStore keeps one JSON file per artifact: <dir>/<kind>/<id>.json.
type fileStore struct {
	dir string
}

func newFileStore(dir string) *fileStore {
	if dir == "" {
		dir = "cache"
	}
	return &fileStore{dir: dir}
}

func (s *fileStore) path(k Kind, id string) string {
	return filepath.Join(s.dir, string(k), id+".json")
}

func (s *fileStore) Get(_ context.Context, k Kind, id string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(k, id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *fileStore) Set(_ context.Context, k Kind, id string, data []byte) error {
	dir := filepath.Join(s.dir, string(k))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, id+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(k, id))
}

func (s *fileStore) Delete(_ context.Context, k Kind, id string) error {
	err := os.Remove(s.path(k, id))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *fileStore) Clear(_ context.Context, k Kind) (int, error) {
	names, err := s.list(k)
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, name := range names {
		if err := os.Remove(filepath.Join(s.dir, string(k), name)); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func (s *fileStore) Count(_ context.Context, k Kind) (int, error) {
	names, err := s.list(k)
	return len(names), err
}

func (s *fileStore) list(k Kind) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, string(k)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// redisKeyPrefix namespaces mirrored artifacts.
const redisKeyPrefix = "ytlearn:"

// redisStore mirrors artifacts into redis so several hosts can share one cache.
type redisStore struct {
	rdb *redis.Client
	ttl time.Duration // 0 = no expiry
}

// dialRedisStore connects and pings; nil means the mirror stays off.
func dialRedisStore(ctx context.Context, redisURL string) *redisStore {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		slog.Warn("cache: invalid redis URL, mirror disabled", slog.Any("error", err))
		return nil
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Warn("cache: redis unreachable, mirror disabled", slog.Any("error", err))
		rdb.Close()
		return nil
	}
	slog.Info("cache: redis mirror connected", slog.String("addr", opts.Addr))
	return newRedisStore(rdb)
}

func newRedisStore(rdb *redis.Client) *redisStore {
	return &redisStore{rdb: rdb}
}

func (s *redisStore) key(k Kind, id string) string {
	return fmt.Sprintf("%s%s:%s", redisKeyPrefix, k, id)
}

func (s *redisStore) Get(ctx context.Context, k Kind, id string) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, s.key(k, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *redisStore) Set(ctx context.Context, k Kind, id string, data []byte) error {
	return s.rdb.Set(ctx, s.key(k, id), data, s.ttl).Err()
}

func (s *redisStore) Delete(ctx context.Context, k Kind, id string) error {
	return s.rdb.Del(ctx, s.key(k, id)).Err()
}

func (s *redisStore) Clear(ctx context.Context, k Kind) (int, error) {
	keys, err := s.scan(ctx, k)
	if err != nil || len(keys) == 0 {
		return 0, err
	}
	n, err := s.rdb.Del(ctx, keys...).Result()
	return int(n), err
}

func (s *redisStore) Count(ctx context.Context, k Kind) (int, error) {
	keys, err := s.scan(ctx, k)
	return len(keys), err
}

func (s *redisStore) scan(ctx context.Context, k Kind) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, s.key(k, "*"), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (s *redisStore) Close() error { return s.rdb.Close() }
