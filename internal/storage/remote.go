package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"matchroom/backend/internal/logger"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

var (
	ErrInvalidPath = errors.New("invalid store path")
	ErrNoValue     = errors.New("no value at path")
)

// RemoteStore is a path-addressed realtime tree. Paths are slash separated,
// e.g. "users/u1/matchRequests/u2".
type RemoteStore interface {
	ReadOnce(ctx context.Context, path string, dst any) (bool, error)
	// Subscribe fires fn once with the current value and then for every change
	// at or under path, until the returned Subscription is closed.
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Subscription, error)
	Write(ctx context.Context, path string, value any) error
	WriteWithPriority(ctx context.Context, path string, value any, priority float64) error
	// Update applies all mutations atomically.
	Update(ctx context.Context, mutations []Mutation) error
	CreateIfAbsent(ctx context.Context, path string, value any) (bool, error)
	// Replace writes value only if path already holds one and reports whether
	// it did.
	Replace(ctx context.Context, path string, value any) (bool, error)
	Increment(ctx context.Context, path string, delta int64) (int64, error)
	// Append adds value to the ordered list at path and returns its key.
	Append(ctx context.Context, path string, value any) (string, error)
	List(ctx context.Context, path string) ([]Snapshot, error)
	// Children returns the values directly under path ordered by priority.
	Children(ctx context.Context, path string) ([]Snapshot, error)
	// Remove sets path and everything under it to null.
	Remove(ctx context.Context, path string) error
}

// Subscription is a live listener. Close is idempotent.
type Subscription interface {
	Close() error
}

// Snapshot is a value observed at Path.
type Snapshot struct {
	Path     string
	Key      string
	Priority float64
	Value    json.RawMessage
}

func (s Snapshot) Exists() bool {
	return len(s.Value) > 0 && string(s.Value) != "null"
}

func (s Snapshot) Decode(dst any) error {
	if !s.Exists() {
		return ErrNoValue
	}
	return json.Unmarshal(s.Value, dst)
}

// Mutation is one entry of an atomic Update. A nil Value deletes the path.
type Mutation struct {
	Path     string
	Value    any
	Priority *float64
}

func Set(path string, value any) Mutation {
	return Mutation{Path: path, Value: value}
}

func SetWithPriority(path string, value any, priority float64) Mutation {
	return Mutation{Path: path, Value: value, Priority: &priority}
}

func Delete(path string) Mutation {
	return Mutation{Path: path}
}

const (
	valuePrefix   = "rt:v:"
	listPrefix    = "rt:l:"
	indexPrefix   = "rt:c:"
	channelPrefix = "rt:ch:"
)

type envelope struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

type listEntry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// RedisStore implements RemoteStore on Redis. Each path is a string key holding
// JSON, sibling ordering lives in a sorted set per parent, and changes are
// published on one channel per ancestor path.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func cleanPath(path string) (string, error) {
	p := strings.Trim(path, "/")
	if p == "" {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return p, nil
}

func splitPath(p string) (parent, child string) {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return "", p
	}
	return p[:idx], p[idx+1:]
}

// ancestors returns p and every parent of p, deepest first.
func ancestors(p string) []string {
	out := []string{p}
	for {
		parent, _ := splitPath(p)
		if parent == "" {
			return out
		}
		out = append(out, parent)
		p = parent
	}
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}

func encode(value any) ([]byte, error) {
	if raw, ok := value.(json.RawMessage); ok {
		return []byte(raw), nil
	}
	return json.Marshal(value)
}

func (s *RedisStore) publish(ctx context.Context, pipe redis.Pipeliner, p string, raw []byte) {
	payload, err := json.Marshal(envelope{Path: p, Value: raw})
	if err != nil {
		return
	}
	for _, a := range ancestors(p) {
		pipe.Publish(ctx, channelPrefix+a, string(payload))
	}
}

func (s *RedisStore) readRaw(ctx context.Context, p string) ([]byte, error) {
	raw, err := s.rdb.Get(ctx, valuePrefix+p).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return raw, err
}

func (s *RedisStore) ReadOnce(ctx context.Context, path string, dst any) (bool, error) {
	p, err := cleanPath(path)
	if err != nil {
		return false, err
	}
	raw, err := s.readRaw(ctx, p)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", p, err)
	}
	if raw == nil {
		return false, nil
	}
	if dst != nil {
		if err := json.Unmarshal(raw, dst); err != nil {
			return true, fmt.Errorf("decoding %s: %w", p, err)
		}
	}
	return true, nil
}

func (s *RedisStore) Write(ctx context.Context, path string, value any) error {
	return s.Update(ctx, []Mutation{Set(path, value)})
}

func (s *RedisStore) WriteWithPriority(ctx context.Context, path string, value any, priority float64) error {
	return s.Update(ctx, []Mutation{SetWithPriority(path, value, priority)})
}

type preparedMutation struct {
	path     string
	raw      []byte
	priority float64
}

func (s *RedisStore) Update(ctx context.Context, mutations []Mutation) error {
	prepared := make([]preparedMutation, 0, len(mutations))
	for _, m := range mutations {
		p, err := cleanPath(m.Path)
		if err != nil {
			return err
		}
		pm := preparedMutation{path: p}
		if m.Value != nil {
			raw, err := encode(m.Value)
			if err != nil {
				return fmt.Errorf("encoding %s: %w", p, err)
			}
			pm.raw = raw
		}
		if m.Priority != nil {
			pm.priority = *m.Priority
		}
		prepared = append(prepared, pm)
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range prepared {
			parent, child := splitPath(m.path)
			if m.raw == nil {
				pipe.Del(ctx, valuePrefix+m.path)
				if parent != "" {
					pipe.ZRem(ctx, indexPrefix+parent, child)
				}
			} else {
				pipe.Set(ctx, valuePrefix+m.path, m.raw, 0)
				if parent != "" {
					pipe.ZAdd(ctx, indexPrefix+parent, redis.Z{Score: m.priority, Member: child})
				}
			}
			s.publish(ctx, pipe, m.path, m.raw)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("updating %d paths: %w", len(prepared), err)
	}
	return nil
}

func (s *RedisStore) CreateIfAbsent(ctx context.Context, path string, value any) (bool, error) {
	p, err := cleanPath(path)
	if err != nil {
		return false, err
	}
	raw, err := encode(value)
	if err != nil {
		return false, fmt.Errorf("encoding %s: %w", p, err)
	}

	created, err := s.rdb.SetNX(ctx, valuePrefix+p, raw, 0).Result()
	if err != nil {
		return false, fmt.Errorf("creating %s: %w", p, err)
	}
	if !created {
		return false, nil
	}

	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if parent, child := splitPath(p); parent != "" {
			pipe.ZAdd(ctx, indexPrefix+parent, redis.Z{Score: 0, Member: child})
		}
		s.publish(ctx, pipe, p, raw)
		return nil
	})
	return true, err
}

func (s *RedisStore) Replace(ctx context.Context, path string, value any) (bool, error) {
	p, err := cleanPath(path)
	if err != nil {
		return false, err
	}
	raw, err := encode(value)
	if err != nil {
		return false, fmt.Errorf("encoding %s: %w", p, err)
	}

	replaced, err := s.rdb.SetXX(ctx, valuePrefix+p, raw, 0).Result()
	if err != nil {
		return false, fmt.Errorf("replacing %s: %w", p, err)
	}
	if !replaced {
		return false, nil
	}

	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		s.publish(ctx, pipe, p, raw)
		return nil
	})
	return true, err
}

func (s *RedisStore) Increment(ctx context.Context, path string, delta int64) (int64, error) {
	p, err := cleanPath(path)
	if err != nil {
		return 0, err
	}

	n, err := s.rdb.IncrBy(ctx, valuePrefix+p, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing %s: %w", p, err)
	}

	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if parent, child := splitPath(p); parent != "" {
			pipe.ZAdd(ctx, indexPrefix+parent, redis.Z{Score: 0, Member: child})
		}
		s.publish(ctx, pipe, p, []byte(strconv.FormatInt(n, 10)))
		return nil
	})
	return n, err
}

func (s *RedisStore) Append(ctx context.Context, path string, value any) (string, error) {
	p, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	raw, err := encode(value)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", p, err)
	}

	key := ulid.Make().String()
	entry, err := json.Marshal(listEntry{Key: key, Value: raw})
	if err != nil {
		return "", err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, listPrefix+p, entry)
		s.publish(ctx, pipe, p+"/"+key, raw)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("appending to %s: %w", p, err)
	}
	return key, nil
}

func (s *RedisStore) List(ctx context.Context, path string) ([]Snapshot, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}

	items, err := s.rdb.LRange(ctx, listPrefix+p, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", p, err)
	}

	out := make([]Snapshot, 0, len(items))
	for _, item := range items {
		var e listEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			logger.Warn("Skipping malformed list entry", "path", p, "error", err)
			continue
		}
		out = append(out, Snapshot{Path: p + "/" + e.Key, Key: e.Key, Value: e.Value})
	}
	return out, nil
}

func (s *RedisStore) Children(ctx context.Context, path string) ([]Snapshot, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}

	members, err := s.rdb.ZRangeWithScores(ctx, indexPrefix+p, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing children of %s: %w", p, err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = valuePrefix + p + "/" + fmt.Sprint(m.Member)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading children of %s: %w", p, err)
	}

	out := make([]Snapshot, 0, len(members))
	for i, m := range members {
		str, ok := values[i].(string)
		if !ok {
			continue
		}
		child := fmt.Sprint(m.Member)
		out = append(out, Snapshot{
			Path:     p + "/" + child,
			Key:      child,
			Priority: m.Score,
			Value:    json.RawMessage(str),
		})
	}
	return out, nil
}

func (s *RedisStore) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (s *RedisStore) Remove(ctx context.Context, path string) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}

	keys := []string{valuePrefix + p, listPrefix + p, indexPrefix + p}
	var removedValues []string
	for _, prefix := range []string{valuePrefix, listPrefix, indexPrefix} {
		found, err := s.scanKeys(ctx, prefix+escapeGlob(p)+"/*")
		if err != nil {
			return fmt.Errorf("scanning %s: %w", p, err)
		}
		keys = append(keys, found...)
		if prefix == valuePrefix {
			removedValues = found
		}
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		if parent, child := splitPath(p); parent != "" {
			pipe.ZRem(ctx, indexPrefix+parent, child)
		}
		for _, k := range removedValues {
			child := strings.TrimPrefix(k, valuePrefix)
			if payload, err := json.Marshal(envelope{Path: child}); err == nil {
				pipe.Publish(ctx, channelPrefix+child, string(payload))
			}
		}
		s.publish(ctx, pipe, p, nil)
		return nil
	})
	if err != nil {
		return fmt.Errorf("removing %s: %w", p, err)
	}
	return nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	once   sync.Once
	err    error
}

func (r *redisSubscription) Close() error {
	r.once.Do(func() {
		r.err = r.pubsub.Close()
	})
	return r.err
}

func (s *RedisStore) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Subscription, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}

	pubsub := s.rdb.Subscribe(ctx, channelPrefix+p)
	// Wait for confirmation so no change published after this call is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", p, err)
	}

	initial, err := s.readRaw(ctx, p)
	if err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}

	sub := &redisSubscription{pubsub: pubsub}
	ch := pubsub.Channel()

	go func() {
		_, key := splitPath(p)
		fn(Snapshot{Path: p, Key: key, Value: initial})

		for msg := range ch {
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Warn("Dropping malformed change notification", "path", p, "error", err)
				continue
			}
			_, key := splitPath(env.Path)
			fn(Snapshot{Path: env.Path, Key: key, Value: env.Value})
		}
	}()

	return sub, nil
}
