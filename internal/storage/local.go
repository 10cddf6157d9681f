package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"matchroom/backend/internal/logger"

	"github.com/redis/go-redis/v9"
)

// LocalStore is a small per-owner key-value area for cached account data and
// filter settings. Values are raw strings, usually JSON.
type LocalStore interface {
	GetItem(ctx context.Context, owner, key string) (string, bool, error)
	SetItem(ctx context.Context, owner, key, value string) error
	MultiGet(ctx context.Context, owner string, keys ...string) (map[string]string, error)
	MultiSet(ctx context.Context, owner string, items map[string]string) error
}

// LocalCache keeps each owner's items in one Redis hash.
type LocalCache struct {
	rdb *redis.Client
}

func NewLocalCache(rdb *redis.Client) *LocalCache {
	return &LocalCache{rdb: rdb}
}

func localKey(owner string) string {
	return "local:" + owner
}

func (c *LocalCache) GetItem(ctx context.Context, owner, key string) (string, bool, error) {
	val, err := c.rdb.HGet(ctx, localKey(owner), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading local item %s: %w", key, err)
	}
	return val, true, nil
}

func (c *LocalCache) SetItem(ctx context.Context, owner, key, value string) error {
	if err := c.rdb.HSet(ctx, localKey(owner), key, value).Err(); err != nil {
		return fmt.Errorf("writing local item %s: %w", key, err)
	}
	return nil
}

// MultiGet returns only the keys that are present.
func (c *LocalCache) MultiGet(ctx context.Context, owner string, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := c.rdb.HMGet(ctx, localKey(owner), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading local items: %w", err)
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

func (c *LocalCache) MultiSet(ctx context.Context, owner string, items map[string]string) error {
	if len(items) == 0 {
		return nil
	}
	pairs := make([]interface{}, 0, len(items)*2)
	for k, v := range items {
		pairs = append(pairs, k, v)
	}
	if err := c.rdb.HSet(ctx, localKey(owner), pairs...).Err(); err != nil {
		return fmt.Errorf("writing local items: %w", err)
	}
	return nil
}

// LoadJSON decodes a cached item into dst. A missing, unreadable or malformed
// item leaves dst untouched and returns false so callers keep their defaults.
func LoadJSON(ctx context.Context, store LocalStore, owner, key string, dst any) bool {
	raw, ok, err := store.GetItem(ctx, owner, key)
	if err != nil {
		logger.Warn("Local store read failed, using defaults", "owner", owner, "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		logger.Warn("Malformed local item, using defaults", "owner", owner, "key", key, "error", err)
		return false
	}
	return true
}

// SaveJSON encodes value and stores it under key.
func SaveJSON(ctx context.Context, store LocalStore, owner, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return store.SetItem(ctx, owner, key, string(raw))
}

// LoadAllJSON reads every key in targets with one MultiGet and decodes each
// present item into its destination. Failures are logged and the affected
// destinations keep their defaults. It returns the keys that were loaded.
func LoadAllJSON(ctx context.Context, store LocalStore, owner string, targets map[string]any) map[string]bool {
	keys := make([]string, 0, len(targets))
	for k := range targets {
		keys = append(keys, k)
	}
	loaded := make(map[string]bool, len(keys))

	items, err := store.MultiGet(ctx, owner, keys...)
	if err != nil {
		logger.Warn("Local store read failed, using defaults", "owner", owner, "keys", keys, "error", err)
		return loaded
	}
	for key, raw := range items {
		if err := json.Unmarshal([]byte(raw), targets[key]); err != nil {
			logger.Warn("Malformed local item, using defaults", "owner", owner, "key", key, "error", err)
			continue
		}
		loaded[key] = true
	}
	return loaded
}

// SaveAllJSON encodes every value and stores them with one MultiSet.
func SaveAllJSON(ctx context.Context, store LocalStore, owner string, values map[string]any) error {
	items := make(map[string]string, len(values))
	for key, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding local item %s: %w", key, err)
		}
		items[key] = string(raw)
	}
	return store.MultiSet(ctx, owner, items)
}
