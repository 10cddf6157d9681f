package storage_test

import (
	"context"
	"testing"

	"matchroom/backend/internal/config"
	"matchroom/backend/internal/models"
	"matchroom/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCache_ItemRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := storage.NewLocalCache(newRedis(t))

	_, ok, err := c.GetItem(ctx, "u1", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetItem(ctx, "u1", "k", "v"))
	val, ok, err := c.GetItem(ctx, "u1", "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", val)

	// Owners are isolated.
	_, ok, err = c.GetItem(ctx, "u2", "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalCache_Multi(t *testing.T) {
	ctx := context.Background()
	c := storage.NewLocalCache(newRedis(t))

	require.NoError(t, c.MultiSet(ctx, "u1", map[string]string{"a": "1", "b": "2"}))

	got, err := c.MultiGet(ctx, "u1", "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got)

	got, err = c.MultiGet(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadJSON_FallsBackOnMalformed(t *testing.T) {
	ctx := context.Background()
	c := storage.NewLocalCache(newRedis(t))

	prefs := models.MatchingPreferences{MaxSearchDistance: config.DefaultMaxSearchDistance}
	require.NoError(t, c.SetItem(ctx, "u1", config.LocalKeyFilters, "{not json"))

	assert.False(t, storage.LoadJSON(ctx, c, "u1", config.LocalKeyFilters, &prefs))
	assert.Equal(t, config.DefaultMaxSearchDistance, prefs.MaxSearchDistance)

	require.NoError(t, storage.SaveJSON(ctx, c, "u1", config.LocalKeyFilters, models.MatchingPreferences{MaxSearchDistance: 25}))
	assert.True(t, storage.LoadJSON(ctx, c, "u1", config.LocalKeyFilters, &prefs))
	assert.Equal(t, 25.0, prefs.MaxSearchDistance)
}

func TestLoadAllJSON(t *testing.T) {
	ctx := context.Background()
	c := storage.NewLocalCache(newRedis(t))

	require.NoError(t, storage.SaveAllJSON(ctx, c, "u1", map[string]any{
		config.LocalKeyAccount: models.User{ID: "u1", Name: "Uma"},
		config.LocalKeyFilters: models.MatchingPreferences{MaxSearchDistance: 7},
	}))
	require.NoError(t, c.SetItem(ctx, "u1", "broken", "{"))

	var (
		account models.User
		prefs   models.MatchingPreferences
		other   models.User
	)
	loaded := storage.LoadAllJSON(ctx, c, "u1", map[string]any{
		config.LocalKeyAccount: &account,
		config.LocalKeyFilters: &prefs,
		"broken":               &other,
		"missing":              &other,
	})

	assert.Equal(t, map[string]bool{config.LocalKeyAccount: true, config.LocalKeyFilters: true}, loaded)
	assert.Equal(t, "Uma", account.Name)
	assert.Equal(t, 7.0, prefs.MaxSearchDistance)
}
