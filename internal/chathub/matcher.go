package chathub

import (
	"context"
	"errors"
	"fmt"

	"matchroom/backend/internal/config"
	"matchroom/backend/internal/filter"
	"matchroom/backend/internal/logger"
	"matchroom/backend/internal/models"
	"matchroom/backend/internal/storage"
)

// MatcherService produces the candidate list each viewer browses.
type MatcherService struct {
	Users storage.Directory
	Local storage.LocalStore
}

func NewMatcherService(users storage.Directory, local storage.LocalStore) *MatcherService {
	return &MatcherService{Users: users, Local: local}
}

// Preferences returns the viewer's filters: the cached copy if it is readable,
// otherwise the stored profile, with defaults for anything unset.
func (m *MatcherService) Preferences(ctx context.Context, viewer *models.User) models.MatchingPreferences {
	prefs := viewer.Preferences
	if m.Local != nil {
		var cached models.MatchingPreferences
		if storage.LoadJSON(ctx, m.Local, viewer.ID, config.LocalKeyFilters, &cached) {
			prefs = cached
		}
	}
	return filter.Effective(prefs)
}

// Candidates filters the directory for viewerID, then applies the free-text
// query and an optional shuffle.
func (m *MatcherService) Candidates(ctx context.Context, viewerID, query string, shuffle bool) ([]models.User, error) {
	viewer, err := m.Users.GetUserByID(ctx, viewerID)
	if err != nil {
		// Unknown accounts stay unknown; a failing directory falls back to
		// the snapshot cached at login.
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, err
		}
		cached, ok := m.CachedAccount(ctx, viewerID)
		if !ok {
			return nil, err
		}
		logger.Warn("Directory read failed, using cached account", "user_id", viewerID, "error", err)
		viewer = cached
	}
	effective := *viewer
	effective.Preferences = m.Preferences(ctx, viewer)

	users, err := m.Users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	out := filter.Search(filter.Candidates(users, &effective), query)
	if shuffle {
		out = filter.Shuffle(out)
	}
	logger.Debug("Candidates computed", "user_id", viewerID, "total", len(users), "visible", len(out))
	return out, nil
}

// SavePreferences persists new filters to the profile and refreshes the cached
// filters together with the cached account snapshot.
func (m *MatcherService) SavePreferences(ctx context.Context, userID string, prefs models.MatchingPreferences) error {
	if err := m.Users.UpdatePreferences(ctx, userID, prefs); err != nil {
		return err
	}
	if m.Local == nil {
		return nil
	}

	items := map[string]any{config.LocalKeyFilters: prefs}
	if account, ok := m.CachedAccount(ctx, userID); ok {
		account.Preferences = prefs
		items[config.LocalKeyAccount] = account
	}
	if err := storage.SaveAllJSON(ctx, m.Local, userID, items); err != nil {
		logger.Warn("Failed to update local cache", "user_id", userID, "error", err)
	}
	return nil
}

// CacheAccount stores the account snapshot shown before the profile loads.
func (m *MatcherService) CacheAccount(ctx context.Context, user *models.User) {
	if m.Local == nil {
		return
	}
	if err := storage.SaveJSON(ctx, m.Local, user.ID, config.LocalKeyAccount, user); err != nil {
		logger.Warn("Failed to update local cache", "user_id", user.ID, "key", config.LocalKeyAccount, "error", err)
	}
}

// CachedAccount returns the cached account snapshot with any cached filters
// applied, if a snapshot exists.
func (m *MatcherService) CachedAccount(ctx context.Context, userID string) (*models.User, bool) {
	if m.Local == nil {
		return nil, false
	}
	var (
		account models.User
		prefs   models.MatchingPreferences
	)
	loaded := storage.LoadAllJSON(ctx, m.Local, userID, map[string]any{
		config.LocalKeyAccount: &account,
		config.LocalKeyFilters: &prefs,
	})
	if !loaded[config.LocalKeyAccount] {
		return nil, false
	}
	if loaded[config.LocalKeyFilters] {
		account.Preferences = prefs
	}
	return &account, true
}
