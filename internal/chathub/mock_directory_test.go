package chathub_test

import (
	"context"

	"matchroom/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *MockDirectory) ListUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]models.User)
	return users, args.Error(1)
}

func (m *MockDirectory) SaveUser(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockDirectory) UpdatePreferences(ctx context.Context, userID string, prefs models.MatchingPreferences) error {
	return m.Called(ctx, userID, prefs).Error(0)
}

func (m *MockDirectory) UpdateLocation(ctx context.Context, userID string, loc models.Coordinates) error {
	return m.Called(ctx, userID, loc).Error(0)
}
