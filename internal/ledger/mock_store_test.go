package ledger_test

import (
	"context"

	"matchroom/backend/internal/storage"

	"github.com/stretchr/testify/mock"
)

type MockRemoteStore struct {
	mock.Mock
}

func (m *MockRemoteStore) ReadOnce(ctx context.Context, path string, dst any) (bool, error) {
	args := m.Called(ctx, path, dst)
	return args.Bool(0), args.Error(1)
}

func (m *MockRemoteStore) Subscribe(ctx context.Context, path string, fn func(storage.Snapshot)) (storage.Subscription, error) {
	args := m.Called(ctx, path, fn)
	sub, _ := args.Get(0).(storage.Subscription)
	return sub, args.Error(1)
}

func (m *MockRemoteStore) Write(ctx context.Context, path string, value any) error {
	return m.Called(ctx, path, value).Error(0)
}

func (m *MockRemoteStore) WriteWithPriority(ctx context.Context, path string, value any, priority float64) error {
	return m.Called(ctx, path, value, priority).Error(0)
}

func (m *MockRemoteStore) Update(ctx context.Context, mutations []storage.Mutation) error {
	return m.Called(ctx, mutations).Error(0)
}

func (m *MockRemoteStore) CreateIfAbsent(ctx context.Context, path string, value any) (bool, error) {
	args := m.Called(ctx, path, value)
	return args.Bool(0), args.Error(1)
}

func (m *MockRemoteStore) Replace(ctx context.Context, path string, value any) (bool, error) {
	args := m.Called(ctx, path, value)
	return args.Bool(0), args.Error(1)
}

func (m *MockRemoteStore) Increment(ctx context.Context, path string, delta int64) (int64, error) {
	args := m.Called(ctx, path, delta)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRemoteStore) Append(ctx context.Context, path string, value any) (string, error) {
	args := m.Called(ctx, path, value)
	return args.String(0), args.Error(1)
}

func (m *MockRemoteStore) List(ctx context.Context, path string) ([]storage.Snapshot, error) {
	args := m.Called(ctx, path)
	snaps, _ := args.Get(0).([]storage.Snapshot)
	return snaps, args.Error(1)
}

func (m *MockRemoteStore) Children(ctx context.Context, path string) ([]storage.Snapshot, error) {
	args := m.Called(ctx, path)
	snaps, _ := args.Get(0).([]storage.Snapshot)
	return snaps, args.Error(1)
}

func (m *MockRemoteStore) Remove(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}
