package chatroom_test

import (
	"context"
	"testing"
	"time"

	"matchroom/backend/internal/chatroom"
	"matchroom/backend/internal/config"
	"matchroom/backend/internal/ledger"
	"matchroom/backend/internal/models"
	"matchroom/backend/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) SaveRoom(ctx context.Context, room *models.RoomRecord) error {
	return m.Called(ctx, room).Error(0)
}

func (m *MockArchive) CloseRoom(ctx context.Context, roomID string) error {
	return m.Called(ctx, roomID).Error(0)
}

func (m *MockArchive) GetActiveRoomIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

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

type fixture struct {
	store    *storage.RedisStore
	ledger   *ledger.Ledger
	archive  *MockArchive
	users    *MockDirectory
	registry *chatroom.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		store:   storage.NewRedisStore(rdb),
		archive: new(MockArchive),
		users:   new(MockDirectory),
	}
	f.ledger = ledger.New(f.store, nil, nil)
	f.archive.On("SaveRoom", mock.Anything, mock.AnythingOfType("*models.RoomRecord")).Return(nil)
	f.archive.On("CloseRoom", mock.Anything, mock.AnythingOfType("string")).Return(nil)
	f.users.On("GetUserByID", mock.Anything, "alice").
		Return(&models.User{ID: "alice", Activity: models.ActivityPreference{Title: "Chess"}}, nil)
	f.users.On("GetUserByID", mock.Anything, "bob").
		Return(&models.User{ID: "bob", Activity: models.ActivityPreference{Title: "Hiking"}}, nil)

	f.registry = chatroom.NewRegistry(f.store, chatroom.Options{
		Archive: f.archive,
		Users:   f.users,
		Ledger:  f.ledger,
	})
	return f
}

func TestGetOrCreate_InitializesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, created, err := f.registry.GetOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "alice_TO_bob", room.ID)
	assert.Equal(t, map[string]string{"alice": "Chess", "bob": "Hiking"}, room.Titles)

	var timer models.RoomTimer
	found, err := f.store.ReadOnce(ctx, chatroom.TimerPath(room.ID), &timer)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(config.DefaultRoomDurationMs), timer.Value)

	// The timer has run for a while; a second call must not reset it.
	require.NoError(t, f.store.Write(ctx, chatroom.TimerPath(room.ID), models.RoomTimer{Value: 120000}))

	again, created, err := f.registry.GetOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, room.ID, again.ID)

	_, err = f.store.ReadOnce(ctx, chatroom.TimerPath(room.ID), &timer)
	require.NoError(t, err)
	assert.Equal(t, int64(120000), timer.Value)

	for _, uid := range []string{"alice", "bob"} {
		n, err := f.registry.ChatCount(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n, uid)
	}
	f.archive.AssertNumberOfCalls(t, "SaveRoom", 1)
}

func TestGetOrCreate_RejectsBadPair(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.registry.GetOrCreate(context.Background(), "alice", "alice")
	assert.ErrorIs(t, err, chatroom.ErrInvalidRoom)
	_, _, err = f.registry.GetOrCreate(context.Background(), "", "bob")
	assert.ErrorIs(t, err, chatroom.ErrInvalidRoom)
	_, _, err = f.registry.GetOrCreate(context.Background(), "x_TO_y", "zed")
	assert.ErrorIs(t, err, chatroom.ErrInvalidRoom)
	_, _, err = f.registry.GetOrCreateByID(context.Background(), "x_TO_y_TO_zed")
	assert.ErrorIs(t, err, chatroom.ErrInvalidRoom)

	for _, uid := range []string{"x", "y_TO_zed", "zed"} {
		n, err := f.registry.ChatCount(context.Background(), uid)
		require.NoError(t, err)
		assert.Zero(t, n, uid)
	}
}

func TestGetOrCreate_ResetsLeftoverTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	roomID := models.RoomID("alice", "bob")
	require.NoError(t, f.store.Write(ctx, chatroom.TimerPath(roomID), models.RoomTimer{Value: 0}))
	require.NoError(t, f.store.Write(ctx, chatroom.CreatedAtPath(roomID), int64(1)))

	_, created, err := f.registry.GetOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	require.True(t, created)

	var timer models.RoomTimer
	found, err := f.store.ReadOnce(ctx, chatroom.TimerPath(roomID), &timer)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(config.DefaultRoomDurationMs), timer.Value)

	found, err = f.store.ReadOnce(ctx, chatroom.CreatedAtPath(roomID), nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, _, err := f.registry.GetOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	m1, err := f.registry.SendMessage(ctx, room.ID, "alice", "  <b>hello</b> ")
	require.NoError(t, err)
	assert.Equal(t, "hello", m1.Body)
	assert.NotEmpty(t, m1.Key)
	assert.Equal(t, chatroom.SenderHash("alice"), m1.SenderHash)
	assert.NotEqual(t, "alice", m1.SenderHash)

	_, err = f.registry.SendMessage(ctx, room.ID, "bob", "hi there")
	require.NoError(t, err)

	_, err = f.registry.SendMessage(ctx, room.ID, "mallory", "let me in")
	assert.ErrorIs(t, err, chatroom.ErrNotParticipant)

	_, err = f.registry.SendMessage(ctx, room.ID, "bob", "<script>alert(1)</script>")
	assert.ErrorIs(t, err, chatroom.ErrEmptyMessage)

	_, err = f.registry.SendMessage(ctx, "nobody_TO_here", "bob", "hi")
	assert.ErrorIs(t, err, chatroom.ErrRoomNotFound)

	msgs, err := f.registry.Messages(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Body)
	assert.Equal(t, m1.Key, msgs[0].Key)
	assert.Equal(t, "hi there", msgs[1].Body)
	assert.Equal(t, chatroom.SenderHash("bob"), msgs[1].SenderHash)
}

func TestSenderHash_Stable(t *testing.T) {
	assert.Equal(t, chatroom.SenderHash("alice"), chatroom.SenderHash("alice"))
	assert.NotEqual(t, chatroom.SenderHash("alice"), chatroom.SenderHash("bob"))
}

func TestClose_RemovesRoomAndResetsPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Send(ctx, "alice", "bob"))
	roomID, err := f.ledger.Accept(ctx, "bob", "alice")
	require.NoError(t, err)

	room, _, err := f.registry.GetOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Equal(t, roomID, room.ID)
	_, err = f.registry.SendMessage(ctx, room.ID, "alice", "bye")
	require.NoError(t, err)

	require.NoError(t, f.registry.Close(ctx, room.ID))

	_, err = f.registry.Get(ctx, room.ID)
	assert.ErrorIs(t, err, chatroom.ErrRoomNotFound)
	found, err := f.store.ReadOnce(ctx, chatroom.TimerPath(room.ID), nil)
	require.NoError(t, err)
	assert.False(t, found)
	msgs, err := f.registry.Messages(ctx, room.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	st, err := f.ledger.Status(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, st.IsAbsent())
	f.archive.AssertCalled(t, "CloseRoom", mock.Anything, room.ID)

	// Chat counts survive the room.
	n, err := f.registry.ChatCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.ErrorIs(t, f.registry.Close(ctx, room.ID), chatroom.ErrRoomNotFound)
}

func TestSweepArchive_ClosesStaleRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, _, err := f.registry.GetOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	f.archive.On("GetActiveRoomIDs", mock.Anything).Return([]string{room.ID, "gone_TO_away"}, nil)

	closed, err := f.registry.SweepArchive(ctx)

	require.NoError(t, err)
	assert.Equal(t, []string{"gone_TO_away"}, closed)
	f.archive.AssertCalled(t, "CloseRoom", mock.Anything, "gone_TO_away")
	f.archive.AssertNotCalled(t, "CloseRoom", mock.Anything, room.ID)
}

func TestWatchMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, _, err := f.registry.GetOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	got := make(chan models.Message, 4)
	sub, err := f.registry.WatchMessages(ctx, room.ID, func(m models.Message) { got <- m })
	require.NoError(t, err)
	defer sub.Close()

	sent, err := f.registry.SendMessage(ctx, room.ID, "bob", "ping")
	require.NoError(t, err)

	select {
	case m := <-got:
		assert.Equal(t, sent.Key, m.Key)
		assert.Equal(t, "ping", m.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}
