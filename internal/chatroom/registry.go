// Package chatroom owns the lifecycle of the single chat room a matched pair
// gets: creation, messages and closing.
package chatroom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"matchroom/backend/internal/config"
	"matchroom/backend/internal/event"
	"matchroom/backend/internal/logger"
	"matchroom/backend/internal/models"
	"matchroom/backend/internal/storage"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

var (
	ErrRoomNotFound   = errors.New("chat room not found")
	ErrNotParticipant = errors.New("user is not a participant of this room")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrInvalidRoom    = errors.New("invalid room participants")
)

// PairResetter clears the match-request pair once their room is gone.
type PairResetter interface {
	Reset(ctx context.Context, a, b string) error
}

// Notifier is told when a room closes.
type Notifier interface {
	RoomClosed(ctx context.Context, room *models.ChatRoom)
}

type Options struct {
	Archive  storage.RoomArchive
	Users    storage.Directory
	Ledger   PairResetter
	Emitter  event.Emitter
	Notifier Notifier
	// DurationMs is the initial timer value. Zero means the default.
	DurationMs int64
}

type Registry struct {
	store  storage.RemoteStore
	opts   Options
	policy *bluemonday.Policy
	now    func() time.Time
}

func NewRegistry(store storage.RemoteStore, opts Options) *Registry {
	if opts.DurationMs <= 0 {
		opts.DurationMs = config.DefaultRoomDurationMs
	}
	return &Registry{
		store:  store,
		opts:   opts,
		policy: bluemonday.StrictPolicy(),
		now:    time.Now,
	}
}

func RoomPath(roomID string) string      { return "rooms/" + roomID }
func TimerPath(roomID string) string     { return RoomPath(roomID) + "/timer" }
func CreatedAtPath(roomID string) string { return RoomPath(roomID) + "/createdAt" }
func MessagesPath(roomID string) string  { return RoomPath(roomID) + "/messages" }
func ChatCountPath(userID string) string { return "users/" + userID + "/chatCount" }

// senderNamespace scopes sender hashes so they never collide with user ids.
var senderNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("matchroom:message-sender"))

// SenderHash is the stable pseudonymous id stored on messages.
func SenderHash(userID string) string {
	return uuid.NewSHA1(senderNamespace, []byte(userID)).String()
}

// GetOrCreate returns the room for a matched pair, creating it exactly once.
// Only the call that creates the room initializes the timer, bumps both chat
// counters, archives it and emits room.create. created reports which call that was.
func (r *Registry) GetOrCreate(ctx context.Context, senderID, recipientID string) (room *models.ChatRoom, created bool, err error) {
	if !models.ValidUserID(senderID) || !models.ValidUserID(recipientID) || senderID == recipientID {
		return nil, false, ErrInvalidRoom
	}

	roomID := models.RoomID(senderID, recipientID)
	fresh := &models.ChatRoom{
		ID:          roomID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Titles:      r.titles(ctx, senderID, recipientID),
	}

	created, err = r.store.CreateIfAbsent(ctx, RoomPath(roomID), fresh)
	if err != nil {
		logger.Error("Failed to create room", "room_id", roomID, "error", err)
		return nil, false, fmt.Errorf("creating room: %w", err)
	}
	if !created {
		existing, err := r.Get(ctx, roomID)
		return existing, false, err
	}

	// A driver of an earlier room with this id may have left a timer behind.
	err = r.store.Update(ctx, []storage.Mutation{
		storage.Set(TimerPath(roomID), models.RoomTimer{Value: r.opts.DurationMs}),
		storage.Delete(CreatedAtPath(roomID)),
	})
	if err != nil {
		return nil, true, fmt.Errorf("initializing room timer: %w", err)
	}
	for _, uid := range fresh.Participants() {
		if _, err := r.store.Increment(ctx, ChatCountPath(uid), 1); err != nil {
			logger.Error("Failed to increment chat count", "user_id", uid, "error", err)
		}
	}

	if r.opts.Archive != nil {
		record := &models.RoomRecord{
			RoomID:      roomID,
			SenderID:    senderID,
			RecipientID: recipientID,
			IsActive:    true,
			StartedAt:   r.now(),
		}
		if err := r.opts.Archive.SaveRoom(ctx, record); err != nil {
			logger.Error("Failed to archive room", "room_id", roomID, "error", err)
		}
	}

	logger.Info("Chat room created", "room_id", roomID)
	event.EmitLogged(ctx, r.opts.Emitter, event.New(event.TypeRoomCreate, roomID, senderID, recipientID))
	return fresh, true, nil
}

func (r *Registry) titles(ctx context.Context, ids ...string) map[string]string {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		out[id] = ""
		if r.opts.Users == nil {
			continue
		}
		u, err := r.opts.Users.GetUserByID(ctx, id)
		if err != nil {
			logger.Warn("No activity title for room participant", "user_id", id, "error", err)
			continue
		}
		out[id] = u.Activity.Title
	}
	return out
}

// Get reads the live room record.
func (r *Registry) Get(ctx context.Context, roomID string) (*models.ChatRoom, error) {
	if roomID == "" || strings.Contains(roomID, "/") {
		return nil, ErrRoomNotFound
	}
	var room models.ChatRoom
	found, err := r.store.ReadOnce(ctx, RoomPath(roomID), &room)
	if err != nil {
		return nil, fmt.Errorf("reading room: %w", err)
	}
	if !found {
		return nil, ErrRoomNotFound
	}
	return &room, nil
}

// GetFor reads the room and checks that userID is one of its participants.
func (r *Registry) GetFor(ctx context.Context, roomID, userID string) (*models.ChatRoom, error) {
	room, err := r.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return room, nil
}

// SendMessage appends a sanitized message from a participant.
func (r *Registry) SendMessage(ctx context.Context, roomID, senderID, body string) (*models.Message, error) {
	if _, err := r.GetFor(ctx, roomID, senderID); err != nil {
		return nil, err
	}

	clean := strings.TrimSpace(r.policy.Sanitize(body))
	if clean == "" {
		return nil, ErrEmptyMessage
	}

	msg := &models.Message{
		RoomID:     roomID,
		SenderHash: SenderHash(senderID),
		Body:       clean,
		SentAt:     r.now().UnixMilli(),
	}
	key, err := r.store.Append(ctx, MessagesPath(roomID), msg)
	if err != nil {
		logger.Error("Failed to store message", "room_id", roomID, "error", err)
		return nil, fmt.Errorf("sending message: %w", err)
	}
	msg.Key = key
	return msg, nil
}

// Messages lists the room's messages in the order they were sent.
func (r *Registry) Messages(ctx context.Context, roomID string) ([]models.Message, error) {
	snaps, err := r.store.List(ctx, MessagesPath(roomID))
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	out := make([]models.Message, 0, len(snaps))
	for _, s := range snaps {
		var m models.Message
		if err := s.Decode(&m); err != nil {
			logger.Warn("Skipping unreadable message", "path", s.Path, "error", err)
			continue
		}
		m.Key = s.Key
		out = append(out, m)
	}
	return out, nil
}

// Close removes the room tree, closes the archive row and clears the pair's
// match requests so the two users start fresh.
func (r *Registry) Close(ctx context.Context, roomID string) error {
	room, err := r.Get(ctx, roomID)
	if err != nil {
		return err
	}

	if err := r.store.Remove(ctx, RoomPath(roomID)); err != nil {
		logger.Error("Failed to remove room", "room_id", roomID, "error", err)
		return fmt.Errorf("closing room: %w", err)
	}

	if r.opts.Archive != nil {
		if err := r.opts.Archive.CloseRoom(ctx, roomID); err != nil {
			logger.Error("Failed to close archived room", "room_id", roomID, "error", err)
		}
	}
	if r.opts.Ledger != nil {
		if err := r.opts.Ledger.Reset(ctx, room.SenderID, room.RecipientID); err != nil {
			logger.Error("Failed to reset match requests", "room_id", roomID, "error", err)
		}
	}

	logger.Info("Chat room closed", "room_id", roomID)
	event.EmitLogged(ctx, r.opts.Emitter, event.New(event.TypeRoomClose, roomID, room.SenderID, room.RecipientID))
	if r.opts.Notifier != nil {
		r.opts.Notifier.RoomClosed(ctx, room)
	}
	return nil
}

// ChatCount returns how many rooms the user has ever been in.
func (r *Registry) ChatCount(ctx context.Context, userID string) (int64, error) {
	var n int64
	if _, err := r.store.ReadOnce(ctx, ChatCountPath(userID), &n); err != nil {
		return 0, fmt.Errorf("reading chat count: %w", err)
	}
	return n, nil
}

// SweepArchive closes archived rooms whose live record is gone, e.g. after a
// restart interrupted a close. It returns the ids it closed.
func (r *Registry) SweepArchive(ctx context.Context) ([]string, error) {
	if r.opts.Archive == nil {
		return nil, nil
	}
	ids, err := r.opts.Archive.GetActiveRoomIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing archived rooms: %w", err)
	}

	var closed []string
	for _, id := range ids {
		_, err := r.Get(ctx, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrRoomNotFound) {
			logger.Warn("Skipping archived room", "room_id", id, "error", err)
			continue
		}
		if err := r.opts.Archive.CloseRoom(ctx, id); err != nil {
			logger.Error("Failed to close stale archived room", "room_id", id, "error", err)
			continue
		}
		closed = append(closed, id)
	}
	logger.Info("Archive sweep complete", "active", len(ids), "closed", len(closed))
	return closed, nil
}

// WatchMessages calls fn for every message appended after the call.
func (r *Registry) WatchMessages(ctx context.Context, roomID string, fn func(models.Message)) (storage.Subscription, error) {
	base := MessagesPath(roomID)
	return r.store.Subscribe(ctx, base, func(s storage.Snapshot) {
		if s.Path == base || !s.Exists() {
			return
		}
		var m models.Message
		if err := s.Decode(&m); err != nil {
			logger.Warn("Ignoring unreadable message", "path", s.Path, "error", err)
			return
		}
		m.Key = s.Key
		fn(m)
	})
}

// GetOrCreateByID is GetOrCreate for a room id produced by the ledger.
func (r *Registry) GetOrCreateByID(ctx context.Context, roomID string) (*models.ChatRoom, bool, error) {
	sender, recipient, ok := models.ParseRoomID(roomID)
	if !ok {
		return nil, false, ErrInvalidRoom
	}
	return r.GetOrCreate(ctx, sender, recipient)
}
