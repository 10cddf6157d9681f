// Package countdown drives the shared room timer. One participant's session
// writes the decremented value once per interval and every viewer mirrors it.
package countdown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"matchroom/backend/internal/chatroom"
	"matchroom/backend/internal/config"
	"matchroom/backend/internal/logger"
	"matchroom/backend/internal/models"
	"matchroom/backend/internal/storage"

	"github.com/jonboulle/clockwork"
)

// RoomCloser destroys a room once its timer runs out.
type RoomCloser interface {
	Close(ctx context.Context, roomID string) error
}

// Hooks receive timer updates for one viewer. Either may be nil.
type Hooks struct {
	OnTick func(remainingMs int64)
	// OnClosed fires once, on the first zero or deleted timer value.
	OnClosed func()
}

// Driver returns the participant whose session decrements the timer.
func Driver(room *models.ChatRoom) string {
	if room.SenderID < room.RecipientID {
		return room.SenderID
	}
	return room.RecipientID
}

// Step is the next timer value after one tick.
func Step(remainingMs int64) int64 {
	return max(remainingMs-config.TickDecrementMs, 0)
}

type Service struct {
	store    storage.RemoteStore
	closer   RoomCloser
	clock    clockwork.Clock
	interval time.Duration

	mu      sync.Mutex
	drivers map[string]*driverLoop
}

type driverLoop struct {
	refs   int
	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(store storage.RemoteStore, closer RoomCloser, clock clockwork.Clock, interval time.Duration) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = config.DefaultTickInterval
	}
	return &Service{
		store:    store,
		closer:   closer,
		clock:    clock,
		interval: interval,
		drivers:  make(map[string]*driverLoop),
	}
}

// View is one viewer's attachment to a room timer.
type View struct {
	svc      *Service
	roomID   string
	isDriver bool
	sub      storage.Subscription
	once     sync.Once
}

// Join attaches viewerID to the room's timer. Every viewer mirrors the shared
// value through hooks; the driver's first View also starts the decrement loop.
// Leave must be called when the viewer goes away.
func (s *Service) Join(ctx context.Context, room *models.ChatRoom, viewerID string, hooks Hooks) (*View, error) {
	if !room.HasParticipant(viewerID) {
		return nil, chatroom.ErrNotParticipant
	}

	var closedOnce sync.Once
	fireClosed := func() {
		closedOnce.Do(func() {
			if hooks.OnClosed != nil {
				hooks.OnClosed()
			}
		})
	}

	sub, err := s.store.Subscribe(ctx, chatroom.TimerPath(room.ID), func(snap storage.Snapshot) {
		if !snap.Exists() {
			fireClosed()
			return
		}
		var timer models.RoomTimer
		if err := snap.Decode(&timer); err != nil {
			logger.Warn("Ignoring unreadable timer value", "room_id", room.ID, "error", err)
			return
		}
		if hooks.OnTick != nil {
			hooks.OnTick(timer.Value)
		}
		if timer.Value <= 0 {
			fireClosed()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("watching room timer: %w", err)
	}

	v := &View{svc: s, roomID: room.ID, sub: sub}
	if viewerID == Driver(room) {
		v.isDriver = true
		s.acquire(room.ID)
	}
	return v, nil
}

// Leave detaches the viewer. It is safe to call more than once and from
// inside a hook.
func (v *View) Leave() {
	v.once.Do(func() {
		_ = v.sub.Close()
		if v.isDriver {
			v.svc.release(v.roomID)
		}
	})
}

func (s *Service) acquire(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.drivers[roomID]; ok {
		d.refs++
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &driverLoop{refs: 1, cancel: cancel, done: make(chan struct{})}
	s.drivers[roomID] = d
	go func() {
		defer close(d.done)
		s.run(ctx, roomID, d)
	}()
}

func (s *Service) release(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drivers[roomID]
	if !ok {
		return
	}
	d.refs--
	if d.refs <= 0 {
		d.cancel()
		delete(s.drivers, roomID)
	}
}

// Running reports whether a driver loop is active for roomID.
func (s *Service) Running(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.drivers[roomID]
	return ok
}

func (s *Service) finished(roomID string, d *driverLoop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.drivers[roomID]; ok && cur == d {
		d.cancel()
		delete(s.drivers, roomID)
	}
}

// run decrements the stored timer once per interval. The loop ends when the
// value reaches zero, when the timer is gone because the room was closed
// elsewhere, or when the last driver view leaves.
func (s *Service) run(ctx context.Context, roomID string, d *driverLoop) {
	timerPath := chatroom.TimerPath(roomID)

	var timer models.RoomTimer
	found, err := s.store.ReadOnce(ctx, timerPath, &timer)
	if err != nil || !found {
		if err != nil && ctx.Err() == nil {
			logger.Error("Failed to read room timer", "room_id", roomID, "error", err)
		}
		s.finished(roomID, d)
		return
	}
	if _, err := s.store.CreateIfAbsent(ctx, chatroom.CreatedAtPath(roomID), s.clock.Now().UnixMilli()); err != nil {
		logger.Error("Failed to stamp room creation time", "room_id", roomID, "error", err)
	}

	remaining := timer.Value
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for remaining > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}

		next := Step(remaining)
		written, err := s.store.Replace(ctx, timerPath, models.RoomTimer{Value: next})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("Failed to write room timer", "room_id", roomID, "error", err)
			continue
		}
		if !written {
			logger.Info("Room timer removed, driver stopping", "room_id", roomID)
			s.finished(roomID, d)
			return
		}
		remaining = next
	}

	logger.Info("Room timer expired", "room_id", roomID)
	s.finished(roomID, d)
	if s.closer == nil {
		return
	}
	if err := s.closer.Close(context.Background(), roomID); err != nil && !errors.Is(err, chatroom.ErrRoomNotFound) {
		logger.Error("Failed to close expired room", "room_id", roomID, "error", err)
	}
}

// Shutdown stops every driver loop and waits for them to exit.
func (s *Service) Shutdown() {
	s.mu.Lock()
	loops := make([]*driverLoop, 0, len(s.drivers))
	for id, d := range s.drivers {
		d.cancel()
		loops = append(loops, d)
		delete(s.drivers, id)
	}
	s.mu.Unlock()

	for _, d := range loops {
		<-d.done
	}
}
