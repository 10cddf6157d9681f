package chathub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"matchroom/backend/internal/chatroom"
	"matchroom/backend/internal/countdown"
	"matchroom/backend/internal/ledger"
	"matchroom/backend/internal/logger"
	"matchroom/backend/internal/models"
	"matchroom/backend/internal/navigation"
	"matchroom/backend/internal/storage"
)

var ErrUnknownCommand = errors.New("unknown command")

// ManagerService routes viewer commands to the lifecycle services and pushes
// the resulting events back. Each connected viewer owns its own realtime
// subscriptions, which are torn down when it disconnects.
type ManagerService struct {
	mu      sync.RWMutex
	clients map[string]*session

	// Channels
	IncomingCh   chan models.ClientCommand
	RegisterCh   chan Client
	UnregisterCh chan Client

	Ledger  *ledger.Ledger
	Rooms   *chatroom.Registry
	Timers  *countdown.Service
	Matcher *MatcherService

	done chan struct{}
}

// session is one connected viewer and everything it is listening to.
type session struct {
	client Client
	nav    *navigation.Stack

	mu      sync.Mutex
	closed  bool
	watches map[string]storage.Subscription
	rooms   map[string]*roomView
}

type roomView struct {
	timer    *countdown.View
	messages storage.Subscription
}

func (v *roomView) leave() {
	v.timer.Leave()
	_ = v.messages.Close()
}

func newSession(c Client) *session {
	return &session{
		client:  c,
		nav:     navigation.NewStack(),
		watches: make(map[string]storage.Subscription),
		rooms:   make(map[string]*roomView),
	}
}

// send delivers ev unless the session is gone. A full buffer drops the event.
func (s *session) send(ev models.ServerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.client.GetSendChannel() <- ev:
	default:
		logger.Warn("Client send buffer full, dropping event", "user_id", s.client.GetUserID(), "type", ev.Type)
	}
}

func (s *session) sendError(err error) {
	s.send(models.ServerEvent{Type: models.EventError, Error: err.Error()})
}

// teardown closes every subscription and the client.
func (s *session) teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	watches, rooms := s.watches, s.rooms
	s.watches = map[string]storage.Subscription{}
	s.rooms = map[string]*roomView{}
	s.mu.Unlock()

	for _, sub := range watches {
		_ = sub.Close()
	}
	for _, v := range rooms {
		v.leave()
	}
	s.client.Close()
}

func NewManagerService(l *ledger.Ledger, rooms *chatroom.Registry, timers *countdown.Service, matcher *MatcherService) *ManagerService {
	return &ManagerService{
		clients:      make(map[string]*session),
		IncomingCh:   make(chan models.ClientCommand),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		Ledger:       l,
		Rooms:        rooms,
		Timers:       timers,
		Matcher:      matcher,
		done:         make(chan struct{}),
	}
}

// Run processes registrations and commands until ctx is cancelled.
func (m *ManagerService) Run(ctx context.Context) {
	logger.Info("Hub started")
	defer func() {
		close(m.done)
		m.shutdown()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-m.RegisterCh:
			m.register(c)
		case c := <-m.UnregisterCh:
			m.unregister(c)
		case cmd := <-m.IncomingCh:
			m.handleCommand(ctx, cmd)
		}
	}
}

// Done is closed once Run has returned.
func (m *ManagerService) Done() <-chan struct{} {
	return m.done
}

// Register hands c to the hub. It reports false if the hub has stopped.
func (m *ManagerService) Register(c Client) bool {
	select {
	case m.RegisterCh <- c:
		return true
	case <-m.done:
		return false
	}
}

// Unregister detaches c. It returns immediately once the hub has stopped.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

// Submit queues a viewer command. It reports false if the hub has stopped.
func (m *ManagerService) Submit(cmd models.ClientCommand) bool {
	select {
	case m.IncomingCh <- cmd:
		return true
	case <-m.done:
		return false
	}
}

func (m *ManagerService) register(c Client) {
	m.mu.Lock()
	old, exists := m.clients[c.GetUserID()]
	m.clients[c.GetUserID()] = newSession(c)
	m.mu.Unlock()

	if exists {
		old.teardown()
	}
	logger.Info("Client registered", "user_id", c.GetUserID())
}

func (m *ManagerService) unregister(c Client) {
	m.mu.Lock()
	sess, ok := m.clients[c.GetUserID()]
	if !ok || sess.client != c {
		m.mu.Unlock()
		return
	}
	delete(m.clients, c.GetUserID())
	m.mu.Unlock()

	sess.teardown()
	logger.Info("Client unregistered", "user_id", c.GetUserID())
}

func (m *ManagerService) shutdown() {
	m.mu.Lock()
	sessions := m.clients
	m.clients = make(map[string]*session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.teardown()
	}
	logger.Info("Hub stopped", "clients", len(sessions))
}

// IsConnected reports whether userID has a registered client.
func (m *ManagerService) IsConnected(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.clients[userID]
	return ok
}

// Routes returns the viewer's current navigation stack.
func (m *ManagerService) Routes(userID string) []navigation.Route {
	if s := m.session(userID); s != nil {
		return s.nav.Routes()
	}
	return nil
}

func (m *ManagerService) session(userID string) *session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clients[userID]
}

func (m *ManagerService) handleCommand(ctx context.Context, cmd models.ClientCommand) {
	sess := m.session(cmd.SenderID)
	if sess == nil {
		logger.Warn("Command from unregistered client", "user_id", cmd.SenderID, "type", cmd.Type)
		return
	}

	var err error
	switch cmd.Type {
	case models.CommandInteract:
		err = m.interact(ctx, sess, cmd.TargetID)
	case models.CommandCancel:
		err = m.cancel(ctx, sess, cmd.TargetID)
	case models.CommandWatchRequest:
		err = m.watch(ctx, sess, cmd.TargetID)
	case models.CommandUnwatchRequest:
		sess.unwatch(cmd.TargetID)
	case models.CommandJoinRoom:
		var room *models.ChatRoom
		room, err = m.Rooms.GetFor(ctx, cmd.RoomID, cmd.SenderID)
		if err == nil {
			err = m.openRoom(ctx, sess, room)
		}
	case models.CommandLeaveRoom:
		sess.leaveRoom(cmd.RoomID)
		sess.nav.PopIfTop(cmd.RoomID)
	case models.CommandSendMessage:
		_, err = m.Rooms.SendMessage(ctx, cmd.RoomID, cmd.SenderID, cmd.Body)
	case models.CommandRefreshCandidates:
		var users []models.User
		users, err = m.Matcher.Candidates(ctx, cmd.SenderID, cmd.Query, cmd.Shuffle)
		if err == nil {
			sess.send(models.ServerEvent{Type: models.EventCandidates, Candidates: users})
		}
	default:
		err = ErrUnknownCommand
	}

	if err != nil {
		logger.Warn("Command failed", "user_id", cmd.SenderID, "type", cmd.Type, "error", err)
		sess.sendError(err)
	}
}

func (m *ManagerService) pushStatus(ctx context.Context, userID, otherID string) {
	sess := m.session(userID)
	if sess == nil {
		return
	}
	req, err := m.Ledger.Status(ctx, userID, otherID)
	if err != nil {
		return
	}
	sess.send(models.ServerEvent{Type: models.EventRequestStatus, TargetID: otherID, Request: &req})
}

func (m *ManagerService) interact(ctx context.Context, sess *session, targetID string) error {
	self := sess.client.GetUserID()
	res, err := m.Ledger.Interact(ctx, self, targetID)
	if err != nil {
		return err
	}

	m.pushStatus(ctx, self, targetID)
	m.pushStatus(ctx, targetID, self)

	if res.RoomID == "" {
		return nil
	}
	room, _, err := m.Rooms.GetOrCreateByID(ctx, res.RoomID)
	if err != nil {
		return err
	}
	if err := m.openRoom(ctx, sess, room); err != nil {
		return err
	}
	if partner := m.session(targetID); partner != nil {
		if err := m.openRoom(ctx, partner, room); err != nil {
			logger.Warn("Failed to open room for partner", "user_id", targetID, "room_id", room.ID, "error", err)
		}
	}
	return nil
}

func (m *ManagerService) cancel(ctx context.Context, sess *session, targetID string) error {
	self := sess.client.GetUserID()
	if err := m.Ledger.Cancel(ctx, self, targetID); err != nil {
		return err
	}
	m.pushStatus(ctx, self, targetID)
	m.pushStatus(ctx, targetID, self)
	return nil
}

// watch subscribes the viewer to its record for targetID, replacing any
// earlier watch on the same target.
func (m *ManagerService) watch(ctx context.Context, sess *session, targetID string) error {
	sess.unwatch(targetID)

	sub, err := m.Ledger.Watch(ctx, sess.client.GetUserID(), targetID, func(req models.MatchRequest) {
		sess.send(models.ServerEvent{Type: models.EventRequestStatus, TargetID: targetID, Request: &req})
	})
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		_ = sub.Close()
		return nil
	}
	sess.watches[targetID] = sub
	return nil
}

func (s *session) unwatch(targetID string) {
	s.mu.Lock()
	sub, ok := s.watches[targetID]
	delete(s.watches, targetID)
	s.mu.Unlock()
	if ok {
		_ = sub.Close()
	}
}

func (s *session) leaveRoom(roomID string) {
	s.mu.Lock()
	v, ok := s.rooms[roomID]
	delete(s.rooms, roomID)
	s.mu.Unlock()
	if ok {
		v.leave()
	}
}

// openRoom shows the chat screen and attaches the viewer to the room's timer
// and message stream. Opening a room that is already open only jumps to it.
func (m *ManagerService) openRoom(ctx context.Context, sess *session, room *models.ChatRoom) error {
	self := sess.client.GetUserID()
	sess.nav.OpenChat(room.ID, room.Titles[room.Partner(self)])
	sess.send(models.ServerEvent{Type: models.EventRoomOpened, RoomID: room.ID, Room: room})

	sess.mu.Lock()
	_, open := sess.rooms[room.ID]
	sess.mu.Unlock()
	if open {
		return nil
	}

	messages, err := m.Rooms.WatchMessages(ctx, room.ID, func(msg models.Message) {
		sess.send(models.ServerEvent{Type: models.EventMessage, RoomID: room.ID, Message: &msg})
	})
	if err != nil {
		return err
	}

	var expired atomic.Bool
	view, err := m.Timers.Join(ctx, room, self, countdown.Hooks{
		OnTick: func(remaining int64) {
			sess.send(models.ServerEvent{Type: models.EventTimer, RoomID: room.ID, Remaining: &remaining})
		},
		OnClosed: func() {
			sess.nav.PopIfTop(room.ID)
			sess.send(models.ServerEvent{Type: models.EventRoomClosed, RoomID: room.ID})
			expired.Store(true)
			sess.leaveRoom(room.ID)
		},
	})
	if err != nil {
		_ = messages.Close()
		return err
	}

	v := &roomView{timer: view, messages: messages}
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		v.leave()
		return nil
	}
	if _, raced := sess.rooms[room.ID]; raced {
		sess.mu.Unlock()
		v.leave()
		return nil
	}
	sess.rooms[room.ID] = v
	sess.mu.Unlock()

	// The room may have expired before the view was stored.
	if expired.Load() {
		sess.leaveRoom(room.ID)
	}
	return nil
}
