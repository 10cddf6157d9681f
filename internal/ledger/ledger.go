// Package ledger keeps the mirrored match-request records between two users and
// runs the request state machine on each interaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"matchroom/backend/internal/config"
	"matchroom/backend/internal/event"
	"matchroom/backend/internal/logger"
	"matchroom/backend/internal/models"
	"matchroom/backend/internal/storage"
)

var (
	ErrSelfRequest       = errors.New("cannot send a match request to yourself")
	ErrInvalidUser       = errors.New("invalid user id")
	ErrInvalidTransition = errors.New("match request is not in the required state")
	ErrInconsistentPair  = errors.New("mirrored match requests disagree")
)

// Notifier is told about transitions that concern a user who may be offline.
type Notifier interface {
	RequestReceived(ctx context.Context, fromID, toID string)
	MatchFound(ctx context.Context, senderID, recipientID, roomID string)
}

// Result is the outcome of Interact from the acting user's side.
type Result struct {
	Status models.MatchStatus `json:"status"`
	// RoomID is set once the pair is matched.
	RoomID string `json:"room_id,omitempty"`
}

type Ledger struct {
	store    storage.RemoteStore
	emitter  event.Emitter
	notifier Notifier
	now      func() time.Time
}

// New creates a ledger. emitter and notifier may be nil.
func New(store storage.RemoteStore, emitter event.Emitter, notifier Notifier) *Ledger {
	return &Ledger{
		store:    store,
		emitter:  emitter,
		notifier: notifier,
		now:      time.Now,
	}
}

func RequestsPath(self string) string {
	return "users/" + self + "/matchRequests"
}

func RequestPath(self, other string) string {
	return RequestsPath(self) + "/" + other
}

func validPair(self, other string) error {
	if !models.ValidUserID(self) || !models.ValidUserID(other) {
		return ErrInvalidUser
	}
	if self == other {
		return ErrSelfRequest
	}
	return nil
}

// Status returns self's record for other. An absent record has StatusAbsent.
func (l *Ledger) Status(ctx context.Context, self, other string) (models.MatchRequest, error) {
	if err := validPair(self, other); err != nil {
		return models.MatchRequest{}, err
	}
	var req models.MatchRequest
	if _, err := l.store.ReadOnce(ctx, RequestPath(self, other), &req); err != nil {
		return models.MatchRequest{}, fmt.Errorf("reading match request: %w", err)
	}
	return req, nil
}

func (l *Ledger) readPair(ctx context.Context, a, b string) (models.MatchRequest, models.MatchRequest, error) {
	ra, err := l.Status(ctx, a, b)
	if err != nil {
		return ra, models.MatchRequest{}, err
	}
	rb, err := l.Status(ctx, b, a)
	return ra, rb, err
}

// List returns every record under self, matched first, then received, then sent.
func (l *Ledger) List(ctx context.Context, self string) ([]models.LedgerEntry, error) {
	if !models.ValidUserID(self) {
		return nil, ErrInvalidUser
	}
	children, err := l.store.Children(ctx, RequestsPath(self))
	if err != nil {
		return nil, fmt.Errorf("listing match requests: %w", err)
	}

	entries := make([]models.LedgerEntry, 0, len(children))
	for _, c := range children {
		var req models.MatchRequest
		if err := c.Decode(&req); err != nil {
			logger.Warn("Skipping unreadable match request", "path", c.Path, "error", err)
			continue
		}
		entries = append(entries, models.LedgerEntry{OtherID: c.Key, Request: req})
	}
	return entries, nil
}

// Watch calls fn with self's record for other now and on every change. The
// caller must Close the subscription when it stops displaying the pair.
func (l *Ledger) Watch(ctx context.Context, self, other string, fn func(models.MatchRequest)) (storage.Subscription, error) {
	if err := validPair(self, other); err != nil {
		return nil, err
	}
	return l.store.Subscribe(ctx, RequestPath(self, other), func(s storage.Snapshot) {
		var req models.MatchRequest
		if s.Exists() {
			if err := s.Decode(&req); err != nil {
				logger.Warn("Ignoring unreadable match request", "path", s.Path, "error", err)
				return
			}
		}
		fn(req)
	})
}

// Interact runs the transition for self acting on target:
// absent sends, sent cancels, received accepts, matched returns the room.
func (l *Ledger) Interact(ctx context.Context, self, target string) (Result, error) {
	if err := validPair(self, target); err != nil {
		return Result{}, err
	}
	if _, err := l.Reconcile(ctx, self, target); err != nil {
		return Result{}, err
	}

	mine, err := l.Status(ctx, self, target)
	if err != nil {
		return Result{}, err
	}

	switch mine.Status {
	case models.StatusAbsent:
		if err := l.Send(ctx, self, target); err != nil {
			return Result{}, err
		}
		return Result{Status: models.StatusSent}, nil
	case models.StatusSent:
		if err := l.Cancel(ctx, self, target); err != nil {
			return Result{}, err
		}
		return Result{Status: models.StatusAbsent}, nil
	case models.StatusReceived:
		roomID, err := l.Accept(ctx, self, target)
		if err != nil {
			return Result{}, err
		}
		return Result{Status: models.StatusMatched, RoomID: roomID}, nil
	case models.StatusMatched:
		return Result{Status: models.StatusMatched, RoomID: MatchedRoomID(self, target, mine)}, nil
	default:
		return Result{}, fmt.Errorf("%w: unknown status %q", ErrInconsistentPair, mine.Status)
	}
}

// MatchedRoomID derives the room id from self's matched record.
func MatchedRoomID(self, other string, mine models.MatchRequest) string {
	if mine.Role == models.RoleSender {
		return models.RoomID(self, other)
	}
	return models.RoomID(other, self)
}

// Send writes the absent to sent/received pair.
func (l *Ledger) Send(ctx context.Context, self, target string) error {
	if err := validPair(self, target); err != nil {
		return err
	}
	mine, theirs, err := l.readPair(ctx, self, target)
	if err != nil {
		return err
	}
	if !mine.IsAbsent() || !theirs.IsAbsent() {
		return fmt.Errorf("%w: send needs no existing request, have %q", ErrInvalidTransition, mine.Status)
	}

	now := l.now().UnixMilli()
	err = l.store.Update(ctx, []storage.Mutation{
		storage.SetWithPriority(RequestPath(self, target),
			models.MatchRequest{Status: models.StatusSent, UpdatedAt: now}, config.PrioritySent),
		storage.SetWithPriority(RequestPath(target, self),
			models.MatchRequest{Status: models.StatusReceived, UpdatedAt: now}, config.PriorityReceived),
	})
	if err != nil {
		logger.Error("Failed to send match request", "user_id", self, "target_id", target, "error", err)
		return fmt.Errorf("sending match request: %w", err)
	}

	logger.Info("Match request sent", "user_id", self, "target_id", target)
	if l.notifier != nil {
		l.notifier.RequestReceived(ctx, self, target)
	}
	return nil
}

// Cancel withdraws an outstanding request, clearing both records.
func (l *Ledger) Cancel(ctx context.Context, self, target string) error {
	if err := validPair(self, target); err != nil {
		return err
	}
	mine, err := l.Status(ctx, self, target)
	if err != nil {
		return err
	}
	if mine.Status != models.StatusSent {
		return fmt.Errorf("%w: cancel needs %q, have %q", ErrInvalidTransition, models.StatusSent, mine.Status)
	}

	if err := l.clear(ctx, self, target); err != nil {
		return fmt.Errorf("cancelling match request: %w", err)
	}
	logger.Info("Match request cancelled", "user_id", self, "target_id", target)
	return nil
}

// Accept matches a received request. self becomes the recipient and target
// the sender, which fixes the room id as target_TO_self.
func (l *Ledger) Accept(ctx context.Context, self, target string) (string, error) {
	if err := validPair(self, target); err != nil {
		return "", err
	}
	mine, err := l.Status(ctx, self, target)
	if err != nil {
		return "", err
	}
	if mine.Status != models.StatusReceived {
		return "", fmt.Errorf("%w: accept needs %q, have %q", ErrInvalidTransition, models.StatusReceived, mine.Status)
	}

	if err := l.writeMatched(ctx, target, self); err != nil {
		return "", fmt.Errorf("accepting match request: %w", err)
	}

	roomID := models.RoomID(target, self)
	logger.Info("Match request accepted", "user_id", self, "target_id", target, "room_id", roomID)
	event.EmitLogged(ctx, l.emitter, event.New(event.TypeMatch, roomID, target, self))
	if l.notifier != nil {
		l.notifier.MatchFound(ctx, target, self, roomID)
	}
	return roomID, nil
}

func (l *Ledger) writeMatched(ctx context.Context, sender, recipient string) error {
	now := l.now().UnixMilli()
	return l.store.Update(ctx, []storage.Mutation{
		storage.SetWithPriority(RequestPath(sender, recipient),
			models.MatchRequest{Status: models.StatusMatched, Role: models.RoleSender, UpdatedAt: now}, config.PriorityMatched),
		storage.SetWithPriority(RequestPath(recipient, sender),
			models.MatchRequest{Status: models.StatusMatched, Role: models.RoleRecipient, UpdatedAt: now}, config.PriorityMatched),
	})
}

func (l *Ledger) clear(ctx context.Context, a, b string) error {
	return l.store.Update(ctx, []storage.Mutation{
		storage.Delete(RequestPath(a, b)),
		storage.Delete(RequestPath(b, a)),
	})
}

// Reset clears both records of the pair regardless of their state.
func (l *Ledger) Reset(ctx context.Context, a, b string) error {
	if err := validPair(a, b); err != nil {
		return err
	}
	if err := l.clear(ctx, a, b); err != nil {
		return fmt.Errorf("resetting match requests: %w", err)
	}
	return nil
}

// Consistent reports whether two mirrored records agree.
func Consistent(ab, ba models.MatchRequest) bool {
	switch {
	case ab.IsAbsent() && ba.IsAbsent():
		return true
	case ab.Status == models.StatusSent && ba.Status == models.StatusReceived,
		ab.Status == models.StatusReceived && ba.Status == models.StatusSent:
		return true
	case ab.Status == models.StatusMatched && ba.Status == models.StatusMatched:
		return (ab.Role == models.RoleSender && ba.Role == models.RoleRecipient) ||
			(ab.Role == models.RoleRecipient && ba.Role == models.RoleSender)
	}
	return false
}

// Reconcile repairs a pair left inconsistent by a partial write. If either side
// is matched the match is completed, keeping the role of the matched side (the
// smaller id wins when both are matched). Any other disagreement clears both.
// It reports whether a repair was made.
func (l *Ledger) Reconcile(ctx context.Context, a, b string) (bool, error) {
	if err := validPair(a, b); err != nil {
		return false, err
	}
	ab, ba, err := l.readPair(ctx, a, b)
	if err != nil {
		return false, err
	}
	if Consistent(ab, ba) {
		return false, nil
	}

	logger.Warn("Repairing inconsistent match requests", "user_id", a, "target_id", b,
		"status", ab.Status, "mirrored_status", ba.Status)

	anchor, anchorReq, other := "", models.MatchRequest{}, ""
	switch {
	case ab.Status == models.StatusMatched && ba.Status == models.StatusMatched:
		if a < b {
			anchor, anchorReq, other = a, ab, b
		} else {
			anchor, anchorReq, other = b, ba, a
		}
	case ab.Status == models.StatusMatched:
		anchor, anchorReq, other = a, ab, b
	case ba.Status == models.StatusMatched:
		anchor, anchorReq, other = b, ba, a
	}

	if anchor == "" {
		err = l.clear(ctx, a, b)
	} else if anchorReq.Role == models.RoleRecipient {
		err = l.writeMatched(ctx, other, anchor)
	} else {
		err = l.writeMatched(ctx, anchor, other)
	}
	if err != nil {
		return false, fmt.Errorf("repairing match requests: %w", err)
	}
	return true, nil
}
