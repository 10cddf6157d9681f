package models

// Message is one chat line. Messages are never edited or deleted; a room's
// messages disappear only with the room itself.
type Message struct {
	Key        string `json:"key"`
	RoomID     string `json:"room_id"`
	SenderHash string `json:"sender"`
	Body       string `json:"body"`
	SentAt     int64  `json:"sent_at"`
}

// Client command types.
const (
	CommandInteract          = "interact"
	CommandCancel            = "cancel"
	CommandWatchRequest      = "watch_request"
	CommandUnwatchRequest    = "unwatch_request"
	CommandJoinRoom          = "join_room"
	CommandLeaveRoom         = "leave_room"
	CommandSendMessage       = "send_message"
	CommandRefreshCandidates = "refresh_candidates"
)

// Server event types.
const (
	EventRequestStatus = "request_status"
	EventRoomOpened    = "room_opened"
	EventTimer         = "timer"
	EventRoomClosed    = "room_closed"
	EventMessage       = "message"
	EventCandidates    = "candidates"
	EventError         = "error"
)

// ClientCommand is what a viewer sends over its websocket.
type ClientCommand struct {
	// SenderID is filled in by the hub from the authenticated connection.
	SenderID string `json:"-"`
	Type     string `json:"type"`
	TargetID string `json:"target_id,omitempty"`
	RoomID   string `json:"room_id,omitempty"`
	Body     string `json:"body,omitempty"`
	Query    string `json:"query,omitempty"`
	Shuffle  bool   `json:"shuffle,omitempty"`
}

// ServerEvent is pushed to a viewer.
type ServerEvent struct {
	Type       string        `json:"type"`
	TargetID   string        `json:"target_id,omitempty"`
	RoomID     string        `json:"room_id,omitempty"`
	Request    *MatchRequest `json:"request,omitempty"`
	Room       *ChatRoom     `json:"room,omitempty"`
	Remaining  *int64        `json:"remaining_ms,omitempty"`
	Message    *Message      `json:"message,omitempty"`
	Candidates []User        `json:"candidates,omitempty"`
	Error      string        `json:"error,omitempty"`
}
