package models

// MatchStatus is one side's view of a match request between two users.
type MatchStatus string

const (
	StatusAbsent   MatchStatus = ""
	StatusSent     MatchStatus = "sent"
	StatusReceived MatchStatus = "received"
	StatusMatched  MatchStatus = "matched"
)

// MatchRole records which side initiated once a pair is matched.
type MatchRole string

const (
	RoleSender    MatchRole = "sender"
	RoleRecipient MatchRole = "recipient"
)

// MatchRequest is the record stored under one participant, keyed by the other.
type MatchRequest struct {
	Status MatchStatus `json:"status"`
	// Role is set only when Status is StatusMatched.
	Role MatchRole `json:"role,omitempty"`
	// UpdatedAt is a unix millisecond timestamp.
	UpdatedAt int64 `json:"updatedAt"`
}

func (r MatchRequest) IsAbsent() bool { return r.Status == StatusAbsent }

// LedgerEntry is a MatchRequest together with the other participant's id.
type LedgerEntry struct {
	OtherID string       `json:"other_id"`
	Request MatchRequest `json:"request"`
}
