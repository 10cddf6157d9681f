package event

// Exchange names
const (
	ExchangeMatchroomEvents = "matchroom_events"
	ExchangeTypeTopic       = "topic"
)

// Event types, also used as routing keys
const (
	TypeMatch      = "match"
	TypeRoomCreate = "room.create"
	TypeRoomClose  = "room.close"
)
