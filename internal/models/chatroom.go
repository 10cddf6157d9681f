package models

import (
	"strings"
	"time"
)

const roomIDSeparator = "_TO_"

// RoomID derives the chat room identifier from whoever held the sender role
// when the pair matched.
func RoomID(senderID, recipientID string) string {
	return senderID + roomIDSeparator + recipientID
}

// ValidUserID reports whether id can appear in store paths and room ids.
func ValidUserID(id string) bool {
	return id != "" && !strings.Contains(id, "/") && !strings.Contains(id, roomIDSeparator)
}

// ParseRoomID splits a room id back into sender and recipient.
func ParseRoomID(roomID string) (senderID, recipientID string, ok bool) {
	senderID, recipientID, ok = strings.Cut(roomID, roomIDSeparator)
	return senderID, recipientID, ok && ValidUserID(senderID) && ValidUserID(recipientID)
}

// ChatRoom is the live room record kept in the realtime store.
type ChatRoom struct {
	ID          string `json:"_id"`
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	// Titles maps participant id to their activity title at creation time.
	Titles map[string]string `json:"titles"`
}

// Participants returns both participant ids, sender first.
func (r *ChatRoom) Participants() []string {
	return []string{r.SenderID, r.RecipientID}
}

// HasParticipant reports whether userID is one of the two participants.
func (r *ChatRoom) HasParticipant(userID string) bool {
	return userID != "" && (userID == r.SenderID || userID == r.RecipientID)
}

// Partner returns the other participant's id.
func (r *ChatRoom) Partner(userID string) string {
	if userID == r.SenderID {
		return r.RecipientID
	}
	return r.SenderID
}

// RoomTimer holds the remaining room duration in milliseconds.
type RoomTimer struct {
	Value int64 `json:"value"`
}

// RoomRecord is the archived room row in PostgreSQL.
type RoomRecord struct {
	RoomID      string `gorm:"primaryKey"`
	SenderID    string `gorm:"index"`
	RecipientID string `gorm:"index"`
	IsActive    bool   `gorm:"index"`
	StartedAt   time.Time
	EndedAt     *time.Time
}

func (RoomRecord) TableName() string {
	return "chat_rooms"
}
