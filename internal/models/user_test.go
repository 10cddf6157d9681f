package models_test

import (
	"matchroom/backend/internal/models"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

// TestUserBeforeCreate_GeneratesUUID verifies that the BeforeCreate hook generates a valid UUID.
func TestUserBeforeCreate_GeneratesUUID(t *testing.T) {
	user := &models.User{
		Name:   "Ada Lovelace",
		Gender: models.GenderFemale,
		Preferences: models.MatchingPreferences{
			MaxSearchDistance: 5,
			Genders:           pq.StringArray{models.GenderMale},
		},
	}

	assert.Empty(t, user.ID, "User ID should be empty before BeforeCreate")

	err := user.BeforeCreate(nil) // nil *gorm.DB is acceptable for this hook

	assert.NoError(t, err)
	parsed, parseErr := uuid.Parse(user.ID)
	assert.NoError(t, parseErr, "User ID must be a valid UUID string")
	assert.NotEqual(t, uuid.Nil, parsed)
}

// TestUserBeforeCreate_PreservesExistingID verifies that the hook doesn't overwrite an existing ID.
func TestUserBeforeCreate_PreservesExistingID(t *testing.T) {
	existingID := uuid.New().String()
	user := &models.User{ID: existingID, Name: "Grace"}

	err := user.BeforeCreate(nil)

	assert.NoError(t, err)
	assert.Equal(t, existingID, user.ID)
}

func TestUserFirstName(t *testing.T) {
	tests := []struct {
		name     string
		fullName string
		want     string
	}{
		{"Two words", "Ada Lovelace", "Ada"},
		{"Single word", "Grace", "Grace"},
		{"Leading spaces", "   Alan  Turing", "Alan"},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := models.User{Name: tt.fullName}
			assert.Equal(t, tt.want, u.FirstName())
		})
	}
}

// TestUserStructTags verifies that struct tags are correctly defined for GORM and JSON.
func TestUserStructTags(t *testing.T) {
	userType := reflect.TypeOf(models.User{})

	idField, found := userType.FieldByName("ID")
	assert.True(t, found)
	assert.Contains(t, idField.Tag.Get("gorm"), "primaryKey")
	assert.Contains(t, idField.Tag.Get("json"), "id")

	prefField, found := userType.FieldByName("Preferences")
	assert.True(t, found)
	assert.Contains(t, prefField.Tag.Get("gorm"), "embedded")

	friendsField, found := userType.FieldByName("Friends")
	assert.True(t, found)
	assert.Contains(t, friendsField.Tag.Get("gorm"), "type:text[]")

	tgField, found := userType.FieldByName("TelegramID")
	assert.True(t, found)
	assert.Equal(t, "-", tgField.Tag.Get("json"), "TelegramID must never be serialized")
}

func TestRoomID(t *testing.T) {
	assert.Equal(t, "alice_TO_bob", models.RoomID("alice", "bob"))
	assert.NotEqual(t, models.RoomID("alice", "bob"), models.RoomID("bob", "alice"))
}

func TestParseRoomID(t *testing.T) {
	sender, recipient, ok := models.ParseRoomID(models.RoomID("alice", "bob"))
	assert.True(t, ok)
	assert.Equal(t, "alice", sender)
	assert.Equal(t, "bob", recipient)

	_, _, ok = models.ParseRoomID("alice")
	assert.False(t, ok)
	_, _, ok = models.ParseRoomID("_TO_bob")
	assert.False(t, ok)
	_, _, ok = models.ParseRoomID("x_TO_y_TO_zed")
	assert.False(t, ok)
}

func TestValidUserID(t *testing.T) {
	assert.True(t, models.ValidUserID("alice"))
	assert.True(t, models.ValidUserID("to_bob"))
	assert.False(t, models.ValidUserID(""))
	assert.False(t, models.ValidUserID("a/b"))
	assert.False(t, models.ValidUserID("x_TO_y"))
}

func TestChatRoomParticipants(t *testing.T) {
	room := &models.ChatRoom{ID: models.RoomID("a", "b"), SenderID: "a", RecipientID: "b"}

	assert.Equal(t, []string{"a", "b"}, room.Participants())
	assert.True(t, room.HasParticipant("a"))
	assert.True(t, room.HasParticipant("b"))
	assert.False(t, room.HasParticipant("c"))
	assert.False(t, room.HasParticipant(""))
	assert.Equal(t, "b", room.Partner("a"))
	assert.Equal(t, "a", room.Partner("b"))
}

func BenchmarkUserBeforeCreate(b *testing.B) {
	user := &models.User{Name: "benchmark_user"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		user.ID = ""
		_ = user.BeforeCreate(nil)
	}
}
