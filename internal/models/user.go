package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Gender values stored on User.Gender and in MatchingPreferences.Genders.
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

// Privacy tiers. A viewer's tier is an ordered set of these values.
const (
	PrivacyFriends     = "friends"
	PrivacyFriendsPlus = "friends+"
	PrivacyAll         = "all"
)

// Coordinates is a WGS84 position in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ActivityPreference is what the user currently wants to do.
type ActivityPreference struct {
	Title     string         `json:"title"`
	StartTime time.Time      `json:"start_time"`
	Status    string         `json:"status"`
	Tags      pq.StringArray `gorm:"type:text[]" json:"tags"`
}

// MatchingPreferences narrows which candidates a user sees.
type MatchingPreferences struct {
	// MaxSearchDistance is in miles.
	MaxSearchDistance float64        `json:"max_search_distance"`
	Genders           pq.StringArray `gorm:"type:text[]" json:"genders"`
	Privacy           pq.StringArray `gorm:"type:text[]" json:"privacy"`
}

// User is a registered account. Users are never deleted by this service.
type User struct {
	ID          string              `gorm:"primaryKey" json:"id"`
	Name        string              `json:"name"`
	PictureURL  string              `json:"picture_url"`
	Gender      string              `gorm:"index" json:"gender"`
	AgeRange    string              `json:"age_range"`
	Location    Coordinates         `gorm:"embedded;embeddedPrefix:loc_" json:"location"`
	Activity    ActivityPreference  `gorm:"embedded;embeddedPrefix:activity_" json:"activity"`
	Bio         string              `gorm:"type:text" json:"bio"`
	Preferences MatchingPreferences `gorm:"embedded;embeddedPrefix:pref_" json:"preferences"`
	// Friends holds friend display names.
	Friends    pq.StringArray `gorm:"type:text[]" json:"friends"`
	TelegramID int64          `gorm:"index" json:"-"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// BeforeCreate generates a UUID for the user if ID is not set yet.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// FirstName returns the first word of the display name.
func (u *User) FirstName() string {
	fields := strings.Fields(u.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
