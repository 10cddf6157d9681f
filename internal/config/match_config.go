package config

import "time"

const (
	// Room lifecycle
	DefaultRoomDurationMs = 300000
	TickDecrementMs       = 1000
	DefaultTickInterval   = time.Second

	// Ledger display ordering; lower sorts first
	PriorityMatched  = 100
	PriorityReceived = 200
	PrioritySent     = 300

	// Candidate filtering
	MilesToKilometers = 1.609
	EarthRadiusKm     = 6371.0

	// Local cache keys
	LocalKeyAccount = "account"
	LocalKeyFilters = "filters"
)

// DefaultGenderPreferences is used when a viewer has never saved filters.
var DefaultGenderPreferences = []string{"male", "female", "other"}

// DefaultPrivacy is used when a viewer has never saved filters.
var DefaultPrivacy = []string{"friends", "friends+", "all"}

const DefaultMaxSearchDistance = 10.0
