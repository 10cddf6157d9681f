// Package filter narrows the user directory to the candidates a viewer may see.
// Everything here is pure: no I/O, no shared state.
package filter

import (
	"matchroom/backend/internal/config"
	"matchroom/backend/internal/geo"
	"matchroom/backend/internal/models"
	"matchroom/backend/internal/textutil"

	"github.com/samber/lo"
)

// Effective fills unset preference fields with the service defaults.
func Effective(prefs models.MatchingPreferences) models.MatchingPreferences {
	if prefs.MaxSearchDistance <= 0 {
		prefs.MaxSearchDistance = config.DefaultMaxSearchDistance
	}
	if len(prefs.Genders) == 0 {
		prefs.Genders = append([]string(nil), config.DefaultGenderPreferences...)
	}
	if len(prefs.Privacy) == 0 {
		prefs.Privacy = append([]string(nil), config.DefaultPrivacy...)
	}
	return prefs
}

// FriendsOnly reports whether the tier is exactly {friends}.
func FriendsOnly(privacy []string) bool {
	uniq := lo.Uniq(privacy)
	return len(uniq) == 1 && uniq[0] == models.PrivacyFriends
}

// GenderAccepted applies the gender gate. Genders outside male/female are
// accepted when "other" is preferred.
func GenderAccepted(gender string, preferred []string) bool {
	if lo.Contains(preferred, gender) {
		return true
	}
	return gender != models.GenderMale &&
		gender != models.GenderFemale &&
		lo.Contains(preferred, models.GenderOther)
}

// Candidates returns the users visible to viewer, preserving input order.
func Candidates(users []models.User, viewer *models.User) []models.User {
	prefs := Effective(viewer.Preferences)
	radiusKm := geo.MilesToKm(prefs.MaxSearchDistance)
	friendsOnly := FriendsOnly(prefs.Privacy)

	return lo.Filter(users, func(u models.User, _ int) bool {
		if u.ID == viewer.ID {
			return false
		}
		if friendsOnly && !lo.Contains(viewer.Friends, u.Name) {
			return false
		}
		if !geo.Within(viewer.Location, u.Location, radiusKm) {
			return false
		}
		return GenderAccepted(u.Gender, prefs.Genders)
	})
}

// Search keeps users whose activity title or first name contains query,
// case-insensitively. An empty query keeps everyone.
func Search(users []models.User, query string) []models.User {
	if query == "" {
		return users
	}
	return lo.Filter(users, func(u models.User, _ int) bool {
		return textutil.ContainsFold(u.Activity.Title, query) ||
			textutil.ContainsFold(u.FirstName(), query)
	})
}

// Shuffle returns a random permutation of users. The input is not modified.
func Shuffle(users []models.User) []models.User {
	out := make([]models.User, len(users))
	copy(out, users)
	return lo.Shuffle(out)
}
