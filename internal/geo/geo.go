// Package geo holds spherical distance helpers used by candidate filtering.
package geo

import (
	"matchroom/backend/internal/config"
	"matchroom/backend/internal/models"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

func latLng(c models.Coordinates) s2.LatLng {
	return s2.LatLngFromDegrees(c.Latitude, c.Longitude)
}

// Distance returns the great-circle distance between a and b in kilometers.
func Distance(a, b models.Coordinates) float64 {
	return latLng(a).Distance(latLng(b)).Radians() * config.EarthRadiusKm
}

// MilesToKm converts a search radius in miles to kilometers.
func MilesToKm(miles float64) float64 {
	return miles * config.MilesToKilometers
}

// Within reports whether b lies within radiusKm of a.
func Within(a, b models.Coordinates, radiusKm float64) bool {
	radius := s1.Angle(radiusKm/config.EarthRadiusKm) * s1.Radian
	return latLng(a).Distance(latLng(b)) <= radius
}
