package services

import (
	"math"

	"authentix-backend/models"
)

const earthRadiusMeters = 6371000.0

// distanceMeters is the haversine great-circle distance.
func distanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// withinVenue reports false only when both the venue and the scanner
// position are known and the scanner is farther than the venue radius.
func withinVenue(event *models.Event, lat, lng *float64) bool {
	if !event.HasVenue() || lat == nil || lng == nil {
		return true
	}
	return distanceMeters(*event.VenueLat, *event.VenueLng, *lat, *lng) <= *event.RadiusMeters
}
