package models

// Event is owned by the event catalog; this service only reads it.
type Event struct {
	EventID                string   `json:"event_id" db:"event_id"`
	Name                   string   `json:"name" db:"name"`
	Description            string   `json:"description" db:"description"`
	AsaID                  uint64   `json:"asa_id" db:"asa_id"` // 0 means "use the configured default asset"
	OrganizerWalletAddress string   `json:"organizer_wallet_address" db:"organizer_wallet_address"`
	VenueLat               *float64 `json:"venue_lat,omitempty" db:"venue_lat"`
	VenueLng               *float64 `json:"venue_lng,omitempty" db:"venue_lng"`
	RadiusMeters           *float64 `json:"radius_meters,omitempty" db:"radius_meters"`
}

// HasVenue reports whether the event declares a geofence.
func (e *Event) HasVenue() bool {
	return e.VenueLat != nil && e.VenueLng != nil && e.RadiusMeters != nil && *e.RadiusMeters > 0
}

// EventSummary is the public slice of an event returned alongside a successful scan.
type EventSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
