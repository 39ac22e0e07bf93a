package services

import (
	"github.com/pkg/errors"

	"authentix-backend/models"
)

// ErrAssetNotConfigured means neither the event nor the process default names a ticket asset.
var ErrAssetNotConfigured = errors.New("event asset id not configured")

// ResolveAssetID prefers the event's own asset and falls back to defaultAsaID.
// It fails closed when both are unset.
func ResolveAssetID(event *models.Event, defaultAsaID uint64) (uint64, error) {
	if event != nil && event.AsaID != 0 {
		return event.AsaID, nil
	}
	if defaultAsaID != 0 {
		return defaultAsaID, nil
	}
	return 0, ErrAssetNotConfigured
}
