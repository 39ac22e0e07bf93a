package services

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"authentix-backend/models"
	"authentix-backend/store"
)

func eventError(err error, eventID string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Event not found")
	}
	log.Error().Err(err).Str("event_id", eventID).Msg("Failed to load event")
	return internal("Failed to load event")
}

// EventService is the read side of the event catalog.
type EventService struct {
	events EventReader
}

func NewEventService(events EventReader) *EventService {
	return &EventService{events: events}
}

func (s *EventService) Get(ctx context.Context, eventID string) (*models.Event, error) {
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, eventError(err, eventID)
	}
	return event, nil
}
