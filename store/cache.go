package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"authentix-backend/models"
)

// EventSource loads events by id.
type EventSource interface {
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
}

// RedisOptions configures the event cache connection.
type RedisOptions struct {
	Address  string
	Password string
	DB       int
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}
	return client, nil
}

// CachedEvents is a read-through cache in front of an EventSource.
// Cache failures degrade to the source; a missing event is never cached.
type CachedEvents struct {
	next   EventSource
	client *redis.Client
	ttl    time.Duration
}

// NewCachedEvents wraps next. A nil client disables caching.
func NewCachedEvents(next EventSource, client *redis.Client, ttl time.Duration) *CachedEvents {
	return &CachedEvents{next: next, client: client, ttl: ttl}
}

func eventKey(eventID string) string {
	return "authentix:event:" + eventID
}

func (c *CachedEvents) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	if c.client == nil {
		return c.next.GetEvent(ctx, eventID)
	}

	data, err := c.client.Get(ctx, eventKey(eventID)).Bytes()
	switch {
	case err == nil:
		var event models.Event
		if jsonErr := json.Unmarshal(data, &event); jsonErr == nil {
			return &event, nil
		}
		log.Warn().Str("event_id", eventID).Msg("Discarding undecodable cached event")
	case err != redis.Nil:
		log.Warn().Err(err).Str("event_id", eventID).Msg("Event cache read failed, falling back to database")
	}

	event, err := c.next.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(event); err == nil {
		if err := c.client.Set(ctx, eventKey(eventID), data, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("event_id", eventID).Msg("Event cache write failed")
		}
	}
	return event, nil
}
