package store

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authentix-backend/models"
)

type countingSource struct {
	calls int
	event *models.Event
	err   error
}

func (c *countingSource) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	c.calls++
	return c.event, c.err
}

func TestCachedEventsWithoutRedis(t *testing.T) {
	src := &countingSource{event: &models.Event{EventID: "evt-42", Name: "Demo"}}
	cache := NewCachedEvents(src, nil, time.Minute)

	ev, err := cache.GetEvent(context.Background(), "evt-42")
	require.NoError(t, err)
	assert.Equal(t, "Demo", ev.Name)
	assert.Equal(t, 1, src.calls)
}

func TestCachedEventsFallsBackWhenRedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	src := &countingSource{event: &models.Event{EventID: "evt-42", Name: "Demo"}}
	cache := NewCachedEvents(src, client, time.Minute)

	ev, err := cache.GetEvent(context.Background(), "evt-42")
	require.NoError(t, err)
	assert.Equal(t, "Demo", ev.Name)

	src.err = ErrNotFound
	src.event = nil
	_, err = cache.GetEvent(context.Background(), "evt-43")
	assert.ErrorIs(t, err, ErrNotFound)
}
