package store

import (
	"context"

	"github.com/pkg/errors"
)

// schema creates only what this service reads and writes. The events table
// belongs to the catalog; it is created here so a fresh database is usable.
const schema = `
CREATE TABLE IF NOT EXISTS events (
	event_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	asa_id BIGINT,
	organizer_wallet_address TEXT,
	venue_lat DOUBLE PRECISION,
	venue_lng DOUBLE PRECISION,
	radius_meters DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS tickets (
	id UUID PRIMARY KEY,
	user_address TEXT NOT NULL,
	event_id TEXT NOT NULL,
	asa_id BIGINT NOT NULL,
	txid TEXT NOT NULL UNIQUE,
	amount BIGINT NOT NULL DEFAULT 1,
	used BOOLEAN NOT NULL DEFAULT FALSE,
	used_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS tickets_user_address_idx ON tickets (user_address);

CREATE TABLE IF NOT EXISTS checkins (
	checkin_id UUID PRIMARY KEY,
	event_id TEXT NOT NULL,
	wallet_address TEXT NOT NULL,
	asa_id BIGINT,
	scanner_location_lat DOUBLE PRECISION,
	scanner_location_lng DOUBLE PRECISION,
	verified_by TEXT,
	timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT checkins_event_wallet_key UNIQUE (event_id, wallet_address)
);

CREATE TABLE IF NOT EXISTS qr_tokens (
	id UUID PRIMARY KEY,
	token TEXT NOT NULL,
	wallet_address TEXT NOT NULL,
	event_id TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS qr_tokens_expires_at_idx ON qr_tokens (expires_at);
`

// EnsureSchema applies the CREATE ... IF NOT EXISTS statements.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to create tables")
	}
	return nil
}
