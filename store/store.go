// Package store persists tickets, check-ins and issued QR tokens in Postgres
// and reads events owned by the catalog.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"authentix-backend/models"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

var (
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyCheckedIn is the single-use claim losing to an earlier claim.
	ErrAlreadyCheckedIn = errors.New("ticket already checked in")
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db DBTX
}

func New(db DBTX) *Store {
	return &Store{db: db}
}

// Connect opens a pool and checks it with a ping.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create database pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	return pool, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *Store) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	query := `
		SELECT event_id, name, COALESCE(description, ''), asa_id, COALESCE(organizer_wallet_address, ''),
		       venue_lat, venue_lng, radius_meters
		FROM events
		WHERE event_id = $1
	`
	var event models.Event
	var asaID *int64
	err := s.db.QueryRow(ctx, query, eventID).Scan(
		&event.EventID,
		&event.Name,
		&event.Description,
		&asaID,
		&event.OrganizerWalletAddress,
		&event.VenueLat,
		&event.VenueLng,
		&event.RadiusMeters,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to load event")
	}
	if asaID != nil && *asaID > 0 {
		event.AsaID = uint64(*asaID)
	}
	return &event, nil
}

func (s *Store) InsertTicket(ctx context.Context, ticket *models.Ticket) error {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO tickets (id, user_address, event_id, asa_id, txid, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.Exec(ctx, query,
		ticket.ID,
		ticket.UserAddress,
		ticket.EventID,
		int64(ticket.AsaID),
		ticket.TxID,
		int64(ticket.Amount),
		ticket.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert ticket")
	}
	return nil
}

// ListTicketsByWallet returns the wallet's tickets, newest first, with event names.
func (s *Store) ListTicketsByWallet(ctx context.Context, address string) ([]models.WalletTicket, error) {
	query := `
		SELECT t.id, t.user_address, t.event_id, t.asa_id, t.txid, t.amount, t.created_at, t.used, COALESCE(e.name, '')
		FROM tickets t
		LEFT JOIN events e ON e.event_id = t.event_id
		WHERE t.user_address = $1
		ORDER BY t.created_at DESC
	`
	rows, err := s.db.Query(ctx, query, address)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query tickets")
	}
	defer rows.Close()

	var tickets []models.WalletTicket
	for rows.Next() {
		var t models.WalletTicket
		var asaID, amount int64
		if err := rows.Scan(&t.ID, &t.UserAddress, &t.EventID, &asaID, &t.TxID, &amount, &t.CreatedAt, &t.Used, &t.EventName); err != nil {
			return nil, errors.Wrap(err, "failed to scan ticket")
		}
		t.AsaID = uint64(asaID)
		t.Amount = uint64(amount)
		tickets = append(tickets, t)
	}
	return tickets, errors.Wrap(rows.Err(), "failed to iterate tickets")
}

// HasCheckIn is a fast-path read. It is not the single-use guarantee; InsertCheckIn is.
func (s *Store) HasCheckIn(ctx context.Context, eventID, walletAddress string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM checkins WHERE event_id = $1 AND wallet_address = $2)",
		eventID, walletAddress,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check existing check-in")
	}
	return exists, nil
}

// InsertCheckIn claims the ticket. The unique index on (event_id, wallet_address)
// decides concurrent claims; the loser gets ErrAlreadyCheckedIn.
func (s *Store) InsertCheckIn(ctx context.Context, checkIn *models.CheckIn) error {
	if checkIn.ID == uuid.Nil {
		checkIn.ID = uuid.New()
	}
	if checkIn.Timestamp.IsZero() {
		checkIn.Timestamp = time.Now().UTC()
	}
	query := `
		INSERT INTO checkins (checkin_id, event_id, wallet_address, asa_id, scanner_location_lat, scanner_location_lng, verified_by, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
	`
	_, err := s.db.Exec(ctx, query,
		checkIn.ID,
		checkIn.EventID,
		checkIn.WalletAddress,
		int64(checkIn.AsaID),
		checkIn.ScannerLat,
		checkIn.ScannerLng,
		checkIn.VerifiedBy,
		checkIn.Timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyCheckedIn
		}
		return errors.Wrap(err, "failed to insert check-in")
	}
	return nil
}

// MarkTicketUsed flags the wallet's tickets for the event as used.
func (s *Store) MarkTicketUsed(ctx context.Context, eventID, walletAddress string, at time.Time) error {
	_, err := s.db.Exec(ctx,
		"UPDATE tickets SET used = TRUE, used_at = $1 WHERE event_id = $2 AND user_address = $3 AND used = FALSE",
		at, eventID, walletAddress,
	)
	return errors.Wrap(err, "failed to mark ticket used")
}

func (s *Store) ListCheckIns(ctx context.Context, eventID string) ([]models.CheckIn, error) {
	query := `
		SELECT checkin_id, event_id, wallet_address, COALESCE(asa_id, 0), scanner_location_lat, scanner_location_lng,
		       COALESCE(verified_by, ''), timestamp
		FROM checkins
		WHERE event_id = $1
		ORDER BY timestamp DESC
	`
	rows, err := s.db.Query(ctx, query, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query check-ins")
	}
	defer rows.Close()

	var checkIns []models.CheckIn
	for rows.Next() {
		var c models.CheckIn
		var asaID int64
		if err := rows.Scan(&c.ID, &c.EventID, &c.WalletAddress, &asaID, &c.ScannerLat, &c.ScannerLng, &c.VerifiedBy, &c.Timestamp); err != nil {
			return nil, errors.Wrap(err, "failed to scan check-in")
		}
		c.AsaID = uint64(asaID)
		checkIns = append(checkIns, c)
	}
	return checkIns, errors.Wrap(rows.Err(), "failed to iterate check-ins")
}

func (s *Store) InsertQRToken(ctx context.Context, token *models.QRToken) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx,
		"INSERT INTO qr_tokens (id, token, wallet_address, event_id, expires_at) VALUES ($1, $2, $3, $4, $5)",
		token.ID, token.Token, token.WalletAddress, token.EventID, token.ExpiresAt,
	)
	return errors.Wrap(err, "failed to insert qr token")
}

// DeleteExpiredQRTokens removes tokens that expired before the given instant.
func (s *Store) DeleteExpiredQRTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, "DELETE FROM qr_tokens WHERE expires_at < $1", before)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete expired qr tokens")
	}
	return tag.RowsAffected(), nil
}
