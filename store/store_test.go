package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authentix-backend/models"
)

// fakeRow replays scan values or an error.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *bool:
			*p = r.values[i].(bool)
		case **int64:
			*p = r.values[i].(*int64)
		case **float64:
			*p = r.values[i].(*float64)
		}
	}
	return nil
}

type execCall struct {
	sql  string
	args []any
}

// fakeDB records Exec calls and answers QueryRow from a fixed row.
type fakeDB struct {
	row     fakeRow
	execTag pgconn.CommandTag
	execErr error
	execs   []execCall
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return f.execTag, f.execErr
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return f.row
}

func TestGetEvent(t *testing.T) {
	asa := int64(777)
	radius := 150.0
	db := &fakeDB{row: fakeRow{values: []any{"evt-42", "Demo Night", "desc", &asa, "ORG", (*float64)(nil), (*float64)(nil), &radius}}}
	s := New(db)

	event, err := s.GetEvent(context.Background(), "evt-42")
	require.NoError(t, err)
	assert.Equal(t, "Demo Night", event.Name)
	assert.Equal(t, uint64(777), event.AsaID)
	assert.False(t, event.HasVenue())
}

func TestGetEventNullAsaMeansUnset(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{"evt-1", "n", "", (*int64)(nil), "", (*float64)(nil), (*float64)(nil), (*float64)(nil)}}}
	event, err := New(db).GetEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Zero(t, event.AsaID)
}

func TestGetEventNotFound(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	_, err := New(db).GetEvent(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHasCheckIn(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []any{true}}}
	ok, err := New(db).HasCheckIn(context.Background(), "evt-42", "ADDR1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInsertCheckInUniqueViolation(t *testing.T) {
	db := &fakeDB{execErr: &pgconn.PgError{Code: "23505", ConstraintName: "checkins_event_wallet_key"}}
	err := New(db).InsertCheckIn(context.Background(), &models.CheckIn{EventID: "evt-42", WalletAddress: "ADDR1"})
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
}

func TestInsertCheckInOtherErrorIsNotAClaimLoss(t *testing.T) {
	db := &fakeDB{execErr: &pgconn.PgError{Code: "53300"}}
	err := New(db).InsertCheckIn(context.Background(), &models.CheckIn{EventID: "evt-42", WalletAddress: "ADDR1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyCheckedIn)
}

func TestInsertCheckInFillsDefaults(t *testing.T) {
	db := &fakeDB{}
	lat, lng := 1.5, 2.5
	c := &models.CheckIn{EventID: "evt-42", WalletAddress: "ADDR1", AsaID: 9, ScannerLat: &lat, ScannerLng: &lng}
	require.NoError(t, New(db).InsertCheckIn(context.Background(), c))

	assert.NotEqual(t, [16]byte{}, [16]byte(c.ID))
	assert.False(t, c.Timestamp.IsZero())
	require.Len(t, db.execs, 1)
	assert.Equal(t, int64(9), db.execs[0].args[3])
	assert.Equal(t, &lat, db.execs[0].args[4])
}

func TestInsertTicket(t *testing.T) {
	db := &fakeDB{}
	ticket := &models.Ticket{UserAddress: "ADDR1", EventID: "evt-42", AsaID: 5, TxID: "TX1", Amount: 1}
	require.NoError(t, New(db).InsertTicket(context.Background(), ticket))
	require.Len(t, db.execs, 1)
	assert.Equal(t, "TX1", db.execs[0].args[4])
}

func TestDeleteExpiredQRTokens(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("DELETE 3")}
	now := time.Now()
	n, err := New(db).DeleteExpiredQRTokens(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, now, db.execs[0].args[0])
}

func TestEnsureSchemaDeclaresSingleUseConstraint(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, New(db).EnsureSchema(context.Background()))
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "UNIQUE (event_id, wallet_address)")
}
