// Package storetest provides an in-memory store for tests. It enforces the
// same (event, wallet) check-in uniqueness as the database.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"authentix-backend/models"
	"authentix-backend/store"
)

type Memory struct {
	mu       sync.Mutex
	Events   map[string]*models.Event
	Tickets  []models.Ticket
	CheckIns map[string]models.CheckIn
	Tokens   []models.QRToken
	UsedAt   map[string]time.Time

	GetEventErr      error
	InsertTicketErr  error
	InsertCheckInErr error
	InsertTokenErr   error
}

func NewMemory(events ...*models.Event) *Memory {
	m := &Memory{
		Events:   map[string]*models.Event{},
		CheckIns: map[string]models.CheckIn{},
		UsedAt:   map[string]time.Time{},
	}
	for _, e := range events {
		m.Events[e.EventID] = e
	}
	return m
}

// ClaimKey is the key of CheckIns and UsedAt.
func ClaimKey(eventID, wallet string) string {
	return eventID + "|" + wallet
}

func (m *Memory) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetEventErr != nil {
		return nil, m.GetEventErr
	}
	e, ok := m.Events[eventID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *Memory) InsertTicket(ctx context.Context, ticket *models.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertTicketErr != nil {
		return m.InsertTicketErr
	}
	ticket.ID = uuid.New()
	m.Tickets = append(m.Tickets, *ticket)
	return nil
}

func (m *Memory) ListTicketsByWallet(ctx context.Context, address string) ([]models.WalletTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WalletTicket
	for _, t := range m.Tickets {
		if t.UserAddress != address {
			continue
		}
		wt := models.WalletTicket{Ticket: t}
		if e, ok := m.Events[t.EventID]; ok {
			wt.EventName = e.Name
		}
		_, wt.Used = m.UsedAt[ClaimKey(t.EventID, t.UserAddress)]
		out = append(out, wt)
	}
	return out, nil
}

func (m *Memory) HasCheckIn(ctx context.Context, eventID, walletAddress string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.CheckIns[ClaimKey(eventID, walletAddress)]
	return ok, nil
}

func (m *Memory) InsertCheckIn(ctx context.Context, checkIn *models.CheckIn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertCheckInErr != nil {
		return m.InsertCheckInErr
	}
	key := ClaimKey(checkIn.EventID, checkIn.WalletAddress)
	if _, ok := m.CheckIns[key]; ok {
		return store.ErrAlreadyCheckedIn
	}
	checkIn.ID = uuid.New()
	m.CheckIns[key] = *checkIn
	return nil
}

func (m *Memory) MarkTicketUsed(ctx context.Context, eventID, walletAddress string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UsedAt[ClaimKey(eventID, walletAddress)] = at
	return nil
}

func (m *Memory) ListCheckIns(ctx context.Context, eventID string) ([]models.CheckIn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CheckIn
	for _, c := range m.CheckIns {
		if c.EventID == eventID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) InsertQRToken(ctx context.Context, token *models.QRToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertTokenErr != nil {
		return m.InsertTokenErr
	}
	m.Tokens = append(m.Tokens, *token)
	return nil
}

func (m *Memory) DeleteExpiredQRTokens(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.Tokens[:0]
	var deleted int64
	for _, t := range m.Tokens {
		if t.ExpiresAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, t)
	}
	m.Tokens = kept
	return deleted, nil
}

func (m *Memory) CheckInCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CheckIns)
}

func (m *Memory) TicketCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Tickets)
}

func (m *Memory) TokenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Tokens)
}
