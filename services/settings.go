// Package services holds the purchase and verification flows and the
// supporting operations around them.
package services

import (
	"context"
	"time"

	"authentix-backend/config"
	"authentix-backend/models"
)

// Settings is the injected configuration of the orchestrators.
// Nothing in this package reads the environment.
type Settings struct {
	OrganizerAddress  string
	OrganizerMnemonic string
	DefaultAsaID      uint64
	PriceMicroAlgos   uint64
	// MaxOrganizerFee is the highest fee, in microAlgos, the organizer key
	// will sign for. 0 means DefaultMaxOrganizerFee.
	MaxOrganizerFee uint64

	QRTTL       time.Duration
	QRTolerance time.Duration

	ConfirmationRounds  uint64
	ConfirmationTimeout time.Duration
	// TimeoutIsSuccess favours availability: a submitted purchase whose
	// confirmation is still unknown at the deadline is reported as a success.
	TimeoutIsSuccess bool

	EnforceGeofence bool
}

func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		OrganizerAddress:    cfg.Organizer.WalletAddress,
		OrganizerMnemonic:   cfg.Organizer.Mnemonic,
		DefaultAsaID:        cfg.Ticket.DefaultAsaID,
		PriceMicroAlgos:     cfg.Ticket.PriceMicroAlgos,
		MaxOrganizerFee:     cfg.Ticket.MaxOrganizerFee,
		QRTTL:               cfg.QR.TTL,
		QRTolerance:         cfg.QR.Tolerance,
		ConfirmationRounds:  cfg.Confirmation.MaxRounds,
		ConfirmationTimeout: cfg.Confirmation.Timeout,
		TimeoutIsSuccess:    cfg.Confirmation.TimeoutIsSuccess,
		EnforceGeofence:     cfg.Geofence.Enforce,
	}
}

type EventReader interface {
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
}

type TicketStore interface {
	InsertTicket(ctx context.Context, ticket *models.Ticket) error
	ListTicketsByWallet(ctx context.Context, address string) ([]models.WalletTicket, error)
}

// CheckInStore must make InsertCheckIn atomic per (event, wallet) and
// report the losing side of a race as store.ErrAlreadyCheckedIn.
type CheckInStore interface {
	HasCheckIn(ctx context.Context, eventID, walletAddress string) (bool, error)
	InsertCheckIn(ctx context.Context, checkIn *models.CheckIn) error
	MarkTicketUsed(ctx context.Context, eventID, walletAddress string, at time.Time) error
	ListCheckIns(ctx context.Context, eventID string) ([]models.CheckIn, error)
}

type TokenStore interface {
	InsertQRToken(ctx context.Context, token *models.QRToken) error
	DeleteExpiredQRTokens(ctx context.Context, before time.Time) (int64, error)
}
