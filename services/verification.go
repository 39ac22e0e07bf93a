package services

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"authentix-backend/ledger"
	"authentix-backend/models"
	"authentix-backend/qrtoken"
	"authentix-backend/store"
)

// RejectReason classifies a failed scan.
type RejectReason string

const (
	ReasonMalformed            RejectReason = "MALFORMED"
	ReasonExpiredOrInvalid     RejectReason = "EXPIRED_OR_INVALID"
	ReasonEventNotFound        RejectReason = "EVENT_NOT_FOUND"
	ReasonAlreadyUsed          RejectReason = "ALREADY_USED"
	ReasonOwnershipCheckFailed RejectReason = "OWNERSHIP_CHECK_FAILED"
	ReasonNotOwned             RejectReason = "NOT_OWNED"
	ReasonPersistenceFailed    RejectReason = "PERSISTENCE_FAILED"
	ReasonOutsideVenue         RejectReason = "OUTSIDE_VENUE"
)

const maskedPrefixLen = 8

type VerificationService struct {
	codec    *qrtoken.Codec
	events   EventReader
	checkIns CheckInStore
	ledger   *ledger.Client
	settings Settings
	now      func() time.Time
}

type VerificationOption func(*VerificationService)

// WithVerificationClock overrides the clock used for check-in timestamps.
func WithVerificationClock(now func() time.Time) VerificationOption {
	return func(s *VerificationService) { s.now = now }
}

func NewVerificationService(codec *qrtoken.Codec, events EventReader, checkIns CheckInStore, lc *ledger.Client, settings Settings, opts ...VerificationOption) *VerificationService {
	s := &VerificationService{
		codec:    codec,
		events:   events,
		checkIns: checkIns,
		ledger:   lc,
		settings: settings,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func reject(reason RejectReason, message string) *models.VerifyResponse {
	return &models.VerifyResponse{Valid: false, Reason: string(reason), Error: message}
}

// Verify runs one scan through the check-in protocol. Every outcome is a
// response; only a malformed payload is meant to become a 4xx.
func (s *VerificationService) Verify(ctx context.Context, req models.VerifyRequest) *models.VerifyResponse {
	p := req.QRPayload
	if p == nil || p.WalletAddress == "" || p.EventID == "" || p.Expires <= 0 || p.Token == "" {
		return reject(ReasonMalformed, "Invalid QR code format")
	}
	logger := log.With().Str("wallet", p.WalletAddress).Str("event_id", p.EventID).Logger()

	if res := s.codec.Validate(*p, s.settings.QRTolerance); !res.Valid {
		logger.Info().Str("token_result", string(res.Reason)).Msg("Rejected QR token")
		return reject(ReasonExpiredOrInvalid, "QR code has expired or is invalid. "+tokenDiagnostic(res))
	}

	event, err := s.events.GetEvent(ctx, p.EventID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Error().Err(err).Msg("Event lookup failed")
		}
		return reject(ReasonEventNotFound, "Event not found")
	}

	// Fast path only; the insert below is what actually claims the ticket.
	used, err := s.checkIns.HasCheckIn(ctx, p.EventID, p.WalletAddress)
	if err != nil {
		logger.Warn().Err(err).Msg("Check-in lookup failed, relying on insert")
	} else if used {
		return reject(ReasonAlreadyUsed, "Ticket has already been used")
	}

	asaID, err := ResolveAssetID(event, s.settings.DefaultAsaID)
	if err != nil {
		return reject(ReasonOwnershipCheckFailed, "Event ASA ID not configured")
	}
	balance, err := s.ledger.QueryAssetBalance(ctx, p.WalletAddress, asaID)
	if err != nil {
		logger.Error().Err(err).Uint64("asa_id", asaID).Msg("Error checking asset ownership")
		return reject(ReasonOwnershipCheckFailed, fmt.Sprintf("Ownership check failed: %v", err))
	}
	if balance < 1 {
		return reject(ReasonNotOwned, "Ticket is no longer owned by this wallet")
	}

	if s.settings.EnforceGeofence && !withinVenue(event, req.ScannerLat, req.ScannerLng) {
		return reject(ReasonOutsideVenue, "Scanner is outside the event venue")
	}

	now := s.now().UTC()
	checkIn := &models.CheckIn{
		EventID:       p.EventID,
		WalletAddress: p.WalletAddress,
		AsaID:         asaID,
		ScannerLat:    req.ScannerLat,
		ScannerLng:    req.ScannerLng,
		VerifiedBy:    req.VerifiedBy,
		Timestamp:     now,
	}
	if err := s.checkIns.InsertCheckIn(ctx, checkIn); err != nil {
		if errors.Is(err, store.ErrAlreadyCheckedIn) {
			return reject(ReasonAlreadyUsed, "Ticket has already been used")
		}
		logger.Error().Err(err).Msg("Error creating check-in record")
		return reject(ReasonPersistenceFailed, "Failed to process check-in")
	}

	if err := s.checkIns.MarkTicketUsed(ctx, p.EventID, p.WalletAddress, now); err != nil {
		logger.Warn().Err(err).Msg("Failed to flag ticket as used")
	}

	logger.Info().Str("checkin_id", checkIn.ID.String()).Msg("Ticket verified")

	return &models.VerifyResponse{
		Valid:     true,
		Name:      maskedName(p.WalletAddress),
		Address:   p.WalletAddress,
		Event:     &models.EventSummary{Name: event.Name, Description: event.Description},
		Message:   "Ticket verified successfully",
		Timestamp: now.Format(time.RFC3339Nano),
	}
}

// ListCheckIns returns the event's check-ins, newest first.
func (s *VerificationService) ListCheckIns(ctx context.Context, eventID string) ([]models.CheckIn, error) {
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("Event not found")
		}
		return nil, internal("Database error")
	}
	checkIns, err := s.checkIns.ListCheckIns(ctx, eventID)
	if err != nil {
		log.Error().Err(err).Str("event_id", eventID).Msg("Failed to list check-ins")
		return nil, internal("Database error")
	}
	if checkIns == nil {
		checkIns = []models.CheckIn{}
	}
	return checkIns, nil
}

func tokenDiagnostic(res qrtoken.Result) string {
	switch {
	case res.Reason == qrtoken.ReasonExpired && res.ExpiredFor > 0:
		return fmt.Sprintf("Expired %.1fs ago", res.ExpiredFor.Seconds())
	case res.Reason == qrtoken.ReasonExpired:
		return "Expiry outside the accepted window"
	case res.Reason == qrtoken.ReasonMalformed:
		return "Malformed token"
	default:
		return "Token mismatch"
	}
}

func maskedName(address string) string {
	if len(address) > maskedPrefixLen {
		address = address[:maskedPrefixLen]
	}
	return fmt.Sprintf("User %s...", address)
}
