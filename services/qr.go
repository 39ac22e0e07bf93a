package services

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"authentix-backend/ledger"
	"authentix-backend/models"
	"authentix-backend/qrtoken"
)

// QRService issues rotating check-in credentials to current ticket holders.
type QRService struct {
	codec    *qrtoken.Codec
	events   EventReader
	tokens   TokenStore
	ledger   *ledger.Client
	settings Settings
}

func NewQRService(codec *qrtoken.Codec, events EventReader, tokens TokenStore, lc *ledger.Client, settings Settings) *QRService {
	return &QRService{codec: codec, events: events, tokens: tokens, ledger: lc, settings: settings}
}

func (s *QRService) Issue(ctx context.Context, req models.QRTokenRequest) (*models.QRTokenResponse, error) {
	if err := ledger.ValidateAddress(req.WalletAddress); err != nil {
		return nil, badRequest("Invalid wallet address format")
	}
	event, err := s.events.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, eventError(err, req.EventID)
	}
	asaID, err := ResolveAssetID(event, s.settings.DefaultAsaID)
	if err != nil {
		return nil, badRequest("Event ASA ID not configured")
	}

	balance, err := s.ledger.QueryAssetBalance(ctx, req.WalletAddress, asaID)
	if err != nil {
		log.Error().Err(err).Str("wallet", req.WalletAddress).Msg("Ownership check failed")
		return nil, unavailable("Failed to verify ticket ownership")
	}
	if balance < 1 {
		return nil, NewError("Wallet does not hold a ticket for this event", http.StatusForbidden, "NOT_OWNED")
	}

	payload, err := s.codec.Mint(req.WalletAddress, req.EventID, s.settings.QRTTL)
	if err != nil {
		return nil, internal("Failed to issue QR code")
	}

	record := &models.QRToken{
		Token:         payload.Token,
		WalletAddress: payload.WalletAddress,
		EventID:       payload.EventID,
		ExpiresAt:     time.UnixMilli(payload.Expires).UTC(),
	}
	if err := s.tokens.InsertQRToken(ctx, record); err != nil {
		log.Warn().Err(err).Str("wallet", req.WalletAddress).Msg("Failed to record issued QR token")
	}

	return &models.QRTokenResponse{Success: true, QRPayload: payload}, nil
}
