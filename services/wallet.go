package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"authentix-backend/ledger"
	"authentix-backend/models"
)

type WalletService struct {
	tickets TicketStore
	ledger  *ledger.Client
}

func NewWalletService(tickets TicketStore, lc *ledger.Client) *WalletService {
	return &WalletService{tickets: tickets, ledger: lc}
}

// Tickets lists the wallet's purchases with the live holding of each asset.
// A failed balance query leaves that asset's balance at zero.
func (s *WalletService) Tickets(ctx context.Context, address string) ([]models.WalletTicket, error) {
	if err := ledger.ValidateAddress(address); err != nil {
		return nil, badRequest("Invalid wallet address format")
	}
	tickets, err := s.tickets.ListTicketsByWallet(ctx, address)
	if err != nil {
		log.Error().Err(err).Str("wallet", address).Msg("Failed to list tickets")
		return nil, internal("Database error")
	}

	balances := map[uint64]uint64{}
	for i := range tickets {
		asaID := tickets[i].AsaID
		balance, seen := balances[asaID]
		if !seen {
			balance, err = s.ledger.QueryAssetBalance(ctx, address, asaID)
			if err != nil {
				log.Warn().Err(err).Str("wallet", address).Uint64("asa_id", asaID).Msg("Balance query failed")
			}
			balances[asaID] = balance
		}
		tickets[i].OnChainBalance = balance
	}
	if tickets == nil {
		tickets = []models.WalletTicket{}
	}
	return tickets, nil
}
