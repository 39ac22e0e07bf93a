package models

import (
	"time"

	"github.com/google/uuid"
)

// Ticket is written once the purchase group has been accepted by the network.
type Ticket struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserAddress string    `json:"user_address" db:"user_address"`
	EventID     string    `json:"event_id" db:"event_id"`
	AsaID       uint64    `json:"asa_id" db:"asa_id"`
	TxID        string    `json:"txid" db:"txid"`
	Amount      uint64    `json:"amount" db:"amount"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// CheckIn marks a ticket as used. (event_id, wallet_address) is unique.
type CheckIn struct {
	ID            uuid.UUID `json:"checkin_id" db:"checkin_id"`
	EventID       string    `json:"event_id" db:"event_id"`
	WalletAddress string    `json:"wallet_address" db:"wallet_address"`
	AsaID         uint64    `json:"asa_id" db:"asa_id"`
	ScannerLat    *float64  `json:"scanner_location_lat,omitempty" db:"scanner_location_lat"`
	ScannerLng    *float64  `json:"scanner_location_lng,omitempty" db:"scanner_location_lng"`
	VerifiedBy    string    `json:"verified_by,omitempty" db:"verified_by"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
}

// QRToken is the short-lived record of an issued QR credential.
type QRToken struct {
	ID            uuid.UUID `json:"id" db:"id"`
	Token         string    `json:"token" db:"token"`
	WalletAddress string    `json:"wallet_address" db:"wallet_address"`
	EventID       string    `json:"event_id" db:"event_id"`
	ExpiresAt     time.Time `json:"expires_at" db:"expires_at"`
}

// WalletTicket is a ticket enriched with its live on-chain state.
type WalletTicket struct {
	Ticket
	EventName      string `json:"event_name"`
	OnChainBalance uint64 `json:"on_chain_balance"`
	Used           bool   `json:"used"`
}
