package models

// PurchaseRequest starts phase 1 of a ticket purchase.
type PurchaseRequest struct {
	WalletAddress string `json:"walletAddress"`
	EventID       string `json:"eventId"`
}

// TxnToSign is one leg of the atomic group handed to the wallet.
type TxnToSign struct {
	Txn     string   `json:"txn"`
	Signers []string `json:"signers"`
}

type PurchaseResponse struct {
	Success    bool        `json:"success"`
	TxnsToSign []TxnToSign `json:"txnsToSign"`
	Message    string      `json:"message"`
	EventName  string      `json:"eventName"`
	Price      float64     `json:"price"`
}

// ConfirmPurchaseRequest is phase 2: index 0 user-signed, index 1 the unsigned organizer leg.
type ConfirmPurchaseRequest struct {
	WalletAddress      string   `json:"walletAddress"`
	EventID            string   `json:"eventId"`
	SignedTransactions []string `json:"signedTransactions"`
}

type ConfirmPurchaseResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	TxID      string `json:"txId"`
	AsaID     uint64 `json:"asaId"`
	Confirmed bool   `json:"confirmed"`
	Pending   bool   `json:"pending,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

// VerifyRequest carries a decoded QR payload from a scanner.
type VerifyRequest struct {
	QRPayload  *QRPayload `json:"qrPayload"`
	ScannerLat *float64   `json:"scannerLat,omitempty"`
	ScannerLng *float64   `json:"scannerLng,omitempty"`
	VerifiedBy string     `json:"verifiedBy,omitempty"`
}

type VerifyResponse struct {
	Valid     bool          `json:"valid"`
	Error     string        `json:"error,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Name      string        `json:"name,omitempty"`
	Address   string        `json:"address,omitempty"`
	Event     *EventSummary `json:"event,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp string        `json:"timestamp,omitempty"`
}

type QRTokenRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required"`
	EventID       string `json:"eventId" binding:"required"`
}

type QRTokenResponse struct {
	Success   bool      `json:"success"`
	QRPayload QRPayload `json:"qrPayload"`
}
