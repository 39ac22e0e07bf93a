package models

// QRPayload is the JSON document encoded into the rotating QR code.
type QRPayload struct {
	WalletAddress string `json:"walletAddress"`
	EventID       string `json:"eventId"`
	Expires       int64  `json:"expires"` // epoch millis
	Token         string `json:"token"`
}
