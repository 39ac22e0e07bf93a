// Package qrtoken mints and validates the rotating QR credential.
//
// A credential binds a wallet address and an event id to an expiry instant
// with an HMAC-SHA256 over the RFC 8785 canonical JSON of those three fields.
// Validation never fails with an error: malformed input is just another
// rejection reason.
package qrtoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/pkg/errors"

	"authentix-backend/models"
)

// Reason explains why a payload was rejected.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonExpired      Reason = "EXPIRED"
	ReasonBadSignature Reason = "BAD_SIGNATURE"
	ReasonMalformed    Reason = "MALFORMED"
)

// DefaultClockSkew is how far a scanner clock may lag the issuing clock.
const DefaultClockSkew = 5 * time.Second

// ErrEmptySecret is returned when a codec is built without a key.
var ErrEmptySecret = errors.New("qr token secret is empty")

// Result is the outcome of Validate. ExpiredFor is only set for expired tokens.
type Result struct {
	Valid      bool
	Reason     Reason
	ExpiredFor time.Duration
}

// Codec holds the server secret. It is safe for concurrent use.
type Codec struct {
	secret    []byte
	clockSkew time.Duration
	now       func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// WithClockSkew sets how far in the future an expiry may lie beyond the tolerance window.
func WithClockSkew(d time.Duration) Option {
	return func(c *Codec) { c.clockSkew = d }
}

func NewCodec(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	c := &Codec{
		secret:    append([]byte(nil), secret...),
		clockSkew: DefaultClockSkew,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// canonicalFields is serialized through JCS so key order and whitespace never vary.
type canonicalFields struct {
	WalletAddress string `json:"walletAddress"`
	EventID       string `json:"eventId"`
	Expires       int64  `json:"expires"`
}

// CanonicalForm returns the exact bytes that are signed.
func CanonicalForm(walletAddress, eventID string, expires int64) ([]byte, error) {
	raw, err := json.Marshal(canonicalFields{
		WalletAddress: walletAddress,
		EventID:       eventID,
		Expires:       expires,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal qr fields")
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, errors.Wrap(err, "canonicalize qr fields")
	}
	return out, nil
}

func (c *Codec) digest(walletAddress, eventID string, expires int64) ([]byte, error) {
	msg, err := CanonicalForm(walletAddress, eventID, expires)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(msg)
	return mac.Sum(nil), nil
}

// Sign returns the hex token for the given fields.
func (c *Codec) Sign(walletAddress, eventID string, expires int64) (string, error) {
	sum, err := c.digest(walletAddress, eventID, expires)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

// Mint issues a payload that expires ttl from now.
func (c *Codec) Mint(walletAddress, eventID string, ttl time.Duration) (models.QRPayload, error) {
	if walletAddress == "" || eventID == "" {
		return models.QRPayload{}, errors.New("wallet address and event id are required")
	}
	expires := c.now().Add(ttl).UnixMilli()
	token, err := c.Sign(walletAddress, eventID, expires)
	if err != nil {
		return models.QRPayload{}, err
	}
	return models.QRPayload{
		WalletAddress: walletAddress,
		EventID:       eventID,
		Expires:       expires,
		Token:         token,
	}, nil
}

// Validate checks the signature first and the time window second, so a
// tampered expiry reports BAD_SIGNATURE rather than EXPIRED.
//
// Expiry is strict: now > expires is rejected. tolerance bounds how far in
// the future an expiry may lie (plus the codec clock skew), which caps how
// long an issued token stays usable.
func (c *Codec) Validate(p models.QRPayload, tolerance time.Duration) Result {
	if p.WalletAddress == "" || p.EventID == "" || p.Expires <= 0 || p.Token == "" {
		return Result{Reason: ReasonMalformed}
	}
	got, err := hex.DecodeString(p.Token)
	if err != nil || len(got) != sha256.Size {
		return Result{Reason: ReasonMalformed}
	}
	want, err := c.digest(p.WalletAddress, p.EventID, p.Expires)
	if err != nil {
		return Result{Reason: ReasonMalformed}
	}
	if !hmac.Equal(got, want) {
		return Result{Reason: ReasonBadSignature}
	}

	now := c.now().UnixMilli()
	if now > p.Expires {
		return Result{
			Reason:     ReasonExpired,
			ExpiredFor: time.Duration(now-p.Expires) * time.Millisecond,
		}
	}
	if p.Expires-now > (tolerance + c.clockSkew).Milliseconds() {
		return Result{Reason: ReasonExpired}
	}
	return Result{Valid: true}
}
