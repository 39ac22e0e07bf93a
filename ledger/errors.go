package ledger

import (
	"github.com/pkg/errors"
)

var (
	// ErrNetworkUnavailable wraps any failure to reach the algod node.
	ErrNetworkUnavailable = errors.New("ledger network unavailable")
	// ErrSignerNotConfigured means no organizer mnemonic was provided.
	ErrSignerNotConfigured = errors.New("organizer signing key not configured")
	// ErrInvalidMnemonic means the configured mnemonic does not decode to a key.
	ErrInvalidMnemonic = errors.New("organizer mnemonic is invalid")
	// ErrOrganizerMismatch means the key does not belong to the configured organizer address.
	ErrOrganizerMismatch = errors.New("organizer key does not match organizer address")
	// ErrInvalidLeg is returned when a transaction is not the leg it claims to be.
	ErrInvalidLeg = errors.New("invalid transaction leg")
	// ErrInvalidAddress is returned for addresses that fail checksum decoding.
	ErrInvalidAddress = errors.New("invalid ledger address")
)

// SubmissionRejectedError is returned when the network refuses a transaction group.
type SubmissionRejectedError struct {
	Reason string
	err    error
}

func (e *SubmissionRejectedError) Error() string {
	return "submission rejected: " + e.Reason
}

func (e *SubmissionRejectedError) Unwrap() error { return e.err }

// IsSubmissionRejected reports whether err is a network rejection.
func IsSubmissionRejected(err error) bool {
	var rejected *SubmissionRejectedError
	return errors.As(err, &rejected)
}
