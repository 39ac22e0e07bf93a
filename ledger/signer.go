package ledger

import (
	"crypto/ed25519"
	"strings"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/pkg/errors"
)

// OrganizerSigner is the custodial key of the organizer account.
// Build one per request and let it go out of scope; it is never cached.
// Error messages never contain key material.
type OrganizerSigner struct {
	address types.Address
	sk      ed25519.PrivateKey
}

// LoadOrganizerSigner derives the key from its mnemonic and checks that it
// belongs to expectedAddress.
func LoadOrganizerSigner(phrase, expectedAddress string) (*OrganizerSigner, error) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return nil, ErrSignerNotConfigured
	}
	sk, err := mnemonic.ToPrivateKey(phrase)
	if err != nil {
		return nil, ErrInvalidMnemonic
	}
	account, err := crypto.AccountFromPrivateKey(sk)
	if err != nil {
		return nil, ErrInvalidMnemonic
	}
	if account.Address.String() != expectedAddress {
		return nil, ErrOrganizerMismatch
	}
	return &OrganizerSigner{address: account.Address, sk: sk}, nil
}

// DeriveAddress returns the address a mnemonic controls.
func DeriveAddress(phrase string) (string, error) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return "", ErrSignerNotConfigured
	}
	sk, err := mnemonic.ToPrivateKey(phrase)
	if err != nil {
		return "", ErrInvalidMnemonic
	}
	account, err := crypto.AccountFromPrivateKey(sk)
	if err != nil {
		return "", ErrInvalidMnemonic
	}
	return account.Address.String(), nil
}

func (s *OrganizerSigner) Address() string {
	return s.address.String()
}

// Sign signs txn, which must already carry its group id and be sent by the organizer.
func (s *OrganizerSigner) Sign(txn types.Transaction) (string, []byte, error) {
	if txn.Sender != s.address {
		return "", nil, errors.Wrap(ErrInvalidLeg, "transaction sender is not the organizer")
	}
	if txn.Group == (types.Digest{}) {
		return "", nil, errors.Wrap(ErrInvalidLeg, "transaction is not bound to a group")
	}
	txID, signed, err := crypto.SignTransaction(s.sk, txn)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to sign organizer transaction")
	}
	return txID, signed, nil
}

// SignStandalone signs an ungrouped transaction sent by the organizer,
// such as the creation of the ticket asset.
func (s *OrganizerSigner) SignStandalone(txn types.Transaction) (string, []byte, error) {
	if txn.Sender != s.address {
		return "", nil, errors.Wrap(ErrInvalidLeg, "transaction sender is not the organizer")
	}
	if txn.Group != (types.Digest{}) {
		return "", nil, errors.Wrap(ErrInvalidLeg, "grouped transactions are signed with Sign")
	}
	txID, signed, err := crypto.SignTransaction(s.sk, txn)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to sign organizer transaction")
	}
	return txID, signed, nil
}
