// Package ledger builds, groups, signs and submits the Algorand transactions
// behind a ticket purchase, and answers ownership queries at scan time.
package ledger

import (
	"bytes"
	"context"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// MaxGroupSize is the protocol limit on transactions per atomic group.
const MaxGroupSize = 16

// ConfirmationStatus is the outcome of waiting for a submitted group.
type ConfirmationStatus string

const (
	StatusConfirmed ConfirmationStatus = "CONFIRMED"
	StatusTimedOut  ConfirmationStatus = "TIMED_OUT"
)

// Confirmation reports whether the network finalized a transaction before the deadline.
// A timeout says nothing about the transaction itself.
type Confirmation struct {
	Status         ConfirmationStatus
	ConfirmedRound uint64
	AssetIndex     uint64
}

// Client is the transaction builder. It holds no keys.
type Client struct {
	net Network
}

func NewClient(net Network) *Client {
	return &Client{net: net}
}

// ValidateAddress checks the checksum of an Algorand address.
func ValidateAddress(address string) error {
	if _, err := types.DecodeAddress(address); err != nil {
		return errors.Wrapf(ErrInvalidAddress, "%q", address)
	}
	return nil
}

// FetchNetworkParams makes one attempt; the caller is a synchronous request handler.
func (c *Client) FetchNetworkParams(ctx context.Context) (types.SuggestedParams, error) {
	params, err := c.net.SuggestedParams(ctx)
	if err != nil {
		return types.SuggestedParams{}, errors.Wrapf(ErrNetworkUnavailable, "suggested params: %v", err)
	}
	return params, nil
}

func (c *Client) BuildPayment(from, to string, amountMicroAlgos uint64, params types.SuggestedParams, note string) (types.Transaction, error) {
	txn, err := transaction.MakePaymentTxn(from, to, amountMicroAlgos, []byte(note), "", params)
	if err != nil {
		return types.Transaction{}, errors.Wrap(err, "failed to build payment transaction")
	}
	return txn, nil
}

func (c *Client) BuildAssetTransfer(from, to string, assetID, amount uint64, params types.SuggestedParams, note string) (types.Transaction, error) {
	txn, err := transaction.MakeAssetTransferTxn(from, to, amount, []byte(note), params, "", assetID)
	if err != nil {
		return types.Transaction{}, errors.Wrap(err, "failed to build asset transfer transaction")
	}
	return txn, nil
}

// Group stamps the group id of txns, in order, into copies of each transaction.
// Any previous group id is cleared first so regrouping is idempotent.
func (c *Client) Group(txns []types.Transaction) ([]types.Transaction, types.Digest, error) {
	if len(txns) == 0 || len(txns) > MaxGroupSize {
		return nil, types.Digest{}, errors.Errorf("group size %d out of range", len(txns))
	}
	grouped := make([]types.Transaction, len(txns))
	copy(grouped, txns)
	for i := range grouped {
		grouped[i].Group = types.Digest{}
	}
	gid, err := crypto.ComputeGroupID(grouped)
	if err != nil {
		return nil, types.Digest{}, errors.Wrap(err, "failed to compute group id")
	}
	for i := range grouped {
		grouped[i].Group = gid
	}
	return grouped, gid, nil
}

// EncodeUnsigned returns the wallet wire form of an unsigned transaction.
func EncodeUnsigned(txn types.Transaction) []byte {
	return msgpack.Encode(txn)
}

func DecodeUnsigned(raw []byte) (types.Transaction, error) {
	var txn types.Transaction
	if err := msgpack.Decode(raw, &txn); err != nil {
		return types.Transaction{}, errors.Wrap(ErrInvalidLeg, "undecodable unsigned transaction")
	}
	return txn, nil
}

func DecodeSigned(raw []byte) (types.SignedTxn, error) {
	var stx types.SignedTxn
	if err := msgpack.Decode(raw, &stx); err != nil {
		return types.SignedTxn{}, errors.Wrap(ErrInvalidLeg, "undecodable signed transaction")
	}
	return stx, nil
}

// IsSigned reports whether any authorization is attached to stx.
func IsSigned(stx types.SignedTxn) bool {
	return stx.Sig != (types.Signature{}) || len(stx.Msig.Subsigs) > 0 || len(stx.Lsig.Logic) > 0
}

// Submit sends the signed legs as one group. Order must match the group order.
func (c *Client) Submit(ctx context.Context, signed [][]byte) (string, error) {
	if len(signed) == 0 {
		return "", errors.New("nothing to submit")
	}
	var buf bytes.Buffer
	for _, leg := range signed {
		buf.Write(leg)
	}
	txID, err := c.net.SendRawTransaction(ctx, buf.Bytes())
	if err != nil {
		return "", &SubmissionRejectedError{Reason: err.Error(), err: err}
	}
	if txID == "" {
		return "", &SubmissionRejectedError{Reason: "no transaction id returned from network"}
	}
	return txID, nil
}

// AwaitConfirmation polls for up to maxRounds rounds. Running out of rounds
// or hitting the context deadline yields StatusTimedOut with a nil error.
// A pool error means the node dropped the transaction and is returned as a rejection.
func (c *Client) AwaitConfirmation(ctx context.Context, txID string, maxRounds uint64) (Confirmation, error) {
	timedOut := Confirmation{Status: StatusTimedOut}

	start, err := c.net.LastRound(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return timedOut, nil
		}
		return Confirmation{}, errors.Wrapf(ErrNetworkUnavailable, "node status: %v", err)
	}

	for round := start; round < start+maxRounds; round++ {
		pending, err := c.net.PendingTransaction(ctx, txID)
		if err == nil {
			if pending.ConfirmedRound > 0 {
				return Confirmation{Status: StatusConfirmed, ConfirmedRound: pending.ConfirmedRound, AssetIndex: pending.AssetIndex}, nil
			}
			if pending.PoolError != "" {
				return Confirmation{}, &SubmissionRejectedError{Reason: pending.PoolError}
			}
		} else {
			log.Debug().Err(err).Str("txid", txID).Msg("Pending transaction lookup failed, retrying next round")
		}

		if err := c.net.WaitForRound(ctx, round+1); err != nil {
			if ctx.Err() != nil {
				return timedOut, nil
			}
			return Confirmation{}, errors.Wrapf(ErrNetworkUnavailable, "wait for round %d: %v", round+1, err)
		}
	}
	return timedOut, nil
}

// AwaitConfirmationWithin bounds AwaitConfirmation by wall-clock time as well as rounds.
func (c *Client) AwaitConfirmationWithin(ctx context.Context, txID string, maxRounds uint64, timeout time.Duration) (Confirmation, error) {
	if timeout <= 0 {
		return c.AwaitConfirmation(ctx, txID, maxRounds)
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.AwaitConfirmation(waitCtx, txID, maxRounds)
}

// QueryAssetBalance returns 0 when the account does not hold the asset.
// Errors always mean the question could not be answered.
func (c *Client) QueryAssetBalance(ctx context.Context, address string, assetID uint64) (uint64, error) {
	holdings, err := c.net.AccountAssets(ctx, address)
	if err != nil {
		return 0, errors.Wrapf(ErrNetworkUnavailable, "account information: %v", err)
	}
	return holdings[assetID], nil
}

func (c *Client) AccountBalance(ctx context.Context, address string) (uint64, error) {
	balance, err := c.net.AccountBalance(ctx, address)
	if err != nil {
		return 0, errors.Wrapf(ErrNetworkUnavailable, "account information: %v", err)
	}
	return balance, nil
}
