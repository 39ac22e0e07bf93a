package ledger

import (
	"context"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/pkg/errors"
)

// Network is the slice of an algod node the ticket protocol needs.
type Network interface {
	SuggestedParams(ctx context.Context) (types.SuggestedParams, error)
	SendRawTransaction(ctx context.Context, raw []byte) (string, error)
	LastRound(ctx context.Context) (uint64, error)
	WaitForRound(ctx context.Context, round uint64) error
	PendingTransaction(ctx context.Context, txID string) (PendingTxn, error)
	AccountAssets(ctx context.Context, address string) (map[uint64]uint64, error)
	AccountBalance(ctx context.Context, address string) (uint64, error)
}

// PendingTxn is the confirmation state of a submitted transaction.
type PendingTxn struct {
	ConfirmedRound uint64
	PoolError      string
	// AssetIndex is set once an asset creation is confirmed.
	AssetIndex uint64
}

// AlgodNetwork talks to an algod REST endpoint.
type AlgodNetwork struct {
	client *algod.Client
}

// Dial creates an algod client. No request is made until first use.
func Dial(address, token string) (*AlgodNetwork, error) {
	client, err := algod.MakeClient(address, token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create algod client")
	}
	return &AlgodNetwork{client: client}, nil
}

func (n *AlgodNetwork) SuggestedParams(ctx context.Context) (types.SuggestedParams, error) {
	return n.client.SuggestedParams().Do(ctx)
}

func (n *AlgodNetwork) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	return n.client.SendRawTransaction(raw).Do(ctx)
}

func (n *AlgodNetwork) LastRound(ctx context.Context) (uint64, error) {
	status, err := n.client.Status().Do(ctx)
	if err != nil {
		return 0, err
	}
	return status.LastRound, nil
}

func (n *AlgodNetwork) WaitForRound(ctx context.Context, round uint64) error {
	_, err := n.client.StatusAfterBlock(round).Do(ctx)
	return err
}

func (n *AlgodNetwork) PendingTransaction(ctx context.Context, txID string) (PendingTxn, error) {
	info, _, err := n.client.PendingTransactionInformation(txID).Do(ctx)
	if err != nil {
		return PendingTxn{}, err
	}
	return PendingTxn{ConfirmedRound: info.ConfirmedRound, PoolError: info.PoolError, AssetIndex: info.AssetIndex}, nil
}

// AccountAssets returns asset id -> amount for every holding of the account.
func (n *AlgodNetwork) AccountAssets(ctx context.Context, address string) (map[uint64]uint64, error) {
	account, err := n.client.AccountInformation(address).Do(ctx)
	if err != nil {
		return nil, err
	}
	holdings := make(map[uint64]uint64, len(account.Assets))
	for _, h := range account.Assets {
		holdings[h.AssetId] = h.Amount
	}
	return holdings, nil
}

// AccountBalance returns the account's microAlgo balance.
func (n *AlgodNetwork) AccountBalance(ctx context.Context, address string) (uint64, error) {
	account, err := n.client.AccountInformation(address).Do(ctx)
	if err != nil {
		return 0, err
	}
	return account.Amount, nil
}
