package ledger

import (
	"context"

	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/pkg/errors"
)

// MinCreateBalance is the balance, in microAlgos, below which asset creation is not attempted.
const MinCreateBalance = 100_000

// TicketAsset describes the asset that represents tickets.
// The creator holds every management role.
type TicketAsset struct {
	Name     string
	UnitName string
	Total    uint64
	Decimals uint32
	URL      string
}

// DefaultTicketAsset mirrors the asset the service has always been provisioned with.
func DefaultTicketAsset() TicketAsset {
	return TicketAsset{Name: "AUTHENTIX_EVENT", UnitName: "TIX", Total: 1000}
}

func (c *Client) BuildAssetCreate(creator string, asset TicketAsset, params types.SuggestedParams) (types.Transaction, error) {
	txn, err := transaction.MakeAssetCreateTxn(creator, nil, params, asset.Total, asset.Decimals, false,
		creator, creator, creator, creator, asset.UnitName, asset.Name, asset.URL, "")
	if err != nil {
		return types.Transaction{}, errors.Wrap(err, "failed to build asset create transaction")
	}
	return txn, nil
}

// CreateAsset creates asset with signer as creator and waits up to maxRounds
// for the network to assign it an index. A zero index with a nil error means
// the creation was submitted but not yet confirmed.
func (c *Client) CreateAsset(ctx context.Context, signer *OrganizerSigner, asset TicketAsset, maxRounds uint64) (uint64, string, error) {
	params, err := c.FetchNetworkParams(ctx)
	if err != nil {
		return 0, "", err
	}
	txn, err := c.BuildAssetCreate(signer.Address(), asset, params)
	if err != nil {
		return 0, "", err
	}
	_, signed, err := signer.SignStandalone(txn)
	if err != nil {
		return 0, "", err
	}
	txID, err := c.Submit(ctx, [][]byte{signed})
	if err != nil {
		return 0, "", err
	}
	confirmation, err := c.AwaitConfirmation(ctx, txID, maxRounds)
	if err != nil {
		return 0, txID, err
	}
	if confirmation.Status != StatusConfirmed {
		return 0, txID, nil
	}
	return confirmation.AssetIndex, txID, nil
}
