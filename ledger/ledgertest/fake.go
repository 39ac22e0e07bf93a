// Package ledgertest provides an in-memory ledger.Network for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"authentix-backend/ledger"
)

var _ ledger.Network = (*Network)(nil)

// Network simulates an algod node. Zero values behave like a healthy node
// that confirms every transaction on the next round.
type Network struct {
	mu sync.Mutex

	Params      types.SuggestedParams
	ParamsErr   error
	SendErr     error
	StatusErr   error
	HoldingsErr error
	BalanceErr  error
	PoolError   string

	// ConfirmAfterRounds is how many rounds pass before a submitted txn confirms.
	// Negative means never.
	ConfirmAfterRounds int

	Holdings  map[string]map[uint64]uint64
	Balances  map[string]uint64
	Submitted [][]byte
	// NextAssetIndex is the index handed to the next asset creation.
	NextAssetIndex uint64
	calls          map[string]int
	round          uint64
	sentAt         map[string]uint64
	created        map[string]uint64
	nextID         int
}

func NewNetwork() *Network {
	return &Network{
		Params:             DefaultParams(),
		ConfirmAfterRounds: 1,
		Holdings:           map[string]map[uint64]uint64{},
		Balances:           map[string]uint64{},
		NextAssetIndex:     5000,
		calls:              map[string]int{},
		round:              1000,
		sentAt:             map[string]uint64{},
		created:            map[string]uint64{},
	}
}

// DefaultParams are plausible testnet parameters.
func DefaultParams() types.SuggestedParams {
	return types.SuggestedParams{
		Fee:             0,
		MinFee:          1000,
		GenesisID:       "testnet-v1.0",
		GenesisHash:     make([]byte, 32),
		FirstRoundValid: 1000,
		LastRoundValid:  2000,
	}
}

// Calls returns how many times method was invoked.
func (n *Network) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// TotalCalls counts every network call.
func (n *Network) TotalCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, c := range n.calls {
		total += c
	}
	return total
}

// SetHolding sets the amount of assetID held by address.
func (n *Network) SetHolding(address string, assetID, amount uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Holdings[address] == nil {
		n.Holdings[address] = map[uint64]uint64{}
	}
	n.Holdings[address][assetID] = amount
}

func (n *Network) record(method string) {
	n.mu.Lock()
	n.calls[method]++
	n.mu.Unlock()
}

func (n *Network) SuggestedParams(ctx context.Context) (types.SuggestedParams, error) {
	n.record("SuggestedParams")
	if n.ParamsErr != nil {
		return types.SuggestedParams{}, n.ParamsErr
	}
	return n.Params, nil
}

func (n *Network) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	n.record("SendRawTransaction")
	if n.SendErr != nil {
		return "", n.SendErr
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	txID := fmt.Sprintf("FAKETXID%04d", n.nextID)
	n.Submitted = append(n.Submitted, append([]byte(nil), raw...))
	n.sentAt[txID] = n.round
	var stx types.SignedTxn
	if err := msgpack.Decode(raw, &stx); err == nil && stx.Txn.Type == types.AssetConfigTx && stx.Txn.ConfigAsset == 0 {
		n.created[txID] = n.NextAssetIndex
		n.NextAssetIndex++
	}
	return txID, nil
}

func (n *Network) LastRound(ctx context.Context) (uint64, error) {
	n.record("LastRound")
	if n.StatusErr != nil {
		return 0, n.StatusErr
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.round, nil
}

func (n *Network) WaitForRound(ctx context.Context, round uint64) error {
	n.record("WaitForRound")
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if round > n.round {
		n.round = round
	}
	return nil
}

func (n *Network) PendingTransaction(ctx context.Context, txID string) (ledger.PendingTxn, error) {
	n.record("PendingTransaction")
	n.mu.Lock()
	defer n.mu.Unlock()
	sent, ok := n.sentAt[txID]
	if !ok {
		return ledger.PendingTxn{}, fmt.Errorf("transaction %s not found", txID)
	}
	if n.PoolError != "" {
		return ledger.PendingTxn{PoolError: n.PoolError}, nil
	}
	if n.ConfirmAfterRounds >= 0 && n.round >= sent+uint64(n.ConfirmAfterRounds) {
		return ledger.PendingTxn{ConfirmedRound: sent + uint64(n.ConfirmAfterRounds), AssetIndex: n.created[txID]}, nil
	}
	return ledger.PendingTxn{}, nil
}

func (n *Network) AccountAssets(ctx context.Context, address string) (map[uint64]uint64, error) {
	n.record("AccountAssets")
	if n.HoldingsErr != nil {
		return nil, n.HoldingsErr
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	out := map[uint64]uint64{}
	for id, amt := range n.Holdings[address] {
		out[id] = amt
	}
	return out, nil
}

func (n *Network) AccountBalance(ctx context.Context, address string) (uint64, error) {
	n.record("AccountBalance")
	if n.BalanceErr != nil {
		return 0, n.BalanceErr
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Balances[address], nil
}

// Account is a synthetic keypair with its mnemonic.
type Account struct {
	crypto.Account
	Mnemonic string
}

// NewAccount generates a fresh synthetic account.
func NewAccount() Account {
	acct := crypto.GenerateAccount()
	phrase, err := mnemonic.FromPrivateKey(acct.PrivateKey)
	if err != nil {
		panic(err)
	}
	return Account{Account: acct, Mnemonic: phrase}
}

func (a Account) Addr() string {
	return a.Address.String()
}
