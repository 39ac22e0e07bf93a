package services

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"authentix-backend/ledger"
	"authentix-backend/ledger/ledgertest"
	"authentix-backend/models"
	"authentix-backend/store/storetest"
)

const (
	testEventID = "evt-42"
	testAsaID   = uint64(777)
	testPrice   = uint64(1_000_000)
)

type purchaseFixture struct {
	net       *ledgertest.Network
	store     *storetest.Memory
	client    *ledger.Client
	organizer ledgertest.Account
	user      ledgertest.Account
	settings  Settings
	svc       *PurchaseService
}

func newPurchaseFixture(t *testing.T, event *models.Event) *purchaseFixture {
	t.Helper()
	f := &purchaseFixture{
		net:       ledgertest.NewNetwork(),
		organizer: ledgertest.NewAccount(),
		user:      ledgertest.NewAccount(),
	}
	if event == nil {
		event = &models.Event{EventID: testEventID, Name: "Launch Night", Description: "Doors at 7"}
	}
	f.store = storetest.NewMemory(event)
	f.client = ledger.NewClient(f.net)
	f.settings = Settings{
		OrganizerAddress:    f.organizer.Addr(),
		OrganizerMnemonic:   f.organizer.Mnemonic,
		DefaultAsaID:        testAsaID,
		PriceMicroAlgos:     testPrice,
		ConfirmationRounds:  4,
		ConfirmationTimeout: time.Second,
		TimeoutIsSuccess:    true,
	}
	f.rebuild()
	return f
}

func (f *purchaseFixture) rebuild() {
	f.svc = NewPurchaseService(f.store, f.store, f.client, f.settings)
}

func (f *purchaseFixture) prepare(t *testing.T) *models.PurchaseResponse {
	t.Helper()
	resp, err := f.svc.Prepare(context.Background(), models.PurchaseRequest{WalletAddress: f.user.Addr(), EventID: testEventID})
	require.NoError(t, err)
	return resp
}

func decodeLeg(t *testing.T, b64 string) types.Transaction {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	txn, err := ledger.DecodeUnsigned(raw)
	require.NoError(t, err)
	return txn
}

func signLeg(t *testing.T, acct ledgertest.Account, txn types.Transaction) string {
	t.Helper()
	_, signed, err := crypto.SignTransaction(acct.PrivateKey, txn)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(signed)
}

// walletSigned mimics the wallet: sign leg 0, return leg 1 untouched.
func (f *purchaseFixture) walletSigned(t *testing.T, resp *models.PurchaseResponse) models.ConfirmPurchaseRequest {
	t.Helper()
	require.Len(t, resp.TxnsToSign, 2)
	return models.ConfirmPurchaseRequest{
		WalletAddress:      f.user.Addr(),
		EventID:            testEventID,
		SignedTransactions: []string{signLeg(t, f.user, decodeLeg(t, resp.TxnsToSign[0].Txn)), resp.TxnsToSign[1].Txn},
	}
}

// handBuilt builds the legs Prepare would return, lets mutate change leg 1,
// regroups them and signs leg 0 as the wallet.
func (f *purchaseFixture) handBuilt(t *testing.T, mutate func(*types.Transaction)) []string {
	t.Helper()
	params := ledgertest.DefaultParams()
	pay, err := f.client.BuildPayment(f.user.Addr(), f.organizer.Addr(), testPrice, params, "Payment for Launch Night ticket")
	require.NoError(t, err)
	xfer, err := f.client.BuildAssetTransfer(f.organizer.Addr(), f.user.Addr(), testAsaID, 1, params, "Ticket for Launch Night")
	require.NoError(t, err)
	mutate(&xfer)
	grouped, _, err := f.client.Group([]types.Transaction{pay, xfer})
	require.NoError(t, err)
	return []string{signLeg(t, f.user, grouped[0]), base64.StdEncoding.EncodeToString(ledger.EncodeUnsigned(grouped[1]))}
}

func requireServiceError(t *testing.T, err error, status int) *Error {
	t.Helper()
	require.Error(t, err)
	var svcErr *Error
	require.True(t, errors.As(err, &svcErr), "expected *services.Error, got %T", err)
	assert.Equal(t, status, svcErr.StatusCode)
	return svcErr
}

func TestPrepareBuildsGroupedLegs(t *testing.T) {
	f := newPurchaseFixture(t, nil)

	resp := f.prepare(t)

	assert.True(t, resp.Success)
	assert.Equal(t, "Launch Night", resp.EventName)
	assert.Equal(t, 1.0, resp.Price)
	assert.Equal(t, "Transaction group created. Please sign with your wallet.", resp.Message)
	require.Len(t, resp.TxnsToSign, 2)
	assert.Equal(t, []string{f.user.Addr()}, resp.TxnsToSign[0].Signers)
	assert.Empty(t, resp.TxnsToSign[1].Signers)

	pay := decodeLeg(t, resp.TxnsToSign[0].Txn)
	xfer := decodeLeg(t, resp.TxnsToSign[1].Txn)

	assert.Equal(t, types.PaymentTx, pay.Type)
	assert.Equal(t, f.user.Addr(), pay.Sender.String())
	assert.Equal(t, f.organizer.Addr(), pay.Receiver.String())
	assert.Equal(t, types.MicroAlgos(testPrice), pay.Amount)

	assert.Equal(t, types.AssetTransferTx, xfer.Type)
	assert.Equal(t, f.organizer.Addr(), xfer.Sender.String())
	assert.Equal(t, f.user.Addr(), xfer.AssetReceiver.String())
	assert.Equal(t, types.AssetIndex(testAsaID), xfer.XferAsset)
	assert.Equal(t, uint64(1), xfer.AssetAmount)

	assert.NotEqual(t, types.Digest{}, pay.Group)
	assert.Equal(t, pay.Group, xfer.Group)
	assert.Equal(t, 1, f.net.Calls("SuggestedParams"))
}

func TestPreparePrefersEventAsset(t *testing.T) {
	f := newPurchaseFixture(t, &models.Event{EventID: testEventID, Name: "Own Asset", AsaID: 4242})

	resp := f.prepare(t)

	xfer := decodeLeg(t, resp.TxnsToSign[1].Txn)
	assert.Equal(t, types.AssetIndex(4242), xfer.XferAsset)
}

func TestPrepareWithoutAssetMakesNoNetworkCalls(t *testing.T) {
	f := newPurchaseFixture(t, nil)
	f.settings.DefaultAsaID = 0
	f.rebuild()

	_, err := f.svc.Prepare(context.Background(), models.PurchaseRequest{WalletAddress: f.user.Addr(), EventID: testEventID})

	svcErr := requireServiceError(t, err, http.StatusBadRequest)
	assert.Contains(t, svcErr.Message, "ASA ID not configured")
	assert.Zero(t, f.net.TotalCalls())
}

func TestPrepareRejectsBadInput(t *testing.T) {
	f := newPurchaseFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		req    models.PurchaseRequest
		status int
	}{
		{"missing wallet", models.PurchaseRequest{EventID: testEventID}, http.StatusBadRequest},
		{"missing event", models.PurchaseRequest{WalletAddress: f.user.Addr()}, http.StatusBadRequest},
		{"bad address", models.PurchaseRequest{WalletAddress: "not-an-address", EventID: testEventID}, http.StatusBadRequest},
		{"unknown event", models.PurchaseRequest{WalletAddress: f.user.Addr(), EventID: "nope"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Prepare(ctx, tt.req)
			requireServiceError(t, err, tt.status)
		})
	}
	assert.Zero(t, f.net.TotalCalls())
}

func TestPrepareInvalidOrganizerConfig(t *testing.T) {
	f := newPurchaseFixture(t, nil)
	f.settings.OrganizerAddress = ""
	f.rebuild()

	_, err := f.svc.Prepare(context.Background(), models.PurchaseRequest{WalletAddress: f.user.Addr(), EventID: testEventID})

	svcErr := requireServiceError(t, err, http.StatusInternalServerError)
	assert.Equal(t, "Invalid organizer wallet configuration", svcErr.Message)
}

func TestPrepareNetworkUnavailable(t *testing.T) {
	f := newPurchaseFixture(t, nil)
	f.net.ParamsErr = errors.New("connection refused")

	_, err := f.svc.Prepare(context.Background(), models.PurchaseRequest{WalletAddress: f.user.Addr(), EventID: testEventID})

	svcErr := requireServiceError(t, err, http.StatusInternalServerError)
	assert.Equal(t, "Failed to connect to Algorand network", svcErr.Message)
	assert.Equal(t, 1, f.net.Calls("SuggestedParams"))
}

func TestConfirmRejectsWrongLegCountBeforeNetwork(t *testing.T) {
	f := newPurchaseFixture(t, nil)

	for _, legs := range [][]string{{}, {"a"}, {"a", "b", "c"}} {
		_, err := f.svc.Confirm(context.Background(), models.ConfirmPurchaseRequest{
			WalletAddress:      f.user.Addr(),
			EventID:            testEventID,
			SignedTransactions: legs,
		})
		requireServiceError(t, err, http.StatusBadRequest)
	}
	assert.Zero(t, f.net.TotalCalls())
}

func TestConfirmSubmitsAndRecordsTicket(t *testing.T) {
	f := newPurchaseFixture(t, nil)
	req := f.walletSigned(t, f.prepare(t))

	resp, err := f.svc.Confirm(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.True(t, resp.Confirmed)
	assert.Equal(t, "Ticket purchase confirmed", resp.Message)
	assert.Equal(t, "FAKETXID0001", resp.TxID)
	assert.Equal(t, testAsaID, resp.AsaID)
	assert.Equal(t, http.StatusOK, StatusFor(resp))

	require.Len(t, f.net.Submitted, 1)
	require.Equal(t, 1, f.store.TicketCount())
	ticket := f.store.Tickets[0]
	assert.Equal(t, f.user.Addr(), ticket.UserAddress)
	assert.Equal(t, "FAKETXID0001", ticket.TxID)
	assert.Equal(t, uint64(1), ticket.Amount)
}

func TestConfirmSubmitsBothLegsSigned(t *testing.T) {
	f := newPurchaseFixture(t, nil)
	req := f.walletSigned(t, f.prepare(t))

	_, err := f.svc.Confirm(context.Background(), req)
	require.NoError(t, err)

	userLeg, err := base64.StdEncoding.DecodeString(req.SignedTransactions[0])
	require.NoError(t, err)
	submitted := f.net.Submitted[0]
	require.Greater(t, len(submitted), len(userLeg))
	assert.Equal(t, userLeg, submitted[:len(userLeg)])

	organizerLeg, err := ledger.DecodeSigned(submitted[len(userLeg):])
	require.NoError(t, err)
	assert.True(t, ledger.IsSigned(organizerLeg))
	assert.Equal(t, f.organizer.Addr(), organizerLeg.Txn.Sender.String())
}

func TestConfirmOrganizerMismatch(t *testing.T) {
	f := newPurchaseFixture(t, nil)
	req := f.walletSigned(t, f.prepare(t))
	before := f.net.TotalCalls()

	f.settings.OrganizerMnemonic = ledgertest.NewAccount().Mnemonic
	f.rebuild()
	_, err := f.svc.Confirm(context.Background(), req)

	svcErr := requireServiceError(t, err, http.StatusInternalServerError)
	assert.Contains(t, svcErr.Message, "mismatch")
	assert.NotContains(t, svcErr.Message, f.settings.OrganizerMnemonic)
	assert.Equal(t, before, f.net.TotalCalls())
}

func TestConfirmMissingMnemonic(t *testing.T) {
	f := newPurchaseFixture(t, nil)
	req := f.walletSigned(t, f.prepare(t))
	f.settings.OrganizerMnemonic = ""
	f.rebuild()

	_, err := f.svc.Confirm(context.Background(), req)

	requireServiceError(t, err, http.StatusInternalServerError)
}

func TestConfirmRejectsForeignLegs(t *testing.T) {
	f := newPurchaseFixture(t, nil)
	ctx := context.Background()
	params := ledgertest.DefaultParams()
	attacker := ledgertest.NewAccount()

	group := func(t *testing.T, payTo string, price uint64, ticketTo string, asaID uint64) (types.Transaction, types.Transaction) {
		pay, err := f.client.BuildPayment(f.user.Addr(), payTo, price, params, "")
		require.NoError(t, err)
		xfer, err := f.client.BuildAssetTransfer(f.organizer.Addr(), ticketTo, asaID, 1, params, "")
		require.NoError(t, err)
		grouped, _, err := f.client.Group([]types.Transaction{pay, xfer})
		require.NoError(t, err)
		return grouped[0], grouped[1]
	}

	tests := []struct {
		name  string
		build func(t *testing.T) []string
	}{
		{
			name: "ticket sent elsewhere",
			build: func(t *testing.T) []string {
				pay, xfer := group(t, f.organizer.Addr(), testPrice, attacker.Addr(), testAsaID)
				return []string{signLeg(t, f.user, pay), base64.StdEncoding.EncodeToString(ledger.EncodeUnsigned(xfer))}
			},
		},
		{
			name: "underpaid",
			build: func(t *testing.T) []string {
				pay, xfer := group(t, f.organizer.Addr(), 1, f.user.Addr(), testAsaID)
				return []string{signLeg(t, f.user, pay), base64.StdEncoding.EncodeToString(ledger.EncodeUnsigned(xfer))}
			},
		},
		{
			name: "wrong asset",
			build: func(t *testing.T) []string {
				pay, xfer := group(t, f.organizer.Addr(), testPrice, f.user.Addr(), 1)
				return []string{signLeg(t, f.user, pay), base64.StdEncoding.EncodeToString(ledger.EncodeUnsigned(xfer))}
			},
		},
		{
			name: "payment not signed",
			build: func(t *testing.T) []string {
				pay, xfer := group(t, f.organizer.Addr(), testPrice, f.user.Addr(), testAsaID)
				unsigned := msgpack.Encode(types.SignedTxn{Txn: pay})
				return []string{base64.StdEncoding.EncodeToString(unsigned), base64.StdEncoding.EncodeToString(ledger.EncodeUnsigned(xfer))}
			},
		},
		{
			name: "legs from different groups",
			build: func(t *testing.T) []string {
				pay, _ := group(t, f.organizer.Addr(), testPrice, f.user.Addr(), testAsaID)
				_, xfer := group(t, f.organizer.Addr(), testPrice, f.user.Addr(), testAsaID)
				xfer.Note = []byte("replayed")
				regrouped, _, err := f.client.Group([]types.Transaction{pay, xfer})
				require.NoError(t, err)
				return []string{signLeg(t, f.user, pay), base64.StdEncoding.EncodeToString(ledger.EncodeUnsigned(regrouped[1]))}
			},
		},
		{
			name: "inflated organizer fee",
			build: func(t *testing.T) []string {
				return f.handBuilt(t, func(xfer *types.Transaction) {
					xfer.Fee = 5_000_000
					xfer.Note = []byte("attacker chosen")
				})
			},
		},
		{
			name: "fee just above limit",
			build: func(t *testing.T) []string {
				return f.handBuilt(t, func(xfer *types.Transaction) { xfer.Fee = DefaultMaxOrganizerFee + 1 })
			},
		},
		{
			name: "foreign note",
			build: func(t *testing.T) []string {
				return f.handBuilt(t, func(xfer *types.Transaction) { xfer.Note = []byte("attacker chosen") })
			},
		},
		{
			name: "lease set",
			build: func(t *testing.T) []string {
				return f.handBuilt(t, func(xfer *types.Transaction) { xfer.Lease = [32]byte{7} })
			},
		},
		{
			name: "validity window moved",
			build: func(t *testing.T) []string {
				return f.handBuilt(t, func(xfer *types.Transaction) {
					xfer.FirstValid += 500
					xfer.LastValid += 500
				})
			},
		},
		{
			name: "garbage",
			build: func(t *testing.T) []string {
				return []string{"!!!", "???"}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Confirm(ctx, models.ConfirmPurchaseRequest{
				WalletAddress:      f.user.Addr(),
				EventID:            testEventID,
				SignedTransactions: tt.build(t),
			})
			requireServiceError(t, err, http.StatusBadRequest)
		})
	}
	assert.Zero(t, f.net.TotalCalls())
	assert.Zero(t, f.store.TicketCount())
}

func TestConfirmAcceptsTransferBuiltLikePrepare(t *testing.T) {
	f := newPurchaseFixture(t, nil)

	resp, err := f.svc.Confirm(context.Background(), models.ConfirmPurchaseRequest{
		WalletAddress:      f.user.Addr(),
		EventID:            testEventID,
		SignedTransactions: f.handBuilt(t, func(*types.Transaction) {}),
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Len(t, f.net.Submitted, 1)
}

func TestConfirmHonoursConfiguredFeeLimit(t *testing.T) {
	f := newPurchaseFixture(t, nil)
	f.settings.MaxOrganizerFee = 10_000
	f.rebuild()

	resp, err := f.svc.Confirm(context.Background(), models.ConfirmPurchaseRequest{
		WalletAddress:      f.user.Addr(),
		EventID:            testEventID,
		SignedTransactions: f.handBuilt(t, func(xfer *types.Transaction) { xfer.Fee = 4_000 }),
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestConfirmSubmissionRejected(t *testing.T) {
	f := newPurchaseFixture(t, nil)
	req := f.walletSigned(t, f.prepare(t))
	f.net.SendErr = errors.New("asset 777 missing from account")

	_, err := f.svc.Confirm(context.Background(), req)

	svcErr := requireServiceError(t, err, http.StatusInternalServerError)
	assert.Contains(t, svcErr.Message, "asset 777 missing from account")
	assert.Zero(t, f.store.TicketCount())
}

func TestConfirmDroppedFromPool(t *testing.T) {
	f := newPurchaseFixture(t, nil)
	req := f.walletSigned(t, f.prepare(t))
	f.net.PoolError = "overspend"

	_, err := f.svc.Confirm(context.Background(), req)

	svcErr := requireServiceError(t, err, http.StatusInternalServerError)
	assert.Contains(t, svcErr.Message, "overspend")
	assert.Zero(t, f.store.TicketCount())
}

func TestConfirmTimeoutIsNotFatal(t *testing.T) {
	f := newPurchaseFixture(t, nil)
	f.net.ConfirmAfterRounds = -1
	req := f.walletSigned(t, f.prepare(t))

	resp, err := f.svc.Confirm(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.False(t, resp.Confirmed)
	assert.False(t, resp.Pending)
	assert.NotEmpty(t, resp.Warning)
	assert.Equal(t, 4, f.net.Calls("WaitForRound"))
	assert.Equal(t, 1, f.store.TicketCount())
}

func TestConfirmTimeoutAsPending(t *testing.T) {
	f := newPurchaseFixture(t, nil)
	f.net.ConfirmAfterRounds = -1
	f.settings.TimeoutIsSuccess = false
	f.rebuild()
	req := f.walletSigned(t, f.prepare(t))

	resp, err := f.svc.Confirm(context.Background(), req)

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.True(t, resp.Pending)
	assert.Equal(t, "FAKETXID0001", resp.TxID)
	assert.Equal(t, http.StatusAccepted, StatusFor(resp))
	assert.Equal(t, 1, f.store.TicketCount())
}

// cancelOnSend cancels the caller's context once the group is on the
// network, the way a wallet hanging up mid-wait cancels the request.
type cancelOnSend struct {
	*ledgertest.Network
	cancel context.CancelFunc
}

func (n *cancelOnSend) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	txID, err := n.Network.SendRawTransaction(ctx, raw)
	n.cancel()
	return txID, err
}

// contextTicketStore refuses writes on a done context, as pgx does.
type contextTicketStore struct {
	*storetest.Memory
}

func (s contextTicketStore) InsertTicket(ctx context.Context, ticket *models.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Memory.InsertTicket(ctx, ticket)
}

func TestConfirmRecordsTicketAfterClientDisconnect(t *testing.T) {
	f := newPurchaseFixture(t, nil)
	req := f.walletSigned(t, f.prepare(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := ledger.NewClient(&cancelOnSend{Network: f.net, cancel: cancel})
	svc := NewPurchaseService(f.store, contextTicketStore{f.store}, client, f.settings)

	resp, err := svc.Confirm(ctx, req)

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Error(t, ctx.Err())
	assert.Len(t, f.net.Submitted, 1)
	require.Equal(t, 1, f.store.TicketCount())
	assert.Equal(t, resp.TxID, f.store.Tickets[0].TxID)
}

type MockTicketStore struct {
	mock.Mock
}

func (m *MockTicketStore) InsertTicket(ctx context.Context, ticket *models.Ticket) error {
	args := m.Called(ctx, ticket)
	return args.Error(0)
}

func (m *MockTicketStore) ListTicketsByWallet(ctx context.Context, address string) ([]models.WalletTicket, error) {
	args := m.Called(ctx, address)
	return args.Get(0).([]models.WalletTicket), args.Error(1)
}

func TestConfirmSurvivesTicketWriteFailure(t *testing.T) {
	f := newPurchaseFixture(t, nil)
	tickets := new(MockTicketStore)
	tickets.On("InsertTicket", mock.Anything, mock.AnythingOfType("*models.Ticket")).
		Return(errors.New("connection reset"))
	f.svc = NewPurchaseService(f.store, tickets, f.client, f.settings)
	req := f.walletSigned(t, f.prepare(t))

	resp, err := f.svc.Confirm(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "FAKETXID0001", resp.TxID)
	tickets.AssertExpectations(t)
}
