package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"authentix-backend/ledger"
	"authentix-backend/models"
)

// PurchaseState names the steps of a purchase. It only appears in logs;
// nothing is kept between the two phases except what the client sends back.
type PurchaseState string

const (
	StateRequested             PurchaseState = "REQUESTED"
	StateParamsFetched         PurchaseState = "PARAMS_FETCHED"
	StateTxnsBuilt             PurchaseState = "TXNS_BUILT"
	StateGrouped               PurchaseState = "GROUPED"
	StateAwaitingUserSignature PurchaseState = "AWAITING_USER_SIGNATURE"
	StateOrganizerSigned       PurchaseState = "ORGANIZER_SIGNED"
	StateSubmitted             PurchaseState = "SUBMITTED"
	StateConfirmed             PurchaseState = "CONFIRMED"
	StateSubmitFailed          PurchaseState = "SUBMIT_FAILED"
)

const (
	ticketsPerPurchase = 1

	// DefaultMaxOrganizerFee allows for a doubled minimum fee under congestion.
	DefaultMaxOrganizerFee = 2_000
	// maxValidityRounds is the protocol limit on LastValid - FirstValid.
	maxValidityRounds = 1000

	persistTimeout = 5 * time.Second
)

type PurchaseService struct {
	events   EventReader
	tickets  TicketStore
	ledger   *ledger.Client
	settings Settings
	now      func() time.Time
}

func NewPurchaseService(events EventReader, tickets TicketStore, lc *ledger.Client, settings Settings) *PurchaseService {
	return &PurchaseService{
		events:   events,
		tickets:  tickets,
		ledger:   lc,
		settings: settings,
		now:      time.Now,
	}
}

func paymentNote(event *models.Event) string {
	return fmt.Sprintf("Payment for %s ticket", event.Name)
}

func ticketNote(event *models.Event) string {
	return fmt.Sprintf("Ticket for %s", event.Name)
}

func trace(state PurchaseState, wallet, eventID string) {
	log.Debug().Str("state", string(state)).Str("wallet", wallet).Str("event_id", eventID).Msg("Purchase state")
}

func (s *PurchaseService) loadEvent(ctx context.Context, eventID string) (*models.Event, error) {
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, eventError(err, eventID)
	}
	return event, nil
}

// Prepare is phase 1: it builds the grouped payment and ticket transfer and
// returns both legs unsigned. Only leg 0 is for the wallet to sign.
func (s *PurchaseService) Prepare(ctx context.Context, req models.PurchaseRequest) (*models.PurchaseResponse, error) {
	if req.WalletAddress == "" || req.EventID == "" {
		return nil, badRequest("Missing required fields: walletAddress, eventId")
	}
	trace(StateRequested, req.WalletAddress, req.EventID)

	if err := ledger.ValidateAddress(req.WalletAddress); err != nil {
		return nil, badRequest("Invalid wallet address format")
	}
	if err := ledger.ValidateAddress(s.settings.OrganizerAddress); err != nil {
		return nil, misconfigured("Invalid organizer wallet configuration")
	}

	event, err := s.loadEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	asaID, err := ResolveAssetID(event, s.settings.DefaultAsaID)
	if err != nil {
		return nil, badRequest("Event ASA ID not configured")
	}

	params, err := s.ledger.FetchNetworkParams(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get suggested params")
		return nil, internal("Failed to connect to Algorand network")
	}
	trace(StateParamsFetched, req.WalletAddress, req.EventID)

	payment, err := s.ledger.BuildPayment(req.WalletAddress, s.settings.OrganizerAddress, s.settings.PriceMicroAlgos, params,
		paymentNote(event))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create payment transaction")
		return nil, internal("Failed to create payment transaction")
	}
	transfer, err := s.ledger.BuildAssetTransfer(s.settings.OrganizerAddress, req.WalletAddress, asaID, ticketsPerPurchase, params,
		ticketNote(event))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create asset transfer transaction")
		return nil, internal("Failed to create asset transfer transaction")
	}
	trace(StateTxnsBuilt, req.WalletAddress, req.EventID)

	grouped, _, err := s.ledger.Group([]types.Transaction{payment, transfer})
	if err != nil {
		log.Error().Err(err).Msg("Failed to group transactions")
		return nil, internal("Failed to group transactions")
	}
	trace(StateGrouped, req.WalletAddress, req.EventID)

	// Wallets need the whole group to sign their leg; leg 1 is signed here in phase 2.
	txns := []models.TxnToSign{
		{Txn: base64.StdEncoding.EncodeToString(ledger.EncodeUnsigned(grouped[0])), Signers: []string{req.WalletAddress}},
		{Txn: base64.StdEncoding.EncodeToString(ledger.EncodeUnsigned(grouped[1])), Signers: []string{}},
	}
	trace(StateAwaitingUserSignature, req.WalletAddress, req.EventID)

	log.Info().
		Str("wallet", req.WalletAddress).
		Str("event_id", req.EventID).
		Uint64("asa_id", asaID).
		Msg("Purchase group prepared")

	return &models.PurchaseResponse{
		Success:    true,
		TxnsToSign: txns,
		Message:    "Transaction group created. Please sign with your wallet.",
		EventName:  event.Name,
		Price:      float64(s.settings.PriceMicroAlgos) / 1_000_000,
	}, nil
}

// Confirm is phase 2: leg 0 arrives signed by the wallet and leg 1 still
// unsigned. Both are checked against this purchase before the organizer
// key signs anything.
func (s *PurchaseService) Confirm(ctx context.Context, req models.ConfirmPurchaseRequest) (*models.ConfirmPurchaseResponse, error) {
	if req.WalletAddress == "" || req.EventID == "" || req.SignedTransactions == nil {
		return nil, badRequest("Missing required fields: walletAddress, eventId, signedTransactions")
	}
	if len(req.SignedTransactions) != 2 {
		return nil, badRequest("Invalid signed transactions format. Expected 2 transactions in the group.")
	}
	if err := ledger.ValidateAddress(req.WalletAddress); err != nil {
		return nil, badRequest("Invalid wallet address format")
	}
	if s.settings.OrganizerMnemonic == "" {
		return nil, misconfigured("Organizer wallet not configured. ALGOD_MNEMONIC is required server-side.")
	}

	event, err := s.loadEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	asaID, err := ResolveAssetID(event, s.settings.DefaultAsaID)
	if err != nil {
		return nil, badRequest("Event ASA ID not configured")
	}

	signer, err := ledger.LoadOrganizerSigner(s.settings.OrganizerMnemonic, s.settings.OrganizerAddress)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load organizer signer")
		if errors.Is(err, ledger.ErrOrganizerMismatch) {
			return nil, misconfigured("Organizer wallet address mismatch. Check ORGANIZER_WALLET_ADDRESS and ALGOD_MNEMONIC.")
		}
		return nil, misconfigured("Organizer signing key is invalid")
	}

	userLeg, err := base64.StdEncoding.DecodeString(req.SignedTransactions[0])
	if err != nil {
		return nil, badRequest("Invalid transaction encoding")
	}
	organizerLeg, err := base64.StdEncoding.DecodeString(req.SignedTransactions[1])
	if err != nil {
		return nil, badRequest("Invalid transaction encoding")
	}
	payment, err := ledger.DecodeSigned(userLeg)
	if err != nil {
		return nil, badRequest("User transaction could not be decoded")
	}
	transfer, err := ledger.DecodeUnsigned(organizerLeg)
	if err != nil {
		return nil, badRequest("Organizer transaction could not be decoded")
	}
	if err := s.checkLegs(payment, transfer, req.WalletAddress, event, asaID); err != nil {
		log.Warn().Err(err).Str("wallet", req.WalletAddress).Str("event_id", req.EventID).Msg("Rejected purchase group")
		return nil, badRequest("Transaction group does not match this purchase")
	}

	_, signedTransfer, err := signer.Sign(transfer)
	if err != nil {
		log.Error().Err(err).Msg("Failed to sign organizer transaction")
		return nil, badRequest("Transaction group does not match this purchase")
	}
	trace(StateOrganizerSigned, req.WalletAddress, req.EventID)

	txID, err := s.ledger.Submit(ctx, [][]byte{userLeg, signedTransfer})
	if err != nil {
		trace(StateSubmitFailed, req.WalletAddress, req.EventID)
		log.Error().Err(err).Str("wallet", req.WalletAddress).Msg("Error submitting transactions")
		return nil, internal(fmt.Sprintf("Failed to submit transaction to network: %s", submitReason(err)))
	}
	trace(StateSubmitted, req.WalletAddress, req.EventID)
	log.Info().Str("txid", txID).Str("wallet", req.WalletAddress).Msg("Transactions submitted")

	resp := &models.ConfirmPurchaseResponse{
		Success: true,
		Message: "Ticket purchase confirmed",
		TxID:    txID,
		AsaID:   asaID,
	}

	confirmation, err := s.ledger.AwaitConfirmationWithin(ctx, txID, s.settings.ConfirmationRounds, s.settings.ConfirmationTimeout)
	switch {
	case err != nil && ledger.IsSubmissionRejected(err):
		trace(StateSubmitFailed, req.WalletAddress, req.EventID)
		log.Error().Err(err).Str("txid", txID).Msg("Transaction dropped by the network")
		return nil, internal(fmt.Sprintf("Failed to submit transaction to network: %s", submitReason(err)))
	case err != nil:
		// The group was accepted; only the status query failed.
		log.Warn().Err(err).Str("txid", txID).Msg("Confirmation status unavailable")
		s.applyTimeoutPolicy(resp)
	case confirmation.Status == ledger.StatusConfirmed:
		trace(StateConfirmed, req.WalletAddress, req.EventID)
		resp.Confirmed = true
	default:
		log.Warn().Str("txid", txID).Msg("Transaction confirmation timeout (transaction may still be processing)")
		s.applyTimeoutPolicy(resp)
	}

	ticket := &models.Ticket{
		UserAddress: req.WalletAddress,
		EventID:     req.EventID,
		AsaID:       asaID,
		TxID:        txID,
		Amount:      ticketsPerPurchase,
		CreatedAt:   s.now().UTC(),
	}
	// The group is already on the network, so the row outlives the request.
	// The ledger stays the source of truth; a lost row does not undo the purchase.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.tickets.InsertTicket(persistCtx, ticket); err != nil {
		log.Error().Err(err).Str("txid", txID).Msg("Error storing ticket")
	}

	return resp, nil
}

func (s *PurchaseService) applyTimeoutPolicy(resp *models.ConfirmPurchaseResponse) {
	if s.settings.TimeoutIsSuccess {
		resp.Warning = "Transaction submitted; confirmation is still pending"
		return
	}
	resp.Success = false
	resp.Pending = true
	resp.Message = "Transaction submitted; confirmation is still pending"
}

// StatusFor is the HTTP status of a phase 2 response.
func StatusFor(resp *models.ConfirmPurchaseResponse) int {
	if resp.Pending {
		return http.StatusAccepted
	}
	return http.StatusOK
}

func submitReason(err error) string {
	var rejected *ledger.SubmissionRejectedError
	if errors.As(err, &rejected) {
		return rejected.Reason
	}
	return err.Error()
}

// checkLegs makes sure the organizer key only ever signs the ticket transfer
// this purchase calls for, grouped with the matching payment. Leg 1 is rebuilt
// here and must encode to the same bytes as the one the client sent back.
func (s *PurchaseService) checkLegs(payment types.SignedTxn, transfer types.Transaction, wallet string, event *models.Event, asaID uint64) error {
	walletAddr, err := types.DecodeAddress(wallet)
	if err != nil {
		return err
	}
	organizerAddr, err := types.DecodeAddress(s.settings.OrganizerAddress)
	if err != nil {
		return err
	}
	zero := types.Address{}

	if !ledger.IsSigned(payment) {
		return errors.Wrap(ledger.ErrInvalidLeg, "payment leg is not signed")
	}
	pay := payment.Txn
	switch {
	case pay.Type != types.PaymentTx:
		return errors.Wrap(ledger.ErrInvalidLeg, "leg 0 is not a payment")
	case pay.Sender != walletAddr, pay.Receiver != organizerAddr:
		return errors.Wrap(ledger.ErrInvalidLeg, "payment parties do not match")
	case uint64(pay.Amount) != s.settings.PriceMicroAlgos:
		return errors.Wrap(ledger.ErrInvalidLeg, "payment amount does not match ticket price")
	case pay.CloseRemainderTo != zero:
		return errors.Wrap(ledger.ErrInvalidLeg, "payment closes the account")
	}

	switch {
	case transfer.Type != types.AssetTransferTx:
		return errors.Wrap(ledger.ErrInvalidLeg, "leg 1 is not an asset transfer")
	case transfer.Sender != organizerAddr, transfer.AssetReceiver != walletAddr:
		return errors.Wrap(ledger.ErrInvalidLeg, "transfer parties do not match")
	case uint64(transfer.XferAsset) != asaID:
		return errors.Wrap(ledger.ErrInvalidLeg, "transfer asset does not match event")
	case transfer.AssetAmount != ticketsPerPurchase:
		return errors.Wrap(ledger.ErrInvalidLeg, "transfer amount must be one ticket")
	case transfer.AssetSender != zero, transfer.AssetCloseTo != zero, transfer.RekeyTo != zero:
		return errors.Wrap(ledger.ErrInvalidLeg, "transfer carries forbidden fields")
	case uint64(transfer.Fee) > s.maxOrganizerFee():
		return errors.Wrapf(ledger.ErrInvalidLeg, "transfer fee %d above limit", transfer.Fee)
	case transfer.LastValid < transfer.FirstValid, transfer.LastValid-transfer.FirstValid > maxValidityRounds:
		return errors.Wrap(ledger.ErrInvalidLeg, "transfer validity window out of range")
	case transfer.FirstValid != pay.FirstValid, transfer.LastValid != pay.LastValid,
		transfer.GenesisHash != pay.GenesisHash, transfer.GenesisID != pay.GenesisID:
		return errors.Wrap(ledger.ErrInvalidLeg, "legs were not built from the same params")
	}

	expected, err := s.ledger.BuildAssetTransfer(s.settings.OrganizerAddress, wallet, asaID, ticketsPerPurchase,
		types.SuggestedParams{
			Fee:             transfer.Fee,
			FlatFee:         true,
			GenesisID:       transfer.GenesisID,
			GenesisHash:     transfer.GenesisHash[:],
			FirstRoundValid: transfer.FirstValid,
			LastRoundValid:  transfer.LastValid,
		},
		ticketNote(event))
	if err != nil {
		return err
	}
	expected.Group = transfer.Group
	if !bytes.Equal(ledger.EncodeUnsigned(expected), ledger.EncodeUnsigned(transfer)) {
		return errors.Wrap(ledger.ErrInvalidLeg, "transfer differs from the one prepared for this purchase")
	}

	if transfer.Group == (types.Digest{}) || pay.Group != transfer.Group {
		return errors.Wrap(ledger.ErrInvalidLeg, "legs are not in the same group")
	}
	_, gid, err := s.ledger.Group([]types.Transaction{pay, transfer})
	if err != nil {
		return err
	}
	if gid != transfer.Group {
		return errors.Wrap(ledger.ErrInvalidLeg, "group id does not cover exactly these legs")
	}
	return nil
}

func (s *PurchaseService) maxOrganizerFee() uint64 {
	if s.settings.MaxOrganizerFee == 0 {
		return DefaultMaxOrganizerFee
	}
	return s.settings.MaxOrganizerFee
}
