package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"authentix-backend/config"
	"authentix-backend/ledger"
)

var ticketAsset = ledger.DefaultTicketAsset()

var createAsaCmd = &cobra.Command{
	Use:   "create-asa",
	Short: "Create the ticket asset from the organizer account and print its id",
	Long: `Creates the Algorand asset that represents tickets, signed with the
organizer mnemonic. Set EVENT_ASA_ID to the printed id before serving purchases.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		net, err := ledger.Dial(cfg.Algod.Address, cfg.Algod.Token)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		assetID, err := createTicketAsset(ctx, ledger.NewClient(net), cfg, ticketAsset)
		if err != nil {
			return err
		}
		if assetID != 0 {
			fmt.Fprintln(cmd.OutOrStdout(), assetID)
		}
		return nil
	},
}

func init() {
	createAsaCmd.Flags().StringVar(&ticketAsset.Name, "name", ticketAsset.Name, "asset name")
	createAsaCmd.Flags().StringVar(&ticketAsset.UnitName, "unit", ticketAsset.UnitName, "asset unit name")
	createAsaCmd.Flags().Uint64Var(&ticketAsset.Total, "total", ticketAsset.Total, "total supply")
	createAsaCmd.Flags().Uint32Var(&ticketAsset.Decimals, "decimals", ticketAsset.Decimals, "decimal places")
	createAsaCmd.Flags().StringVar(&ticketAsset.URL, "url", ticketAsset.URL, "asset url")
	rootCmd.AddCommand(createAsaCmd)
}

// createTicketAsset returns 0 with a nil error when the creation was
// submitted but not confirmed within the configured rounds.
func createTicketAsset(ctx context.Context, lc *ledger.Client, cfg config.Config, asset ledger.TicketAsset) (uint64, error) {
	address := cfg.Organizer.WalletAddress
	if address == "" {
		derived, err := ledger.DeriveAddress(cfg.Organizer.Mnemonic)
		if err != nil {
			return 0, errors.Wrap(err, "organizer mnemonic")
		}
		address = derived
	}
	signer, err := ledger.LoadOrganizerSigner(cfg.Organizer.Mnemonic, address)
	if err != nil {
		return 0, errors.Wrap(err, "organizer key check failed")
	}
	log.Info().Str("address", signer.Address()).Msg("Organizer account loaded")

	balance, err := lc.AccountBalance(ctx, signer.Address())
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("Could not check organizer balance")
	case balance < ledger.MinCreateBalance:
		return 0, errors.Errorf("organizer balance %d microAlgos is below the %d needed to create an asset", balance, ledger.MinCreateBalance)
	default:
		log.Info().Uint64("balance", balance).Msg("Organizer balance checked")
	}

	assetID, txID, err := lc.CreateAsset(ctx, signer, asset, cfg.Confirmation.MaxRounds)
	if err != nil {
		return 0, errors.Wrap(err, "asset creation failed")
	}
	if assetID == 0 {
		log.Warn().Str("txid", txID).Msg("Asset creation submitted but not confirmed yet")
		return 0, nil
	}
	log.Info().Uint64("asa_id", assetID).Str("txid", txID).Msg("Ticket asset created; set EVENT_ASA_ID to this id")
	return assetID, nil
}
