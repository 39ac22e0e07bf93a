package cmd

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"authentix-backend/services"
	"authentix-backend/store"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired QR token records once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		pool, err := store.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return errors.Wrap(err, "unable to connect to database")
		}
		defer pool.Close()

		deleted, err := services.NewSweeper(store.New(pool)).SweepOnce(ctx)
		if err != nil {
			return err
		}
		log.Info().Int64("deleted", deleted).Msg("Sweep complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
