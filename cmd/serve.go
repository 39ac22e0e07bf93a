package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"authentix-backend/config"
	"authentix-backend/handlers"
	"authentix-backend/ledger"
	"authentix-backend/qrtoken"
	"authentix-backend/services"
	"authentix-backend/store"
)

const shutdownTimeout = 10 * time.Second

var strict bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the expired token sweeper",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&strict, "strict", false, "fail at startup if the organizer key or default asset is missing")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := checkStartup(cfg, strict); err != nil {
		return err
	}
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return errors.Wrap(err, "unable to connect to database")
	}
	defer pool.Close()
	db := store.New(pool)

	var events services.EventReader = db
	if cfg.Redis.Enabled {
		redisClient, err := store.NewRedisClient(store.RedisOptions{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		} else {
			defer redisClient.Close()
			events = store.NewCachedEvents(db, redisClient, cfg.Redis.EventTTL)
		}
	}

	network, err := ledger.Dial(cfg.Algod.Address, cfg.Algod.Token)
	if err != nil {
		return err
	}
	ledgerClient := ledger.NewClient(network)

	codec, err := qrtoken.NewCodec([]byte(cfg.QR.Secret))
	if err != nil {
		return err
	}
	settings := services.SettingsFromConfig(cfg)

	limiter := handlers.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	router := handlers.NewRouter(handlers.RouterConfig{
		Purchase: handlers.NewPurchaseHandler(services.NewPurchaseService(events, db, ledgerClient, settings)),
		Checkin:  handlers.NewCheckinHandler(services.NewVerificationService(codec, events, db, ledgerClient, settings)),
		Event:    handlers.NewEventHandler(services.NewEventService(events)),
		User: handlers.NewUserHandler(
			services.NewWalletService(db, ledgerClient),
			services.NewQRService(codec, events, db, ledgerClient, settings),
		),
		Limiter:     limiter,
		DB:          pool,
		CorsOrigins: cfg.Server.CorsOrigins,
	})

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("address", cfg.Server.Address).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return services.NewSweeper(db).Run(ctx, cfg.Sweep.Interval)
	})

	g.Go(func() error {
		return limiter.Cleanup(ctx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server error")
		return err
	}
	log.Info().Msg("Server shut down gracefully")
	return nil
}

// checkStartup validates configuration. In strict mode the organizer key is
// also loaded once so a bad mnemonic fails here rather than on the first purchase.
func checkStartup(cfg config.Config, strict bool) error {
	if !strict {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if cfg.Organizer.Mnemonic == "" || cfg.Ticket.DefaultAsaID == 0 {
			log.Warn().Msg("Organizer key or default asset not configured; purchases will fail until they are set")
		}
		return nil
	}
	if err := cfg.ValidateStrict(); err != nil {
		return err
	}
	if _, err := ledger.LoadOrganizerSigner(cfg.Organizer.Mnemonic, cfg.Organizer.WalletAddress); err != nil {
		return errors.Wrap(err, "organizer key check failed")
	}
	return nil
}
