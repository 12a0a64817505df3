package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"steptions/internal/api"
	"steptions/internal/auth"
	"steptions/internal/config"
	"steptions/internal/metrics"
	"steptions/internal/oracle"
	"steptions/internal/store"
	"steptions/internal/token"
	"steptions/internal/venue"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.Parse()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		// .env file is optional
		log.Debug().Msg("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logging
	setupLogging(cfg.Logging)
	log.Info().Msg("Starting Steptions - Pooled Options Venue")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Application error")
	}

	log.Info().Msg("Steptions shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	// Initialize metrics
	m := metrics.New()
	if cfg.Metrics.Enabled {
		if err := m.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			m.Shutdown(shutdownCtx)
		}()
		log.Info().Int("port", cfg.Metrics.Port).Msg("Metrics server started")
	}

	// Venue state and the custody ledger live in separate databases: venue
	// operations run transfers inside their own store transaction, so the
	// ledger must not share the venue's writer.
	venueStore, err := store.NewSQLite(cfg.Persistence.VenuePath)
	if err != nil {
		return err
	}
	defer venueStore.Close()

	ledgerStore, err := store.NewSQLite(cfg.Persistence.LedgerPath)
	if err != nil {
		return err
	}
	defer ledgerStore.Close()
	log.Info().
		Str("venue", cfg.Persistence.VenuePath).
		Str("ledger", cfg.Persistence.LedgerPath).
		Msg("SQLite initialized")

	ledger := token.NewLedger(ledgerStore)

	// Price feed
	g, gCtx := errgroup.WithContext(ctx)

	var feed oracle.Feed
	var static *oracle.Static
	switch cfg.Oracle.Mode {
	case "static":
		static = oracle.NewStatic()
		feed = static
		log.Info().Msg("Using static price feed")
	case "chainlink":
		chainlink, err := oracle.NewChainlink(cfg.Oracle.RPCURL)
		if err != nil {
			return err
		}
		defer chainlink.Close()
		feed = chainlink
		log.Info().Msg("Chainlink price feed connected")
	case "websocket":
		stream := oracle.NewStream(cfg.Oracle.WSURL, cfg.Oracle.StaleAfter)
		feed = stream
		g.Go(func() error {
			log.Info().Msg("Starting price stream...")
			return stream.Run(gCtx)
		})
	}

	// Authorizer
	var authorizer auth.Authorizer
	switch cfg.Auth.Mode {
	case "none":
		authorizer = auth.AllowAll{}
		log.Warn().Msg("Authorization disabled, all principals allowed")
	case "token":
		authorizer = auth.NewSharedTokens(cfg.Auth.Tokens)
	}

	// Venue core
	v := venue.New(venue.Deps{
		Store:   venueStore,
		Tokens:  ledger,
		Feed:    feed,
		Auth:    authorizer,
		Metrics: m,
		Custody: cfg.Venue.CustodyAccount,
	})

	// Initialize on first boot; an already-initialized venue is left alone.
	initCtx := auth.WithSecret(ctx, cfg.Auth.Tokens[cfg.Venue.Admin])
	if err := v.Initialize(initCtx, cfg.Venue.Admin); err != nil {
		if !errors.Is(err, venue.ErrAlreadyInitialized) {
			return err
		}
		admin, err := v.Admin(ctx)
		if err != nil {
			return err
		}
		log.Info().Str("admin", admin).Msg("Venue already initialized")
	}

	// API server
	apiServer := api.NewServer(api.Deps{Venue: v, Prices: static})
	if err := apiServer.Start(cfg.API.ListenAddr); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		apiServer.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", cfg.API.ListenAddr).Msg("API server started")

	// Block until a shutdown signal or a background failure.
	g.Go(func() error {
		<-gCtx.Done()
		return gCtx.Err()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func setupLogging(cfg config.LoggingConfig) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}
