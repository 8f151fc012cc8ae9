package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	// SQL drivers selected by database.driver
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/TheShubhendra/marriagebot/bus"
	"github.com/TheShubhendra/marriagebot/cache"
	"github.com/TheShubhendra/marriagebot/cfg"
	"github.com/TheShubhendra/marriagebot/db"
	"github.com/TheShubhendra/marriagebot/encoding"
	"github.com/TheShubhendra/marriagebot/relay"
	"github.com/TheShubhendra/marriagebot/store"
	"github.com/TheShubhendra/marriagebot/telemetry"
)

func main() {
	flag.Parse()

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("instance_id", cfg.Config.InstanceID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("MarriageBot relay - bus event relay and persistence")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()
	telemetry.ServeMetrics()

	// Phase 1: Initialize the database pool
	log.Info().Msg("Initializing database pool")
	pool, err := db.NewPoolManager(cfg.Config.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database pool")
		return
	}

	openCtx, cancelOpen := context.WithTimeout(context.Background(), 30*time.Second)
	err = pool.Open(openCtx)
	cancelOpen()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database pool")
		return
	}
	defer pool.Close()

	// Ensure persistence schema
	marriages := store.NewMarriageStore(pool)
	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 30*time.Second)
	err = marriages.EnsureSchema(schemaCtx)
	cancelSchema()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure marriage schema")
		return
	}

	// Phase 2: Connect the bus client
	log.Info().Str("type", string(cfg.Config.Bus.Type)).Msg("Connecting bus client")
	busClient, err := bus.New(cfg.Config.Bus)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect bus client")
		return
	}
	defer busClient.Close()

	codec, err := encoding.Lookup(cfg.Config.Bus.PayloadFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("Unknown payload format")
		return
	}

	// Phase 3: Build the dispatch table
	log.Info().Msg("Building dispatch table")
	votes := cache.NewVoteCache(cache.DefaultVoteCacheSize, cache.DefaultVoteTTL)
	proposals := cache.NewProposalCache()
	tree := cache.NewTreeCache()

	dispatch := relay.NewDispatch()
	cache.RegisterHandlers(dispatch, votes, proposals, tree)

	// Phase 4: Start the subscription registry
	registry, err := relay.NewRegistry(relay.RegistryConfig{
		Bus:            busClient,
		Codec:          codec,
		HandlerTimeout: time.Duration(cfg.Config.Relay.HandlerTimeoutSeconds) * time.Second,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create subscription registry")
		return
	}

	registry.Start(dispatch.DescriptorsFor(cfg.Config.Relay.Channels))
	defer registry.Shutdown()

	log.Info().
		Strs("channels", cfg.Config.Relay.Channels).
		Str("payload_format", cfg.Config.Bus.PayloadFormat).
		Msg("Relay is operational")

	// Run until interrupted
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")
}
