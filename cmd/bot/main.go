// Package main is the entry point for the staff Slack bot.
package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ebdekock/StaffSlackBot/internal/avatarpool"
	"github.com/ebdekock/StaffSlackBot/internal/bot"
	"github.com/ebdekock/StaffSlackBot/internal/config"
	"github.com/ebdekock/StaffSlackBot/internal/game/guesswho"
	"github.com/ebdekock/StaffSlackBot/internal/pkg/db"
	"github.com/ebdekock/StaffSlackBot/internal/pkg/fetch"
	"github.com/ebdekock/StaffSlackBot/internal/qualifier"
	"github.com/ebdekock/StaffSlackBot/internal/repository"
	"github.com/ebdekock/StaffSlackBot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := repository.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	userRepo := repository.NewUserRepository(dbPool.Pool)

	// Initialize the face detector and qualification pipeline
	cascade, err := os.ReadFile(cfg.Qualifier.CascadePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Qualifier.CascadePath).Msg("Failed to read cascade file")
	}

	detector, err := qualifier.NewPigoDetector(cascade, cfg.Qualifier.MinFaceSize, cfg.Qualifier.MaxFaceSize)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize face detector")
	}

	avatarQualifier := qualifier.New(detector, &qualifier.Config{
		ConfidenceThreshold: cfg.Qualifier.ConfidenceThreshold,
		MinFaceArea:         cfg.Qualifier.MinFaceArea,
		QualityScale:        cfg.Qualifier.QualityScale,
	})

	pool := avatarpool.New(avatarQualifier, &avatarpool.Config{
		DuplicateMaxDistance: cfg.Qualifier.DuplicateMaxDistance,
	})

	// Initialize the game engine
	selector := guesswho.NewSelector(rand.NewSource(time.Now().UnixNano()))
	director := guesswho.NewDirector(pool, selector, guesswho.Config{
		Candidates:    cfg.Game.Candidates,
		RecentWindow:  cfg.Game.RecentWindow,
		CorrectPoints: cfg.Game.CorrectPoints,
		RoundExpiry:   cfg.Game.RoundExpiry,
		IdleTimeout:   cfg.Game.IdleTimeout,
	})

	// Initialize bot
	slackBot, err := bot.New(&cfg.Bot, director, userRepo)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Initialize roster synchronization
	syncService := service.NewSyncService(
		bot.NewRosterClient(slackBot.API()),
		fetch.New(cfg.Sync.FetchTimeout),
		userRepo,
		pool,
		cfg.Bot.EmailDomain,
		cfg.Sync.Workers,
	)

	// Seed the directory and avatar pool before accepting games
	if err := syncService.Sync(ctx); err != nil {
		log.Error().Err(err).Msg("Initial roster sync failed, continuing with empty pool")
	}

	// Schedule the recurring roster sync and the round expiry sweep
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}

	_, err = sched.NewJob(
		gocron.DurationJob(cfg.Sync.Interval),
		gocron.NewTask(func() {
			if err := syncService.Sync(ctx); err != nil {
				log.Error().Err(err).Msg("Roster sync failed")
			}
		}),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule roster sync")
	}

	_, err = sched.NewJob(
		gocron.DurationJob(cfg.Game.SweepInterval),
		gocron.NewTask(func() {
			notices := director.SweepIdle(time.Now())
			slackBot.Game().NotifyExpired(ctx, notices)
		}),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule expiry sweep")
	}

	sched.Start()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in a goroutine
	botErr := make(chan error, 1)
	go func() {
		botErr <- slackBot.Run(ctx)
	}()

	// Wait for shutdown signal or bot failure
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-botErr:
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Bot stopped unexpectedly")
		}
	}

	// Graceful shutdown
	cancel()
	if err := sched.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Failed to shut down scheduler")
	}
	log.Info().Msg("Bot stopped gracefully")
}
