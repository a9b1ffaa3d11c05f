package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardcast/internal/auth"
	"github.com/gosuda/boardcast/internal/collab"
	"github.com/gosuda/boardcast/internal/config"
	"github.com/gosuda/boardcast/internal/server"
	"github.com/gosuda/boardcast/internal/store/postgres"
	redisstore "github.com/gosuda/boardcast/internal/store/redis"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

// issueToken prints a handshake credential for a user ID. Development only.
func issueToken(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: boardcast token <user-id>")
	}
	userID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("parse user id: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	token, err := auth.IssueAccessToken(cfg.JWT.Secret, userID, cfg.JWT.AccessTTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func run() error {
	// Initialize structured logging from environment.
	logLevel := os.Getenv("BOARDCAST_LOG_LEVEL")
	level, parseErr := zerolog.ParseLevel(logLevel)
	if parseErr != nil || logLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := os.Getenv("BOARDCAST_LOG_FORMAT")
	if logFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	// Connect to PostgreSQL.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	// Connect to Redis.
	presence, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PresenceTTL)
	if err != nil {
		return err
	}
	defer presence.Close()

	authSvc := auth.NewService(store.Users(), cfg.JWT.Secret)

	// Last-seen is written to PostgreSQL and mirrored to Redis.
	engine := collab.NewEngine(
		store.Boards(),
		store.Cards(),
		collab.Recorders(store.Users(), presence),
		collab.Options{
			QueueSize:      cfg.Collab.QueueSize,
			SendBuffer:     cfg.WebSocket.SendBuffer,
			IOTimeout:      cfg.Collab.IOTimeout,
			LastSeenBuffer: cfg.Collab.LastSeenBuffer,
		},
	)

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- engine.Run(ctx)
	}()

	// Create HTTP server with all routes wired.
	srv := server.New(cfg, store, presence, authSvc, engine)

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	select {
	case engineErr := <-engineDone:
		if engineErr != nil && !errors.Is(engineErr, context.Canceled) {
			return engineErr
		}
	case <-shutdownCtx.Done():
		return errors.New("collab engine did not stop in time")
	}

	log.Info().Msg("stopped")
	return nil
}
