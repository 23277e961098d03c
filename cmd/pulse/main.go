package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/pulse/internal/auth"
	"github.com/gosuda/pulse/internal/backend"
	"github.com/gosuda/pulse/internal/config"
	"github.com/gosuda/pulse/internal/dashboard"
	"github.com/gosuda/pulse/internal/domain"
	"github.com/gosuda/pulse/internal/notify"
	"github.com/gosuda/pulse/internal/realtime"
	"github.com/gosuda/pulse/internal/server"
	"github.com/gosuda/pulse/internal/store/memory"
	"github.com/gosuda/pulse/internal/store/postgres"
	redisstore "github.com/gosuda/pulse/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	level, parseErr := zerolog.ParseLevel(os.Getenv("PULSE_LOG_LEVEL"))
	if parseErr != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if os.Getenv("PULSE_LOG_FORMAT") == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	checks := make(map[string]server.Pinger)

	// Column role assignments: PostgreSQL when configured, memory otherwise.
	var roles domain.RoleAssignmentRepository
	if cfg.Database.Enabled() {
		if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
			return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
		}

		store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		roles = store.Roles()
		checks["postgres"] = store
	} else {
		log.Warn().Msg("PULSE_DB_HOST not set, column role assignments are kept in memory")
		roles = memory.NewRoleAssignmentRepo()
	}

	creds := auth.NewCredentials(cfg.Auth.Token, cfg.Auth.TokenFile)

	api, err := backend.New(backend.Options{
		BaseURL:     cfg.Backend.URL,
		Timeout:     cfg.Backend.Timeout,
		RPS:         cfg.Backend.RPS,
		Burst:       cfg.Backend.Burst,
		TokenSource: creds.TokenSource(),
	})
	if err != nil {
		return err
	}

	svcOpts := dashboard.ServiceOptions{
		Projects:     api,
		Tasks:        api,
		Roles:        roles,
		PollInterval: cfg.Dashboard.PollInterval,
		DisplayLimit: cfg.Dashboard.DisplayLimit,
	}

	// Snapshot cache and fan-out: Redis when configured.
	var snapshots *redisstore.Snapshots
	if cfg.Redis.Enabled() {
		pubsub, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer pubsub.Close()

		snapshots = redisstore.NewSnapshots(pubsub, cfg.Redis.SnapshotTTL)
		svcOpts.Sink = snapshots
		svcOpts.Loader = snapshots
		checks["redis"] = pubsub
	}

	if cfg.Slack.Enabled() {
		svcOpts.Notifier = notify.New(slacklib.New(cfg.Slack.BotToken), cfg.Slack.Channel)
		log.Info().Str("channel", cfg.Slack.Channel).Msg("overdue digest enabled")
	}

	svc := dashboard.NewService(svcOpts)

	live := realtime.NewManager(realtime.Options{
		Disabled:             !cfg.Live.Enabled,
		APIBaseURL:           cfg.Backend.URL,
		WSBaseURL:            cfg.Backend.WSURL,
		Credentials:          creds,
		ReconnectDelay:       cfg.Live.ReconnectDelay,
		MaxReconnectAttempts: cfg.Live.MaxReconnects,
		HeartbeatInterval:    cfg.Live.Heartbeat,
	}, liveHandlers(svc))
	defer live.Close()
	live.Watch(cfg.Live.WatchProject)

	deps := server.Deps{
		Dashboard: svc,
		Live:      live,
		Feed:      svc,
		Checks:    checks,
	}
	if snapshots != nil {
		deps.Feed = snapshots
	}

	srv := server.New(ctx, cfg, deps)

	go svc.Run(ctx)

	// Start server in background goroutine.
	go func() {
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

	log.Info().Msg("stopped")
	return nil
}

// liveHandlers refreshes a project's dashboard whenever its board stream
// reports a card change.
func liveHandlers(svc *dashboard.Service) func(projectID int64) realtime.Handlers {
	return func(projectID int64) realtime.Handlers {
		changed := func(map[string]any) { svc.Trigger(projectID) }
		return realtime.Handlers{
			OnConnected: func(map[string]any) {
				log.Info().Int64("project_id", projectID).Msg("live board stream connected")
				svc.Trigger(projectID)
			},
			OnCardMoved:   changed,
			OnCardUpdated: changed,
			OnCardCreated: changed,
			OnCardDeleted: changed,
			OnError: func(message string) {
				log.Warn().Int64("project_id", projectID).Str("message", message).Msg("live board stream error")
			},
		}
	}
}
