package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ekklesia/commhub/internal/api"
	"github.com/ekklesia/commhub/internal/auth"
	"github.com/ekklesia/commhub/internal/config"
	"github.com/ekklesia/commhub/internal/pkg/distlock"
	"github.com/ekklesia/commhub/internal/pkg/logger"
	"github.com/ekklesia/commhub/internal/repository/postgres"
	"github.com/ekklesia/commhub/internal/service/attendance"
	"github.com/ekklesia/commhub/internal/service/communication"
	"github.com/ekklesia/commhub/internal/service/contact"
	"github.com/ekklesia/commhub/internal/service/scenario"
	"github.com/ekklesia/commhub/internal/service/stats"
	"github.com/ekklesia/commhub/internal/sms"
	"github.com/ekklesia/commhub/internal/storage"
	"github.com/ekklesia/commhub/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logger.Error("server exited", "error", err)
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(configPath string) error {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.Redact())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			logger.Warn("telemetry flush failed", "error", err)
		}
	}()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database connected")

	rdb := connectRedis(ctx, cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}

	// The registry is optional only when sms.required is false; send
	// endpoints then answer 503.
	var (
		providers communication.Providers
		names     api.ProviderNames
	)
	registry, err := sms.NewRegistry(cfg.SMS)
	switch {
	case err == nil:
		providers, names = registry, registry
		logger.Info("sms providers configured", "providers", registry.Names())
	case cfg.SMS.Required:
		return fmt.Errorf("sms registry: %w", err)
	default:
		logger.Warn("sms disabled", "error", err)
	}

	archive, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("export storage: %w", err)
	}

	users := postgres.NewUserRepo(db)
	authManager, err := auth.NewManager(cfg.Auth, users)
	if err != nil {
		return err
	}
	google := auth.NewGoogleSignIn(cfg.Auth, authManager)

	contactRepo := postgres.NewContactRepo(db)
	commRepo := postgres.NewCommunicationRepo(db)
	dispatcher := communication.NewDispatcher(commRepo, communication.NewResolver(contactRepo), providers,
		communication.WithLocker(distlock.NewFactory(rdb, db, cfg.SMS.SendLockTTL())),
		communication.WithTelemetry(tel),
	)

	srv := api.NewServer(cfg.Server, api.Deps{
		Auth:           authManager,
		Google:         google,
		Contacts:       contact.NewService(contactRepo, archive),
		Communications: communication.NewService(commRepo, dispatcher),
		Scenarios:      scenario.NewService(postgres.NewScenarioRepo(db), contactRepo),
		Attendance:     attendance.NewService(postgres.NewAttendanceRepo(db), contactRepo),
		Stats:          stats.NewService(postgres.NewStatsRepo(db), names, rdb),
		Health:         api.NewHealthChecker(db, rdb, names),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "timeout", shutdownTimeout.String())
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// connectRedis returns nil when Redis is not configured or unreachable.
// Locks then fall back to PostgreSQL advisory locks and stats are not cached.
func connectRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		logger.Warn("redis unavailable, continuing without it", "addr", cfg.Addr, "error", err)
		_ = rdb.Close()
		return nil
	}
	logger.Info("redis connected", "addr", cfg.Addr)
	return rdb
}
