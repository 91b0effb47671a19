package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reawakened/rw-backend/internal/auth"
	"github.com/reawakened/rw-backend/internal/config"
	"github.com/reawakened/rw-backend/internal/db"
	"github.com/reawakened/rw-backend/internal/logging"
	"github.com/reawakened/rw-backend/internal/mailer"
	"github.com/reawakened/rw-backend/internal/middleware"
	"github.com/reawakened/rw-backend/internal/ratelimit"
	"github.com/reawakened/rw-backend/routes"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DBURL, cfg.IsProduction())
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	defer db.Close(gdb)

	if err := auth.Init(gdb); err != nil {
		logger.Error("auth migration failed", "err", err)
		os.Exit(1)
	}

	limits, err := newRateLimitStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("rate limit store unavailable", "err", err)
		os.Exit(1)
	}

	dispatcher := mailer.NewDispatcher(newSender(cfg, logger), mailer.DispatcherConfig{
		RatePerSecond: cfg.MailRatePerSecond,
	}, logging.Component(logger, "mailer"))
	defer dispatcher.Close()

	store := auth.NewGormStore(gdb)
	svc := auth.NewService(store, auth.NewPasswordHasher(cfg.BcryptCost), auth.Settings{
		SessionTTL:       cfg.SessionTTL,
		ResetTokenTTL:    cfg.ResetTokenTTL,
		VerifyTokenTTL:   cfg.VerifyTokenTTL,
		MaxLoginAttempts: cfg.MaxLoginAttempts,
		LockoutDuration:  cfg.LockoutDuration,
	}, auth.WithLogger(logging.Component(logger, "auth")))

	auth.NewSweeper(store, cfg.SweepInterval, logging.Component(logger, "sweeper")).Start(ctx)

	handler := auth.NewHandler(svc,
		mailer.Notifier{Dispatcher: dispatcher, BaseURL: cfg.AppBaseURL},
		middleware.CookieOptions{Production: cfg.IsProduction()},
		logging.Component(logger, "auth"),
	)

	srv := &http.Server{
		Addr: "0.0.0.0:" + cfg.Port,
		Handler: routes.NewRouter(routes.Deps{
			Config: cfg,
			Auth:   handler,
			Limits: limits,
			Logger: logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
}

// newRateLimitStore shares windows through redis when REDIS_URL is set;
// otherwise windows live in this process only.
func newRateLimitStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ratelimit.Store, error) {
	rlLogger := logging.Component(logger, "ratelimit")

	if cfg.RedisURL != "" {
		client, err := ratelimit.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		rlLogger.Info("using redis rate limit store")
		return ratelimit.NewRedisStore(client, "rw:ratelimit:"), nil
	}

	store := ratelimit.NewMemoryStore()
	store.StartSweeper(ctx, shortestWindow(cfg), rlLogger)
	rlLogger.Info("using in-memory rate limit store")
	return store, nil
}

func shortestWindow(cfg *config.Config) time.Duration {
	shortest := time.Duration(0)
	for _, p := range cfg.RateLimits {
		if shortest == 0 || p.Window < shortest {
			shortest = p.Window
		}
	}
	if shortest <= 0 {
		shortest = time.Minute
	}
	return shortest
}

func newSender(cfg *config.Config, logger *slog.Logger) mailer.Sender {
	if cfg.SMTPHost == "" {
		return mailer.LogSender{Logger: logging.Component(logger, "mailer")}
	}
	return mailer.SMTPSender{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	}
}
