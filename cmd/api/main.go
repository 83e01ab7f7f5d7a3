package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/goquote/goquote-go/internal/config"
	"github.com/goquote/goquote-go/internal/crypto"
	"github.com/goquote/goquote-go/internal/handler"
	"github.com/goquote/goquote-go/internal/mailer"
	"github.com/goquote/goquote-go/internal/repository"
	"github.com/goquote/goquote-go/internal/service"
	"github.com/goquote/goquote-go/internal/telemetry"
)

const serviceName = "goquote-api"

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg)

	if err := run(cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.Config) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.IsProduction() {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h).With("service", serviceName))
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	dialect, err := repository.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		return err
	}
	db, err := repository.Open(ctx, dialect, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database ready", "driver", dialect)

	hasher, err := crypto.NewPasswordHasher(crypto.Algorithm(cfg.PasswordHashAlgorithm), cfg.BcryptCost)
	if err != nil {
		return err
	}
	tokens, err := crypto.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		return err
	}

	var mail mailer.Mailer = mailer.NewLogMailer(slog.Default())
	if cfg.SMTPEnabled() {
		mail = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
		}, cfg.OTPTTL)
	} else {
		slog.Warn("SMTP_HOST not set, one-time codes will only be logged")
	}

	store := repository.NewSQLStore(db, dialect)
	authService := service.NewAuthService(store, hasher, tokens, mail, service.Options{
		OTPTTL:         cfg.OTPTTL,
		ExposeDebugOTP: cfg.ExposeDebugOTP(),
	})

	router := handler.NewRouter(handler.RouterConfig{
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		RequestTimeout: cfg.RequestTimeout,
	}, handler.NewAuthHandler(authService), handler.NewMetaHandler(serviceName, version), tokens)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		return err
	}

	slog.Info("server stopped")
	return nil
}
