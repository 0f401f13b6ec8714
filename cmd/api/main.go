package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"passport/internal/auth"
	"passport/internal/config"
	transporthttp "passport/internal/http"
	"passport/internal/notify"
	"passport/internal/platform/cache"
	"passport/internal/platform/database"
	"passport/internal/platform/logging"
	"passport/internal/platform/migrate"
	"passport/internal/sso"
	"passport/internal/tokens"
	"passport/internal/users"
	"passport/internal/verification"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	store, cleanup, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize user store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	codes, closeCache, err := buildCache(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer closeCache()

	set, err := tokens.NewSet(tokens.Config{
		Algorithm:            cfg.JWT.Algorithm,
		Secret:               cfg.JWT.Secret,
		PrivateKeyPEM:        cfg.JWT.PrivateKey,
		PublicKeyPEM:         cfg.JWT.PublicKey,
		Issuer:               cfg.JWT.Issuer,
		Audience:             cfg.JWT.Audience,
		AccessLifetime:       cfg.JWT.AccessLifetime,
		RefreshLifetime:      cfg.JWT.RefreshLifetime,
		VerificationLifetime: cfg.JWT.VerificationLifetime,
	})
	if err != nil {
		logger.Error("failed to load token keys", "error", err)
		os.Exit(1)
	}
	tokenService := tokens.NewService(set)

	registry := sso.NewRegistry(sso.Config{
		Google: sso.ClientConfig(cfg.Google),
		Yandex: sso.ClientConfig(cfg.Yandex),
		Telegram: sso.TelegramConfig{
			Enabled:    cfg.Telegram.Enabled,
			BotToken:   cfg.Telegram.BotToken,
			AuthExpiry: cfg.Telegram.AuthExpiry,
			Origin:     cfg.Telegram.Origin,
		},
	}, &http.Client{Timeout: cfg.SSOHTTPTimeout}, codes)

	dispatcher, err := buildDispatcher(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize notifications", "error", err)
		os.Exit(1)
	}

	authService := auth.NewService(store, tokenService, logger)
	ssoService := auth.NewSSOService(registry, store, authService, logger)
	if allowlist := auth.NewAllowlist(cfg.SSOAllowedDomains, cfg.SSOAllowedEmails); allowlist.Restricted() {
		ssoService.RestrictRegistration(allowlist)
		logger.Info("sso registration restricted by allowlist")
	}
	notifyService := auth.NewNotifyService(store, verification.NewService(codes, cfg.Verification.CodeLength, cfg.Verification.CodeTTL), tokenService, dispatcher, logger)

	if err := seedUsers(ctx, cfg, authService, logger); err != nil {
		logger.Error("failed to seed users", "error", err)
		os.Exit(1)
	}

	router := transporthttp.NewRouter(cfg, transporthttp.Services{
		Auth:      authService,
		SSO:       ssoService,
		Notify:    notifyService,
		Accounts:  auth.NewAccountService(store, authService, notifyService, logger),
		Providers: registry,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}

	go func() {
		logger.Info("Passport API listening", "addr", srv.Addr, "store", cfg.DataStore, "sso", registry.EnabledNames())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func buildStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (users.Store, func(), error) {
	if cfg.UseInMemoryStore() {
		logger.Info("using in-memory user store")
		return users.NewMemoryStore(), func() {}, nil
	}

	db, err := database.NewPostgres(ctx, cfg.DatabaseURL, database.PoolConfig{})
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		_ = db.Close()
	}

	if err := migrate.Apply(ctx, db, logger); err != nil {
		cleanup()
		return nil, nil, err
	}

	logger.Info("connected to postgres")
	return users.NewPostgresStore(db), cleanup, nil
}

// buildCache backs verification codes and discovery documents with Redis
// when configured, otherwise with process memory.
func buildCache(ctx context.Context, cfg config.Config, logger *slog.Logger) (cache.Store, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info("using in-memory cache")
		return cache.NewMemoryStore(), func() {}, nil
	}

	client, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to redis")
	return cache.NewRedisStore(client, "passport"), func() { _ = client.Close() }, nil
}

func buildDispatcher(cfg config.Config, logger *slog.Logger) (*notify.Dispatcher, error) {
	dispatcher := notify.NewDispatcher(logger)

	switch {
	case cfg.SMTP.Host != "":
		sender, err := notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			return nil, err
		}
		dispatcher.Register(notify.ChannelEmail, sender)
	case cfg.IsDevelopment():
		logger.Warn("SMTP_HOST not set; verification emails are written to the log")
		dispatcher.Register(notify.ChannelEmail, notify.LogSender{Channel: notify.ChannelEmail, Logger: logger})
	}

	if cfg.Telegram.NotifyEnabled {
		sender, err := notify.NewTelegramSender(cfg.Telegram.BotToken, &http.Client{Timeout: cfg.SSOHTTPTimeout})
		if err != nil {
			return nil, err
		}
		dispatcher.Register(notify.ChannelTelegram, sender)
	}
	return dispatcher, nil
}
