package main

import (
	"context"
	"errors"
	"log/slog"

	"passport/internal/auth"
	"passport/internal/config"
)

const (
	demoEmail    = "demo@passport.local"
	demoPassword = "demo-password"
)

// seedUsers ensures the configured superuser exists. The in-memory
// development store also gets a verified demo account so the password grant
// works out of the box.
func seedUsers(ctx context.Context, cfg config.Config, authService *auth.Service, logger *slog.Logger) error {
	if cfg.Admin.Email != "" {
		if err := authService.EnsureSuperuser(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			return err
		}
		logger.Info("superuser ensured", "email", cfg.Admin.Email)
	}

	if cfg.IsDevelopment() && cfg.UseInMemoryStore() {
		_, err := authService.Register(ctx, auth.Registration{Email: demoEmail, Password: demoPassword, IsVerified: true})
		if err != nil && !errors.Is(err, auth.ErrEmailTaken) {
			return err
		}
		logger.Info("seeded demo user", "email", demoEmail)
	}
	return nil
}
