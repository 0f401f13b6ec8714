// Package migrate applies the schema migrations embedded in the binary.
package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"passport/migrations"
)

// newProvider builds a goose provider over the embedded files. Closing the
// provider would close db, so callers leave it open.
func newProvider(db *sqlx.DB, logger *slog.Logger) (*goose.Provider, error) {
	opts := []goose.ProviderOption{goose.WithDisableGlobalRegistry(true)}
	if logger != nil {
		opts = append(opts, goose.WithSlog(logger.With("component", "migrate")))
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db.DB, migrations.Files, opts...)
	if err != nil {
		return nil, fmt.Errorf("migrate: new provider: %w", err)
	}
	return provider, nil
}

// Apply runs every pending migration.
func Apply(ctx context.Context, db *sqlx.DB, logger *slog.Logger) error {
	provider, err := newProvider(db, logger)
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate: up: %w", err)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("migrate: check version: %w", err)
	}
	if logger != nil {
		logger.Info("database schema up to date", "version", version, "applied", len(results))
	}
	return nil
}
