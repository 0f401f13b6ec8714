// Package migrations holds the passport schema as numbered goose SQL files.
package migrations

import "embed"

// Files is read by internal/platform/migrate and applied in version order.
//
//go:embed *.sql
var Files embed.FS
