// Package migrations embeds the goose SQL migrations for the engine's
// internal tables.
package migrations

import "embed"

// FS holds the SQL migration files applied at engine open.
//
//go:embed *.sql
var FS embed.FS
