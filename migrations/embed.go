// Package migrations embeds the Postgres schema applied at start-up.
package migrations

import "embed"

// FS holds the versioned *.sql files; pass "." as the directory to utils.Migrate.
//
//go:embed *.sql
var FS embed.FS
