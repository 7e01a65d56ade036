package utils

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
)

// migrationLockKey serializes Migrate across instances starting at the same time.
const migrationLockKey int64 = 0x766f6963656d6967

// Migrate applies every *.sql file under dir in fsys that is not yet recorded in schema_migrations.
// Files run in lexical order, each inside its own transaction together with its bookkeeping row.
// Every transaction holds the same advisory lock and re-checks schema_migrations under it, so a
// second instance waits for the first and then skips what it applied.
func Migrate(ctx context.Context, db *sql.DB, fsys fs.FS, dir string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	err := WithLockedTx(ctx, db, migrationLockKey, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
		return err
	})
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version := strings.TrimSuffix(entry.Name(), ".sql")
		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", version, err)
		}

		var ran bool
		err = WithLockedTx(ctx, db, migrationLockKey, func(ctx context.Context, tx *sql.Tx) error {
			var applied bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
			).Scan(&applied); err != nil {
				return fmt.Errorf("checking migration %s: %w", version, err)
			}
			if applied {
				return nil
			}
			if _, err := tx.ExecContext(ctx, string(content)); err != nil {
				return fmt.Errorf("executing migration %s: %w", version, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
				return fmt.Errorf("recording migration %s: %w", version, err)
			}
			ran = true
			return nil
		})
		if err != nil {
			return err
		}
		if ran {
			log.Info("applied migration", "version", version)
		}
	}
	return nil
}
