package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// NOTE: This repository assumes the call_logs table from migrations/0001_call_logs.sql,
// in particular UNIQUE (provider_call_id).

type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

const callColumns = `id, provider_call_id, direction, from_number, to_number, status,
COALESCE(disposition, ''), duration_seconds, started_at, ended_at,
COALESCE(caller_identity, ''), synthetic, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner, extra ...any) (CallRecord, error) {
	var (
		c     CallRecord
		ended sql.NullTime
	)
	dest := []any{
		&c.ID,
		&c.ProviderCallID,
		&c.Direction,
		&c.FromNumber,
		&c.ToNumber,
		&c.Status,
		&c.Disposition,
		&c.DurationSeconds,
		&c.StartedAt,
		&ended,
		&c.CallerIdentity,
		&c.Synthetic,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, err
	}
	if ended.Valid {
		t := ended.Time
		c.EndedAt = &t
	}
	return c, nil
}

func (r *PostgresRepo) Upsert(ctx context.Context, s Sighting) (CallRecord, bool, error) {
	if s.ProviderCallID == "" {
		return CallRecord{}, false, ErrInvalidArgument
	}
	at := s.At
	if at.IsZero() {
		at = r.clock().UTC()
	}
	dir := s.Direction
	if dir == "" {
		dir = DirectionInbound
	}
	var ended sql.NullTime
	if s.Status.Terminal() {
		ended = sql.NullTime{Time: at, Valid: true}
	}

	// xmax = 0 only on the row version this statement inserted.
	const q = `
INSERT INTO call_logs (
  id, provider_call_id, direction, from_number, to_number, status,
  duration_seconds, started_at, ended_at, synthetic, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$8,$8
)
ON CONFLICT (provider_call_id) DO UPDATE SET
  status = CASE WHEN $11 AND EXCLUDED.status <> '' THEN EXCLUDED.status ELSE call_logs.status END,
  duration_seconds = GREATEST(call_logs.duration_seconds, EXCLUDED.duration_seconds),
  from_number = CASE WHEN call_logs.from_number IN ('', 'unknown') AND EXCLUDED.from_number <> ''
                     THEN EXCLUDED.from_number ELSE call_logs.from_number END,
  to_number = CASE WHEN call_logs.to_number = '' THEN EXCLUDED.to_number ELSE call_logs.to_number END,
  ended_at = COALESCE(call_logs.ended_at, EXCLUDED.ended_at),
  synthetic = call_logs.synthetic AND EXCLUDED.synthetic,
  updated_at = EXCLUDED.updated_at
RETURNING ` + callColumns + `, (xmax = 0) AS inserted
`
	var inserted bool
	rec, err := scanCall(r.db.QueryRowContext(ctx, q,
		uuid.NewString(),
		s.ProviderCallID,
		dir,
		s.FromNumber,
		s.ToNumber,
		s.Status,
		s.DurationSeconds,
		at,
		ended,
		s.Synthetic,
		s.OverwriteStatus,
	), &inserted)
	if err != nil {
		return CallRecord{}, false, err
	}
	return rec, inserted, nil
}

func (r *PostgresRepo) SetCallerIdentity(ctx context.Context, providerCallID, identity string) error {
	const q = `
UPDATE call_logs
SET caller_identity = $2, updated_at = $3
WHERE provider_call_id = $1 AND caller_identity IS NULL
`
	_, err := r.db.ExecContext(ctx, q, providerCallID, identity, r.clock().UTC())
	return err
}

func (r *PostgresRepo) ClaimDisposition(ctx context.Context, providerCallID string, d Disposition) (Disposition, bool, error) {
	const q = `
UPDATE call_logs
SET disposition = COALESCE(disposition, $2), notified_at = $3, updated_at = $3
WHERE provider_call_id = $1 AND notified_at IS NULL
RETURNING disposition
`
	var kept Disposition
	err := r.db.QueryRowContext(ctx, q, providerCallID, d, r.clock().UTC()).Scan(&kept)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return kept, true, nil
}

func (r *PostgresRepo) MarkUnanswered(ctx context.Context, providerCallID string) error {
	const q = `
UPDATE call_logs
SET disposition = $2, updated_at = $3
WHERE provider_call_id = $1 AND disposition IS NULL
`
	_, err := r.db.ExecContext(ctx, q, providerCallID, DispositionMissed, r.clock().UTC())
	return err
}

func (r *PostgresRepo) SetDisposition(ctx context.Context, id string, d Disposition) error {
	const q = `
UPDATE call_logs
SET disposition = $2, updated_at = $3
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, d, r.clock().UTC())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (CallRecord, error) {
	q := `SELECT ` + callColumns + ` FROM call_logs WHERE id = $1`
	return scanCall(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) GetByProviderCallID(ctx context.Context, providerCallID string) (CallRecord, error) {
	q := `SELECT ` + callColumns + ` FROM call_logs WHERE provider_call_id = $1`
	return scanCall(r.db.QueryRowContext(ctx, q, providerCallID))
}

func (r *PostgresRepo) FindRecentInbound(ctx context.Context, fromNumber string, since time.Time) (CallRecord, error) {
	q := `SELECT ` + callColumns + `
FROM call_logs
WHERE direction = 'inbound' AND from_number = $1 AND started_at >= $2
ORDER BY started_at DESC
LIMIT 1`
	return scanCall(r.db.QueryRowContext(ctx, q, fromNumber, since))
}

// ListStartedBetween returns calls started in [from, to), oldest first.
func (r *PostgresRepo) ListStartedBetween(ctx context.Context, from, to time.Time) ([]CallRecord, error) {
	q := `SELECT ` + callColumns + `
FROM call_logs
WHERE started_at >= $1 AND started_at < $2
ORDER BY started_at`
	rows, err := r.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallRecord, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
