package callevent

import (
	"context"
	"database/sql"
)

// PostgresRepo writes to call_events. The table is INSERT-only.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO call_events (id, provider_call_id, event_type, digit, mailbox, detail, occurred_at)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.ProviderCallID,
		e.Type,
		e.Digit,
		e.Mailbox,
		e.Detail,
		e.OccurredAt,
	)
	return err
}

func (r *PostgresRepo) ListByCall(ctx context.Context, providerCallID string) ([]Event, error) {
	const q = `
SELECT id, COALESCE(provider_call_id, ''), event_type, digit, mailbox, detail, occurred_at
FROM call_events
WHERE provider_call_id = $1
ORDER BY occurred_at, id
`
	rows, err := r.db.QueryContext(ctx, q, providerCallID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.ID,
			&e.ProviderCallID,
			&e.Type,
			&e.Digit,
			&e.Mailbox,
			&e.Detail,
			&e.OccurredAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
