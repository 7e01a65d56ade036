// Package directory adapts the CRM's contact and conversation tables to the narrow
// interfaces the call flow consumes. The voice service never owns these rows; it looks
// contacts up, creates placeholders for unknown callers and appends outbound texts.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"voice-orchestrator/internal/phone"
	"voice-orchestrator/pkg/utils"

	"github.com/google/uuid"
)

// SourceUnknownCaller tags contacts created for callers the directory did not know.
const SourceUnknownCaller = "voice_unknown_caller"

var ErrInvalidArgument = errors.New("directory: invalid argument")

// Postgres implements phone.Directory and routing.ThreadStore.
type Postgres struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, clock: time.Now}
}

var _ phone.Directory = (*Postgres)(nil)

func (p *Postgres) LookupByPhone(ctx context.Context, number string) (*phone.Contact, error) {
	if strings.TrimSpace(number) == "" {
		return nil, nil
	}
	const q = `SELECT id, display_name FROM contacts WHERE phone = $1 LIMIT 1`
	var c phone.Contact
	err := p.db.QueryRowContext(ctx, q, number).Scan(&c.ID, &c.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateUnknown inserts a placeholder contact. A concurrent create for the same
// number returns the row that won.
func (p *Postgres) CreateUnknown(ctx context.Context, number string) (string, error) {
	if strings.TrimSpace(number) == "" {
		return "", ErrInvalidArgument
	}
	const q = `
INSERT INTO contacts (id, phone, display_name, source, created_at)
VALUES ($1, $2, '', $3, $4)
ON CONFLICT (phone) DO UPDATE SET phone = EXCLUDED.phone
RETURNING id
`
	var id string
	if err := p.db.QueryRowContext(ctx, q, uuid.NewString(), number, SourceUnknownCaller, p.clock().UTC()).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// FindOrCreate returns the caller's conversation thread, creating it on first contact.
func (p *Postgres) FindOrCreate(ctx context.Context, number string) (string, error) {
	if strings.TrimSpace(number) == "" {
		return "", ErrInvalidArgument
	}
	now := p.clock().UTC()
	const q = `
INSERT INTO conversation_threads (id, phone, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (phone) DO UPDATE SET updated_at = EXCLUDED.updated_at
RETURNING id
`
	var id string
	if err := p.db.QueryRowContext(ctx, q, uuid.NewString(), number, now).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// AppendOutboundMessage records a text we sent on the thread and bumps the thread.
func (p *Postgres) AppendOutboundMessage(ctx context.Context, threadID, body string) error {
	if threadID == "" {
		return ErrInvalidArgument
	}
	now := p.clock().UTC()
	return utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const insert = `
INSERT INTO messages (id, thread_id, direction, body, created_at)
VALUES ($1, $2, 'outbound', $3, $4)
`
		if _, err := tx.ExecContext(ctx, insert, uuid.NewString(), threadID, body, now); err != nil {
			return err
		}
		const touch = `UPDATE conversation_threads SET updated_at = $2 WHERE id = $1`
		_, err := tx.ExecContext(ctx, touch, threadID, now)
		return err
	})
}
