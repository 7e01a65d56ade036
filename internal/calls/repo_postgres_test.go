package calls

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var callCols = []string{
	"id", "provider_call_id", "direction", "from_number", "to_number", "status",
	"disposition", "duration_seconds", "started_at", "ended_at",
	"caller_identity", "synthetic", "created_at", "updated_at",
}

func TestPostgresRepo_UpsertReportsInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Date(2025, 10, 14, 17, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(append(callCols, "inserted")).
		AddRow("id-1", "CA1", "inbound", "+13105551234", "+13105550000", "completed",
			"", 30, now, now, "", false, now, now, true)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (provider_call_id) DO UPDATE")).
		WithArgs(sqlmock.AnyArg(), "CA1", DirectionInbound, "+13105551234", "+13105550000",
			CallStatusCompleted, 30, now, sqlmock.AnyArg(), false, true).
		WillReturnRows(rows)

	repo := NewPostgresRepo(db)
	rec, inserted, err := repo.Upsert(context.Background(), Sighting{
		ProviderCallID:  "CA1",
		Direction:       DirectionInbound,
		FromNumber:      "+13105551234",
		ToNumber:        "+13105550000",
		Status:          CallStatusCompleted,
		DurationSeconds: 30,
		At:              now,
		OverwriteStatus: true,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !inserted || rec.ID != "id-1" || rec.EndedAt == nil {
		t.Fatalf("unexpected result: inserted=%v rec=%+v", inserted, rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepo_ClaimDispositionOnlyOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	q := regexp.QuoteMeta("SET disposition = COALESCE(disposition, $2), notified_at = $3")
	mock.ExpectQuery(q).WithArgs("CA1", DispositionAnswered, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"disposition"}).AddRow("missed"))
	mock.ExpectQuery(q).WithArgs("CA1", DispositionAnswered, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"disposition"}))

	repo := NewPostgresRepo(db)
	kept, won, err := repo.ClaimDisposition(context.Background(), "CA1", DispositionAnswered)
	if err != nil || !won || kept != DispositionMissed {
		t.Fatalf("expected first claim to win and keep missed, got %q %v %v", kept, won, err)
	}
	_, won, err = repo.ClaimDisposition(context.Background(), "CA1", DispositionAnswered)
	if err != nil || won {
		t.Fatalf("expected second claim to lose, got %v %v", won, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepo_MarkUnansweredOnlyFillsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("WHERE provider_call_id = $1 AND disposition IS NULL")).
		WithArgs("CA1", DispositionMissed, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewPostgresRepo(db).MarkUnanswered(context.Background(), "CA1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepo_FindRecentInboundNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	since := time.Date(2025, 10, 14, 16, 55, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY started_at DESC")).
		WithArgs("+13105551234", since).
		WillReturnRows(sqlmock.NewRows(callCols))

	_, err = NewPostgresRepo(db).FindRecentInbound(context.Background(), "+13105551234", since)
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresRepo_ListStartedBetween(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	from := time.Date(2025, 10, 14, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	rows := sqlmock.NewRows(callCols).
		AddRow("id-1", "CA1", "inbound", "+13105551234", "+13105550000", "completed",
			"answered", 30, from.Add(time.Hour), from.Add(time.Hour), "", false, from, from).
		AddRow("id-2", "CA2", "inbound", "+13105559999", "+13105550000", "no-answer",
			"missed", 0, from.Add(2*time.Hour), nil, "", false, from, from)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE started_at >= $1 AND started_at < $2")).
		WithArgs(from, to).
		WillReturnRows(rows)

	got, err := NewPostgresRepo(db).ListStartedBetween(context.Background(), from, to)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ProviderCallID != "CA1" || got[1].Disposition != DispositionMissed {
		t.Fatalf("unexpected rows: %+v", got)
	}
	if got[1].EndedAt != nil {
		t.Fatalf("expected nil ended_at, got %v", got[1].EndedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
