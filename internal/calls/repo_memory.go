package calls

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Repository with the same atomic merge rules as Postgres.
// It is not intended for production use.
type MemoryRepo struct {
	mu       sync.Mutex
	byPID    map[string]*CallRecord
	byID     map[string]*CallRecord
	notified map[string]bool
	clock    func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byPID:    map[string]*CallRecord{},
		byID:     map[string]*CallRecord{},
		notified: map[string]bool{},
		clock:    time.Now,
	}
}

func (r *MemoryRepo) Upsert(ctx context.Context, s Sighting) (CallRecord, bool, error) {
	if s.ProviderCallID == "" {
		return CallRecord{}, false, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	at := s.At
	if at.IsZero() {
		at = r.clock().UTC()
	}

	rec, ok := r.byPID[s.ProviderCallID]
	if !ok {
		rec = &CallRecord{
			ID:              uuid.NewString(),
			ProviderCallID:  s.ProviderCallID,
			Direction:       s.Direction,
			FromNumber:      s.FromNumber,
			ToNumber:        s.ToNumber,
			Status:          s.Status,
			DurationSeconds: s.DurationSeconds,
			StartedAt:       at,
			Synthetic:       s.Synthetic,
			CreatedAt:       at,
			UpdatedAt:       at,
		}
		if rec.Direction == "" {
			rec.Direction = DirectionInbound
		}
		if s.Status.Terminal() {
			ended := at
			rec.EndedAt = &ended
		}
		r.byPID[rec.ProviderCallID] = rec
		r.byID[rec.ID] = rec
		return *rec, true, nil
	}

	if s.OverwriteStatus && s.Status != "" {
		rec.Status = s.Status
	}
	if s.DurationSeconds > rec.DurationSeconds {
		rec.DurationSeconds = s.DurationSeconds
	}
	if placeholderNumber(rec.FromNumber) && s.FromNumber != "" {
		rec.FromNumber = s.FromNumber
	}
	if rec.ToNumber == "" {
		rec.ToNumber = s.ToNumber
	}
	if rec.EndedAt == nil && s.Status.Terminal() {
		ended := at
		rec.EndedAt = &ended
	}
	rec.Synthetic = rec.Synthetic && s.Synthetic
	rec.UpdatedAt = at
	return *rec, false, nil
}

func (r *MemoryRepo) SetCallerIdentity(ctx context.Context, providerCallID, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byPID[providerCallID]
	if !ok {
		return ErrNotFound
	}
	if rec.CallerIdentity == "" {
		rec.CallerIdentity = identity
	}
	return nil
}

func (r *MemoryRepo) ClaimDisposition(ctx context.Context, providerCallID string, d Disposition) (Disposition, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byPID[providerCallID]
	if !ok {
		return "", false, ErrNotFound
	}
	if r.notified[providerCallID] {
		return "", false, nil
	}
	r.notified[providerCallID] = true
	if rec.Disposition == "" {
		rec.Disposition = d
	}
	return rec.Disposition, true, nil
}

func (r *MemoryRepo) MarkUnanswered(ctx context.Context, providerCallID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.byPID[providerCallID]; ok && rec.Disposition == "" {
		rec.Disposition = DispositionMissed
	}
	return nil
}

func (r *MemoryRepo) SetDisposition(ctx context.Context, id string, d Disposition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	rec.Disposition = d
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return *rec, nil
}

func (r *MemoryRepo) GetByProviderCallID(ctx context.Context, providerCallID string) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byPID[providerCallID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return *rec, nil
}

func (r *MemoryRepo) FindRecentInbound(ctx context.Context, fromNumber string, since time.Time) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *CallRecord
	for _, rec := range r.byPID {
		if rec.Direction != DirectionInbound || rec.FromNumber != fromNumber || rec.StartedAt.Before(since) {
			continue
		}
		if best == nil || rec.StartedAt.After(best.StartedAt) {
			best = rec
		}
	}
	if best == nil {
		return CallRecord{}, ErrNotFound
	}
	return *best, nil
}

func (r *MemoryRepo) ListStartedBetween(ctx context.Context, from, to time.Time) ([]CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, 0)
	for _, rec := range r.byPID {
		if rec.StartedAt.Before(from) || !rec.StartedAt.Before(to) {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// Records returns a snapshot, for tests.
func (r *MemoryRepo) Records() []CallRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, 0, len(r.byPID))
	for _, rec := range r.byPID {
		out = append(out, *rec)
	}
	return out
}

func placeholderNumber(s string) bool {
	return s == "" || s == "unknown"
}
