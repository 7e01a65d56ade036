package voicemail

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository with the same merge rules as Postgres.
// It is not intended for production use.
type MemoryRepo struct {
	mu    sync.Mutex
	byRec map[string]*VoicemailRecord
	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byRec: map[string]*VoicemailRecord{}, clock: time.Now}
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (VoicemailRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.byRec {
		if v.ID == id {
			return *v, nil
		}
	}
	return VoicemailRecord{}, ErrNotFound
}

func (r *MemoryRepo) GetByRecordingID(ctx context.Context, providerRecordingID string) (VoicemailRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byRec[providerRecordingID]
	if !ok {
		return VoicemailRecord{}, ErrNotFound
	}
	return *v, nil
}

func (r *MemoryRepo) InsertIfAbsent(ctx context.Context, v VoicemailRecord) (VoicemailRecord, bool, error) {
	if v.ProviderRecordingID == "" || v.ID == "" {
		return VoicemailRecord{}, false, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byRec[v.ProviderRecordingID]; ok {
		return *existing, false, nil
	}
	stored := v
	r.byRec[v.ProviderRecordingID] = &stored
	return stored, true, nil
}

func (r *MemoryRepo) FillGaps(ctx context.Context, providerRecordingID string, patch VoicemailRecord) (VoicemailRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byRec[providerRecordingID]
	if !ok {
		return VoicemailRecord{}, ErrNotFound
	}
	if placeholder(v.FromNumber) && !placeholder(patch.FromNumber) {
		v.FromNumber = patch.FromNumber
	}
	if v.CallRef == "" {
		v.CallRef = patch.CallRef
	}
	if v.ProviderCallID == "" {
		v.ProviderCallID = patch.ProviderCallID
	}
	if v.DurationSeconds == 0 {
		v.DurationSeconds = patch.DurationSeconds
	}
	if v.Mailbox == "" {
		v.Mailbox = patch.Mailbox
	}
	if v.RecordingURL == "" {
		v.RecordingURL = patch.RecordingURL
	}
	v.UpdatedAt = r.clock().UTC()
	return *v, nil
}

func (r *MemoryRepo) ClaimNotification(ctx context.Context, providerRecordingID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byRec[providerRecordingID]
	if !ok {
		return false, ErrNotFound
	}
	if v.NotifiedAt != nil {
		return false, nil
	}
	at := r.clock().UTC()
	v.NotifiedAt = &at
	return true, nil
}

func (r *MemoryRepo) ApplyTranscription(ctx context.Context, providerRecordingID, text string, status TranscriptionStatus) (VoicemailRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byRec[providerRecordingID]
	if !ok {
		return VoicemailRecord{}, false, nil
	}
	if v.TranscriptionStatus != "" && v.TranscriptionStatus != TranscriptionPending {
		return VoicemailRecord{}, false, nil
	}
	v.TranscriptionText = text
	v.TranscriptionStatus = status
	v.UpdatedAt = r.clock().UTC()
	return *v, true, nil
}

// Records returns a snapshot, for tests.
func (r *MemoryRepo) Records() []VoicemailRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]VoicemailRecord, 0, len(r.byRec))
	for _, v := range r.byRec {
		out = append(out, *v)
	}
	return out
}
