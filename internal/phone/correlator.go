package phone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Contact is the directory's view of a caller. Weak reference: we never own it.
type Contact struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Directory is the external contact store.
// LookupByPhone returns (nil, nil) when no contact matches.
type Directory interface {
	LookupByPhone(ctx context.Context, phone string) (*Contact, error)
	CreateUnknown(ctx context.Context, phone string) (string, error)
}

// Correlator resolves raw caller numbers against the Directory.
type Correlator struct {
	dir Directory
	log *slog.Logger
}

func NewCorrelator(dir Directory, log *slog.Logger) *Correlator {
	if log == nil {
		log = slog.Default()
	}
	return &Correlator{dir: dir, log: log}
}

// Lookup tries every variant of raw in order and returns the first contact found.
func (c *Correlator) Lookup(ctx context.Context, raw string) (*Contact, error) {
	if c == nil || c.dir == nil {
		return nil, nil
	}
	var errs []error
	for _, v := range Variants(raw) {
		ct, err := c.dir.LookupByPhone(ctx, v)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ct != nil {
			return ct, nil
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("phone: directory lookup: %w", errors.Join(errs...))
	}
	return nil, nil
}

// ResolveOrCreate returns the contact id for raw, creating an "unknown caller" contact on a miss.
// Anonymous callers yield an empty id and no error.
func (c *Correlator) ResolveOrCreate(ctx context.Context, raw string) (string, error) {
	if IsAnonymous(raw) || c == nil || c.dir == nil {
		return "", nil
	}
	ct, err := c.Lookup(ctx, raw)
	if err != nil {
		return "", err
	}
	if ct != nil {
		return ct.ID, nil
	}
	id, err := c.dir.CreateUnknown(ctx, Normalize(raw))
	if err != nil {
		return "", fmt.Errorf("phone: create unknown contact: %w", err)
	}
	return id, nil
}

// DisplayName is the best human label for raw. Directory failures fall back to the formatted number.
func (c *Correlator) DisplayName(ctx context.Context, raw string) string {
	ct, err := c.Lookup(ctx, raw)
	if err != nil {
		c.log.Warn("caller name lookup failed", "err", err)
	}
	if ct != nil && strings.TrimSpace(ct.DisplayName) != "" {
		return ct.DisplayName
	}
	return Display(raw)
}
