// Package reporting aggregates call outcomes for the operator dashboard.
package reporting

import (
	"context"
	"errors"
	"time"

	"voice-orchestrator/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// maxRange bounds one summary query.
const maxRange = 93 * 24 * time.Hour

// Repository abstracts data access for reporting.
// Implemented by calls.PostgresRepo and calls.MemoryRepo.
type Repository interface {
	ListStartedBetween(ctx context.Context, from, to time.Time) ([]calls.CallRecord, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.To.Sub(req.Range.From) > maxRange {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListStartedBetween(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{Range: req.Range}
	answeredDuration := 0
	for _, c := range rows {
		if req.InboundOnly && !c.Inbound() {
			continue
		}
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		if c.Synthetic {
			out.SyntheticCalls++
		}
		switch c.Disposition {
		case calls.DispositionAnswered:
			out.AnsweredCalls++
			answeredDuration += c.DurationSeconds
		case calls.DispositionMissed:
			out.MissedCalls++
		case calls.DispositionVoicemail:
			out.VoicemailCalls++
		case calls.DispositionAbandoned:
			out.AbandonedCalls++
		default:
			out.InProgressCalls++
		}
	}

	// Average talk time covers answered calls only.
	if out.AnsweredCalls > 0 {
		out.AverageDurationSeconds = answeredDuration / out.AnsweredCalls
	}
	if decided := out.TotalCalls - out.InProgressCalls; decided > 0 {
		out.AnswerRate = float64(out.AnsweredCalls) / float64(decided)
	}
	return out, nil
}
