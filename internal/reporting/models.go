package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest asks for aggregated call outcomes over [From, To).
type CallsSummaryRequest struct {
	Range TimeRange `json:"range"`
	// InboundOnly drops outbound legs (text-back or operator-initiated calls).
	InboundOnly bool `json:"inbound_only,omitempty"`
}

type CallsSummary struct {
	Range TimeRange `json:"range"`

	TotalCalls      int `json:"total_calls"`
	AnsweredCalls   int `json:"answered_calls"`
	MissedCalls     int `json:"missed_calls"`
	VoicemailCalls  int `json:"voicemail_calls"`
	AbandonedCalls  int `json:"abandoned_calls"`
	InProgressCalls int `json:"in_progress_calls"`

	// SyntheticCalls are placeholders created for recordings whose call was never seen.
	SyntheticCalls int `json:"synthetic_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	AnswerRate float64 `json:"answer_rate"`
}
