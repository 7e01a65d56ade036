package calls

import "testing"

func TestDeriveDisposition(t *testing.T) {
	cases := []struct {
		status   CallStatus
		duration int
		want     Disposition
		ok       bool
	}{
		{CallStatusCompleted, 42, DispositionAnswered, true},
		{CallStatusCompleted, 0, DispositionMissed, true},
		{CallStatusNoAnswer, 0, DispositionMissed, true},
		{CallStatusBusy, 3, DispositionMissed, true},
		{CallStatusFailed, 0, DispositionAbandoned, true},
		{CallStatusCanceled, 0, DispositionAbandoned, true},
		{CallStatusRinging, 0, "", false},
		{CallStatusInProgress, 10, "", false},
		{CallStatus("queued"), 0, "", false},
	}
	for _, tc := range cases {
		got, ok := DeriveDisposition(tc.status, tc.duration)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("DeriveDisposition(%s, %d) = %q,%v want %q,%v", tc.status, tc.duration, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if ParseStatus(" In_Progress ") != CallStatusInProgress {
		t.Fatalf("expected in-progress")
	}
	if ParseStatus("cancelled") != CallStatusCanceled {
		t.Fatalf("expected canceled")
	}
	if ParseStatus("weird").Terminal() {
		t.Fatalf("unknown status must not be terminal")
	}
}
