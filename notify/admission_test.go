package notify

import (
	"testing"
	"time"

	"leadflow/throttle"
)

func TestAdmitTruncatesToRemaining(t *testing.T) {
	candidates := make([]Candidate, 10)
	for i := range candidates {
		candidates[i] = reminderCandidate("L", time.UnixMilli(int64(i)))
	}

	admitted, reason := Admit(throttle.Settings{Remaining: 3, Allowed: true}, candidates)
	if reason != "" {
		t.Fatalf("reason = %q, want empty", reason)
	}
	if len(admitted) != 3 {
		t.Fatalf("admitted = %d, want 3", len(admitted))
	}
	// Miner order is preserved; no priority scoring.
	for i := range admitted {
		if admitted[i].Anchor.UnixMilli() != int64(i) {
			t.Errorf("admitted[%d] out of order", i)
		}
	}
}

func TestAdmitQuietHours(t *testing.T) {
	admitted, reason := Admit(throttle.Settings{IsQuiet: true, Remaining: 5}, make([]Candidate, 4))
	if len(admitted) != 0 {
		t.Fatalf("admitted = %d during quiet hours, want 0", len(admitted))
	}
	if reason != ReasonQuietHours {
		t.Errorf("reason = %q, want %q", reason, ReasonQuietHours)
	}
}

func TestAdmitCapExhausted(t *testing.T) {
	admitted, reason := Admit(throttle.Settings{Remaining: 0}, make([]Candidate, 4))
	if len(admitted) != 0 {
		t.Fatalf("admitted = %d with exhausted cap, want 0", len(admitted))
	}
	if reason != ReasonCapExhausted {
		t.Errorf("reason = %q, want %q", reason, ReasonCapExhausted)
	}
}

func TestAdmitFewerCandidatesThanBudget(t *testing.T) {
	admitted, reason := Admit(throttle.Settings{Remaining: 10, Allowed: true}, make([]Candidate, 2))
	if reason != "" || len(admitted) != 2 {
		t.Fatalf("admitted = %d (reason %q), want all 2", len(admitted), reason)
	}
}
