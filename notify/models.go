package notify

import (
	"time"

	"leadflow/ledger"
)

// Kind selects which miner feeds a run.
type Kind string

const (
	KindReminder     Kind = "reminder"
	KindReactivation Kind = "reactivation"
)

// Mode selects the normal admission path or the debug bypass.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeTest   Mode = "test"
)

// Reasons reported to the caller when a run admits nothing, so operators
// can tell "nothing to do" apart from "blocked".
const (
	ReasonQuietHours        = "quiet_hours"
	ReasonCapExhausted      = "cap_exhausted"
	ReasonConfigUnavailable = "config_unavailable"
	ReasonRunInProgress     = "run_in_progress"
	ReasonReadFailure       = "read_failure"
)

// Candidate is a (lead, anchor) pair eligible for notification pending
// admission. Anchor is the target slot for reminders and nil for
// reactivation.
type Candidate struct {
	LeadID *string
	Anchor *time.Time
	Key    ledger.DedupKey
}

// Result is the structured outcome of one engine run. It is always
// populated, even when the run was gated or aborted.
type Result struct {
	OK             bool   `json:"ok"`
	Mode           Mode   `json:"mode"`
	Kind           Kind   `json:"kind"`
	Attempted      int    `json:"attempted"`
	Sent           int    `json:"sent"`
	Failed         int    `json:"failed"`
	RemainingAfter int    `json:"remaining_after"`
	Reason         string `json:"reason,omitempty"`
}

// Params bundles the engine's mining and dedup windows.
type Params struct {
	SignalFetchLimit     int
	LeadFetchLimit       int
	LapseDays            int
	CoolOffDays          int
	ReminderLookbackDays int
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		SignalFetchLimit:     500,
		LeadFetchLimit:       2000,
		LapseDays:            30,
		CoolOffDays:          14,
		ReminderLookbackDays: 30,
	}
}
