package ledger

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names appended by upstream producers (booking flow, payments,
// manual triggers) and by the notification engine itself.
const (
	EventBookingConfirmed    = "booking.confirmed"
	EventPaymentRecorded     = "payment.recorded"
	EventSlotSelected        = "slot.selected"
	EventRescheduleRequested = "reschedule.requested"
	EventLeadBooked          = "lead.booked"

	EventReminderSent     = "notification.sent"
	EventReactivationSent = "reactivation.sent"
)

// ProgressSignals carry a target-slot timestamp and feed the reminder miner.
var ProgressSignals = []string{
	EventBookingConfirmed,
	EventPaymentRecorded,
	EventSlotSelected,
	EventRescheduleRequested,
}

// PositiveSignals mark a lead as active for reactivation purposes.
var PositiveSignals = []string{
	EventBookingConfirmed,
	EventLeadBooked,
	EventPaymentRecorded,
}

// ModeTest tags sent events produced by the debug bypass path. Test sends
// never participate in dedup scans or daily counts.
const ModeTest = "test"

// Event mirrors the events table. Rows are immutable; the engine only ever
// appends new ones.
type Event struct {
	ID         string
	Name       string
	TS         time.Time
	ProviderID string
	LeadID     *string
	Payload    []byte
}

// Signal is the typed view of an event payload. Every field is optional;
// which fields are present depends on the event name.
type Signal struct {
	// SlotMS is the target appointment slot as epoch milliseconds.
	SlotMS     *int64 `json:"slot_ts,omitempty"`
	Channel    string `json:"channel,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
	Lang       string `json:"lang,omitempty"`
	Mode       string `json:"mode,omitempty"`
	DedupKey   string `json:"dedup_key,omitempty"`
}

// SlotTime returns the target slot as a time, if the payload carries one.
func (s Signal) SlotTime() (time.Time, bool) {
	if s.SlotMS == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*s.SlotMS), true
}

// DecodeSignal parses an event payload into its typed form. A nil or empty
// payload decodes to the zero Signal.
func DecodeSignal(payload []byte) (Signal, error) {
	if len(payload) == 0 {
		return Signal{}, nil
	}
	var s Signal
	if err := json.Unmarshal(payload, &s); err != nil {
		return Signal{}, fmt.Errorf("ledger: decode signal payload: %w", err)
	}
	return s, nil
}

// EncodeSignal serialises a typed payload for appending.
func EncodeSignal(s Signal) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode signal payload: %w", err)
	}
	return b, nil
}
