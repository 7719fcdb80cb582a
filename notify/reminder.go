package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"leadflow/ledger"
)

// SignalReader is the ledger read pattern the reminder miner needs.
type SignalReader interface {
	Query(ctx context.Context, providerID string, names []string, since time.Time, limit int) ([]ledger.Event, error)
}

// ReminderMiner mines upcoming-slot signals into reminder candidates. It is
// forward-looking: only slots inside (now, now+window] qualify.
type ReminderMiner struct {
	ledger     SignalReader
	fetchLimit int
	log        zerolog.Logger
}

func NewReminderMiner(reader SignalReader, params Params, log zerolog.Logger) *ReminderMiner {
	return &ReminderMiner{
		ledger:     reader,
		fetchLimit: params.SignalFetchLimit,
		log:        log,
	}
}

// Mine returns candidates newest-signal-first. Duplicate signals for the
// same (lead, slot) are emitted as-is; collapsing is the dedup filter's
// job. Payloads that fail to decode or carry no slot are skipped.
func (m *ReminderMiner) Mine(ctx context.Context, providerID string, now time.Time, window time.Duration) ([]Candidate, error) {
	events, err := m.ledger.Query(ctx, providerID, ledger.ProgressSignals, time.Time{}, m.fetchLimit)
	if err != nil {
		return nil, err
	}

	horizon := now.Add(window)
	out := make([]Candidate, 0, len(events))
	for _, e := range events {
		sig, err := ledger.DecodeSignal(e.Payload)
		if err != nil {
			m.log.Warn().Err(err).Str("event_id", e.ID).Str("event_name", e.Name).Msg("undecodable signal payload")
			continue
		}
		slot, ok := sig.SlotTime()
		if !ok {
			continue
		}
		if !slot.After(now) || slot.After(horizon) {
			continue
		}
		out = append(out, Candidate{
			LeadID: e.LeadID,
			Anchor: &slot,
			Key:    ledger.ReminderKey(e.LeadID, slot),
		})
	}
	return out, nil
}
