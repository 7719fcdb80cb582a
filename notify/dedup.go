package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"leadflow/ledger"
)

// SentKeySource is the ledger read pattern the dedup filter needs: the set
// of dedup keys already dispatched since a given horizon.
type SentKeySource interface {
	SentKeys(ctx context.Context, providerID string, names []string, since time.Time) (map[string]struct{}, error)
}

// Filter drops candidates that were already acted upon within the lookback
// horizon and collapses in-batch duplicates, first occurrence winning.
type Filter struct {
	ledger SentKeySource
	log    zerolog.Logger
}

func NewFilter(source SentKeySource, log zerolog.Logger) *Filter {
	return &Filter{ledger: source, log: log}
}

// Apply filters candidates against the sent history for the kind. Keys
// with neither component present identify nothing and pass through
// unfiltered. Order is preserved.
func (f *Filter) Apply(ctx context.Context, providerID string, kind Kind, since time.Time, candidates []Candidate) ([]Candidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	sent, err := f.ledger.SentKeys(ctx, providerID, sentNames(kind), since)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(candidates))
	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.Key.Deduplicable() {
			kept = append(kept, c)
			continue
		}
		key := c.Key.String()
		if _, ok := sent[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, c)
	}
	return kept, nil
}

func sentNames(kind Kind) []string {
	if kind == KindReactivation {
		return []string{ledger.EventReactivationSent}
	}
	return []string{ledger.EventReminderSent}
}
