package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"leadflow/ledger"
)

// LeadSource lists leads for a provider, newest first.
type LeadSource interface {
	RecentIDs(ctx context.Context, providerID string, limit int) ([]string, error)
}

// ActivityReader is the grouped ledger read pattern the reactivation miner
// needs: newest timestamp per lead for a set of event names.
type ActivityReader interface {
	LatestByLead(ctx context.Context, providerID string, names []string) (map[string]time.Time, error)
}

// ReactivationMiner mines lapsed, cooled-off leads into win-back
// candidates. It is backward-looking over the lead base.
type ReactivationMiner struct {
	leads      LeadSource
	ledger     ActivityReader
	fetchLimit int
	lapse      time.Duration
	coolOff    time.Duration
	log        zerolog.Logger
}

func NewReactivationMiner(leads LeadSource, reader ActivityReader, params Params, log zerolog.Logger) *ReactivationMiner {
	return &ReactivationMiner{
		leads:      leads,
		ledger:     reader,
		fetchLimit: params.LeadFetchLimit,
		lapse:      time.Duration(params.LapseDays) * 24 * time.Hour,
		coolOff:    time.Duration(params.CoolOffDays) * 24 * time.Hour,
		log:        log,
	}
}

// Mine returns candidates in lead-fetch order. A lead qualifies iff it is
// lapsed (no positive signal, or the newest one older than lapse) and
// cooled (no prior reactivation send, or the newest one older than
// cool-off). The three reads are independent and run concurrently.
func (m *ReactivationMiner) Mine(ctx context.Context, providerID string, now time.Time) ([]Candidate, error) {
	var (
		leadIDs      []string
		lastPositive map[string]time.Time
		lastWinback  map[string]time.Time
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		leadIDs, err = m.leads.RecentIDs(gctx, providerID, m.fetchLimit)
		return err
	})
	g.Go(func() error {
		var err error
		lastPositive, err = m.ledger.LatestByLead(gctx, providerID, ledger.PositiveSignals)
		return err
	})
	g.Go(func() error {
		var err error
		lastWinback, err = m.ledger.LatestByLead(gctx, providerID, []string{ledger.EventReactivationSent})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(leadIDs))
	for _, id := range leadIDs {
		positive, hasPositive := lastPositive[id]
		if hasPositive && now.Sub(positive) <= m.lapse {
			continue
		}
		winback, hasWinback := lastWinback[id]
		if hasWinback && now.Sub(winback) <= m.coolOff {
			continue
		}
		leadID := id
		out = append(out, Candidate{
			LeadID: &leadID,
			Key:    ledger.ReactivationKey(&leadID),
		})
	}
	return out, nil
}
