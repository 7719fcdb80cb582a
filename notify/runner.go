package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"leadflow/ledger"
	"leadflow/provider"
	"leadflow/throttle"
)

// ConfigResolver resolves per-provider throttle settings for a run.
type ConfigResolver interface {
	Resolve(ctx context.Context, slug string) (throttle.Settings, error)
}

// DirectoryResolver resolves a provider slug to its record.
type DirectoryResolver interface {
	Resolve(ctx context.Context, slug string) (provider.Provider, error)
}

// ReminderSource mines forward-looking reminder candidates.
type ReminderSource interface {
	Mine(ctx context.Context, providerID string, now time.Time, window time.Duration) ([]Candidate, error)
}

// ReactivationSource mines backward-looking win-back candidates.
type ReactivationSource interface {
	Mine(ctx context.Context, providerID string, now time.Time) ([]Candidate, error)
}

// Deduper removes already-acted candidates.
type Deduper interface {
	Apply(ctx context.Context, providerID string, kind Kind, since time.Time, candidates []Candidate) ([]Candidate, error)
}

// Sender records sent events for an admitted batch.
type Sender interface {
	Dispatch(ctx context.Context, params DispatchParams) DispatchResult
}

// RunLocker serialises runs per provider.
type RunLocker interface {
	AcquireRunLock(ctx context.Context, providerID string) (release func(), err error)
}

// Runner orchestrates one request-scoped engine run. It holds no mutable
// state across invocations; the ledger is the only shared truth.
type Runner struct {
	directory     DirectoryResolver
	config        ConfigResolver
	reminders     ReminderSource
	reactivations ReactivationSource
	dedup         Deduper
	dispatcher    Sender
	locks         RunLocker
	params        Params
	now           func() time.Time
	log           zerolog.Logger
}

func NewRunner(
	directory DirectoryResolver,
	config ConfigResolver,
	reminders ReminderSource,
	reactivations ReactivationSource,
	dedup Deduper,
	dispatcher Sender,
	locks RunLocker,
	params Params,
	log zerolog.Logger,
) *Runner {
	return &Runner{
		directory:     directory,
		config:        config,
		reminders:     reminders,
		reactivations: reactivations,
		dedup:         dedup,
		dispatcher:    dispatcher,
		locks:         locks,
		params:        params,
		now:           time.Now,
		log:           log,
	}
}

// WithNow overrides the clock. Intended for tests.
func (r *Runner) WithNow(now func() time.Time) *Runner {
	r.now = now
	return r
}

// TriggerParams carries one trigger request.
type TriggerParams struct {
	ProviderSlug string
	Kind         Kind
	Mode         Mode
	TestLeadID   string
	Lang         string
}

// Trigger executes one run. The returned Result is always meaningful; the
// error is non-nil only for bad requests (ErrMissingInput), unknown
// providers (provider.ErrUnknownProvider), and infrastructure faults the
// caller must map itself. Config failures and gating are expressed in the
// Result, never as unhandled faults.
func (r *Runner) Trigger(ctx context.Context, p TriggerParams) (Result, error) {
	if p.ProviderSlug == "" {
		return Result{}, fmt.Errorf("%w: provider slug", ErrMissingInput)
	}
	if p.Kind == "" {
		p.Kind = KindReminder
	}
	if p.Kind != KindReminder && p.Kind != KindReactivation {
		return Result{}, fmt.Errorf("%w: unknown kind %q", ErrMissingInput, p.Kind)
	}
	if p.Mode == "" {
		p.Mode = ModeNormal
	}

	prov, err := r.directory.Resolve(ctx, p.ProviderSlug)
	if err != nil {
		return Result{}, err
	}

	if p.Mode == ModeTest {
		return r.runTest(ctx, prov, p)
	}
	return r.runNormal(ctx, prov, p)
}

func (r *Runner) runNormal(ctx context.Context, prov provider.Provider, p TriggerParams) (Result, error) {
	res := Result{Mode: ModeNormal, Kind: p.Kind}

	release, err := r.locks.AcquireRunLock(ctx, prov.ID)
	if err != nil {
		if errors.Is(err, ledger.ErrRunInProgress) {
			res.OK = true
			res.Reason = ReasonRunInProgress
			return res, nil
		}
		return res, fmt.Errorf("notify: acquire run lock: %w", err)
	}
	defer release()

	settings, err := r.config.Resolve(ctx, p.ProviderSlug)
	if err != nil {
		// Fail closed: no config means no admission, never "no limits".
		r.log.Warn().Err(err).Str("provider_slug", p.ProviderSlug).Msg("run aborted, config unavailable")
		res.Reason = ReasonConfigUnavailable
		return res, nil
	}
	res.RemainingAfter = settings.Remaining

	if !settings.Allowed {
		res.OK = true
		if settings.IsQuiet {
			res.Reason = ReasonQuietHours
		} else {
			res.Reason = ReasonCapExhausted
		}
		return res, nil
	}

	now := r.now()
	candidates, err := r.mine(ctx, prov.ID, p.Kind, now, settings)
	if err != nil {
		// Mining fails open: an unreadable signal source admits nothing
		// this run but does not block the provider.
		r.log.Warn().Err(err).Str("provider_id", prov.ID).Str("kind", string(p.Kind)).Msg("candidate mining failed")
		candidates = nil
	}

	filtered, err := r.dedup.Apply(ctx, prov.ID, p.Kind, now.Add(-r.dedupHorizon(p.Kind)), candidates)
	if err != nil {
		// An unreadable sent history cannot prove a candidate fresh, so
		// the batch fails closed. The write-time key constraint would
		// still catch duplicates, but there is no reason to lean on it.
		r.log.Warn().Err(err).Str("provider_id", prov.ID).Msg("dedup scan failed")
		res.Reason = ReasonReadFailure
		return res, nil
	}
	res.Attempted = len(filtered)

	admitted, reason := Admit(settings, filtered)
	if reason != "" {
		res.OK = true
		res.Reason = reason
		return res, nil
	}

	out := r.dispatcher.Dispatch(ctx, DispatchParams{
		ProviderID:   prov.ID,
		ProviderSlug: prov.Slug,
		Kind:         p.Kind,
		Mode:         ModeNormal,
		ExplicitLang: p.Lang,
		Admitted:     admitted,
	})

	res.OK = true
	res.Sent = out.Sent
	res.Failed = out.Failed
	res.RemainingAfter = settings.Remaining - out.Sent
	r.log.Info().
		Str("provider_slug", p.ProviderSlug).
		Str("kind", string(p.Kind)).
		Int("attempted", res.Attempted).
		Int("sent", res.Sent).
		Int("failed", res.Failed).
		Int("remaining_after", res.RemainingAfter).
		Msg("run complete")
	return res, nil
}

// runTest forces exactly one synthetic candidate through dispatch,
// bypassing quiet-hours and cap checks. The sent event is tagged as a test
// send, which keeps it out of dedup scans and daily counts.
func (r *Runner) runTest(ctx context.Context, prov provider.Provider, p TriggerParams) (Result, error) {
	if p.TestLeadID == "" {
		return Result{}, fmt.Errorf("%w: test lead id", ErrMissingInput)
	}

	res := Result{Mode: ModeTest, Kind: p.Kind, Attempted: 1}

	if settings, err := r.config.Resolve(ctx, p.ProviderSlug); err == nil {
		res.RemainingAfter = settings.Remaining
	} else {
		r.log.Warn().Err(err).Str("provider_slug", p.ProviderSlug).Msg("test run proceeding without settings")
	}

	leadID := p.TestLeadID
	candidate := Candidate{LeadID: &leadID}
	if p.Kind == KindReminder {
		slot := r.now().Add(time.Hour)
		candidate.Anchor = &slot
		candidate.Key = ledger.ReminderKey(&leadID, slot)
	} else {
		candidate.Key = ledger.ReactivationKey(&leadID)
	}

	out := r.dispatcher.Dispatch(ctx, DispatchParams{
		ProviderID:   prov.ID,
		ProviderSlug: prov.Slug,
		Kind:         p.Kind,
		Mode:         ModeTest,
		ExplicitLang: p.Lang,
		Admitted:     []Candidate{candidate},
	})

	res.OK = out.Failed == 0
	res.Sent = out.Sent
	res.Failed = out.Failed
	return res, nil
}

func (r *Runner) mine(ctx context.Context, providerID string, kind Kind, now time.Time, settings throttle.Settings) ([]Candidate, error) {
	if kind == KindReactivation {
		return r.reactivations.Mine(ctx, providerID, now)
	}
	window := time.Duration(settings.WindowHours) * time.Hour
	return r.reminders.Mine(ctx, providerID, now, window)
}

func (r *Runner) dedupHorizon(kind Kind) time.Duration {
	if kind == KindReactivation {
		return time.Duration(r.params.CoolOffDays) * 24 * time.Hour
	}
	return time.Duration(r.params.ReminderLookbackDays) * 24 * time.Hour
}
