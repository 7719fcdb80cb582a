package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"leadflow/ledger"
	"leadflow/locale"
)

// Outbound channel and templates. Composition and transport live outside
// the engine; the template id only travels in the sent record.
const (
	channelWhatsApp          = "whatsapp"
	templateReminder         = "reminder.upcoming_slot"
	templateReactivation     = "reactivation.winback"
	defaultDispatchPerSecond = 20
	defaultDispatchBurst     = 5
)

// SentAppender records sent events in the ledger.
type SentAppender interface {
	Append(ctx context.Context, e ledger.Event) error
}

// LangResolver resolves the outbound language for one candidate.
type LangResolver interface {
	Resolve(ctx context.Context, req locale.Request) string
}

// Dispatcher records one sent event per admitted candidate. Its only side
// effect is the ledger append; the caller drives actual transport.
type Dispatcher struct {
	ledger  SentAppender
	langs   LangResolver
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewDispatcher(appender SentAppender, langs LangResolver, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		ledger:  appender,
		langs:   langs,
		limiter: rate.NewLimiter(rate.Limit(defaultDispatchPerSecond), defaultDispatchBurst),
		log:     log,
	}
}

// WithLimiter overrides the append pacing limiter.
func (d *Dispatcher) WithLimiter(l *rate.Limiter) *Dispatcher {
	d.limiter = l
	return d
}

// DispatchParams carries one admitted batch.
type DispatchParams struct {
	ProviderID   string
	ProviderSlug string
	Kind         Kind
	Mode         Mode
	ExplicitLang string
	Admitted     []Candidate
}

// DispatchResult tallies the batch outcome.
type DispatchResult struct {
	Sent       int
	Duplicates int
	Failed     int
}

// Dispatch runs best-effort through the batch. A duplicate-key violation
// means a concurrent run already sent that opportunity and counts as
// neither sent nor failed. A failed append leaves the candidate
// un-deduplicated, so it stays eligible on the next run.
func (d *Dispatcher) Dispatch(ctx context.Context, params DispatchParams) DispatchResult {
	var res DispatchResult
	for _, c := range params.Admitted {
		if err := d.limiter.Wait(ctx); err != nil {
			res.Failed += len(params.Admitted) - res.Sent - res.Duplicates - res.Failed
			d.log.Warn().Err(err).Str("provider_id", params.ProviderID).Msg("dispatch pacing interrupted")
			return res
		}

		var leadID string
		if c.LeadID != nil {
			leadID = *c.LeadID
		}
		lang := d.langs.Resolve(ctx, locale.Request{
			Explicit:     params.ExplicitLang,
			LeadID:       leadID,
			ProviderSlug: params.ProviderSlug,
		})

		sig := ledger.Signal{
			Channel:    channelWhatsApp,
			TemplateID: templateFor(params.Kind),
			Lang:       lang,
			DedupKey:   c.Key.String(),
		}
		if c.Anchor != nil {
			ms := c.Anchor.UnixMilli()
			sig.SlotMS = &ms
		}
		if params.Mode == ModeTest {
			sig.Mode = ledger.ModeTest
		}

		payload, err := ledger.EncodeSignal(sig)
		if err != nil {
			res.Failed++
			d.log.Warn().Err(err).Str("provider_id", params.ProviderID).Str("dedup_key", sig.DedupKey).Msg("encode sent payload")
			continue
		}

		err = d.ledger.Append(ctx, ledger.Event{
			Name:       eventNameFor(params.Kind),
			ProviderID: params.ProviderID,
			LeadID:     c.LeadID,
			Payload:    payload,
		})
		switch {
		case err == nil:
			res.Sent++
		case errors.Is(err, ledger.ErrDuplicateSend):
			res.Duplicates++
			d.log.Info().Str("provider_id", params.ProviderID).Str("dedup_key", sig.DedupKey).Msg("skipped duplicate send")
		default:
			res.Failed++
			d.log.Warn().Err(err).Str("provider_id", params.ProviderID).Str("lead_id", leadID).Str("dedup_key", sig.DedupKey).Msg("sent-event append failed")
		}
	}
	return res
}

func templateFor(kind Kind) string {
	if kind == KindReactivation {
		return templateReactivation
	}
	return templateReminder
}

func eventNameFor(kind Kind) string {
	if kind == KindReactivation {
		return ledger.EventReactivationSent
	}
	return ledger.EventReminderSent
}
