package locale

import (
	"context"

	"github.com/rs/zerolog"
)

// DefaultLang is the global fallback when no other preference applies.
const DefaultLang = "en"

// SessionSource returns the lead's stored session language preference,
// empty when none exists.
type SessionSource interface {
	SessionLang(ctx context.Context, leadID string) (string, error)
}

// ProviderDefaults returns the provider's stored default language, empty
// when none is set.
type ProviderDefaults interface {
	DefaultLang(ctx context.Context, providerSlug string) (string, error)
}

// Request carries the inputs to one resolution, in precedence order.
type Request struct {
	Explicit     string
	LeadID       string
	ProviderSlug string
}

// Resolver cascades language preference: explicit > session > provider
// default > global default. Lookups fail open; an errored source simply
// falls through to the next one.
type Resolver struct {
	sessions  SessionSource
	providers ProviderDefaults
	log       zerolog.Logger
}

func NewResolver(sessions SessionSource, providers ProviderDefaults, log zerolog.Logger) *Resolver {
	return &Resolver{sessions: sessions, providers: providers, log: log}
}

// Resolve never fails; it always returns a usable language tag.
func (r *Resolver) Resolve(ctx context.Context, req Request) string {
	if req.Explicit != "" {
		return req.Explicit
	}

	if r.sessions != nil && req.LeadID != "" {
		lang, err := r.sessions.SessionLang(ctx, req.LeadID)
		if err != nil {
			r.log.Debug().Err(err).Str("lead_id", req.LeadID).Msg("session lang lookup failed")
		} else if lang != "" {
			return lang
		}
	}

	if r.providers != nil && req.ProviderSlug != "" {
		lang, err := r.providers.DefaultLang(ctx, req.ProviderSlug)
		if err != nil {
			r.log.Debug().Err(err).Str("provider_slug", req.ProviderSlug).Msg("provider lang lookup failed")
		} else if lang != "" {
			return lang
		}
	}

	return DefaultLang
}
