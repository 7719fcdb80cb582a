package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ErrConfigUnavailable signals that throttle settings could not be
// resolved. The contract is fail-closed: callers must admit nothing.
var ErrConfigUnavailable = errors.New("throttle: config unavailable")

const defaultResolveTimeout = 5 * time.Second

// Row mirrors the provider_throttle_settings table.
type Row struct {
	ProviderID  string
	QuietStart  int
	QuietEnd    int
	DailyCap    int
	WindowHours int
	Timezone    string
}

// Repository loads raw throttle rows.
type Repository interface {
	GetBySlug(ctx context.Context, slug string) (Row, error)
}

// SentCounter reports how many non-test notifications went out since a
// given instant. Backed by the event ledger; there is no separate counter
// table.
type SentCounter interface {
	CountSentSince(ctx context.Context, providerID string, since time.Time) (int, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) GetBySlug(ctx context.Context, slug string) (Row, error) {
	const query = `
SELECT p.id, t.quiet_start_hour, t.quiet_end_hour, t.daily_cap, t.window_hours, COALESCE(p.timezone, 'UTC')
FROM providers p
JOIN provider_throttle_settings t ON t.provider_id = p.id
WHERE p.slug = $1
`
	var row Row
	err := r.pool.QueryRow(ctx, query, slug).
		Scan(&row.ProviderID, &row.QuietStart, &row.QuietEnd, &row.DailyCap, &row.WindowHours, &row.Timezone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Row{}, fmt.Errorf("throttle: no settings for slug %q: %w", slug, err)
		}
		return Row{}, fmt.Errorf("throttle: get settings: %w", err)
	}
	return row, nil
}

// Resolver turns raw throttle rows into per-run Settings. Every failure on
// this path, including timeouts, resolves to ErrConfigUnavailable; absence
// of config is never interpreted as "no limits".
type Resolver struct {
	repo    Repository
	sent    SentCounter
	now     func() time.Time
	timeout time.Duration
	log     zerolog.Logger
}

func NewResolver(repo Repository, sent SentCounter, log zerolog.Logger) *Resolver {
	return &Resolver{
		repo:    repo,
		sent:    sent,
		now:     time.Now,
		timeout: defaultResolveTimeout,
		log:     log,
	}
}

// WithNow overrides the clock. Intended for tests.
func (r *Resolver) WithNow(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve loads the provider's throttle settings and computes the quiet
// flag and remaining budget for this run.
func (r *Resolver) Resolve(ctx context.Context, slug string) (Settings, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row, err := r.repo.GetBySlug(ctx, slug)
	if err != nil {
		r.log.Warn().Err(err).Str("provider_slug", slug).Msg("throttle settings lookup failed")
		return Settings{}, ErrConfigUnavailable
	}

	loc, err := time.LoadLocation(row.Timezone)
	if err != nil {
		r.log.Warn().Err(err).Str("timezone", row.Timezone).Msg("bad provider timezone")
		return Settings{}, ErrConfigUnavailable
	}

	now := r.now()
	dayStart := localDayStart(now, loc)

	// The daily count bounds the budget: a read failure here would imply
	// unlimited remaining, so it fails closed.
	sentToday, err := r.sent.CountSentSince(ctx, row.ProviderID, dayStart)
	if err != nil {
		r.log.Warn().Err(err).Str("provider_id", row.ProviderID).Msg("sent-today count failed")
		return Settings{}, ErrConfigUnavailable
	}

	remaining := row.DailyCap - sentToday
	if remaining < 0 {
		remaining = 0
	}

	isQuiet := inQuietWindow(now.In(loc).Hour(), row.QuietStart, row.QuietEnd)

	return Settings{
		ProviderID:  row.ProviderID,
		QuietStart:  row.QuietStart,
		QuietEnd:    row.QuietEnd,
		DailyCap:    row.DailyCap,
		SentToday:   sentToday,
		Remaining:   remaining,
		WindowHours: row.WindowHours,
		Timezone:    row.Timezone,
		IsQuiet:     isQuiet,
		Allowed:     !isQuiet && remaining > 0,
	}, nil
}
