package ledger

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrDuplicateSend signals the sent-event insert hit the dedup-key
	// uniqueness guardrail: this opportunity was already dispatched.
	ErrDuplicateSend = errors.New("ledger: duplicate send for dedup key")
	// ErrRunInProgress signals another run holds the provider lock.
	ErrRunInProgress = errors.New("ledger: run already in progress for provider")
)

// PGRepository is the PostgreSQL-backed event ledger. The events table is
// append-only; a partial unique index on (provider_id, dedup_key) over
// non-test reminder sends re-validates those keys at write time. Lead-scoped
// reactivation keys become eligible again after cool-off, so they rely on
// per-provider run serialisation instead of a uniqueness constraint.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Append writes a single event. The result is always surfaced to the
// caller; appends are never fire-and-forget.
func (r *PGRepository) Append(ctx context.Context, e Event) error {
	if e.Name == "" {
		return fmt.Errorf("ledger: missing event name")
	}
	if e.ProviderID == "" {
		return fmt.Errorf("ledger: missing provider id")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.TS.IsZero() {
		e.TS = time.Now()
	}

	const insertSQL = `
INSERT INTO events (id, name, ts, provider_id, lead_id, payload)
VALUES ($1, $2, $3, $4, $5, $6)
`
	if _, err := r.pool.Exec(ctx, insertSQL, e.ID, e.Name, e.TS, e.ProviderID, e.LeadID, e.Payload); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSend
		}
		return fmt.Errorf("ledger: append event %s: %w", e.Name, err)
	}
	return nil
}

// Query returns up to limit events for the provider matching any of the
// names, newest first.
func (r *PGRepository) Query(ctx context.Context, providerID string, names []string, since time.Time, limit int) ([]Event, error) {
	const query = `
SELECT id, name, ts, provider_id, lead_id, payload
FROM events
WHERE provider_id = $1 AND name = ANY($2) AND ts >= $3
ORDER BY ts DESC
LIMIT $4
`
	rows, err := r.pool.Query(ctx, query, providerID, names, since, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: query events: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0, 64)
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Name, &e.TS, &e.ProviderID, &e.LeadID, &e.Payload); err != nil {
			return nil, fmt.Errorf("ledger: scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate events: %w", err)
	}
	return out, nil
}

// SentKeys builds the set of dedup keys already acted upon since the given
// horizon. Test-mode sends are excluded so the bypass path never consumes
// real dedup state.
func (r *PGRepository) SentKeys(ctx context.Context, providerID string, names []string, since time.Time) (map[string]struct{}, error) {
	const query = `
SELECT payload->>'dedup_key'
FROM events
WHERE provider_id = $1 AND name = ANY($2) AND ts >= $3
  AND COALESCE(payload->>'mode', '') <> 'test'
  AND COALESCE(payload->>'dedup_key', '') <> ''
`
	rows, err := r.pool.Query(ctx, query, providerID, names, since)
	if err != nil {
		return nil, fmt.Errorf("ledger: query sent keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{}, 64)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("ledger: scan sent key: %w", err)
		}
		keys[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate sent keys: %w", err)
	}
	return keys, nil
}

// CountSentSince counts non-test sent events since the given instant. Used
// for the daily budget, so callers must treat an error as fail-closed.
func (r *PGRepository) CountSentSince(ctx context.Context, providerID string, since time.Time) (int, error) {
	const query = `
SELECT count(*)
FROM events
WHERE provider_id = $1
  AND name = ANY($2)
  AND ts >= $3
  AND COALESCE(payload->>'mode', '') <> 'test'
`
	var n int
	sentNames := []string{EventReminderSent, EventReactivationSent}
	if err := r.pool.QueryRow(ctx, query, providerID, sentNames, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("ledger: count sent events: %w", err)
	}
	return n, nil
}

// LatestByLead returns, per lead, the newest timestamp among the named
// events. Events without a lead id are skipped, as are test-mode sends:
// this feeds the lapse and cool-off checks, and a debug bypass send must
// never cool a lead for real.
func (r *PGRepository) LatestByLead(ctx context.Context, providerID string, names []string) (map[string]time.Time, error) {
	const query = `
SELECT lead_id, max(ts)
FROM events
WHERE provider_id = $1 AND name = ANY($2) AND lead_id IS NOT NULL
  AND COALESCE(payload->>'mode', '') <> 'test'
GROUP BY lead_id
`
	rows, err := r.pool.Query(ctx, query, providerID, names)
	if err != nil {
		return nil, fmt.Errorf("ledger: query latest by lead: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time, 64)
	for rows.Next() {
		var (
			leadID string
			ts     time.Time
		)
		if err := rows.Scan(&leadID, &ts); err != nil {
			return nil, fmt.Errorf("ledger: scan latest by lead: %w", err)
		}
		out[leadID] = ts
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate latest by lead: %w", err)
	}
	return out, nil
}

// AcquireRunLock serialises engine runs per provider via an advisory lock
// held on a pinned connection. Returns ErrRunInProgress when another run
// holds the lock. The caller must invoke release exactly once.
func (r *PGRepository) AcquireRunLock(ctx context.Context, providerID string) (release func(), err error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: acquire lock connection: %w", err)
	}

	key := advisoryKey(providerID)
	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("ledger: try advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, ErrRunInProgress
	}

	release = func() {
		// Best effort: the lock dies with the session either way.
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, key)
		conn.Release()
	}
	return release, nil
}

func advisoryKey(providerID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("leadflow.notify." + providerID))
	return int64(h.Sum64())
}
