package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnknownProvider signals that no provider exists for the given slug.
var ErrUnknownProvider = errors.New("provider: unknown provider")

// PGRepository implements provider lookups backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// GetBySlug resolves a provider by its public slug.
func (r *PGRepository) GetBySlug(ctx context.Context, slug string) (Provider, error) {
	const query = `
SELECT id, slug, name, category, COALESCE(lang_pref, ''), COALESCE(timezone, 'UTC'), active, created_at
FROM providers
WHERE slug = $1
`
	var p Provider
	err := r.pool.QueryRow(ctx, query, slug).
		Scan(&p.ID, &p.Slug, &p.Name, &p.Category, &p.LangPref, &p.Timezone, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Provider{}, ErrUnknownProvider
		}
		return Provider{}, fmt.Errorf("provider: get by slug: %w", err)
	}
	return p, nil
}

// ListActive returns up to limit active providers, newest first.
func (r *PGRepository) ListActive(ctx context.Context, limit int) ([]Provider, error) {
	const query = `
SELECT id, slug, name, category, COALESCE(lang_pref, ''), COALESCE(timezone, 'UTC'), active, created_at
FROM providers
WHERE active
ORDER BY created_at DESC
LIMIT $1
`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("provider: list active: %w", err)
	}
	defer rows.Close()

	out := make([]Provider, 0, 16)
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.Category, &p.LangPref, &p.Timezone, &p.Active, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("provider: scan provider: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("provider: iterate providers: %w", err)
	}
	return out, nil
}
