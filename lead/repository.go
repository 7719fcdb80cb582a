package lead

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads leads for candidate mining.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// RecentIDs returns up to limit lead ids for the provider, newest first.
// The bound keeps reactivation mining a fixed-cost scan.
func (r *PGRepository) RecentIDs(ctx context.Context, providerID string, limit int) ([]string, error) {
	const query = `
SELECT id
FROM leads
WHERE provider_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := r.pool.Query(ctx, query, providerID, limit)
	if err != nil {
		return nil, fmt.Errorf("lead: list recent ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 128)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("lead: scan lead id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lead: iterate lead ids: %w", err)
	}
	return ids, nil
}
