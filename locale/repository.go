package locale

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSessionSource reads the most recent session language preference for a
// lead from the booking-page sessions table.
type PGSessionSource struct {
	pool *pgxpool.Pool
}

func NewSessionSource(pool *pgxpool.Pool) *PGSessionSource {
	return &PGSessionSource{pool: pool}
}

func (s *PGSessionSource) SessionLang(ctx context.Context, leadID string) (string, error) {
	const query = `
SELECT COALESCE(lang_pref, '')
FROM lead_sessions
WHERE lead_id = $1
ORDER BY created_at DESC
LIMIT 1
`
	var lang string
	if err := s.pool.QueryRow(ctx, query, leadID).Scan(&lang); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("locale: session lang: %w", err)
	}
	return lang, nil
}
