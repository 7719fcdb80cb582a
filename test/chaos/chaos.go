package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Randomly terminates a backend connection belonging to our test application.
// Exercises the engine's recovery path: an interrupted run must leave the
// ledger consistent and the next run must pick up where it left off.
// Sessions holding an advisory lock are spared; only the engine may release
// a run lock.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rand.Intn(5) == 0 {
				// terminate some backend of this DB (heuristic: random active backend not our own PID)
				_, _ = pool.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_stat_activity
					WHERE datname = current_database() AND pid <> pg_backend_pid()
					  AND pid NOT IN (SELECT pid FROM pg_locks WHERE locktype = 'advisory')
					ORDER BY random() LIMIT 1`)
			}
		}
	}
}
