package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"leadflow/lead"
	"leadflow/ledger"
	"leadflow/locale"
	"leadflow/notify"
	"leadflow/provider"
	"leadflow/test/actors"
	"leadflow/test/chaos"
	"leadflow/test/infra"
	"leadflow/test/oracles"
	"leadflow/throttle"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent trigger actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

// TestEngineConcurrency hammers one provider with overlapping trigger runs,
// fresh booking signals, and test-mode bypasses while a chaos goroutine
// kills random backends. SQL oracles assert the ledger invariants the whole
// time: the daily cap is never overshot, no reminder key is sent twice, and
// test sends never leak into real state.
func TestEngineConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("LEADFLOW_TEST_PG_DSN") != "":
		dsn = os.Getenv("LEADFLOW_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	// migrations
	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	seedData := mustSeed(t, ctx, pool)
	eng, ledgerRepo := buildEngine(pool)

	// run actors
	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// overlapping runs battling over the same provider budget
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error { return actors.ReminderTrigger(ctx2, eng, seedData.slug, stop) })
		g.Go(func() error { return actors.ReactivationTrigger(ctx2, eng, seedData.slug, stop) })
	}
	// fresh signals keep the reminder miner busy
	g.Go(func() error {
		return actors.SignalProducer(ctx2, ledgerRepo, seedData.providerID, seedData.leadIDs, 12, stop)
	})
	// debug bypass racing real runs
	g.Go(func() error { return actors.TestTrigger(ctx2, eng, seedData.slug, seedData.leadIDs[0], stop) })
	// chaos: kill random backend
	go chaos.TerminateRandomBackend(ctx2, pool, stop)

	// schedule oracle checks until duration reached
	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

func buildEngine(pool *pgxpool.Pool) (*notify.Runner, *ledger.PGRepository) {
	log := zerolog.Nop()
	ledgerRepo := ledger.NewRepository(pool)
	directory := provider.NewDirectory(provider.NewRepository(pool))
	leads := lead.NewRepository(pool)
	langs := locale.NewResolver(locale.NewSessionSource(pool), directory, log)
	resolver := throttle.NewResolver(throttle.NewRepository(pool), ledgerRepo, log)

	params := notify.DefaultParams()
	dispatcher := notify.NewDispatcher(ledgerRepo, langs, log).
		WithLimiter(rate.NewLimiter(rate.Limit(200), 50))

	runner := notify.NewRunner(
		directory,
		resolver,
		notify.NewReminderMiner(ledgerRepo, params, log),
		notify.NewReactivationMiner(leads, ledgerRepo, params, log),
		notify.NewFilter(ledgerRepo, log),
		dispatcher,
		ledgerRepo,
		params,
		log,
	)
	return runner, ledgerRepo
}

type seedIDs struct {
	providerID string
	slug       string
	leadIDs    []string
}

// mustSeed creates one active provider with quiet hours disabled, a pool of
// leads, and month-old booking activity so the reactivation miner sees
// lapsed leads immediately.
func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	s := seedIDs{slug: fmt.Sprintf("stress-%d", rand.Int63())}

	if err := pool.QueryRow(ctx,
		`INSERT INTO providers (slug, name, category, lang_pref, timezone, active)
         VALUES ($1, 'Stress Provider', 'barber', 'en', 'UTC', true) RETURNING id`,
		s.slug).Scan(&s.providerID); err != nil {
		t.Fatalf("seed provider: %v", err)
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO provider_throttle_settings (provider_id, quiet_start_hour, quiet_end_hour, daily_cap, window_hours)
         VALUES ($1, 0, 0, 25, 12)`,
		s.providerID); err != nil {
		t.Fatalf("seed throttle settings: %v", err)
	}

	stale := time.Now().Add(-40 * 24 * time.Hour)
	for i := 0; i < 50; i++ {
		var leadID string
		if err := pool.QueryRow(ctx,
			`INSERT INTO leads (provider_id, phone) VALUES ($1, $2) RETURNING id`,
			s.providerID, fmt.Sprintf("+1555%07d", i)).Scan(&leadID); err != nil {
			t.Fatalf("seed lead %d: %v", i, err)
		}
		s.leadIDs = append(s.leadIDs, leadID)

		// every other lead lapsed a month ago
		if i%2 == 0 {
			if _, err := pool.Exec(ctx,
				`INSERT INTO events (id, name, ts, provider_id, lead_id, payload)
                 VALUES (gen_random_uuid(), 'booking.confirmed', $1, $2, $3, '{}'::jsonb)`,
				stale, s.providerID, leadID); err != nil {
				t.Fatalf("seed stale activity: %v", err)
			}
		}
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"sent_events", `SELECT id, name, ts, lead_id, payload->>'dedup_key' AS dedup_key, payload->>'mode' AS mode
                         FROM events WHERE name IN ('notification.sent','reactivation.sent')
                         ORDER BY ts DESC LIMIT 50`},
		{"signals", `SELECT id, name, ts, lead_id FROM events
                     WHERE name NOT IN ('notification.sent','reactivation.sent')
                     ORDER BY ts DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			// compact print
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
