package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the ledger invariants checked while actors hammer the engine.
// The spacing interval matches the cool-off the stress harness configures.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_reminder_dedup_unique",
			SQL: `SELECT provider_id, payload->>'dedup_key', COUNT(*) FROM events
                  WHERE name = 'notification.sent'
                    AND COALESCE(payload->>'mode','') <> 'test'
                    AND COALESCE(payload->>'dedup_key','') <> ''
                  GROUP BY provider_id, payload->>'dedup_key'
                  HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_daily_cap_respected",
			SQL: `SELECT e.provider_id, (e.ts AT TIME ZONE p.timezone)::date, COUNT(*), s.daily_cap
                  FROM events e
                  JOIN providers p ON p.id = e.provider_id
                  JOIN provider_throttle_settings s ON s.provider_id = e.provider_id
                  WHERE e.name IN ('notification.sent','reactivation.sent')
                    AND COALESCE(e.payload->>'mode','') <> 'test'
                  GROUP BY e.provider_id, (e.ts AT TIME ZONE p.timezone)::date, s.daily_cap
                  HAVING COUNT(*) > s.daily_cap`,
		},
		{
			Name: "O3_sent_payload_complete",
			SQL: `SELECT id, name FROM events
                  WHERE name IN ('notification.sent','reactivation.sent')
                    AND (COALESCE(payload->>'channel','') = ''
                      OR COALESCE(payload->>'template_id','') = ''
                      OR COALESCE(payload->>'lang','') = ''
                      OR COALESCE(payload->>'dedup_key','') = '')`,
		},
		{
			Name: "O4_reactivation_spacing",
			SQL: `WITH sends AS (
                      SELECT provider_id, lead_id, ts,
                             LAG(ts) OVER (PARTITION BY provider_id, lead_id ORDER BY ts) AS prev
                      FROM events
                      WHERE name = 'reactivation.sent'
                        AND COALESCE(payload->>'mode','') <> 'test'
                        AND lead_id IS NOT NULL)
                  SELECT * FROM sends WHERE prev IS NOT NULL AND ts - prev < interval '14 days'`,
		},
		{
			Name: "O5_no_sends_in_quiet_hours",
			SQL: `SELECT e.id, e.ts FROM events e
                  JOIN providers p ON p.id = e.provider_id
                  JOIN provider_throttle_settings s ON s.provider_id = e.provider_id
                  WHERE e.name IN ('notification.sent','reactivation.sent')
                    AND COALESCE(e.payload->>'mode','') <> 'test'
                    AND s.quiet_start_hour <> s.quiet_end_hour
                    AND ((s.quiet_start_hour < s.quiet_end_hour
                          AND extract(hour from e.ts AT TIME ZONE p.timezone) >= s.quiet_start_hour
                          AND extract(hour from e.ts AT TIME ZONE p.timezone) < s.quiet_end_hour)
                      OR (s.quiet_start_hour > s.quiet_end_hour
                          AND (extract(hour from e.ts AT TIME ZONE p.timezone) >= s.quiet_start_hour
                            OR extract(hour from e.ts AT TIME ZONE p.timezone) < s.quiet_end_hour)))`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
