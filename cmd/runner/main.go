package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"leadflow/config"
	"leadflow/db"
	"leadflow/lead"
	"leadflow/ledger"
	"leadflow/locale"
	"leadflow/notify"
	"leadflow/provider"
	"leadflow/throttle"
)

// The runner sweeps all active providers on a cron schedule, running both
// notification kinds per provider. Each run is independent; all state
// lives in the event ledger.
func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}

	log := newLogger(cfg.Log)
	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap database pool")
	}
	defer pool.Close()

	ledgerRepo := ledger.NewRepository(pool)
	directory := provider.NewDirectory(provider.NewRepository(pool))
	leads := lead.NewRepository(pool)
	langs := locale.NewResolver(locale.NewSessionSource(pool), directory, log)
	resolver := throttle.NewResolver(throttle.NewRepository(pool), ledgerRepo, log)

	params := engineParams(cfg.Engine)
	dispatcher := notify.NewDispatcher(ledgerRepo, langs, log).
		WithLimiter(rate.NewLimiter(rate.Limit(cfg.Engine.DispatchPerSecond), 5))

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

	sweep := func() {
		sweepCtx, cancel := context.WithTimeout(ctx, cfg.Runner.RunTimeout())
		defer cancel()

		providers, err := directory.ListActive(sweepCtx, cfg.Runner.ProviderLimit)
		if err != nil {
			log.Error().Err(err).Msg("list active providers")
			return
		}
		for _, prov := range providers {
			for _, kind := range []notify.Kind{notify.KindReminder, notify.KindReactivation} {
				result, err := runner.Trigger(sweepCtx, notify.TriggerParams{
					ProviderSlug: prov.Slug,
					Kind:         kind,
				})
				if err != nil {
					log.Error().Err(err).Str("provider_slug", prov.Slug).Str("kind", string(kind)).Msg("scheduled run failed")
					continue
				}
				log.Info().
					Str("provider_slug", prov.Slug).
					Str("kind", string(kind)).
					Bool("ok", result.OK).
					Int("attempted", result.Attempted).
					Int("sent", result.Sent).
					Str("reason", result.Reason).
					Msg("scheduled run")
			}
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Runner.Schedule, sweep); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Runner.Schedule).Msg("register cron schedule")
	}
	c.Start()
	log.Info().Str("schedule", cfg.Runner.Schedule).Msg("runner started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	<-c.Stop().Done()
	log.Info().Msg("runner stopped")
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.Console {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}

func engineParams(cfg config.EngineConfig) notify.Params {
	return notify.Params{
		SignalFetchLimit:     cfg.SignalFetchLimit,
		LeadFetchLimit:       cfg.LeadFetchLimit,
		LapseDays:            cfg.LapseDays,
		CoolOffDays:          cfg.CoolOffDays,
		ReminderLookbackDays: cfg.ReminderLookbackDays,
	}
}
