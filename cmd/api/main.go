package main

import (
	"context"
	"flag"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"leadflow/api"
	"leadflow/config"
	"leadflow/db"
	"leadflow/lead"
	"leadflow/ledger"
	"leadflow/locale"
	"leadflow/notify"
	"leadflow/provider"
	"leadflow/throttle"
)

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

	router := api.NewRouter(api.NewHandler(runner, log), log)
	log.Info().Str("addr", cfg.HTTP.Addr).Msg("api listening")
	if err := router.Run(cfg.HTTP.Addr); err != nil {
		log.Fatal().Err(err).Msg("http server")
	}
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
