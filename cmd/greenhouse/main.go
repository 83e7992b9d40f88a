package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/greenhouse/db"
	"github.com/thatsimonsguy/greenhouse/internal/api"
	"github.com/thatsimonsguy/greenhouse/internal/config"
	"github.com/thatsimonsguy/greenhouse/internal/coordinator"
	"github.com/thatsimonsguy/greenhouse/internal/logging"
	"github.com/thatsimonsguy/greenhouse/internal/metrics"
	"github.com/thatsimonsguy/greenhouse/internal/notifications"
	"github.com/thatsimonsguy/greenhouse/internal/port"
	"github.com/thatsimonsguy/greenhouse/internal/port/simulated"
	"github.com/thatsimonsguy/greenhouse/internal/port/sqlport"
	"github.com/thatsimonsguy/greenhouse/internal/rules"
	"github.com/thatsimonsguy/greenhouse/internal/store"
	"github.com/thatsimonsguy/greenhouse/internal/synthetic"
	"github.com/thatsimonsguy/greenhouse/internal/ventilation"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("backend", cfg.Backend).
		Str("config_file", cfg.ConfigFile).
		Dur("poll_interval", cfg.PollInterval()).
		Msg("Starting greenhouse engine")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen := synthetic.New(time.Now().UnixNano())

	var dataPort port.DataPort
	switch cfg.Backend {
	case config.BackendSQLite:
		dbConn, err := db.Open(cfg.DBPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to open database")
		}
		defer dbConn.Close()
		dataPort = sqlport.New(dbConn, gen, cfg.HistoryFallback)
	default:
		dataPort = simulated.New(gen, cfg.SimulatedLatency())
	}

	engine := coordinator.New(dataPort,
		coordinator.WithInterval(cfg.PollInterval()),
		coordinator.WithPolicy(rules.Policy{WarningMargin: cfg.WarningMargin}),
		coordinator.WithRecorder(metrics.New(cfg.Datadog)),
	)

	vent, err := ventilation.New(engine, store.New[ventilation.Settings](cfg.SettingsPath))
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.SettingsPath).Msg("Failed to load ventilation settings")
	}
	unsubscribeVent := engine.Subscribe(vent.Observe)
	defer unsubscribeVent()
	go vent.Run(ctx)

	notifier := notifications.New(cfg.Ntfy)
	if notifier.Enabled() {
		watcher := notifications.NewWatcher(notifier)
		unsubscribeWatcher := engine.Subscribe(watcher.Observe)
		defer unsubscribeWatcher()
		go watcher.Run(ctx)
	}

	if err := engine.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start coordinator")
	}
	defer engine.Stop()

	server := api.NewServer(engine, vent)
	if err := server.Start(ctx, cfg.APIPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("API server stopped")
	}

	log.Info().Msg("Greenhouse engine shutting down")
}
