// Binary bot runs the live trading loop: it prepares the configured
// instruments, then rotates through them selling overpriced options and
// keeping the book delta neutral.
package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"

	"optionskiller-go/internal/config"
	"optionskiller-go/internal/gateway"
	"optionskiller-go/internal/journal"
	"optionskiller-go/internal/lifecycle"
	"optionskiller-go/internal/metrics"
	"optionskiller-go/internal/util"
)

func main() {
	log := util.NewLogger("info")

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = util.NewLogger(cfg.App.LogLevel)

	secrets, err := config.LoadSecrets()
	if err != nil {
		log.Fatal().Err(err).Msg("load secrets")
	}

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	broker := gateway.NewBrokerClient(cfg.Broker.BaseURL, secrets.APIKey)
	var market gateway.MarketDataGateway = broker
	var orders gateway.OrderGateway = broker
	if cfg.Broker.Paper {
		sim := gateway.NewSim()
		sim.AutoFill = true
		orders = sim
		log.Warn().Msg("paper mode: orders routed to the in-memory simulator")
	}
	if cfg.App.JournalPath != "" {
		rec, err := journal.NewRecorder(cfg.App.JournalPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.App.JournalPath).Msg("open order journal")
		}
		defer rec.Close()
		orders = journal.Wrap(orders, rec)
	}

	rate, err := gateway.NewFREDSource(secrets.FredAPIKey).Latest(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("fetch risk-free rate")
	}
	log.Info().Float64("rate", rate).Msg("risk-free rate loaded")

	engine, err := lifecycle.NewEngine(lifecycle.EngineConfig{
		Market:    market,
		Orders:    orders,
		Log:       log,
		Account:   secrets.AccountHash,
		Rate:      rate,
		DryRun:    cfg.App.DryRun,
		Surface:   cfg.Surface,
		Risk:      cfg.Risk,
		ExportCSV: cfg.App.ExportCSV,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build engine")
	}

	instruments := make([]*lifecycle.Instrument, 0, len(cfg.Instruments))
	for _, spec := range cfg.Instruments {
		inst := &lifecycle.Instrument{
			Ticker:          spec.Ticker,
			ExpiryIndex:     spec.ExpiryIndex,
			Kind:            spec.OptionKind,
			MinOverpriced:   spec.MinOverpriced,
			MinOpenInterest: spec.MinOpenInterest,
		}
		if err := engine.PrepareInstrument(ctx, inst); err != nil {
			log.Error().Err(err).Str("ticker", spec.Ticker).Msg("instrument dropped from rotation")
			continue
		}
		log.Info().
			Str("ticker", inst.Ticker).
			Str("kind", string(inst.Kind)).
			Time("expiry", inst.Expiry).
			Float64("dividend_yield", inst.DividendYield).
			Msg("instrument prepared")
		instruments = append(instruments, inst)
	}
	if len(instruments) == 0 {
		log.Fatal().Msg("no instruments survived preparation")
	}

	log.Info().Int("instruments", len(instruments)).Bool("dry_run", cfg.App.DryRun).Msg("trading loop started")
	if err := engine.Run(ctx, lifecycle.NewRing(instruments), cfg.App.RestDuration()); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("trading loop stopped")
	}
	log.Info().Msg("shutting down")
}
