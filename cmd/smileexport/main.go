// Binary smileexport performs a one-shot smile fit for one configured
// instrument and writes the raw and interpolated curves to CSV for
// inspection.
package main

import (
	"context"
	"time"

	"optionskiller-go/internal/config"
	"optionskiller-go/internal/gateway"
	"optionskiller-go/internal/lifecycle"
	"optionskiller-go/internal/quote"
	"optionskiller-go/internal/surface"
	"optionskiller-go/internal/util"
)

func main() {
	log := util.NewLogger("info")

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		log.Fatal().Err(err).Msg("load secrets")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	spec := cfg.Instruments[0]
	broker := gateway.NewBrokerClient(cfg.Broker.BaseURL, secrets.APIKey)

	rate, err := gateway.NewFREDSource(secrets.FredAPIKey).Latest(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("fetch risk-free rate")
	}
	yield, err := broker.DividendYield(ctx, spec.Ticker)
	if err != nil {
		log.Fatal().Err(err).Str("ticker", spec.Ticker).Msg("fetch dividend yield")
	}
	expirations, err := broker.Expirations(ctx, spec.Ticker)
	if err != nil {
		log.Fatal().Err(err).Str("ticker", spec.Ticker).Msg("fetch expirations")
	}
	if spec.ExpiryIndex >= len(expirations) {
		log.Fatal().Int("index", spec.ExpiryIndex).Int("available", len(expirations)).Msg("expiry index out of range")
	}
	expiry := lifecycle.ExpiryInstant(expirations[spec.ExpiryIndex])

	snap, err := broker.Chain(ctx, spec.Ticker, expiry, spec.OptionKind)
	if err != nil {
		log.Fatal().Err(err).Str("ticker", spec.Ticker).Msg("fetch chain")
	}

	timeToExpiry := time.Until(expiry).Seconds() / (365 * 24 * 3600)
	if timeToExpiry <= 0 {
		log.Fatal().Time("expiry", expiry).Msg("instrument already expired")
	}

	mc := quote.MarketContext{
		Spot:          snap.Underlying,
		Rate:          rate,
		DividendYield: yield,
		TimeToExpiry:  timeToExpiry,
		Kind:          spec.OptionKind,
	}
	retained := lifecycle.PrepareChain(snap.Chain, mc, cfg.Surface.NumStdev)

	fit, ok := surface.Build(retained, cfg.Surface)
	if !ok {
		log.Fatal().Int("quotes", len(retained)).Msg("not enough qualifying quotes to fit the smile")
	}
	if err := fit.WriteCSV("original_strikes_mid_iv.csv", "interpolated_strikes_iv.csv"); err != nil {
		log.Fatal().Err(err).Msg("write csv")
	}
	log.Info().
		Str("ticker", spec.Ticker).
		Int("quotes", len(retained)).
		Float64("spot", snap.Underlying).
		Msg("smile exported")
}
