// Package hedge aggregates per-leg option deltas into a share-based hedge
// adjustment and routes the offsetting equity order.
package hedge

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"optionskiller-go/internal/gateway"
	"optionskiller-go/internal/metrics"
	"optionskiller-go/internal/pricing"
	"optionskiller-go/internal/quote"
	"optionskiller-go/internal/risk"
)

// ContractMultiplier is the share-equivalent size of one option contract.
const ContractMultiplier = 100.0

// minHedgeableIV guards against stale or zero quotes suppressing a hedge: a
// leg only arms hedging once its implied vol clears this floor.
const minHedgeableIV = 0.005

// Engine computes and executes delta-neutral hedge adjustments.
type Engine struct {
	market  gateway.MarketDataGateway
	orders  gateway.OrderGateway
	log     zerolog.Logger
	account string
	dryRun  bool
	limits  risk.Limits
}

// NewEngine wires the hedge engine to its gateways.
func NewEngine(market gateway.MarketDataGateway, orders gateway.OrderGateway, log zerolog.Logger, account string, dryRun bool, limits risk.Limits) *Engine {
	return &Engine{market: market, orders: orders, log: log, account: account, dryRun: dryRun, limits: limits}
}

// Exposure is the outcome of one delta aggregation pass.
type Exposure struct {
	TotalDeltas float64
	Imbalance   float64
	Closing     bool
}

// LegQuote is one held leg joined with its live mid price.
type LegQuote struct {
	Leg quote.OptionLeg
	Mid float64
}

// Compute aggregates signed per-leg deltas (short legs contribute negative
// delta) against held shares. Hedging arms only if some leg's implied vol
// clears the floor; otherwise the imbalance reports zero for the cycle.
func Compute(legs []LegQuote, shares float64, mc quote.MarketContext) Exposure {
	totalDeltas := 0.0
	enableHedge := false

	for _, lq := range legs {
		sigma := pricing.ImpliedVolatility(lq.Mid, mc.Spot, lq.Leg.Strike, mc.Rate, mc.TimeToExpiry, mc.DividendYield, lq.Leg.Kind)
		delta := pricing.Delta(mc.Spot, lq.Leg.Strike, mc.TimeToExpiry, mc.Rate, sigma, mc.DividendYield, lq.Leg.Kind)
		if sigma > minHedgeableIV {
			enableHedge = true
		}
		totalDeltas += delta * lq.Leg.Quantity * ContractMultiplier
	}

	totalDeltas = math.Round(totalDeltas)
	imbalance := 0.0
	if enableHedge {
		imbalance = shares + totalDeltas
	}
	return Exposure{TotalDeltas: totalDeltas, Imbalance: imbalance}
}

// Reconcile fetches live leg quotes, computes the delta imbalance, and places
// the offsetting market order. With no option legs left but shares remaining
// it unwinds the residual share position instead.
func (e *Engine) Reconcile(ctx context.Context, ticker string, pos quote.Position, mc quote.MarketContext) error {
	var exposure Exposure

	switch {
	case len(pos.Legs) > 0:
		symbols := make([]string, len(pos.Legs))
		for i, leg := range pos.Legs {
			symbols[i] = leg.Symbol
		}
		quotes, err := e.market.OptionQuotes(ctx, symbols)
		if err != nil {
			return fmt.Errorf("fetch leg quotes: %w", err)
		}
		legs := make([]LegQuote, 0, len(pos.Legs))
		for _, leg := range pos.Legs {
			q, ok := quotes[leg.Symbol]
			if !ok {
				continue
			}
			legs = append(legs, LegQuote{Leg: leg, Mid: (q.Bid + q.Ask) / 2})
		}
		exposure = Compute(legs, pos.Shares, mc)

	case pos.Shares != 0:
		// Closing: nothing left to hedge against, flatten the shares.
		exposure = Exposure{Imbalance: pos.Shares, Closing: true}

	default:
		return nil
	}

	if exposure.Imbalance == 0 {
		return nil
	}
	return e.adjust(ctx, ticker, exposure)
}

func (e *Engine) adjust(ctx context.Context, ticker string, exposure Exposure) error {
	var side gateway.Side
	var qty int
	if exposure.Imbalance > 0 {
		qty = int(math.Round(exposure.Imbalance))
		side = gateway.SellShort
		if exposure.Closing {
			side = gateway.Sell
		}
	} else {
		qty = int(math.Round(-exposure.Imbalance))
		side = gateway.Buy
		if exposure.Closing {
			side = gateway.BuyToCover
		}
	}
	if qty == 0 {
		return nil
	}
	if !e.limits.AllowHedge(qty) {
		return fmt.Errorf("hedge of %d shares exceeds the configured cap", qty)
	}

	e.log.Info().
		Str("ticker", ticker).
		Str("side", string(side)).
		Int("qty", qty).
		Float64("imbalance", exposure.Imbalance).
		Bool("dry_run", e.dryRun).
		Msg("delta adjustment needed")

	if e.dryRun {
		return nil
	}
	if err := e.orders.PlaceMarketOrder(ctx, e.account, ticker, side, qty); err != nil {
		return fmt.Errorf("place hedge order: %w", err)
	}
	metrics.OrdersTotal.WithLabelValues(ticker, string(side)).Inc()
	return nil
}
