// Package lifecycle orchestrates the per-instrument trade loop: cancel stale
// orders, sync positions, hedge existing exposure, and scan for new entries,
// strictly in that order within a cycle.
package lifecycle

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"optionskiller-go/internal/gateway"
	"optionskiller-go/internal/hedge"
	"optionskiller-go/internal/metrics"
	"optionskiller-go/internal/pricing"
	"optionskiller-go/internal/quote"
	"optionskiller-go/internal/risk"
	"optionskiller-go/internal/scanner"
	"optionskiller-go/internal/surface"
)

// EngineConfig wires the engine's collaborators and knobs.
type EngineConfig struct {
	Market  gateway.MarketDataGateway
	Orders  gateway.OrderGateway
	Log     zerolog.Logger
	Account string
	Rate    float64 // risk-free rate, fetched once at startup
	DryRun  bool
	Surface surface.Config
	Risk    risk.Limits
	Exit    ExitPolicy
	Now     func() time.Time

	// ExportCSV writes the raw and interpolated smile curves after each
	// successful fit.
	ExportCSV    bool
	RawCSVPath   string
	CurveCSVPath string
}

// Engine runs trading cycles. All state it mutates lives on the Instrument
// records it is handed; the engine itself is reusable across instruments.
type Engine struct {
	cfg    EngineConfig
	hedger *hedge.Engine
	log    zerolog.Logger
}

// NewEngine validates the surface config and applies defaults for the exit
// policy and clock.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.Surface.Validate(); err != nil {
		return nil, err
	}
	if cfg.Exit == nil {
		cfg.Exit = FlatPositionExit{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RawCSVPath == "" {
		cfg.RawCSVPath = "original_strikes_mid_iv.csv"
	}
	if cfg.CurveCSVPath == "" {
		cfg.CurveCSVPath = "interpolated_strikes_iv.csv"
	}
	return &Engine{
		cfg:    cfg,
		hedger: hedge.NewEngine(cfg.Market, cfg.Orders, cfg.Log, cfg.Account, cfg.DryRun, cfg.Risk),
		log:    cfg.Log,
	}, nil
}

// PrepareInstrument resolves the instrument's expiry instant and dividend
// yield from reference data. An instrument that fails preparation is dropped
// from the rotation by the caller.
func (e *Engine) PrepareInstrument(ctx context.Context, inst *Instrument) error {
	expirations, err := e.cfg.Market.Expirations(ctx, inst.Ticker)
	if err != nil {
		return fmt.Errorf("expirations for %s: %w", inst.Ticker, err)
	}
	if inst.ExpiryIndex < 0 || inst.ExpiryIndex >= len(expirations) {
		return fmt.Errorf("expiry index %d out of range for %s (%d expirations)", inst.ExpiryIndex, inst.Ticker, len(expirations))
	}
	inst.Expiry = ExpiryInstant(expirations[inst.ExpiryIndex])

	yield, err := e.cfg.Market.DividendYield(ctx, inst.Ticker)
	if err != nil {
		return fmt.Errorf("dividend yield for %s: %w", inst.Ticker, err)
	}
	inst.DividendYield = yield
	return nil
}

// Run services one instrument per wake until the context is canceled,
// sleeping the rest interval between wakes and skipping wakes outside market
// hours.
func (e *Engine) Run(ctx context.Context, ring *Ring, rest time.Duration) error {
	ticker := time.NewTicker(rest)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !MarketOpen(e.cfg.Now()) {
				continue
			}
			if inst := ring.Next(); inst != nil {
				e.RunCycle(ctx, inst)
			}
		}
	}
}

// RunCycle performs one full cycle for the instrument. Gateway failures are
// logged and degrade the cycle rather than aborting it: the loop always
// completes with best-available data.
func (e *Engine) RunCycle(ctx context.Context, inst *Instrument) {
	metrics.CyclesTotal.WithLabelValues(inst.Ticker).Inc()
	now := e.cfg.Now()

	if !e.cfg.DryRun {
		e.cancelWorkingOrders(ctx, inst.Ticker, now)
	}

	pos, posErr := e.cfg.Orders.Positions(ctx, e.cfg.Account, inst.Ticker)
	if posErr != nil {
		e.log.Warn().Err(posErr).Str("ticker", inst.Ticker).Msg("position sync failed")
		metrics.GatewayErrorsTotal.WithLabelValues("positions").Inc()
		pos = quote.Position{}
	}

	startedIdle := inst.State == NotInPosition
	// State decisions need a real account snapshot: a failed sync must not
	// read as an empty book.
	if posErr == nil {
		e.syncState(inst, pos)
	}

	timeToExpiry := yearsUntil(now, inst.Expiry)

	if inst.State == Pending || inst.State == InPosition {
		e.reconcileHedge(ctx, inst, pos, timeToExpiry)
	}

	// Scanning waits one full cycle after an exit so the lifecycle never
	// re-enters on the same wake it reset.
	if startedIdle && inst.State == NotInPosition {
		e.scanForEntry(ctx, inst, timeToExpiry)
	}
}

func (e *Engine) syncState(inst *Instrument, pos quote.Position) {
	switch inst.State {
	case Pending:
		if len(pos.Legs) > 0 {
			e.applyTransition(inst, LegConfirmed)
			return
		}
		// The cancellation sweep at the top of this cycle already pulled
		// the resting entry; no leg means it never filled, so the
		// instrument goes back to scanning instead of waiting forever.
		e.applyTransition(inst, EntryCanceled)
	case InPosition:
		if e.cfg.Exit.ShouldExit(pos) {
			e.applyTransition(inst, PositionClosed)
		}
	}
}

func (e *Engine) applyTransition(inst *Instrument, event Event) {
	next, ok := Transition(inst.State, event)
	if !ok {
		e.log.Error().Str("ticker", inst.Ticker).Stringer("state", inst.State).Stringer("event", event).Msg("illegal transition")
		return
	}
	e.log.Info().Str("ticker", inst.Ticker).Stringer("from", inst.State).Stringer("to", next).Msg("state change")
	inst.State = next
}

func (e *Engine) cancelWorkingOrders(ctx context.Context, ticker string, now time.Time) {
	orders, err := e.cfg.Orders.WorkingOrders(ctx, e.cfg.Account, now.Add(-24*time.Hour), now.Add(24*time.Hour))
	if err != nil {
		e.log.Warn().Err(err).Str("ticker", ticker).Msg("working order fetch failed")
		metrics.GatewayErrorsTotal.WithLabelValues("working_orders").Inc()
		return
	}
	for _, o := range orders {
		if o.Underlying != ticker {
			continue
		}
		if err := e.cfg.Orders.CancelOrder(ctx, e.cfg.Account, o.ID); err != nil {
			e.log.Warn().Err(err).Str("order_id", o.ID).Msg("cancel failed")
			metrics.GatewayErrorsTotal.WithLabelValues("cancel_order").Inc()
		}
	}
}

func (e *Engine) reconcileHedge(ctx context.Context, inst *Instrument, pos quote.Position, timeToExpiry float64) {
	if len(pos.Legs) > 0 && timeToExpiry <= 0 {
		// Pricing held legs needs positive time on the clock.
		return
	}
	spot := 0.0
	if len(pos.Legs) > 0 {
		var err error
		spot, err = e.cfg.Market.Spot(ctx, inst.Ticker)
		if err != nil {
			e.log.Warn().Err(err).Str("ticker", inst.Ticker).Msg("spot fetch failed, skipping hedge")
			metrics.GatewayErrorsTotal.WithLabelValues("spot").Inc()
			return
		}
	}
	mc := quote.MarketContext{
		Spot:          spot,
		Rate:          e.cfg.Rate,
		DividendYield: inst.DividendYield,
		TimeToExpiry:  timeToExpiry,
		Kind:          inst.Kind,
	}
	if err := e.hedger.Reconcile(ctx, inst.Ticker, pos, mc); err != nil {
		e.log.Warn().Err(err).Str("ticker", inst.Ticker).Msg("hedge reconcile failed")
		metrics.GatewayErrorsTotal.WithLabelValues("hedge").Inc()
	}
}

func (e *Engine) scanForEntry(ctx context.Context, inst *Instrument, timeToExpiry float64) {
	if timeToExpiry <= 0 {
		return
	}

	snap, err := e.cfg.Market.Chain(ctx, inst.Ticker, inst.Expiry, inst.Kind)
	if err != nil {
		e.log.Warn().Err(err).Str("ticker", inst.Ticker).Msg("chain fetch failed")
		metrics.GatewayErrorsTotal.WithLabelValues("chain").Inc()
		return
	}
	if snap.Underlying <= 0 || len(snap.Chain) == 0 {
		return
	}

	mc := quote.MarketContext{
		Spot:          snap.Underlying,
		Rate:          e.cfg.Rate,
		DividendYield: inst.DividendYield,
		TimeToExpiry:  timeToExpiry,
		Kind:          inst.Kind,
	}

	retained := PrepareChain(snap.Chain, mc, e.cfg.Surface.NumStdev)

	fit, ok := surface.Build(retained, e.cfg.Surface)
	if !ok {
		metrics.SurfaceFitsTotal.WithLabelValues(inst.Ticker, "unavailable").Inc()
		e.log.Debug().Str("ticker", inst.Ticker).Int("quotes", len(retained)).Msg("surface unavailable this cycle")
		return
	}
	metrics.SurfaceFitsTotal.WithLabelValues(inst.Ticker, "built").Inc()

	if e.cfg.ExportCSV {
		if err := fit.WriteCSV(e.cfg.RawCSVPath, e.cfg.CurveCSVPath); err != nil {
			e.log.Warn().Err(err).Msg("smile csv export failed")
		}
	}

	candidates := scanner.Scan(retained, fit, mc, inst.MinOpenInterest)
	best, ok := scanner.SelectEntry(candidates, inst.MinOverpriced)
	if !ok {
		return
	}

	limit := EntryLimitPrice(best.Mid)
	if !e.cfg.Risk.AllowEntry(limit) {
		e.log.Debug().Str("ticker", inst.Ticker).Float64("limit", limit).Msg("entry credit below floor")
		return
	}
	symbol := gateway.OptionSymbol(inst.Ticker, inst.Expiry, inst.Kind, best.Strike)
	e.log.Info().
		Str("symbol", symbol).
		Float64("strike", best.Strike).
		Float64("limit", limit).
		Float64("mispricing", best.Mispricing).
		Float64("open_interest", best.OpenInterest).
		Float64("bid", best.Bid).
		Float64("ask", best.Ask).
		Bool("dry_run", e.cfg.DryRun).
		Msg("short entry candidate")

	if e.cfg.DryRun {
		// No order exists to confirm, so the lifecycle stays put.
		return
	}

	if _, err := e.cfg.Orders.PlaceLimitOrder(ctx, e.cfg.Account, gateway.OptionOrder{
		Underlying: inst.Ticker,
		Symbol:     symbol,
		Strike:     best.Strike,
		Kind:       inst.Kind,
		Quantity:   1,
		Limit:      limit,
	}); err != nil {
		e.log.Error().Err(err).Str("symbol", symbol).Msg("entry order failed")
		metrics.GatewayErrorsTotal.WithLabelValues("place_limit_order").Inc()
		return
	}
	metrics.OrdersTotal.WithLabelValues(inst.Ticker, string(gateway.SellToOpen)).Inc()
	e.applyTransition(inst, EntrySubmitted)
}

// PrepareChain narrows a chain to strikes near the spot and backs out the
// bid, ask, and mid implied vols the smile fit trains on.
func PrepareChain(chain quote.Chain, mc quote.MarketContext, numStdev float64) quote.Chain {
	selected := surface.SelectStrikes(chain.Strikes(), mc.Spot, numStdev)
	keep := make(map[float64]bool, len(selected))
	for _, k := range selected {
		keep[k] = true
	}

	retained := make(quote.Chain, 0, len(selected))
	for _, q := range chain {
		if !keep[q.Strike] || q.Bid == 0 {
			continue
		}
		q.BidIV = pricing.ImpliedVolatility(q.Bid, mc.Spot, q.Strike, mc.Rate, mc.TimeToExpiry, mc.DividendYield, mc.Kind)
		q.AskIV = pricing.ImpliedVolatility(q.Ask, mc.Spot, q.Strike, mc.Rate, mc.TimeToExpiry, mc.DividendYield, mc.Kind)
		q.MidIV = pricing.ImpliedVolatility(q.Mid, mc.Spot, q.Strike, mc.Rate, mc.TimeToExpiry, mc.DividendYield, mc.Kind)
		retained = append(retained, q)
	}
	return retained
}

// EntryLimitPrice floors the mid just under the cent-rounded quote, the
// price the short entry rests at.
func EntryLimitPrice(mid float64) float64 {
	ceiled := math.Ceil(mid*100) / 100
	return math.Floor((ceiled-0.05)*100) / 100
}
