package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"optionskiller-go/internal/gateway"
	"optionskiller-go/internal/pricing"
	"optionskiller-go/internal/quote"
	"optionskiller-go/internal/surface"
)

var testClock = time.Date(2026, time.June, 1, 12, 0, 0, 0, eastern)

func testSurfaceConfig() surface.Config {
	cfg := surface.DefaultConfig()
	cfg.MinQuotes = 10
	cfg.GridSize = 200
	return cfg
}

// smileChain prices a call chain off a quadratic vol smile so every retained
// quote backs out a clean implied vol.
func smileChain(spot, timeToExpiry, rate, yield float64) quote.Chain {
	chain := make(quote.Chain, 0, 25)
	for i := 0; i < 25; i++ {
		strike := spot - 24 + float64(2*i)
		m := (strike - spot) / spot
		sigma := 0.20 + 0.5*m*m
		mid := pricing.Price(spot, strike, timeToExpiry, rate, sigma, yield, quote.Calls)
		bid := mid - 0.02
		ask := mid + 0.02
		chain = append(chain, quote.Quote{
			Strike:       strike,
			Bid:          bid,
			Ask:          ask,
			Mid:          quote.Mid(bid, ask),
			OpenInterest: 150,
		})
	}
	return chain
}

func testEngine(t *testing.T, sim *gateway.Sim, dryRun bool, logSink *bytes.Buffer) *Engine {
	t.Helper()
	log := zerolog.Nop()
	if logSink != nil {
		log = zerolog.New(logSink)
	}
	eng, err := NewEngine(EngineConfig{
		Market:       sim,
		Orders:       sim,
		Log:          log,
		Account:      "acct",
		Rate:         0.05,
		DryRun:       dryRun,
		Surface:      testSurfaceConfig(),
		Now:          func() time.Time { return testClock },
		RawCSVPath:   t.TempDir() + "/raw.csv",
		CurveCSVPath: t.TempDir() + "/curve.csv",
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng
}

func testInstrument(expiry time.Time) *Instrument {
	return &Instrument{
		Ticker:          "XYZ",
		Kind:            quote.Calls,
		MinOverpriced:   -1000, // accept any candidate so the entry path always fires
		MinOpenInterest: 10,
		Expiry:          expiry,
		DividendYield:   0.01,
	}
}

func TestRunCycleSubmitsEntryAndGoesPending(t *testing.T) {
	expiry := testClock.Add(90 * 24 * time.Hour)
	timeToExpiry := yearsUntil(testClock, expiry)

	sim := gateway.NewSim()
	sim.Chains["XYZ"] = gateway.ChainSnapshot{
		Underlying: 100,
		Chain:      smileChain(100, timeToExpiry, 0.05, 0.01),
	}

	eng := testEngine(t, sim, false, nil)
	inst := testInstrument(expiry)

	eng.RunCycle(context.Background(), inst)

	if inst.State != Pending {
		t.Fatalf("expected Pending after entry, got %s", inst.State)
	}
	if len(sim.LimitOrders) != 1 {
		t.Fatalf("expected one entry order, got %d", len(sim.LimitOrders))
	}
	order := sim.LimitOrders[0]
	if order.Underlying != "XYZ" || order.Quantity != 1 {
		t.Fatalf("unexpected entry order %+v", order)
	}
	if order.Limit <= 0 {
		t.Fatalf("entry limit must be positive, got %v", order.Limit)
	}
	if !strings.HasPrefix(order.Symbol, "XYZ   ") {
		t.Fatalf("entry symbol not in contract format: %q", order.Symbol)
	}
}

func TestRunCycleDryRunLogsCandidateWithoutOrders(t *testing.T) {
	expiry := testClock.Add(90 * 24 * time.Hour)
	timeToExpiry := yearsUntil(testClock, expiry)

	sim := gateway.NewSim()
	sim.Chains["XYZ"] = gateway.ChainSnapshot{
		Underlying: 100,
		Chain:      smileChain(100, timeToExpiry, 0.05, 0.01),
	}

	var buf bytes.Buffer
	eng := testEngine(t, sim, true, &buf)
	inst := testInstrument(expiry)

	eng.RunCycle(context.Background(), inst)

	if inst.State != NotInPosition {
		t.Fatalf("dry run must not advance the lifecycle, got %s", inst.State)
	}
	if len(sim.LimitOrders) != 0 {
		t.Fatalf("dry run must not place orders, got %d", len(sim.LimitOrders))
	}
	if !strings.Contains(buf.String(), "short entry candidate") {
		t.Fatalf("expected candidate log, got %s", buf.String())
	}
}

func TestRunCyclePendingConfirmsLegAndHedges(t *testing.T) {
	expiry := testClock.Add(90 * 24 * time.Hour)
	timeToExpiry := yearsUntil(testClock, expiry)

	mid := pricing.Price(100, 100, timeToExpiry, 0.05, 0.20, 0.01, quote.Calls)
	symbol := gateway.OptionSymbol("XYZ", expiry, quote.Calls, 100)

	sim := gateway.NewSim()
	sim.SpotPrice["XYZ"] = 100
	sim.LegQuotes[symbol] = gateway.OptionQuote{Symbol: symbol, Strike: 100, Kind: quote.Calls, Bid: mid, Ask: mid}
	sim.SetPosition("XYZ", quote.Position{
		Legs: []quote.OptionLeg{{Symbol: symbol, Strike: 100, Kind: quote.Calls, Quantity: -1}},
	})

	eng := testEngine(t, sim, false, nil)
	inst := testInstrument(expiry)
	inst.State = Pending

	eng.RunCycle(context.Background(), inst)

	if inst.State != InPosition {
		t.Fatalf("expected InPosition after leg confirmation, got %s", inst.State)
	}
	if len(sim.MarketOrders) != 1 {
		t.Fatalf("expected one hedge order, got %d", len(sim.MarketOrders))
	}
	// Short call exposure is negative delta: the hedge buys shares.
	if sim.MarketOrders[0].Side != gateway.Buy {
		t.Fatalf("expected BUY hedge, got %s", sim.MarketOrders[0].Side)
	}
}

func TestRunCycleUnwindsSharesThenExits(t *testing.T) {
	expiry := testClock.Add(90 * 24 * time.Hour)

	sim := gateway.NewSim()
	sim.SetPosition("XYZ", quote.Position{Shares: -42})

	eng := testEngine(t, sim, false, nil)
	inst := testInstrument(expiry)
	inst.State = InPosition

	// First cycle: legs are gone but the short share hedge remains, so the
	// position is not yet flat and the residual gets covered.
	eng.RunCycle(context.Background(), inst)
	if inst.State != InPosition {
		t.Fatalf("expected InPosition while shares remain, got %s", inst.State)
	}
	if len(sim.MarketOrders) != 1 || sim.MarketOrders[0].Side != gateway.BuyToCover || sim.MarketOrders[0].Quantity != 42 {
		t.Fatalf("expected BUY_TO_COVER 42, got %+v", sim.MarketOrders)
	}

	// Second cycle: the account is flat, so the lifecycle resets.
	eng.RunCycle(context.Background(), inst)
	if inst.State != NotInPosition {
		t.Fatalf("expected NotInPosition once flat, got %s", inst.State)
	}
}

func TestRunCycleUnfilledEntryReturnsToScanning(t *testing.T) {
	expiry := testClock.Add(90 * 24 * time.Hour)
	timeToExpiry := yearsUntil(testClock, expiry)

	// AutoFill stays off: the entry rests unfilled like a real order that
	// never trades.
	sim := gateway.NewSim()
	sim.Chains["XYZ"] = gateway.ChainSnapshot{
		Underlying: 100,
		Chain:      smileChain(100, timeToExpiry, 0.05, 0.01),
	}

	eng := testEngine(t, sim, false, nil)
	inst := testInstrument(expiry)

	// Cycle 1: entry submitted, lifecycle pending.
	eng.RunCycle(context.Background(), inst)
	if inst.State != Pending {
		t.Fatalf("expected Pending after entry, got %s", inst.State)
	}
	if len(sim.LimitOrders) != 1 {
		t.Fatalf("expected one entry order, got %d", len(sim.LimitOrders))
	}

	// Cycle 2: the sweep cancels the resting entry and, with no leg in the
	// account, the instrument goes back to scanning.
	eng.RunCycle(context.Background(), inst)
	if len(sim.CanceledIDs) != 1 {
		t.Fatalf("expected the resting entry canceled, got %v", sim.CanceledIDs)
	}
	if inst.State != NotInPosition {
		t.Fatalf("unfilled entry must reset the lifecycle, got %s", inst.State)
	}
	if len(sim.LimitOrders) != 1 {
		t.Fatalf("reset cycle must not re-enter immediately, got %d orders", len(sim.LimitOrders))
	}

	// Cycle 3: scanning resumes and a fresh entry goes out.
	eng.RunCycle(context.Background(), inst)
	if inst.State != Pending {
		t.Fatalf("expected a fresh entry after reset, got %s", inst.State)
	}
	if len(sim.LimitOrders) != 2 {
		t.Fatalf("expected a second entry order, got %d", len(sim.LimitOrders))
	}
}

type positionsDown struct {
	*gateway.Sim
}

func (positionsDown) Positions(context.Context, string, string) (quote.Position, error) {
	return quote.Position{}, errors.New("account endpoint down")
}

func TestRunCyclePositionSyncFailureHoldsState(t *testing.T) {
	expiry := testClock.Add(90 * 24 * time.Hour)

	sim := gateway.NewSim()
	eng, err := NewEngine(EngineConfig{
		Market:  sim,
		Orders:  positionsDown{sim},
		Log:     zerolog.Nop(),
		Account: "acct",
		Rate:    0.05,
		Surface: testSurfaceConfig(),
		Now:     func() time.Time { return testClock },
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	inst := testInstrument(expiry)
	inst.State = Pending

	eng.RunCycle(context.Background(), inst)
	if inst.State != Pending {
		t.Fatalf("failed position sync must not move the lifecycle, got %s", inst.State)
	}
}

func TestRunCycleSkipsEntryAfterExpiry(t *testing.T) {
	sim := gateway.NewSim()
	eng := testEngine(t, sim, false, nil)
	inst := testInstrument(testClock.Add(-time.Hour))

	eng.RunCycle(context.Background(), inst)

	if inst.State != NotInPosition {
		t.Fatalf("expired instrument must stay idle, got %s", inst.State)
	}
	if len(sim.LimitOrders) != 0 || len(sim.MarketOrders) != 0 {
		t.Fatalf("expired instrument must not trade")
	}
}

func TestRunCycleCancelsWorkingOrdersFirst(t *testing.T) {
	expiry := testClock.Add(90 * 24 * time.Hour)

	sim := gateway.NewSim()
	id, err := sim.PlaceLimitOrder(context.Background(), "acct", gateway.OptionOrder{
		Underlying: "XYZ",
		Symbol:     gateway.OptionSymbol("XYZ", expiry, quote.Calls, 105),
		Quantity:   1,
		Limit:      1.23,
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	sim.LimitOrders = nil

	eng := testEngine(t, sim, false, nil)
	inst := testInstrument(expiry)

	eng.RunCycle(context.Background(), inst)

	if len(sim.CanceledIDs) != 1 || sim.CanceledIDs[0] != id {
		t.Fatalf("expected working order %s canceled, got %v", id, sim.CanceledIDs)
	}
}

func TestRunCycleLeavesOtherTickersWorkingOrders(t *testing.T) {
	expiry := testClock.Add(90 * 24 * time.Hour)

	sim := gateway.NewSim()
	if _, err := sim.PlaceLimitOrder(context.Background(), "acct", gateway.OptionOrder{
		Underlying: "OTHER",
		Symbol:     gateway.OptionSymbol("OTHER", expiry, quote.Calls, 50),
		Quantity:   1,
		Limit:      0.55,
	}); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	sim.LimitOrders = nil

	eng := testEngine(t, sim, false, nil)
	eng.RunCycle(context.Background(), testInstrument(expiry))

	if len(sim.CanceledIDs) != 0 {
		t.Fatalf("cancellation must be scoped to the cycling ticker, got %v", sim.CanceledIDs)
	}
}

func TestPrepareInstrument(t *testing.T) {
	sim := gateway.NewSim()
	first := time.Date(2026, time.June, 19, 0, 0, 0, 0, time.UTC)
	second := time.Date(2026, time.July, 17, 0, 0, 0, 0, time.UTC)
	sim.ExpiryDates["XYZ"] = []time.Time{first, second}
	sim.Dividend["XYZ"] = 0.013

	eng := testEngine(t, sim, false, nil)
	inst := &Instrument{Ticker: "XYZ", ExpiryIndex: 1, Kind: quote.Calls}

	if err := eng.PrepareInstrument(context.Background(), inst); err != nil {
		t.Fatalf("PrepareInstrument: %v", err)
	}
	if !inst.Expiry.Equal(ExpiryInstant(second)) {
		t.Fatalf("expiry = %v, want close of %v", inst.Expiry, second)
	}
	if inst.DividendYield != 0.013 {
		t.Fatalf("dividend yield = %v, want 0.013", inst.DividendYield)
	}
}

func TestPrepareInstrumentRejectsBadIndex(t *testing.T) {
	sim := gateway.NewSim()
	sim.ExpiryDates["XYZ"] = []time.Time{time.Date(2026, time.June, 19, 0, 0, 0, 0, time.UTC)}

	eng := testEngine(t, sim, false, nil)
	inst := &Instrument{Ticker: "XYZ", ExpiryIndex: 3, Kind: quote.Calls}

	if err := eng.PrepareInstrument(context.Background(), inst); err == nil {
		t.Fatalf("expected out-of-range expiry index to fail")
	}
}

func TestEntryLimitPrice(t *testing.T) {
	cases := []struct {
		mid, want float64
	}{
		{1.0, 0.95},
		{1.234, 1.19},
		{5.5, 5.45},
		{3.141, 3.10},
		{10.0, 9.94},
	}
	for _, tc := range cases {
		if got := EntryLimitPrice(tc.mid); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("EntryLimitPrice(%v) = %v, want %v", tc.mid, got, tc.want)
		}
	}
}
