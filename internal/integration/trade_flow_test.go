package integration

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"optionskiller-go/internal/gateway"
	"optionskiller-go/internal/lifecycle"
	"optionskiller-go/internal/pricing"
	"optionskiller-go/internal/quote"
	"optionskiller-go/internal/surface"
)

// TestTradeFlowEntryToHedge drives a full lifecycle against the simulated
// gateway: the first cycle sells an overpriced contract, the fill confirms on
// the next cycle, and the delta hedge follows immediately after.
func TestTradeFlowEntryToHedge(t *testing.T) {
	clock := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	expiry := lifecycle.ExpiryInstant(time.Date(2026, time.September, 18, 0, 0, 0, 0, time.UTC))
	timeToExpiry := expiry.Sub(clock).Seconds() / (365 * 24 * 3600)

	const (
		spot  = 100.0
		rate  = 0.05
		yield = 0.01
	)

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
			OpenInterest: 200,
		})
	}

	sim := gateway.NewSim()
	sim.AutoFill = true
	sim.Rate = rate
	sim.SpotPrice["XYZ"] = spot
	sim.Dividend["XYZ"] = yield
	sim.ExpiryDates["XYZ"] = []time.Time{expiry}
	sim.Chains["XYZ"] = gateway.ChainSnapshot{Underlying: spot, Chain: chain}

	surfaceCfg := surface.DefaultConfig()
	surfaceCfg.MinQuotes = 10
	surfaceCfg.GridSize = 200

	engine, err := lifecycle.NewEngine(lifecycle.EngineConfig{
		Market:  sim,
		Orders:  sim,
		Log:     zerolog.Nop(),
		Account: "acct",
		Rate:    rate,
		Surface: surfaceCfg,
		Now:     func() time.Time { return clock },
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	inst := &lifecycle.Instrument{
		Ticker:          "XYZ",
		Kind:            quote.Calls,
		MinOverpriced:   -1000, // take the best-scored strike unconditionally
		MinOpenInterest: 10,
	}
	if err := engine.PrepareInstrument(context.Background(), inst); err != nil {
		t.Fatalf("PrepareInstrument: %v", err)
	}
	if !inst.Expiry.Equal(expiry) {
		t.Fatalf("prepared expiry %v, want %v", inst.Expiry, expiry)
	}

	// Cycle 1: scan and submit the short entry.
	engine.RunCycle(context.Background(), inst)
	if inst.State != lifecycle.Pending {
		t.Fatalf("after entry cycle: state = %s, want pending", inst.State)
	}
	if len(sim.LimitOrders) != 1 {
		t.Fatalf("expected one entry order, got %d", len(sim.LimitOrders))
	}
	entry := sim.LimitOrders[0]
	if entry.Quantity != 1 || entry.Limit <= 0 {
		t.Fatalf("unexpected entry order: %+v", entry)
	}

	// The simulator auto-filled the contract with its full terms; seed a
	// live quote for the new leg so the hedge can price it.
	pos, err := sim.Positions(context.Background(), "acct", "XYZ")
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(pos.Legs) != 1 || pos.Legs[0].Quantity != -1 {
		t.Fatalf("expected one short leg after fill, got %+v", pos.Legs)
	}
	leg := pos.Legs[0]
	if leg.Strike != entry.Strike || leg.Kind != quote.Calls {
		t.Fatalf("filled leg missing contract terms: %+v", leg)
	}
	var legMid float64
	for _, q := range chain {
		if q.Strike == leg.Strike {
			legMid = q.Mid
		}
	}
	if legMid == 0 {
		t.Fatalf("entry strike %v does not match any chain strike", leg.Strike)
	}
	sim.LegQuotes[leg.Symbol] = gateway.OptionQuote{
		Symbol: leg.Symbol,
		Strike: leg.Strike,
		Kind:   leg.Kind,
		Bid:    legMid,
		Ask:    legMid,
	}

	// Cycle 2: the fill confirms and the short-call delta gets bought back.
	engine.RunCycle(context.Background(), inst)
	if inst.State != lifecycle.InPosition {
		t.Fatalf("after confirmation cycle: state = %s, want in position", inst.State)
	}
	if len(sim.MarketOrders) != 1 {
		t.Fatalf("expected one hedge order, got %d", len(sim.MarketOrders))
	}
	hedgeOrder := sim.MarketOrders[0]
	if hedgeOrder.Side != gateway.Buy {
		t.Fatalf("short call hedge should buy shares, got %s", hedgeOrder.Side)
	}
	if hedgeOrder.Quantity <= 0 || hedgeOrder.Quantity > 100 {
		t.Fatalf("hedge size out of range for one contract: %d", hedgeOrder.Quantity)
	}

	// Close out: the legs disappear and the residual shares unwind, then the
	// lifecycle resets.
	sharesHeld := float64(hedgeOrder.Quantity)
	sim.SetPosition("XYZ", quote.Position{Shares: sharesHeld})
	engine.RunCycle(context.Background(), inst)
	if inst.State != lifecycle.InPosition {
		t.Fatalf("state should hold while shares remain, got %s", inst.State)
	}
	unwind := sim.MarketOrders[len(sim.MarketOrders)-1]
	if unwind.Side != gateway.Sell || unwind.Quantity != int(sharesHeld) {
		t.Fatalf("expected SELL %d to flatten, got %s %d", int(sharesHeld), unwind.Side, unwind.Quantity)
	}

	engine.RunCycle(context.Background(), inst)
	if inst.State != lifecycle.NotInPosition {
		t.Fatalf("flat account should reset the lifecycle, got %s", inst.State)
	}
}
