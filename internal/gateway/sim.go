package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"optionskiller-go/internal/quote"
)

// Sim is an in-memory gateway used for paper trading and tests. It implements
// MarketDataGateway, OrderGateway, and RiskFreeRateSource against fixture
// data, filling limit orders immediately when AutoFill is set.
type Sim struct {
	mu sync.Mutex

	Rate          float64
	SpotPrice     map[string]float64
	Dividend      map[string]float64
	ExpiryDates   map[string][]time.Time
	Chains        map[string]ChainSnapshot // keyed by ticker
	LegQuotes     map[string]OptionQuote
	AutoFill      bool
	positions     map[string]quote.Position // keyed by ticker
	working       map[string]Order          // keyed by order ID
	MarketOrders  []Order
	LimitOrders   []OptionOrder
	CanceledIDs   []string
}

// NewSim returns an empty simulated gateway.
func NewSim() *Sim {
	return &Sim{
		SpotPrice:   make(map[string]float64),
		Dividend:    make(map[string]float64),
		ExpiryDates: make(map[string][]time.Time),
		Chains:      make(map[string]ChainSnapshot),
		LegQuotes:   make(map[string]OptionQuote),
		positions:   make(map[string]quote.Position),
		working:     make(map[string]Order),
	}
}

// SetPosition seeds the account position for a ticker.
func (s *Sim) SetPosition(ticker string, pos quote.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[ticker] = pos
}

// Spot implements MarketDataGateway.
func (s *Sim) Spot(_ context.Context, ticker string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	px, ok := s.SpotPrice[ticker]
	if !ok {
		return 0, fmt.Errorf("no spot for %s", ticker)
	}
	return px, nil
}

// Chain implements MarketDataGateway.
func (s *Sim) Chain(_ context.Context, ticker string, _ time.Time, _ quote.Kind) (ChainSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.Chains[ticker]
	if !ok {
		return ChainSnapshot{}, fmt.Errorf("no chain for %s", ticker)
	}
	return snap, nil
}

// DividendYield implements MarketDataGateway.
func (s *Sim) DividendYield(_ context.Context, ticker string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.Dividend[ticker]
	if !ok {
		return 0, fmt.Errorf("no dividend data for %s", ticker)
	}
	return q, nil
}

// Expirations implements MarketDataGateway.
func (s *Sim) Expirations(_ context.Context, ticker string) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dates, ok := s.ExpiryDates[ticker]
	if !ok || len(dates) == 0 {
		return nil, fmt.Errorf("no expirations for %s", ticker)
	}
	return dates, nil
}

// OptionQuotes implements MarketDataGateway.
func (s *Sim) OptionQuotes(_ context.Context, symbols []string) (map[string]OptionQuote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]OptionQuote, len(symbols))
	for _, sym := range symbols {
		if q, ok := s.LegQuotes[sym]; ok {
			out[sym] = q
		}
	}
	return out, nil
}

// Positions implements OrderGateway.
func (s *Sim) Positions(_ context.Context, _, ticker string) (quote.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := s.positions[ticker]
	legs := make([]quote.OptionLeg, len(pos.Legs))
	copy(legs, pos.Legs)
	pos.Legs = legs
	return pos, nil
}

// PlaceMarketOrder implements OrderGateway, applying the share adjustment
// immediately.
func (s *Sim) PlaceMarketOrder(_ context.Context, _, ticker string, side Side, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.MarketOrders = append(s.MarketOrders, Order{
		ID:         uuid.NewString(),
		Underlying: ticker,
		Symbol:     ticker,
		Side:       side,
		Quantity:   qty,
	})

	pos := s.positions[ticker]
	switch side {
	case Buy, BuyToCover:
		pos.Shares += float64(qty)
	case Sell, SellShort:
		pos.Shares -= float64(qty)
	default:
		return fmt.Errorf("unknown order side %q", side)
	}
	s.positions[ticker] = pos
	return nil
}

// PlaceLimitOrder implements OrderGateway. With AutoFill the contract is
// written into the position as a short leg right away; otherwise it rests as
// a working order.
func (s *Sim) PlaceLimitOrder(_ context.Context, _ string, order OptionOrder) (string, error) {
	if order.Quantity <= 0 {
		return "", fmt.Errorf("quantity must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.LimitOrders = append(s.LimitOrders, order)
	if s.AutoFill {
		pos := s.positions[order.Underlying]
		pos.Legs = append(pos.Legs, quote.OptionLeg{
			Symbol:   order.Symbol,
			Strike:   order.Strike,
			Kind:     order.Kind,
			Quantity: -float64(order.Quantity),
		})
		s.positions[order.Underlying] = pos
	} else {
		s.working[id] = Order{
			ID:         id,
			Underlying: order.Underlying,
			Symbol:     order.Symbol,
			Side:       SellToOpen,
			Quantity:   order.Quantity,
			Limit:      order.Limit,
			Option:     true,
		}
	}
	return id, nil
}

// CancelOrder implements OrderGateway.
func (s *Sim) CancelOrder(_ context.Context, _, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.working[orderID]; !ok {
		return fmt.Errorf("unknown order %s", orderID)
	}
	delete(s.working, orderID)
	s.CanceledIDs = append(s.CanceledIDs, orderID)
	return nil
}

// WorkingOrders implements OrderGateway.
func (s *Sim) WorkingOrders(_ context.Context, _ string, _, _ time.Time) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, 0, len(s.working))
	for _, o := range s.working {
		out = append(out, o)
	}
	return out, nil
}

// Latest implements RiskFreeRateSource.
func (s *Sim) Latest(_ context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Rate, nil
}
