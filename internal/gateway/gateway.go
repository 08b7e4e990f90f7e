// Package gateway hosts the collaborator contracts the trading loop consumes:
// market data, order routing, and the risk-free rate source. Implementations
// return errors at the boundary; the numeric core only ever sees validated
// values.
package gateway

import (
	"context"
	"fmt"
	"math"
	"time"

	"optionskiller-go/internal/quote"
)

// Side enumerates order directions used by the hedge and entry paths.
type Side string

const (
	// Buy opens or adds to a long equity hedge.
	Buy Side = "BUY"
	// Sell closes long shares while unwinding a position.
	Sell Side = "SELL"
	// SellShort opens new short share exposure.
	SellShort Side = "SELL_SHORT"
	// BuyToCover closes short shares while unwinding a position.
	BuyToCover Side = "BUY_TO_COVER"
	// SellToOpen writes a new option contract.
	SellToOpen Side = "SELL_TO_OPEN"
)

// OptionQuote is a held leg's live market snapshot used for hedging.
type OptionQuote struct {
	Symbol string
	Strike float64
	Kind   quote.Kind
	Bid    float64
	Ask    float64
}

// ChainSnapshot is one poll of an option chain along with the underlying
// price reported by the same payload.
type ChainSnapshot struct {
	Underlying float64
	Chain      quote.Chain
}

// Order is a working order as reported by the brokerage.
type Order struct {
	ID         string
	Underlying string
	Symbol     string
	Side       Side
	Quantity   int
	Limit      float64
	Option     bool
}

// OptionOrder is a request to write one option contract at a limit price.
// Strike and Kind restate the terms encoded in Symbol so downstream consumers
// never have to parse the contract symbol.
type OptionOrder struct {
	Underlying string
	Symbol     string
	Strike     float64
	Kind       quote.Kind
	Quantity   int
	Limit      float64
}

// MarketDataGateway serves quotes, chains, and instrument reference data.
type MarketDataGateway interface {
	Spot(ctx context.Context, ticker string) (float64, error)
	Chain(ctx context.Context, ticker string, expiry time.Time, kind quote.Kind) (ChainSnapshot, error)
	DividendYield(ctx context.Context, ticker string) (float64, error)
	Expirations(ctx context.Context, ticker string) ([]time.Time, error)
	OptionQuotes(ctx context.Context, symbols []string) (map[string]OptionQuote, error)
}

// OrderGateway routes orders and reports account state.
type OrderGateway interface {
	Positions(ctx context.Context, account, ticker string) (quote.Position, error)
	PlaceMarketOrder(ctx context.Context, account, ticker string, side Side, qty int) error
	PlaceLimitOrder(ctx context.Context, account string, order OptionOrder) (string, error)
	CancelOrder(ctx context.Context, account, orderID string) error
	WorkingOrders(ctx context.Context, account string, from, to time.Time) ([]Order, error)
}

// RiskFreeRateSource reports the latest observation of an overnight-rate
// series, fetched once per process lifetime.
type RiskFreeRateSource interface {
	Latest(ctx context.Context) (float64, error)
}

// OptionSymbol builds the OCC-style contract symbol for an underlying,
// expiry, class, and strike.
func OptionSymbol(ticker string, expiry time.Time, kind quote.Kind, strike float64) string {
	class := "C"
	if kind == quote.Puts {
		class = "P"
	}
	return fmt.Sprintf("%-6s%s%s%08d", ticker, expiry.Format("060102"), class, int(math.Round(strike*1000)))
}
