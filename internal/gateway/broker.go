package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"optionskiller-go/internal/quote"
)

// BrokerClient talks to the brokerage REST API. It implements both
// MarketDataGateway and OrderGateway.
type BrokerClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewBrokerClient builds a client against the given API host.
func NewBrokerClient(baseURL, apiKey string) *BrokerClient {
	return &BrokerClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (b *BrokerClient) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := b.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (b *BrokerClient) send(ctx context.Context, method, path string, body any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, path)
	}
	return nil
}

type brokerQuote struct {
	Quote struct {
		BidPrice float64 `json:"bidPrice"`
		AskPrice float64 `json:"askPrice"`
	} `json:"quote"`
	Reference struct {
		StrikePrice  float64 `json:"strikePrice"`
		ContractType string  `json:"contractType"`
	} `json:"reference"`
	Fundamental struct {
		DivYield float64 `json:"divYield"` // percent
	} `json:"fundamental"`
}

// Spot returns the 3-decimal mid of the underlying's bid/ask.
func (b *BrokerClient) Spot(ctx context.Context, ticker string) (float64, error) {
	quotes, err := b.fetchQuotes(ctx, []string{ticker})
	if err != nil {
		return 0, err
	}
	q, ok := quotes[ticker]
	if !ok {
		return 0, fmt.Errorf("no quote for %s", ticker)
	}
	return quote.Mid(q.Quote.BidPrice, q.Quote.AskPrice), nil
}

// DividendYield returns the continuous dividend yield as a decimal.
func (b *BrokerClient) DividendYield(ctx context.Context, ticker string) (float64, error) {
	quotes, err := b.fetchQuotes(ctx, []string{ticker})
	if err != nil {
		return 0, err
	}
	q, ok := quotes[ticker]
	if !ok {
		return 0, fmt.Errorf("no quote for %s", ticker)
	}
	return q.Fundamental.DivYield / 100, nil
}

// OptionQuotes fetches live bid/ask for held option legs keyed by symbol.
func (b *BrokerClient) OptionQuotes(ctx context.Context, symbols []string) (map[string]OptionQuote, error) {
	quotes, err := b.fetchQuotes(ctx, symbols)
	if err != nil {
		return nil, err
	}
	out := make(map[string]OptionQuote, len(quotes))
	for sym, q := range quotes {
		kind := quote.Calls
		if q.Reference.ContractType == "P" {
			kind = quote.Puts
		}
		out[sym] = OptionQuote{
			Symbol: sym,
			Strike: q.Reference.StrikePrice,
			Kind:   kind,
			Bid:    q.Quote.BidPrice,
			Ask:    q.Quote.AskPrice,
		}
	}
	return out, nil
}

func (b *BrokerClient) fetchQuotes(ctx context.Context, symbols []string) (map[string]brokerQuote, error) {
	params := url.Values{}
	for _, s := range symbols {
		params.Add("symbols", s)
	}
	var payload map[string]brokerQuote
	if err := b.get(ctx, "/marketdata/quotes", params, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

type brokerExpirationChain struct {
	ExpirationList []struct {
		ExpirationDate string `json:"expirationDate"`
	} `json:"expirationList"`
}

// Expirations lists the expiry dates available for the ticker, in the order
// the brokerage publishes them.
func (b *BrokerClient) Expirations(ctx context.Context, ticker string) ([]time.Time, error) {
	params := url.Values{}
	params.Set("symbol", ticker)
	var payload brokerExpirationChain
	if err := b.get(ctx, "/marketdata/expirationchain", params, &payload); err != nil {
		return nil, err
	}
	if len(payload.ExpirationList) == 0 {
		return nil, fmt.Errorf("no expirations for %s", ticker)
	}
	out := make([]time.Time, 0, len(payload.ExpirationList))
	for _, e := range payload.ExpirationList {
		d, err := time.Parse("2006-01-02", e.ExpirationDate)
		if err != nil {
			return nil, fmt.Errorf("parse expiration %q: %w", e.ExpirationDate, err)
		}
		out = append(out, d)
	}
	return out, nil
}

type brokerChainEntry struct {
	Bid          *float64 `json:"bid"`
	Ask          *float64 `json:"ask"`
	OpenInterest *float64 `json:"openInterest"`
}

type brokerChainResponse struct {
	UnderlyingPrice *float64                                `json:"underlyingPrice"`
	CallExpDateMap  map[string]map[string][]brokerChainEntry `json:"callExpDateMap"`
	PutExpDateMap   map[string]map[string][]brokerChainEntry `json:"putExpDateMap"`
}

// Chain fetches one expiry's chain for the requested class. Strikes with any
// missing field are dropped before the snapshot is returned.
func (b *BrokerClient) Chain(ctx context.Context, ticker string, expiry time.Time, kind quote.Kind) (ChainSnapshot, error) {
	params := url.Values{}
	params.Set("symbol", ticker)
	params.Set("fromDate", expiry.Format("2006-01-02"))
	params.Set("toDate", expiry.Format("2006-01-02"))
	contractType := "CALL"
	if kind == quote.Puts {
		contractType = "PUT"
	}
	params.Set("contractType", contractType)

	var payload brokerChainResponse
	if err := b.get(ctx, "/marketdata/chains", params, &payload); err != nil {
		return ChainSnapshot{}, err
	}

	dateMap := payload.CallExpDateMap
	if kind == quote.Puts {
		dateMap = payload.PutExpDateMap
	}

	var snap ChainSnapshot
	if payload.UnderlyingPrice != nil {
		snap.Underlying = *payload.UnderlyingPrice
	}
	for _, strikeMap := range dateMap {
		for strikeKey, entries := range strikeMap {
			if len(entries) == 0 {
				continue
			}
			entry := entries[0]
			if entry.Bid == nil || entry.Ask == nil || entry.OpenInterest == nil {
				continue
			}
			strike, err := strconv.ParseFloat(strikeKey, 64)
			if err != nil {
				continue
			}
			snap.Chain = append(snap.Chain, quote.Quote{
				Strike:       strike,
				Bid:          *entry.Bid,
				Ask:          *entry.Ask,
				Mid:          quote.Mid(*entry.Bid, *entry.Ask),
				OpenInterest: *entry.OpenInterest,
			})
		}
	}
	sort.Slice(snap.Chain, func(i, j int) bool { return snap.Chain[i].Strike < snap.Chain[j].Strike })
	return snap, nil
}

type brokerPosition struct {
	Instrument struct {
		AssetType        string  `json:"assetType"`
		Symbol           string  `json:"symbol"`
		UnderlyingSymbol string  `json:"underlyingSymbol"`
		StrikePrice      float64 `json:"strikePrice"`
		PutCall          string  `json:"putCall"`
	} `json:"instrument"`
	LongQuantity  float64 `json:"longQuantity"`
	ShortQuantity float64 `json:"shortQuantity"`
}

type brokerAccountResponse struct {
	SecuritiesAccount struct {
		Positions []brokerPosition `json:"positions"`
	} `json:"securitiesAccount"`
}

// Positions reports the account's shares and option legs for one underlying.
func (b *BrokerClient) Positions(ctx context.Context, account, ticker string) (quote.Position, error) {
	var payload brokerAccountResponse
	if err := b.get(ctx, "/accounts/"+account, url.Values{"fields": {"positions"}}, &payload); err != nil {
		return quote.Position{}, err
	}

	var pos quote.Position
	for _, p := range payload.SecuritiesAccount.Positions {
		qty := p.LongQuantity - p.ShortQuantity
		switch {
		case p.Instrument.AssetType == "EQUITY" && p.Instrument.Symbol == ticker:
			pos.Shares += qty
		case p.Instrument.AssetType == "OPTION" && p.Instrument.UnderlyingSymbol == ticker:
			kind := quote.Calls
			if p.Instrument.PutCall == "PUT" {
				kind = quote.Puts
			}
			pos.Legs = append(pos.Legs, quote.OptionLeg{
				Symbol:   p.Instrument.Symbol,
				Strike:   p.Instrument.StrikePrice,
				Kind:     kind,
				Quantity: qty,
			})
		}
	}
	return pos, nil
}

type brokerOrderRequest struct {
	Symbol    string  `json:"symbol"`
	Side      Side    `json:"side"`
	Quantity  int     `json:"quantity"`
	OrderType string  `json:"orderType"`
	Limit     float64 `json:"limitPrice,omitempty"`
}

// PlaceMarketOrder submits a market equity order.
func (b *BrokerClient) PlaceMarketOrder(ctx context.Context, account, ticker string, side Side, qty int) error {
	return b.send(ctx, http.MethodPost, "/accounts/"+account+"/orders", brokerOrderRequest{
		Symbol:    ticker,
		Side:      side,
		Quantity:  qty,
		OrderType: "MARKET",
	})
}

// PlaceLimitOrder submits a sell-to-open option limit order and returns the
// brokerage order ID.
func (b *BrokerClient) PlaceLimitOrder(ctx context.Context, account string, order OptionOrder) (string, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(brokerOrderRequest{
		Symbol:    order.Symbol,
		Side:      SellToOpen,
		Quantity:  order.Quantity,
		OrderType: "LIMIT",
		Limit:     order.Limit,
	}); err != nil {
		return "", fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/accounts/"+account+"/orders", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d placing order", resp.StatusCode)
	}
	var placed struct {
		OrderID string `json:"orderId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&placed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return placed.OrderID, nil
}

// CancelOrder cancels one working order.
func (b *BrokerClient) CancelOrder(ctx context.Context, account, orderID string) error {
	return b.send(ctx, http.MethodDelete, "/accounts/"+account+"/orders/"+orderID, nil)
}

type brokerWorkingOrder struct {
	OrderID             json.Number `json:"orderId"`
	OrderLegCollection  []struct {
		Instrument struct {
			AssetType        string `json:"assetType"`
			Symbol           string `json:"symbol"`
			UnderlyingSymbol string `json:"underlyingSymbol"`
		} `json:"instrument"`
	} `json:"orderLegCollection"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// WorkingOrders lists open orders entered within the window.
func (b *BrokerClient) WorkingOrders(ctx context.Context, account string, from, to time.Time) ([]Order, error) {
	params := url.Values{}
	params.Set("fromEnteredTime", from.Format(time.RFC3339))
	params.Set("toEnteredTime", to.Format(time.RFC3339))
	params.Set("status", "WORKING")

	var payload []brokerWorkingOrder
	if err := b.get(ctx, "/accounts/"+account+"/orders", params, &payload); err != nil {
		return nil, err
	}
	out := make([]Order, 0, len(payload))
	for _, o := range payload {
		if len(o.OrderLegCollection) == 0 {
			continue
		}
		leg := o.OrderLegCollection[0]
		underlying := leg.Instrument.Symbol
		option := leg.Instrument.AssetType == "OPTION"
		if option {
			underlying = leg.Instrument.UnderlyingSymbol
		}
		out = append(out, Order{
			ID:         o.OrderID.String(),
			Underlying: underlying,
			Symbol:     leg.Instrument.Symbol,
			Quantity:   int(o.Quantity),
			Limit:      o.Price,
			Option:     option,
		})
	}
	return out, nil
}
