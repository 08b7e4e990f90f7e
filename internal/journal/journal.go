// Package journal appends every order the loop routes to a JSONL file for
// later analysis, wrapping the live order gateway so nothing bypasses it.
package journal

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"optionskiller-go/internal/gateway"
)

// Entry is one journaled order submission.
type Entry struct {
	Time       time.Time `json:"time"`
	Underlying string    `json:"underlying"`
	Symbol     string    `json:"symbol,omitempty"`
	Side       string    `json:"side"`
	Quantity   int       `json:"quantity"`
	Limit      float64   `json:"limit,omitempty"`
	Option     bool      `json:"option"`
}

// Recorder appends entries as JSON lines.
type Recorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewRecorder creates/opens the target file and returns a recorder.
func NewRecorder(path string) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Recorder{file: file, enc: json.NewEncoder(file)}, nil
}

// Record writes a single entry to the underlying JSONL file.
func (r *Recorder) Record(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return
	}
	_ = r.enc.Encode(entry)
}

// Close flushes and closes the file handle.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Gateway decorates an order gateway, journaling each submission that the
// inner gateway accepts.
type Gateway struct {
	gateway.OrderGateway
	rec *Recorder
	now func() time.Time
}

// Wrap returns a journaling view of the given order gateway.
func Wrap(inner gateway.OrderGateway, rec *Recorder) *Gateway {
	return &Gateway{OrderGateway: inner, rec: rec, now: time.Now}
}

// PlaceMarketOrder implements gateway.OrderGateway.
func (g *Gateway) PlaceMarketOrder(ctx context.Context, account, ticker string, side gateway.Side, qty int) error {
	if err := g.OrderGateway.PlaceMarketOrder(ctx, account, ticker, side, qty); err != nil {
		return err
	}
	g.rec.Record(Entry{
		Time:       g.now(),
		Underlying: ticker,
		Side:       string(side),
		Quantity:   qty,
	})
	return nil
}

// PlaceLimitOrder implements gateway.OrderGateway.
func (g *Gateway) PlaceLimitOrder(ctx context.Context, account string, order gateway.OptionOrder) (string, error) {
	id, err := g.OrderGateway.PlaceLimitOrder(ctx, account, order)
	if err != nil {
		return "", err
	}
	g.rec.Record(Entry{
		Time:       g.now(),
		Underlying: order.Underlying,
		Symbol:     order.Symbol,
		Side:       string(gateway.SellToOpen),
		Quantity:   order.Quantity,
		Limit:      order.Limit,
		Option:     true,
	})
	return id, nil
}

var _ gateway.OrderGateway = (*Gateway)(nil)
