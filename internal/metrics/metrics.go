// Package metrics exposes Prometheus instrumentation for the trading loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CyclesTotal counts trading cycles serviced per instrument.
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cycles_total", Help: "Trading cycles run"},
		[]string{"ticker"},
	)
	// OrdersTotal counts orders submitted to the brokerage.
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"ticker", "side"},
	)
	// SurfaceFitsTotal counts smile fits by outcome (built or unavailable).
	SurfaceFitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "surface_fits_total", Help: "Smile fits by outcome"},
		[]string{"ticker", "status"},
	)
	// GatewayErrorsTotal counts external call failures by operation.
	GatewayErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "gateway_errors_total", Help: "External call failures"},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal, OrdersTotal, SurfaceFitsTotal, GatewayErrorsTotal)
}

// Serve exposes /metrics on the given address in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
