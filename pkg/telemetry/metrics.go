// Package telemetry provides Prometheus metrics for the broker simulator.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CandleCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brokersim_candle_cache_hits_total",
		Help: "Candle bucket reads served from the on-disk cache",
	})
	CandleCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brokersim_candle_cache_misses_total",
		Help: "Candle bucket reads that fell through to the upstream source",
	})
	UpstreamFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brokersim_upstream_fetches_total",
		Help: "Candle chunk fetches against the upstream market-data source",
	})
	ClockSteps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brokersim_clock_steps_total",
		Help: "Successful virtual clock advances",
	})
	OrdersPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brokersim_orders_placed_total",
		Help: "Orders accepted by the session",
	})
	OrderFills = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brokersim_order_fills_total",
		Help: "Orders executed by the matching engine",
	})
)
