// Package metrics holds the Prometheus collectors updated by the strategy
// and served on /metrics.
//
//   - lazywhale_cycles_total{market,result}          result: ok|noop|boundary|error
//   - lazywhale_cycle_duration_seconds{market}
//   - lazywhale_orders_placed_total{market,side}
//   - lazywhale_orders_cancelled_total{market,side}
//   - lazywhale_consumed_amount_total{market,side}
//   - lazywhale_displayed_intervals{market,side}
//   - lazywhale_carry_over_amount{market,side}
//   - lazywhale_venue_errors_total{op,class}
//   - lazywhale_consecutive_failures{market}
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/domain"
)

var (
	Cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazywhale_cycles_total",
			Help: "Reconciliation cycles by result",
		},
		[]string{"market", "result"},
	)

	CycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lazywhale_cycle_duration_seconds",
			Help:    "Wall time of one reconciliation cycle",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"market"},
	)

	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazywhale_orders_placed_total",
			Help: "Limit orders placed on the venue",
		},
		[]string{"market", "side"},
	)

	OrdersCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazywhale_orders_cancelled_total",
			Help: "Limit orders cancelled on the venue",
		},
		[]string{"market", "side"},
	)

	ConsumedAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazywhale_consumed_amount_total",
			Help: "Base amount consumed (filled) per side",
		},
		[]string{"market", "side"},
	)

	DisplayedIntervals = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lazywhale_displayed_intervals",
			Help: "Intervals currently holding live orders",
		},
		[]string{"market", "side"},
	)

	CarryOver = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lazywhale_carry_over_amount",
			Help: "Amount waiting to be opened on the next cycle",
		},
		[]string{"market", "side"},
	)

	VenueErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazywhale_venue_errors_total",
			Help: "Venue call failures by operation and class",
		},
		[]string{"op", "class"},
	)

	ConsecutiveFailures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lazywhale_consecutive_failures",
			Help: "Failed cycles since the last successful one",
		},
		[]string{"market"},
	)
)

func init() {
	prometheus.MustRegister(
		Cycles,
		CycleDuration,
		OrdersPlaced,
		OrdersCancelled,
		ConsumedAmount,
		DisplayedIntervals,
		CarryOver,
		VenueErrors,
		ConsecutiveFailures,
	)
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// Float converts a decimal for a gauge or counter.
func Float(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// ErrorClass labels a venue error for VenueErrors.
func ErrorClass(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrTransientVenue):
		return "transient"
	case errors.Is(err, domain.ErrOrderRejected):
		return "rejected"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	default:
		return "other"
	}
}

// ObserveReport records the counters and gauges of one cycle report.
func ObserveReport(r domain.CycleReport) {
	result := "ok"
	switch {
	case r.Err != "":
		result = "error"
	case r.Boundary != "":
		result = "boundary"
	case r.NoOp:
		result = "noop"
	}
	Cycles.WithLabelValues(r.Market, result).Inc()
	CycleDuration.WithLabelValues(r.Market).Observe(r.Duration.Seconds())
	ConsumedAmount.WithLabelValues(r.Market, string(domain.SideBuy)).Add(Float(r.ConsumedBuy))
	ConsumedAmount.WithLabelValues(r.Market, string(domain.SideSell)).Add(Float(r.ConsumedSell))
	DisplayedIntervals.WithLabelValues(r.Market, string(domain.SideBuy)).Set(float64(r.BuyIntervals))
	DisplayedIntervals.WithLabelValues(r.Market, string(domain.SideSell)).Set(float64(r.SellIntervals))
	CarryOver.WithLabelValues(r.Market, string(domain.SideBuy)).Set(Float(r.RemainingBuy))
	CarryOver.WithLabelValues(r.Market, string(domain.SideSell)).Set(Float(r.RemainingSell))
}
