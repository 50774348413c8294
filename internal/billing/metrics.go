package billing

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the billing pipeline's Prometheus instruments, grounded on
// original_source's record_metrics task (events.billing.imps/revenue/delay)
// and following internal/metrics's namespace+MustRegister convention.
type Metrics struct {
	ImpsTotal      *prometheus.CounterVec
	RevenueGross   *prometheus.CounterVec
	RevenueCost    *prometheus.CounterVec
	ImpDelay       *prometheus.HistogramVec
	ExpiredTotal   *prometheus.CounterVec
	BurlFireErrors *prometheus.CounterVec
}

// NewMetrics creates and registers the billing metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pbs"
	}

	m := &Metrics{
		ImpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "imps_total",
				Help:      "Billed impressions, recorded regardless of dedup outcome",
			},
			[]string{"bidder", "endpoint", "pubid"},
		),
		RevenueGross: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "revenue_gross_total",
				Help:      "Gross revenue in dollars, bidder's original bid price",
			},
			[]string{"bidder", "endpoint", "pubid"},
		),
		RevenueCost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "revenue_cost_total",
				Help:      "Cost revenue in dollars, after the publisher's margin is applied",
			},
			[]string{"bidder", "endpoint", "pubid"},
		),
		ImpDelay: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "imp_delay_seconds",
				Help:      "Seconds between the bid and the billing hit landing",
				Buckets:   []float64{.1, .5, 1, 2, 5, 10, 30, 60, 300},
			},
			[]string{"bidder"},
		),
		ExpiredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "expired_total",
				Help:      "Billing hits with no matching NotificationCache entry: duplicate or past ttl",
			},
			[]string{"bidder"},
		),
		BurlFireErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "burl_fire_errors_total",
				Help:      "Failed GETs to the demand partner's original burl",
			},
			[]string{"bidder"},
		),
	}

	prometheus.MustRegister(
		m.ImpsTotal, m.RevenueGross, m.RevenueCost,
		m.ImpDelay, m.ExpiredTotal, m.BurlFireErrors,
	)
	return m
}
