package billing

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// stageRecordBillingMetrics is stage 4, grounded on record_metrics.rs:
// record gross/cost revenue and imp delay unconditionally, before the bail
// check, so expired and duplicate hits still count toward the raw stats.
func stageRecordBillingMetrics(ctx context.Context, c *EventContext) error {
	deps := depsFromContext(ctx)
	if deps == nil || deps.Metrics == nil {
		return nil
	}

	labels := prometheus.Labels{
		"bidder":   c.Event.BidderID,
		"endpoint": c.Event.EndpointID,
		"pubid":    c.Event.PubID,
	}
	deps.Metrics.ImpsTotal.With(labels).Inc()
	deps.Metrics.RevenueGross.With(labels).Add(c.Event.CPMGross / 1000)
	deps.Metrics.RevenueCost.With(labels).Add(c.Event.CPMCost / 1000)

	if delay := time.Since(time.Unix(c.Event.BidTimestamp, 0)); delay > 0 {
		deps.Metrics.ImpDelay.WithLabelValues(c.Event.BidderID).Observe(delay.Seconds())
	}
	return nil
}
