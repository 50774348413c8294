package billing

import (
	"context"
	"fmt"
)

// stageBailIfExpired is stage 5, grounded on bail_if_expired.rs: stop the
// chain once the raw stats are recorded if the NotificationCache had
// nothing for this bid_event_id, meaning it was already billed or its ttl
// ran out before the demand partner fired the hit.
func stageBailIfExpired(ctx context.Context, c *EventContext) error {
	if !c.NoticeFound {
		deps := depsFromContext(ctx)
		if deps != nil && deps.Metrics != nil {
			deps.Metrics.ExpiredTotal.WithLabelValues(c.Event.BidderID).Inc()
		}
		c.Aborted = "expired or duplicate"
		return fmt.Errorf("billing: bid_event_id %q expired or duplicate", c.Event.BidEventID)
	}
	return nil
}
