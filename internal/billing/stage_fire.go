package billing

import (
	"context"
	"fmt"
	"net/http"
)

// stageFireDemandBurl is stage 7, grounded on fire_demand_burl.rs: replay
// the original demand partner's burl now that we know the impression is
// real. A missing burl is not an error, the partner simply didn't supply
// one; a failed GET is, so the caller can decide whether to retry.
func stageFireDemandBurl(ctx context.Context, c *EventContext) error {
	if c.Notice.Burl == "" {
		return nil
	}
	deps := depsFromContext(ctx)
	client := httpClientOf(deps)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Notice.Burl, nil)
	if err != nil {
		return fmt.Errorf("billing: fire burl: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if deps != nil && deps.Metrics != nil {
			deps.Metrics.BurlFireErrors.WithLabelValues(c.Event.BidderID).Inc()
		}
		return fmt.Errorf("billing: fire burl: %w", err)
	}
	defer resp.Body.Close()
	return nil
}
