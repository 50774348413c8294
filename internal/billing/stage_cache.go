package billing

import "context"

// stageCacheNoticeUrlsValidation is stage 3, grounded on
// cache_urls_validation.rs: look up the bidder's original notice urls by
// bid_event_id. A miss is not an error here, so that raw success stats
// still get recorded for expired/duplicate hits; BailIfExpired is the
// stage that actually stops the chain.
func stageCacheNoticeUrlsValidation(ctx context.Context, c *EventContext) error {
	deps := depsFromContext(ctx)
	urls, found, err := deps.Notify.Get(ctx, c.Event.BidEventID)
	if err != nil {
		return nil
	}
	c.Notice = urls
	c.NoticeFound = found
	return nil
}
