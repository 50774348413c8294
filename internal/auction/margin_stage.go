package auction

import "context"

// stageBidMargin enforces spec.md §4.2 stage 20: reduce every surviving
// bid's price by the publisher's take rate, in place, while keeping the
// original gross price around for billing.
func stageBidMargin(_ context.Context, c *AuctionContext) error {
	if !c.HasPublisher || c.Publisher.BidMultiplier <= 0 {
		return nil
	}
	for _, bc := range allBidContexts(c) {
		if bc.FilterReason != "" {
			continue
		}
		bc.OriginalBidPrice = bc.Bid.Price
		bc.ReducedBidPrice = bc.Bid.Price / c.Publisher.BidMultiplier
		bc.Bid.Price = bc.ReducedBidPrice
	}
	return nil
}

func allBidContexts(c *AuctionContext) []*BidContext {
	var out []*BidContext
	for _, callout := range c.AllCallouts() {
		if callout.Response == nil {
			continue
		}
		out = append(out, callout.Response.Bids...)
	}
	return out
}
