package auction

import (
	"context"

	"github.com/nexusrtb/catalyst/internal/shaping"
)

// stageShapingTrain enforces spec.md §4.2 stage 21: every callout that
// actually went out trains its endpoint's shaper with one auction event,
// and every surviving bid additionally trains one impression event.
func stageShapingTrain(ctx context.Context, c *AuctionContext) error {
	deps := depsFromContext(ctx)

	for _, bidder := range c.Bidders() {
		if bidder.IsTest {
			continue
		}
		for _, callout := range bidder.Callouts {
			if callout.SkipReason != SkipNone {
				continue
			}
			features := shaping.Extract(callout.Request, c.PubID, callout.Endpoint.Shaping.Features)

			var bidCount int64
			var topBidCPM float64
			if callout.Response != nil {
				for _, bc := range callout.Response.Bids {
					if bc.FilterReason != "" {
						continue
					}
					bidCount++
					if bc.OriginalBidPrice > topBidCPM {
						topBidCPM = bc.OriginalBidPrice
					}
				}
			}
			deps.Shaping.RecordAuction(callout.Endpoint.ID, features, bidCount, topBidCPM)

			if callout.Response == nil {
				continue
			}
			for _, bc := range callout.Response.Bids {
				if bc.FilterReason != "" {
					continue
				}
				deps.Shaping.RecordImpression(callout.Endpoint.ID, bc.ShapingFeatures, bc.OriginalBidPrice, bc.ReducedBidPrice)
			}
		}
	}
	return nil
}
