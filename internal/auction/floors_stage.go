package auction

import (
	"context"

	"github.com/nexusrtb/catalyst/internal/openrtb"
)

// stageFloorsMarkup enforces spec.md §4.2 stage 8: per impression, enforce
// MIN_FLOOR if the request's own floor sits below it, otherwise raise the
// floor to compensate for the publisher's take rate so that a bid arriving
// at the new floor, after markdown, still clears the original floor.
func stageFloorsMarkup(ctx context.Context, c *AuctionContext) error {
	if !c.HasPublisher {
		return nil
	}
	deps := depsFromContext(ctx)
	minFloor := deps.Config.MinFloor
	margin := c.Publisher.MarginPercent()

	c.MutateReq(func(req *openrtb.BidRequest) {
		for i := range req.Imp {
			floor := req.Imp[i].BidFloor
			if floor < minFloor {
				floor = minFloor
			} else {
				floor = markupFloor(floor, margin)
			}
			req.Imp[i].BidFloor = floor
			if req.Imp[i].PMP != nil {
				for j := range req.Imp[i].PMP.Deals {
					dealFloor := req.Imp[i].PMP.Deals[j].BidFloor
					if dealFloor < minFloor {
						dealFloor = minFloor
					} else {
						dealFloor = markupFloor(dealFloor, margin)
					}
					if dealFloor < floor {
						dealFloor = floor
					}
					req.Imp[i].PMP.Deals[j].BidFloor = dealFloor
				}
			}
		}
	})
	return nil
}

// markupFloor applies floor' = floor / (1 - margin/100).
func markupFloor(floor float64, marginPercent int) float64 {
	if marginPercent <= 0 || marginPercent >= 100 {
		return floor
	}
	return floor / (1 - float64(marginPercent)/100)
}
