package auction

import (
	"context"

	"github.com/nexusrtb/catalyst/internal/openrtb"
)

// stageBidSettlement enforces spec.md §4.2 stage 22: collect every
// surviving bid per bidder, sort each seat's bids by price descending,
// drop seats that end up empty, and sort the surviving seats by their top
// bid descending so the highest bidder leads the response.
func stageBidSettlement(_ context.Context, c *AuctionContext) error {
	req := c.Req()

	var seats []openrtb.SeatBid
	for _, bidder := range c.Bidders() {
		var bids []openrtb.Bid
		for _, callout := range bidder.Callouts {
			if callout.SkipReason != SkipNone || callout.Response == nil {
				continue
			}
			for _, bc := range callout.Response.Bids {
				if bc.FilterReason != "" {
					continue
				}
				bids = append(bids, *bc.Bid)
			}
		}
		if len(bids) == 0 {
			continue
		}
		sortBidsDescending(bids)
		seat := bidder.Bidder.Code
		if bidder.IsTest {
			seat = "test"
		}
		seats = append(seats, openrtb.SeatBid{Seat: seat, Bid: bids})
	}

	if len(seats) == 0 {
		c.Abort(openrtb.NoBidNoCampaignsFound)
		return &ValidationError{Field: "settlement", Reason: "no seats survived to settlement"}
	}

	sortSeatsByTopBid(seats)
	c.Res = &openrtb.BidResponse{
		ID:      c.OriginalAuctionID,
		SeatBid: seats,
		Cur:     currencyOf(req),
	}
	return nil
}

// sortBidsDescending is a small insertion sort, grounded on the teacher's
// sortBidsByPrice: seat sizes are small enough that O(n^2) never matters.
func sortBidsDescending(bids []openrtb.Bid) {
	for i := 1; i < len(bids); i++ {
		for j := i; j > 0 && bids[j].Price > bids[j-1].Price; j-- {
			bids[j], bids[j-1] = bids[j-1], bids[j]
		}
	}
}

func sortSeatsByTopBid(seats []openrtb.SeatBid) {
	for i := 1; i < len(seats); i++ {
		for j := i; j > 0 && topBid(seats[j]) > topBid(seats[j-1]); j-- {
			seats[j], seats[j-1] = seats[j-1], seats[j]
		}
	}
}

func topBid(s openrtb.SeatBid) float64 {
	if len(s.Bid) == 0 {
		return 0
	}
	return s.Bid[0].Price
}

// finalizeCounters is spec.md §4.2 stage 23: publisher and demand counters
// are merged unconditionally, whether or not the auction reached
// settlement, so throttled and blocked requests still show up in volume
// reporting.
func finalizeCounters(ctx context.Context, c *AuctionContext) {
	deps := depsFromContext(ctx)
	if deps == nil {
		return
	}
	if deps.PublisherCounters != nil {
		deps.PublisherCounters.Incr(map[string]string{
			"pubid":  c.PubID,
			"status": settlementStatus(c),
		}, 1)
	}
	if deps.DemandCounters != nil {
		for _, bidder := range c.Bidders() {
			if bidder.IsTest {
				continue
			}
			for _, callout := range bidder.Callouts {
				deps.DemandCounters.Incr(map[string]string{
					"endpoint": callout.Endpoint.ID,
					"bidder":   bidder.Bidder.Code,
					"skip":     string(callout.SkipReason),
				}, 1)
			}
		}
	}
}

func settlementStatus(c *AuctionContext) string {
	if c.Blocked {
		return "blocked"
	}
	if c.Res == nil {
		return "no_bid"
	}
	return "bid"
}
