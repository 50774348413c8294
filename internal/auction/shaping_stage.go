package auction

import (
	"context"
	"encoding/json"
	"math/rand"

	"github.com/nexusrtb/catalyst/internal/catalog"
	"github.com/nexusrtb/catalyst/internal/demandclient"
	"github.com/nexusrtb/catalyst/internal/openrtb"
)

// stageTrafficShaping enforces spec.md §4.2 stage 12.
func stageTrafficShaping(ctx context.Context, c *AuctionContext) error {
	deps := depsFromContext(ctx)
	for _, bidder := range c.Bidders() {
		for _, callout := range bidder.Callouts {
			if callout.SkipReason != SkipNone || callout.Endpoint.Shaping.Mode != catalog.ShapingTree {
				continue
			}
			decision, ok := deps.Shaping.Decide(callout.Endpoint.ID, callout.Request, c.PubID)
			if !ok {
				continue
			}
			callout.Decision = decision
			callout.HasDecision = true
			callout.Shaper = true
			if !decision.Passed() {
				callout.skip(SkipTrafficShaping)
			}
		}
	}
	return nil
}

// stageMultiImpBreakout enforces spec.md §4.2 stage 13: bidders lacking
// multi-imp support get one callout per impression instead of one callout
// carrying every impression.
func stageMultiImpBreakout(_ context.Context, c *AuctionContext) error {
	for _, bidder := range c.Bidders() {
		if bidder.Bidder.MultiImpSupport {
			continue
		}
		var split []*BidderCallout
		for _, callout := range bidder.Callouts {
			if callout.SkipReason != SkipNone || len(callout.Request.Imp) <= 1 {
				split = append(split, callout)
				continue
			}
			for _, imp := range callout.Request.Imp {
				clone := *callout.Request
				clone.Imp = []openrtb.Imp{imp}
				split = append(split, &BidderCallout{
					Endpoint:    callout.Endpoint,
					Request:     &clone,
					Decision:    callout.Decision,
					HasDecision: callout.HasDecision,
					Shaper:      callout.Shaper,
				})
			}
		}
		bidder.Callouts = split
	}
	return nil
}

// stageQpsLimit enforces spec.md §4.2 stage 14: per bidder, collect live
// callouts, shuffle, then greedily admit at most one per bidder through
// the limiter. If nothing survives across every bidder, abort.
func stageQpsLimit(ctx context.Context, c *AuctionContext) error {
	deps := depsFromContext(ctx)
	anyLive := false
	for _, bidder := range c.Bidders() {
		var live []*BidderCallout
		for _, callout := range bidder.Callouts {
			if callout.SkipReason == SkipNone {
				live = append(live, callout)
			}
		}
		rand.Shuffle(len(live), func(i, j int) { live[i], live[j] = live[j], live[i] })

		admitted := false
		for _, callout := range live {
			if admitted {
				callout.skip(SkipEndpointRotation)
				continue
			}
			if deps.QPS.Allow(callout.Endpoint.ID) {
				admitted = true
				anyLive = true
			} else {
				callout.skip(SkipQpsLimit)
			}
		}
	}
	if !anyLive {
		c.Abort(openrtb.NoBidThrottledBuyerQPS)
		return &ValidationError{Field: "qps", Reason: "every live callout was qps-limited"}
	}
	return nil
}

type testBidderExt struct {
	ForceBid bool `json:"force_bid"`
}

// stageTestBidder enforces spec.md §4.2 stage 15: when req.test is set and
// ext.force_bid is true, synthesise a seatbid at imp.bidfloor x 1.2 instead
// of calling any real demand.
func stageTestBidder(ctx context.Context, c *AuctionContext) error {
	deps := depsFromContext(ctx)
	if !deps.Config.ForceBidEnabled {
		return nil
	}
	req := c.Req()
	if req.Test == 0 {
		return nil
	}
	var ext testBidderExt
	if req.Ext != nil {
		_ = json.Unmarshal(req.Ext, &ext)
	}
	if !ext.ForceBid {
		return nil
	}

	var bids []openrtb.Bid
	for _, imp := range req.Imp {
		bids = append(bids, openrtb.Bid{
			ID:    "test-" + imp.ID,
			ImpID: imp.ID,
			Price: imp.BidFloor * 1.2,
			AdM:   "<div>test creative</div>",
			CRID:  "test-creative",
		})
	}
	if len(bids) == 0 {
		return nil
	}

	callout := &BidderCallout{
		Endpoint: catalog.Endpoint{ID: "test-bidder", BidderCode: "test"},
		Request:  req,
		State:    demandclient.StateBid,
		Response: &BidResponseContext{
			Response: &openrtb.BidResponse{
				ID:      req.ID,
				SeatBid: []openrtb.SeatBid{{Seat: "test", Bid: bids}},
			},
		},
	}
	c.appendBidder(&BidderContext{
		Bidder:   catalog.Bidder{ID: "test", Code: "test", Name: "test-bidder"},
		Callouts: []*BidderCallout{callout},
		IsTest:   true,
	})
	return nil
}

// stageAuctionIDAssign enforces spec.md §4.2 stage 16: the outbound request
// to demand carries our server-assigned event id; the original id is kept
// on AuctionContext for the response envelope.
func stageAuctionIDAssign(_ context.Context, c *AuctionContext) error {
	for _, callout := range c.AllCallouts() {
		if callout.Request != nil {
			callout.Request.ID = c.EventID
		}
	}
	return nil
}
