package auction

import (
	"context"
	"testing"

	"github.com/nexusrtb/catalyst/internal/catalog"
	"github.com/nexusrtb/catalyst/internal/openrtb"
	"github.com/nexusrtb/catalyst/internal/qpslimiter"
)

func TestStageQpsLimitAdmitsAtMostOnePerBidder(t *testing.T) {
	req := &openrtb.BidRequest{ID: "r1", Imp: []openrtb.Imp{{ID: "imp1"}}}
	c := NewContext(req, "pub1", nil, "evt1")
	c.setBidders([]*BidderContext{{
		Bidder: catalog.Bidder{Code: "b1"},
		Callouts: []*BidderCallout{
			{Endpoint: catalog.Endpoint{ID: "ep1"}, Request: req},
			{Endpoint: catalog.Endpoint{ID: "ep2"}, Request: req},
			{Endpoint: catalog.Endpoint{ID: "ep3"}, Request: req},
		},
	}})

	limiter := qpslimiter.New()
	deps := &Dependencies{QPS: limiter}
	ctx := withDeps(context.Background(), deps)

	if err := stageQpsLimit(ctx, c); err != nil {
		t.Fatalf("stageQpsLimit returned error: %v", err)
	}

	admitted := 0
	for _, callout := range c.Bidders()[0].Callouts {
		if callout.SkipReason == SkipNone {
			admitted++
		} else if callout.SkipReason != SkipEndpointRotation {
			t.Fatalf("unexpected skip reason %v", callout.SkipReason)
		}
	}
	if admitted != 1 {
		t.Fatalf("expected exactly 1 callout admitted per bidder, got %d", admitted)
	}
}

func TestStageQpsLimitAbortsWhenEveryEndpointThrottled(t *testing.T) {
	req := &openrtb.BidRequest{ID: "r1", Imp: []openrtb.Imp{{ID: "imp1"}}}
	c := NewContext(req, "pub1", nil, "evt1")
	c.setBidders([]*BidderContext{{
		Bidder: catalog.Bidder{Code: "b1"},
		Callouts: []*BidderCallout{
			{Endpoint: catalog.Endpoint{ID: "ep1"}, Request: req, SkipReason: SkipTrafficShaping},
		},
	}})

	deps := &Dependencies{QPS: qpslimiter.New()}
	ctx := withDeps(context.Background(), deps)

	if err := stageQpsLimit(ctx, c); err == nil {
		t.Fatal("expected abort when every callout was already skipped upstream")
	}
	if c.BlockReason != openrtb.NoBidThrottledBuyerQPS {
		t.Fatalf("expected NoBidThrottledBuyerQPS, got %v", c.BlockReason)
	}
}
