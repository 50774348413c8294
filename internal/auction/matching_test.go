package auction

import (
	"context"
	"testing"

	"github.com/nexusrtb/catalyst/internal/catalog"
	"github.com/nexusrtb/catalyst/internal/openrtb"
)

func sampleRequest() *openrtb.BidRequest {
	return &openrtb.BidRequest{
		ID:  "r1",
		Imp: []openrtb.Imp{{ID: "imp1", BidFloor: 1.0, Banner: &openrtb.Banner{W: 300, H: 250}}},
		Site: &openrtb.Site{Domain: "example.com"},
		Device: &openrtb.Device{
			UA: "ua", IP: "1.2.3.4",
			Geo: &openrtb.Geo{Country: "US"},
		},
	}
}

func newDemandManager(bidders ...catalog.Bidder) *catalog.DemandManager {
	m := catalog.NewDemandManager()
	for _, b := range bidders {
		m.Apply(catalog.BidderEvent{Kind: catalog.Added, Bidder: b})
	}
	return m
}

func TestStageBidderMatchingSkipsSelfRouting(t *testing.T) {
	req := sampleRequest()
	c := NewContext(req, "pub1", nil, "evt1")
	deps := &Dependencies{
		Demand: newDemandManager(catalog.Bidder{
			ID: "pub1", Code: "pub1", Enabled: true,
			Endpoints: []catalog.Endpoint{{ID: "ep1", Enabled: true}},
		}),
	}
	ctx := withDeps(context.Background(), deps)

	if err := stageBidderMatching(ctx, c); err == nil {
		t.Fatal("expected no-buyers-prematched abort when only candidate is self")
	}
	if !c.Blocked || c.BlockReason != openrtb.NoBidNoBuyersPrematched {
		t.Fatalf("expected NoBidNoBuyersPrematched, got blocked=%v reason=%v", c.Blocked, c.BlockReason)
	}
}

func TestStageBidderMatchingFiltersByGeoAndFormat(t *testing.T) {
	req := sampleRequest()
	c := NewContext(req, "pub1", nil, "evt1")
	deps := &Dependencies{
		Demand: newDemandManager(
			catalog.Bidder{
				ID: "biddeo", Code: "biddeo", Enabled: true,
				Endpoints: []catalog.Endpoint{{
					ID: "ep-video", Enabled: true,
					Targeting: catalog.Targeting{Formats: []string{"video"}},
				}},
			},
			catalog.Bidder{
				ID: "bidok", Code: "bidok", Enabled: true,
				Endpoints: []catalog.Endpoint{{
					ID: "ep-banner", Enabled: true,
					Targeting: catalog.Targeting{Geos: []string{"US"}, Formats: []string{"banner"}},
				}},
			},
		),
	}
	ctx := withDeps(context.Background(), deps)

	if err := stageBidderMatching(ctx, c); err != nil {
		t.Fatalf("stageBidderMatching returned error: %v", err)
	}
	bidders := c.Bidders()
	if len(bidders) != 1 {
		t.Fatalf("expected exactly 1 matched bidder, got %d", len(bidders))
	}
	if bidders[0].Bidder.Code != "bidok" {
		t.Fatalf("expected bidok to match, got %s", bidders[0].Bidder.Code)
	}
}

func TestCloneRequestDeepCopiesMutableFields(t *testing.T) {
	req := sampleRequest()
	req.User = &openrtb.User{BuyerUID: "u1"}
	clone := cloneRequest(req)
	clone.Device.Geo.Country = "CA"
	clone.User.BuyerUID = "u2"

	if req.Device.Geo.Country != "US" {
		t.Fatal("mutating clone's geo leaked into original")
	}
	if req.User.BuyerUID != "u1" {
		t.Fatal("mutating clone's user leaked into original")
	}
}
