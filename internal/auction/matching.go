package auction

import (
	"context"
	"strings"

	"github.com/nexusrtb/catalyst/internal/catalog"
	"github.com/nexusrtb/catalyst/internal/openrtb"
)

// stageBidderMatching enforces spec.md §4.2 stage 9: evaluate every
// enabled endpoint of every enabled bidder against the request's geo,
// format, channel, device category, and optional publisher allow-list,
// never routing a seller's own supply back to itself.
func stageBidderMatching(ctx context.Context, c *AuctionContext) error {
	deps := depsFromContext(ctx)
	req := c.Req()
	channel := requestChannel(req)
	category := deviceCategory(req)
	country := strings.ToUpper(deviceCountry(req))
	formats := impFormats(req)

	var built []*BidderContext
	for _, bidder := range deps.Demand.Snapshot() {
		if bidder.ID == c.PubID {
			continue
		}
		var callouts []*BidderCallout
		for _, ep := range bidder.Endpoints {
			if !ep.Enabled {
				continue
			}
			if !endpointMatches(ep, country, channel, category, formats, c.PubID) {
				continue
			}
			callouts = append(callouts, &BidderCallout{
				Endpoint: ep,
				Request:  cloneRequest(req),
			})
		}
		if len(callouts) > 0 {
			built = append(built, &BidderContext{Bidder: bidder, Callouts: callouts})
		}
	}

	if len(built) == 0 {
		c.Abort(openrtb.NoBidNoBuyersPrematched)
		return &ValidationError{Field: "bidders", Reason: "no endpoint matched this request"}
	}
	c.setBidders(built)
	return nil
}

func endpointMatches(ep catalog.Endpoint, country, channel, category string, formats map[string]bool, pubid string) bool {
	t := ep.Targeting
	if len(t.Geos) > 0 && !containsAny(t.Geos, country) {
		return false
	}
	if len(t.Formats) > 0 {
		matched := false
		for _, f := range t.Formats {
			if formats[f] {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(t.Channels) > 0 && !contains(t.Channels, channel) {
		return false
	}
	if len(t.DeviceCategories) > 0 && !contains(t.DeviceCategories, category) {
		return false
	}
	if len(t.PublisherAllowSet) > 0 && !contains(t.PublisherAllowSet, pubid) {
		return false
	}
	return true
}

func containsAny(list []string, v string) bool {
	for _, s := range list {
		if s == "*" || strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func requestChannel(req *openrtb.BidRequest) string {
	switch {
	case req.Site != nil:
		return "site"
	case req.App != nil:
		return "app"
	default:
		return "dooh"
	}
}

func deviceCategory(req *openrtb.BidRequest) string {
	if req.DOOH != nil {
		return "dooh"
	}
	if req.Device == nil {
		return ""
	}
	switch req.Device.DeviceType {
	case 4, 5:
		return "mobile"
	case 2:
		return "desktop"
	case 3, 6, 7:
		return "connected"
	default:
		return ""
	}
}

func deviceCountry(req *openrtb.BidRequest) string {
	if req.Device != nil && req.Device.Geo != nil {
		return req.Device.Geo.Country
	}
	return ""
}

func impFormats(req *openrtb.BidRequest) map[string]bool {
	out := map[string]bool{}
	for _, imp := range req.Imp {
		switch {
		case imp.Banner != nil:
			out["banner"] = true
		case imp.Video != nil:
			out["video"] = true
		case imp.Native != nil:
			out["native"] = true
		case imp.Audio != nil:
			out["audio"] = true
		}
	}
	return out
}

// cloneRequest shallow-copies the top-level request and deep-copies the
// nested pointers a per-bidder callout may mutate (schain, user, imp
// slice), grounded on the teacher's deepCloneRequest but without its
// CloneLimits bookkeeping — this module's imp/eid counts are already
// bounded upstream by validation.
func cloneRequest(req *openrtb.BidRequest) *openrtb.BidRequest {
	clone := *req
	clone.Imp = append([]openrtb.Imp(nil), req.Imp...)
	if req.Device != nil {
		d := *req.Device
		if req.Device.Geo != nil {
			g := *req.Device.Geo
			d.Geo = &g
		}
		clone.Device = &d
	}
	if req.User != nil {
		u := *req.User
		u.EIDs = append([]openrtb.EID(nil), req.User.EIDs...)
		clone.User = &u
	}
	if req.Source != nil {
		s := *req.Source
		if req.Source.SChain != nil {
			sc := *req.Source.SChain
			sc.Nodes = append([]openrtb.SupplyChainNode(nil), req.Source.SChain.Nodes...)
			s.SChain = &sc
		}
		clone.Source = &s
	}
	return &clone
}

// stageSchainAppend enforces spec.md §4.2 stage 10 on every surviving
// callout's cloned request.
func stageSchainAppend(ctx context.Context, c *AuctionContext) error {
	deps := depsFromContext(ctx)
	node := openrtb.SupplyChainNode{
		ASI:  deps.Config.SchainASI,
		Name: deps.Config.SchainName,
		SID:  c.PubID,
		RID:  c.Req().ID,
		HP:   1,
	}
	for _, callout := range c.AllCallouts() {
		req := callout.Request
		if req.Source == nil {
			req.Source = &openrtb.Source{}
		}
		created := req.Source.SChain == nil
		if created {
			req.Source.SChain = &openrtb.SupplyChain{Complete: 1, Ver: "1.0"}
		}
		req.Source.SChain.Nodes = append(req.Source.SChain.Nodes, node)
	}
	return nil
}

// stageIdentityDemand enforces spec.md §4.2 stage 11: for every bidder
// where a synced uid is known, mutate that bidder's callouts' buyeruid.
func stageIdentityDemand(ctx context.Context, c *AuctionContext) error {
	if !c.Identity.Found {
		return nil
	}
	deps := depsFromContext(ctx)
	mapping, err := deps.UserSync.LookupAll(ctx, c.Identity.LocalUID)
	if err != nil || len(mapping) == 0 {
		return nil
	}
	for _, bidder := range c.Bidders() {
		uid, ok := mapping[bidder.Bidder.Code]
		if !ok {
			continue
		}
		for _, callout := range bidder.Callouts {
			req := callout.Request
			if req.User == nil {
				req.User = &openrtb.User{}
			}
			req.User.BuyerUID = uid
			if req.User.ID == "" {
				req.User.ID = c.Identity.LocalUID
			}
		}
	}
	return nil
}
