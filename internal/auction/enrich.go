package auction

import (
	"context"
	"encoding/json"
	"net"
	"strings"

	"github.com/nexusrtb/catalyst/internal/openrtb"
)

func stageDeviceLookup(ctx context.Context, c *AuctionContext) error {
	req := c.Req()
	if req.Device != nil && req.Device.OS != "" && req.Device.Make != "" && req.Device.DeviceType != 0 {
		return nil
	}

	ua := ""
	if req.Device != nil {
		ua = req.Device.UA
	}

	info, err := lookupDeviceOrDefault(ctx, c, ua)
	if err != nil {
		return nil // external collaborator failure never aborts the auction
	}

	switch info.DevType {
	case DeviceBot:
		c.Abort(openrtb.NoBidSuspectedNonHuman)
		return &ValidationError{Field: "device", Reason: "device-lookup classified as bot"}
	case DeviceUnknown:
		c.Abort(openrtb.NoBidInvalidRequest)
		return &ValidationError{Field: "device", Reason: "device-lookup could not classify device"}
	}

	c.MutateReq(func(req *openrtb.BidRequest) {
		if req.Device == nil {
			req.Device = &openrtb.Device{}
		}
		if req.Device.OS == "" {
			req.Device.OS = info.OS
		}
		if req.Device.Model == "" {
			req.Device.Model = info.Model
		}
		if req.Device.Make == "" {
			req.Device.Make = info.Brand
		}
		if req.Device.DeviceType == 0 {
			req.Device.DeviceType = deviceTypeOpenRTB(info.DevType)
		}
	})
	return nil
}

func lookupDeviceOrDefault(ctx context.Context, c *AuctionContext, ua string) (DeviceInfo, error) {
	if deps := depsFromContext(ctx); deps != nil && deps.Devices != nil {
		return deps.Devices.Lookup(ctx, ua)
	}
	return DeviceInfo{}, errNoDeviceLookup
}

// deviceTypeOpenRTB maps the device-lookup's classification onto the
// OpenRTB 2.5 device-type enum (§7.21 in the spec this exchange speaks).
func deviceTypeOpenRTB(d DeviceClass) int {
	switch d {
	case DevicePhone:
		return 4
	case DeviceTablet:
		return 5
	case DeviceDesktop:
		return 2
	case DeviceTV, DeviceSetTop:
		return 3
	default:
		return 0
	}
}

func stageIPBlock(ctx context.Context, c *AuctionContext) error {
	req := c.Req()
	ip := req.Device.IP
	if ip == "" {
		ip = req.Device.IPv6
	}
	if net.ParseIP(ip) == nil {
		c.Abort(openrtb.NoBidInvalidRequest)
		return &ValidationError{Field: "device.ip", Reason: "unparseable ip address"}
	}

	deps := depsFromContext(ctx)
	if deps != nil && deps.IPRisk != nil && deps.IPRisk.IsRisky(ctx, ip) {
		c.Abort(openrtb.NoBidCloudDataCenter)
		return &ValidationError{Field: "device.ip", Reason: "cloud/datacenter/proxy ip"}
	}
	return nil
}

func stageSchainHopsFilter(ctx context.Context, c *AuctionContext) error {
	deps := depsFromContext(ctx)
	if deps == nil || deps.Config.SchainMaxHops <= 0 {
		return nil
	}
	req := c.Req()
	nodes := schainNodes(req)
	if len(nodes) > deps.Config.SchainMaxHops {
		c.Abort(openrtb.NoBidBlockedSupplyChain)
		return &ValidationError{Field: "source.schain", Reason: "supply chain exceeds configured hop limit"}
	}
	return nil
}

// schainNodes reads source.schain, falling back to the legacy
// source.ext.schain location some older integrations still populate.
func schainNodes(req *openrtb.BidRequest) []openrtb.SupplyChainNode {
	if req.Source == nil {
		return nil
	}
	if req.Source.SChain != nil {
		return req.Source.SChain.Nodes
	}
	if len(req.Source.Ext) > 0 {
		var ext struct {
			SChain *openrtb.SupplyChain `json:"schain"`
		}
		if json.Unmarshal(req.Source.Ext, &ext) == nil && ext.SChain != nil {
			return ext.SChain.Nodes
		}
	}
	return nil
}

func stagePublisherLookup(ctx context.Context, c *AuctionContext) error {
	deps := depsFromContext(ctx)
	if c.PubID == "" {
		c.Abort(openrtb.NoBidUnknownSeller)
		return &ValidationError{Field: "pubid", Reason: "empty publisher id"}
	}
	pub, ok := deps.Publishers.Get(c.PubID)
	if !ok {
		c.Abort(openrtb.NoBidUnknownSeller)
		return &ValidationError{Field: "pubid", Reason: "publisher not found: " + c.PubID}
	}
	if !pub.IsEnabled() {
		c.Abort(openrtb.NoBidSellerDisabled)
		return &ValidationError{Field: "pubid", Reason: "publisher disabled: " + c.PubID}
	}
	c.Publisher = pub
	c.HasPublisher = true
	return nil
}

// stageIdentityLocal resolves spec.md §4.2 stage 7. App traffic never
// syncs locally and any stray buyeruid is scrubbed; site/dooh traffic
// prefers a validated buyeruid carried from supply, else the rxid cookie.
func stageIdentityLocal(_ context.Context, c *AuctionContext) error {
	req := c.Req()
	if req.App != nil {
		if req.User != nil && req.User.BuyerUID != "" {
			c.MutateReq(func(req *openrtb.BidRequest) { req.User.BuyerUID = "" })
		}
		return nil
	}

	localID := ""
	if req.User != nil && req.User.BuyerUID != "" {
		localID = req.User.BuyerUID
	} else if rx, ok := c.Cookies["rxid"]; ok && strings.HasPrefix(rx, "rx-") {
		localID = rx
	}

	if localID == "" {
		return nil
	}

	c.MutateReq(func(req *openrtb.BidRequest) {
		if req.User == nil {
			req.User = &openrtb.User{}
		}
		req.User.ID = localID
		req.User.BuyerUID = ""
	})
	c.Identity = IdentityContext{LocalUID: localID, Found: true}
	return nil
}
