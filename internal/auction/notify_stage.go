package auction

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nexusrtb/catalyst/internal/billing"
	"github.com/nexusrtb/catalyst/internal/dataurl"
	"github.com/nexusrtb/catalyst/internal/notify"
	"github.com/nexusrtb/catalyst/internal/openrtb"
	"github.com/nexusrtb/catalyst/internal/shaping"
)

const pixelAdm = `<html><body><img src="%s" width="1" height="1" style="display:none"/></body></html>`

// stageNotificationCreate enforces spec.md §4.2 stage 18: build one billing
// DataUrl per accepted bid, carrying everything the billing pipeline needs
// to reconstruct the event without touching the auction state again.
func stageNotificationCreate(ctx context.Context, c *AuctionContext) error {
	deps := depsFromContext(ctx)
	req := c.Req()
	built := false

	for _, bidder := range c.Bidders() {
		for _, callout := range bidder.Callouts {
			if callout.SkipReason != SkipNone || callout.Response == nil {
				continue
			}
			for _, seat := range callout.Response.Response.SeatBid {
				for i := range seat.Bid {
					bid := &seat.Bid[i]
					bidCtx, err := buildNotification(deps, req, c, bidder, callout, bid)
					if err != nil {
						bidCtx = &BidContext{Bid: bid, ImpID: bid.ImpID, FilterReason: err.Error()}
					} else {
						built = true
					}
					callout.Response.Bids = append(callout.Response.Bids, bidCtx)
				}
			}
		}
	}

	if !built {
		c.Abort(openrtb.NoBidTechnicalErrorExt)
		return &ValidationError{Field: "notification", Reason: "every accepted bid failed notification-url creation"}
	}
	return nil
}

func buildNotification(deps *Dependencies, req *openrtb.BidRequest, c *AuctionContext, bidder *BidderContext, callout *BidderCallout, bid *openrtb.Bid) (*BidContext, error) {
	impFormat := ""
	for _, imp := range req.Imp {
		if imp.ID == bid.ImpID {
			impFormat = impFormatLabel(imp)
			break
		}
	}

	features := shaping.Extract(req, c.PubID, callout.Endpoint.Shaping.Features)
	bidEventID := callout.Endpoint.ID + ":" + bid.ID + ":" + c.EventID

	reducedPrice := bid.Price
	if c.HasPublisher && c.Publisher.BidMultiplier > 0 {
		reducedPrice = bid.Price / c.Publisher.BidMultiplier
	}

	u := dataurl.New(deps.Config.EventDomain + "/" + deps.Config.BillingPath)
	fields := []func() error{
		func() error { return u.AddString(billing.FieldBidEventID, bidEventID) },
		func() error { return u.AddString(billing.FieldAuctionEventID, c.EventID) },
		func() error { return u.AddInt(billing.FieldBidTimestamp, c.StartedAt.Unix()) },
		func() error { return u.AddFloat(billing.FieldCPMGross, bid.Price) },
		func() error { return u.AddFloat(billing.FieldCPMCost, reducedPrice) },
		func() error { return u.AddString(billing.FieldBidderID, bidder.Bidder.Code) },
		func() error { return u.AddString(billing.FieldEndpointID, callout.Endpoint.ID) },
		func() error { return u.AddString(billing.FieldPubID, c.PubID) },
		func() error { return u.AddString(billing.FieldAdFormat, impFormat) },
		func() error { return u.AddString(billing.FieldChannel, requestChannel(req)) },
		func() error { return u.AddString(billing.FieldShapingKey, features.Key()) },
		// burl is our only reliable fire path; the adm pixel is a
		// best-effort backstop, not the billing pipeline's primary source.
		func() error { return u.AddString(billing.FieldEventSource, string(billing.EventSourceBurl)) },
	}
	if req.Device != nil {
		fields = append(fields, func() error { return u.AddInt(billing.FieldDeviceType, int64(req.Device.DeviceType)) })
	}
	for _, f := range fields {
		if err := f(); err != nil {
			return nil, fmt.Errorf("auction: notification: %w", err)
		}
	}

	return &BidContext{
		Bid:              bid,
		ImpID:            bid.ImpID,
		OriginalBidPrice: bid.Price,
		BidEventID:       bidEventID,
		Notification:     u,
		ShapingFeatures:  features,
	}, nil
}

// stageNotificationInject enforces spec.md §4.2 stage 19: finalise each
// surviving bid's DataUrl, stamp its macros, swap in our own burl, and park
// the partner's original notice urls in the NotificationCache.
func stageNotificationInject(ctx context.Context, c *AuctionContext) error {
	deps := depsFromContext(ctx)
	req := c.Req()

	for _, bidder := range c.Bidders() {
		for _, callout := range bidder.Callouts {
			if callout.Response == nil {
				continue
			}
			for _, bc := range callout.Response.Bids {
				if bc.FilterReason != "" || bc.Notification == nil {
					continue
				}
				injectOne(ctx, deps, req, c, bc)
			}
		}
	}
	return nil
}

func injectOne(ctx context.Context, deps *Dependencies, req *openrtb.BidRequest, c *AuctionContext, bc *BidContext) {
	bc.Notification.Finalize()
	burl, err := bc.Notification.URL(true)
	if err != nil {
		bc.FilterReason = "notification: finalize: " + err.Error()
		return
	}

	_ = deps.Notify.Cache(ctx, bc.BidEventID, notify.NoticeUrls{
		Burl: bc.Bid.BURL,
		Lurl: bc.Bid.LURL,
	})

	bc.Bid.BURL = fillMacros(burl, req, bc)
	bc.Bid.AdM = fmt.Sprintf(pixelAdm, burl) + bc.Bid.AdM
}

// fillMacros expands the standard auction macros on our own burl; partner
// macros in adm are left untouched, they belong to the partner's markup.
func fillMacros(raw string, req *openrtb.BidRequest, bc *BidContext) string {
	repl := map[string]string{
		"${AUCTION_PRICE}":    strconv.FormatFloat(bc.Bid.Price, 'f', -1, 64),
		"${AUCTION_CURRENCY}": currencyOf(req),
		"${AUCTION_ID}":       req.ID,
		"${AUCTION_BID_ID}":   bc.Bid.ID,
		"${AUCTION_IMP_ID}":   bc.ImpID,
		"${AUCTION_MBR}":      "1",
	}
	out := raw
	for macro, value := range repl {
		out = strings.ReplaceAll(out, macro, value)
	}
	return out
}

func currencyOf(req *openrtb.BidRequest) string {
	if len(req.Cur) > 0 {
		return req.Cur[0]
	}
	return "USD"
}
