package auction

import (
	"context"
	"fmt"
	"strings"

	"github.com/nexusrtb/catalyst/internal/openrtb"
)

// ValidationError names the field and reason a request failed stage 1,
// grounded on the teacher's RequestValidationError shape.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("auction: validate: %s: %s", e.Field, e.Reason)
}

// stageValidate enforces spec.md §4.2 stage 1. A failure aborts with the
// precise no-bid reason the field maps to, rather than a generic one.
func stageValidate(_ context.Context, c *AuctionContext) error {
	req := c.Req()

	if req.ID == "" {
		c.Abort(openrtb.NoBidInvalidRequest)
		return &ValidationError{Field: "id", Reason: "missing request id"}
	}
	if req.Device == nil || req.Device.UA == "" {
		c.Abort(openrtb.NoBidMissingDeviceDetails)
		return &ValidationError{Field: "device.ua", Reason: "missing device or user agent"}
	}
	if req.Device.IP == "" && req.Device.IPv6 == "" {
		c.Abort(openrtb.NoBidMissingDeviceDetails)
		return &ValidationError{Field: "device.ip", Reason: "neither ip nor ipv6 present"}
	}
	if len(req.Imp) == 0 {
		c.Abort(openrtb.NoBidInvalidRequest)
		return &ValidationError{Field: "imp", Reason: "at least one impression is required"}
	}

	channels := 0
	if req.Site != nil {
		channels++
	}
	if req.App != nil {
		channels++
	}
	if req.DOOH != nil {
		channels++
	}
	if channels != 1 {
		c.Abort(openrtb.NoBidInvalidRequest)
		return &ValidationError{Field: "site/app/dooh", Reason: "exactly one distribution channel is required"}
	}

	if req.Site != nil && req.Site.Domain == "" && req.Site.Page == "" {
		c.Abort(openrtb.NoBidMissingDomainOrBundle)
		return &ValidationError{Field: "site.domain", Reason: "site requires domain or page"}
	}
	if req.App != nil && req.App.Bundle == "" {
		c.Abort(openrtb.NoBidMissingDomainOrBundle)
		return &ValidationError{Field: "app.bundle", Reason: "app requires bundle"}
	}

	if req.TMax > 0 && req.TMax < 50 {
		c.Abort(openrtb.NoBidInsufficientAuctionTime)
		return &ValidationError{Field: "tmax", Reason: "tmax below the 50ms floor"}
	}

	return nil
}

// stageJunkFilter enforces spec.md §4.2 stage 2.
func stageJunkFilter(_ context.Context, c *AuctionContext) error {
	req := c.Req()
	if req.App == nil || req.App.Bundle == "" {
		return nil
	}
	bundle := strings.ToLower(req.App.Bundle)
	for _, s := range junkBundleSubstrings {
		if strings.Contains(bundle, s) {
			c.Abort(openrtb.NoBidInvalidRequest)
			return &ValidationError{Field: "app.bundle", Reason: "junk bundle: " + bundle}
		}
	}
	for _, p := range junkBundlePrefixes {
		if strings.HasPrefix(bundle, p) {
			c.Abort(openrtb.NoBidInvalidRequest)
			return &ValidationError{Field: "app.bundle", Reason: "junk bundle prefix: " + bundle}
		}
	}
	return nil
}
