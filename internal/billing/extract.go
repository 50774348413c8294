package billing

import (
	"fmt"

	"github.com/nexusrtb/catalyst/internal/dataurl"
)

// extractEvent decodes u's typed fields into a BillingEvent, per
// original_source's BillingEvent::from. Every field the notification
// stages stamp on is required except shaping_key and devicetype, which
// are only present when the originating request carried the matching data.
func extractEvent(u *dataurl.DataUrl) (*BillingEvent, error) {
	bidTimestamp, err := u.GetRequiredInt(FieldBidTimestamp)
	if err != nil {
		return nil, fmt.Errorf("billing: extract: %w", err)
	}
	auctionEventID, err := u.GetRequiredString(FieldAuctionEventID)
	if err != nil {
		return nil, fmt.Errorf("billing: extract: %w", err)
	}
	bidEventID, err := u.GetRequiredString(FieldBidEventID)
	if err != nil {
		return nil, fmt.Errorf("billing: extract: %w", err)
	}
	cpmGross, err := u.GetRequiredFloat(FieldCPMGross)
	if err != nil {
		return nil, fmt.Errorf("billing: extract: %w", err)
	}
	cpmCost, err := u.GetRequiredFloat(FieldCPMCost)
	if err != nil {
		return nil, fmt.Errorf("billing: extract: %w", err)
	}
	bidderID, err := u.GetRequiredString(FieldBidderID)
	if err != nil {
		return nil, fmt.Errorf("billing: extract: %w", err)
	}
	endpointID, err := u.GetRequiredString(FieldEndpointID)
	if err != nil {
		return nil, fmt.Errorf("billing: extract: %w", err)
	}
	pubID, err := u.GetRequiredString(FieldPubID)
	if err != nil {
		return nil, fmt.Errorf("billing: extract: %w", err)
	}

	adFormat, err := u.GetRequiredString(FieldAdFormat)
	if err != nil {
		return nil, fmt.Errorf("billing: extract: %w", err)
	}
	source, err := u.GetRequiredString(FieldEventSource)
	if err != nil {
		return nil, fmt.Errorf("billing: extract: %w", err)
	}
	channel, err := u.GetRequiredString(FieldChannel)
	if err != nil {
		return nil, fmt.Errorf("billing: extract: %w", err)
	}

	return &BillingEvent{
		BidTimestamp:   bidTimestamp,
		AuctionEventID: auctionEventID,
		BidEventID:     bidEventID,
		CPMGross:       cpmGross,
		CPMCost:        cpmCost,
		BidderID:       bidderID,
		EndpointID:     endpointID,
		PubID:          pubID,
		AdFormat:       adFormat,
		EventSource:    EventSource(source),
		Channel:        channel,
		DeviceType:     optionalInt(u, FieldDeviceType),
		ShapingKey:     u.GetString(FieldShapingKey),
	}, nil
}

func optionalInt(u *dataurl.DataUrl, key string) int64 {
	raw := u.GetString(key)
	if raw == "" {
		return 0
	}
	n, err := u.GetRequiredInt(key)
	if err != nil {
		return 0
	}
	return n
}
