// Package billing implements the BillingEvent model and the seven-stage
// EventPipeline that turns an inbound notification hit into a recorded,
// deduplicated impression, grounded on original_source's
// app/pipeline/events/billing task chain.
package billing

// Field* name the query parameters the auction pipeline's notification
// stages stamp onto a billing DataUrl, and this package's ExtractEvent
// stage reads back off it. Both sides of the round trip import these
// constants so the two can never drift apart. The twelve fields of the
// billing event URL format use two-character keys; all are required except
// devicetype, which is only stamped when the request carried a device.
// shaping_key is also optional and keeps its full name.
const (
	FieldBidTimestamp   = "ts"
	FieldAuctionEventID = "aei"
	FieldBidEventID     = "bei"
	FieldCPMGross       = "cg"
	FieldCPMCost        = "cc"
	FieldBidderID       = "bi"
	FieldEndpointID     = "ei"
	FieldPubID          = "pi"
	FieldAdFormat       = "f"
	FieldEventSource    = "s"
	FieldChannel        = "ch"
	FieldDeviceType     = "dt"
	FieldShapingKey     = "shaping_key"
)

// EventSource is where a billing hit was fired from.
type EventSource string

const (
	EventSourceBurl    EventSource = "burl"
	EventSourceAdm     EventSource = "adm"
	EventSourceUnknown EventSource = "unknown"
)

// BillingEvent is the structured form of a billing DataUrl, per
// original_source's core::events::billing::BillingEvent.
type BillingEvent struct {
	BidTimestamp   int64
	AuctionEventID string
	BidEventID     string
	CPMGross       float64
	CPMCost        float64
	BidderID       string
	EndpointID     string
	PubID          string
	AdFormat       string
	EventSource    EventSource
	Channel        string
	DeviceType     int64
	ShapingKey     string
}
