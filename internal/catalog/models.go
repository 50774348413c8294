// Package catalog holds the live demand (bidder/endpoint) and publisher
// catalogues consumed by the auction pipeline, kept current by one or more
// Providers that poll an underlying source and emit change events.
package catalog

import (
	"math"
	"time"
)

// ShapingMode selects whether an endpoint participates in traffic shaping.
type ShapingMode int

const (
	ShapingNone ShapingMode = iota
	ShapingTree
)

// ShapingConfig is an endpoint's traffic-shaping policy. Only meaningful
// when Mode == ShapingTree.
type ShapingConfig struct {
	Mode            ShapingMode
	ControlPercent  float64  // qps_explore = TargetQPS * ControlPercent / 100
	Metric          string   // "rpm" | "fillrate" | "bidrate"
	Features        []string // ordered feature names, deepest-first prefix tree
	MinTargetMetric float64
}

// Targeting restricts which requests an endpoint is eligible for.
type Targeting struct {
	Geos              []string // uppercased ISO country codes; empty or "*" = any
	Channels          []string // "site" | "app" | "dooh"; empty = any
	DeviceCategories  []string // "mobile" | "desktop" | "connected" | "dooh"; empty = any
	Formats           []string // "banner" | "video" | "native" | "audio"; empty = any
	PublisherAllowSet []string // optional allow-list of publisher ids; empty = any
}

// Endpoint is one callable destination for a bidder: a bidder can have
// several endpoints (e.g. banner vs video) but every endpoint belongs to
// exactly one Bidder.
type Endpoint struct {
	ID         string
	BidderCode string
	URL        string
	TimeoutMs  int
	Protocol   string // "json" | "protobuf"
	Transport  string // "h1" | "h2c" | "h2"
	Gzip       bool
	TargetQPS  float64
	Targeting  Targeting
	Shaping    ShapingConfig
	Enabled    bool
}

// Bidder is a demand-side partner the exchange can send callouts to.
type Bidder struct {
	ID               string
	Code             string
	Name             string
	Endpoints        []Endpoint
	CompressRequests bool // compression preference, applied when an endpoint doesn't override it
	MultiImpSupport  bool
	UserSyncURL      string
	SupportsBanner   bool
	SupportsVideo    bool
	SupportsNative   bool
	SupportsAudio    bool
	GVLVendorID      *int
	Enabled          bool
	Status           string
	UpdatedAt        time.Time
}

// PublisherKind is how a publisher participates in the supply chain.
type PublisherKind int

const (
	KindPublisher PublisherKind = iota
	KindIntermediary
	KindBoth
)

// Publisher is a supply-side seller the exchange accepts requests from.
type Publisher struct {
	ID             string
	PublisherID    string
	Name           string
	Domain         string
	Kind           PublisherKind
	AllowedDomains string
	BidderParams   map[string]interface{}
	BidMultiplier  float64 // revenue-share multiplier; bid is divided by this
	SyncURL        string
	Status         string
	UpdatedAt      time.Time
}

// MarginPercent derives the integer take-rate percent implied by
// BidMultiplier (bid' = bid / multiplier == bid * (1 - margin/100)).
func (p Publisher) MarginPercent() int {
	if p.BidMultiplier <= 0 {
		return 0
	}
	margin := (1 - 1/p.BidMultiplier) * 100
	return int(math.Round(margin))
}

// IsEnabled reports whether this publisher currently accepts traffic.
func (p Publisher) IsEnabled() bool {
	return p.Status == "active"
}

// EventKind is the nature of a catalogue change.
type EventKind int

const (
	Added EventKind = iota
	Modified
	Removed
)

func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// BidderEvent describes a single bidder's change.
type BidderEvent struct {
	Kind   EventKind
	Bidder Bidder
}

// PublisherEvent describes a single publisher's change.
type PublisherEvent struct {
	Kind      EventKind
	Publisher Publisher
}
