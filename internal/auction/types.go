// Package auction implements the staged per-request AuctionPipeline: the
// hard path that validates, enriches, matches, shapes, rate-limits, fans
// out to demand, and settles a single first-price response under a hard
// wall-clock deadline.
package auction

import (
	"sync"
	"time"

	"github.com/nexusrtb/catalyst/internal/catalog"
	"github.com/nexusrtb/catalyst/internal/dataurl"
	"github.com/nexusrtb/catalyst/internal/demandclient"
	"github.com/nexusrtb/catalyst/internal/openrtb"
	"github.com/nexusrtb/catalyst/internal/shaping"
)

// SkipReason explains why a BidderCallout never went out, or why its
// response was excluded from settlement.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipTrafficShaping  SkipReason = "TrafficShaping"
	SkipQpsLimit        SkipReason = "QpsLimit"
	SkipEndpointRotation SkipReason = "EndpointRotation"
)

// IdentityContext records how (and whether) the request carried a local
// user id into the auction, set once by the identity (local) stage.
type IdentityContext struct {
	LocalUID string
	Found    bool
}

// BidContext wraps one decoded bid with the accounting fields the
// settlement and notification stages attach to it.
type BidContext struct {
	Bid               *openrtb.Bid
	ImpID             string
	OriginalBidPrice  float64
	ReducedBidPrice   float64
	BidEventID        string
	Notification      *dataurl.DataUrl
	FilterReason      string
	ShapingFeatures   shaping.Vector
}

// BidResponseContext is the decoded response from one callout plus the
// per-bid accounting contexts built during notification/settlement.
type BidResponseContext struct {
	Response *openrtb.BidResponse
	Bids     []*BidContext
}

// BidderCallout is one cloned request sent (or not sent) to one endpoint.
// skip_reason/response are set-once fields: each is written by exactly one
// stage, and no two stages ever write the same callout concurrently.
type BidderCallout struct {
	Endpoint     catalog.Endpoint
	Request      *openrtb.BidRequest
	SkipReason   SkipReason
	Shaper       bool // endpoint carries a live shaper ref (Manager keys by endpoint id)
	Decision     shaping.Decision
	HasDecision  bool

	Latency  time.Duration
	State    demandclient.State
	Response *BidResponseContext
	NBR      *int
	Err      error
}

func (c *BidderCallout) skip(reason SkipReason) bool {
	if c.SkipReason != SkipNone {
		return true
	}
	c.SkipReason = reason
	return reason != SkipNone
}

// BidderContext is one bidder and the callouts built for its surviving
// endpoints.
type BidderContext struct {
	Bidder   catalog.Bidder
	Callouts []*BidderCallout
	IsTest   bool
}

// Config holds the auction pipeline's tunables that are not themselves
// sourced from the catalogue.
type Config struct {
	SchainASI       string
	SchainName      string
	SchainMaxHops   int
	EventDomain     string
	BillingPath     string
	MinFloor        float64
	ForceBidEnabled bool
}

// AuctionContext is the pipeline's per-request, exclusively-owned state.
// req is guarded by a read-write lock; only device-lookup, identity
// (local), and floors take the write guard, and by construction these
// stages never run concurrently with each other. schain-append and
// auction-id-assign write each callout's own request, not req.
// bidders is guarded by a single mutex that stages acquire serially.
type AuctionContext struct {
	OriginalAuctionID string
	EventID           string
	PubID             string
	SourceTag         string

	reqMu sync.RWMutex
	req   *openrtb.BidRequest

	Publisher catalog.Publisher
	HasPublisher bool
	Identity  IdentityContext

	bidMu   sync.Mutex
	bidders []*BidderContext

	BlockReason openrtb.NoBidReason
	Blocked     bool

	Cookies map[string]string
	Res     *openrtb.BidResponse

	TMaxDeadline time.Duration
	StartedAt    time.Time
}

func NewContext(req *openrtb.BidRequest, pubid string, cookies map[string]string, eventID string) *AuctionContext {
	return &AuctionContext{
		OriginalAuctionID: req.ID,
		EventID:           eventID,
		PubID:             pubid,
		req:               req,
		Cookies:           cookies,
		StartedAt:         time.Now(),
	}
}

// Req returns a read-only view of the request. Callers must not retain the
// pointer across a call that might take the write guard.
func (c *AuctionContext) Req() *openrtb.BidRequest {
	c.reqMu.RLock()
	defer c.reqMu.RUnlock()
	return c.req
}

// MutateReq takes the write guard and hands fn the request to mutate in
// place. fn must not call back into Req()/MutateReq or it will deadlock.
func (c *AuctionContext) MutateReq(fn func(*openrtb.BidRequest)) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	fn(c.req)
}

// Abort sets the set-once block reason; the first call wins.
func (c *AuctionContext) Abort(reason openrtb.NoBidReason) {
	if c.Blocked {
		return
	}
	c.Blocked = true
	c.BlockReason = reason
}

// Bidders returns the current bidder-context list under the bidders mutex.
func (c *AuctionContext) Bidders() []*BidderContext {
	c.bidMu.Lock()
	defer c.bidMu.Unlock()
	return c.bidders
}

func (c *AuctionContext) setBidders(b []*BidderContext) {
	c.bidMu.Lock()
	defer c.bidMu.Unlock()
	c.bidders = b
}

func (c *AuctionContext) appendBidder(b *BidderContext) {
	c.bidMu.Lock()
	defer c.bidMu.Unlock()
	c.bidders = append(c.bidders, b)
}

// AllCallouts flattens every bidder's callouts, for stages that need to
// operate across the whole fan-out regardless of which bidder owns them.
func (c *AuctionContext) AllCallouts() []*BidderCallout {
	var out []*BidderCallout
	for _, b := range c.Bidders() {
		out = append(out, b.Callouts...)
	}
	return out
}
