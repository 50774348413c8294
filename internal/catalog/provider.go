package catalog

import (
	"context"
	"time"
)

// BidderProvider loads a full bidder snapshot on demand and emits diffs
// against the previous snapshot on a polling cadence until ctx is canceled.
type BidderProvider interface {
	Name() string
	LoadBidders(ctx context.Context) ([]Bidder, error)
	WatchBidders(ctx context.Context, interval time.Duration, changes chan<- BidderEvent) error
}

// PublisherProvider is the publisher-side analogue of BidderProvider.
type PublisherProvider interface {
	Name() string
	LoadPublishers(ctx context.Context) ([]Publisher, error)
	WatchPublishers(ctx context.Context, interval time.Duration, changes chan<- PublisherEvent) error
}

// diffBidders compares an old/new snapshot keyed by bidder code and returns
// the Added/Modified/Removed events needed to bring a consumer up to date.
func diffBidders(prev, next map[string]Bidder) []BidderEvent {
	var events []BidderEvent
	for code, nb := range next {
		if ob, ok := prev[code]; !ok {
			events = append(events, BidderEvent{Kind: Added, Bidder: nb})
		} else if !bidderEqual(ob, nb) {
			events = append(events, BidderEvent{Kind: Modified, Bidder: nb})
		}
	}
	for code, ob := range prev {
		if _, ok := next[code]; !ok {
			events = append(events, BidderEvent{Kind: Removed, Bidder: ob})
		}
	}
	return events
}

func diffPublishers(prev, next map[string]Publisher) []PublisherEvent {
	var events []PublisherEvent
	for pid, np := range next {
		if op, ok := prev[pid]; !ok {
			events = append(events, PublisherEvent{Kind: Added, Publisher: np})
		} else if !publisherEqual(op, np) {
			events = append(events, PublisherEvent{Kind: Modified, Publisher: np})
		}
	}
	for pid, op := range prev {
		if _, ok := next[pid]; !ok {
			events = append(events, PublisherEvent{Kind: Removed, Publisher: op})
		}
	}
	return events
}

func bidderEqual(a, b Bidder) bool {
	if a.Enabled != b.Enabled || a.Status != b.Status || len(a.Endpoints) != len(b.Endpoints) {
		return false
	}
	for i := range a.Endpoints {
		if !endpointEqual(a.Endpoints[i], b.Endpoints[i]) {
			return false
		}
	}
	return true
}

func endpointEqual(a, b Endpoint) bool {
	return a.ID == b.ID && a.URL == b.URL && a.TimeoutMs == b.TimeoutMs &&
		a.Protocol == b.Protocol && a.Transport == b.Transport && a.Gzip == b.Gzip &&
		a.TargetQPS == b.TargetQPS && a.Enabled == b.Enabled &&
		a.Shaping.Mode == b.Shaping.Mode
}

func publisherEqual(a, b Publisher) bool {
	return a.Status == b.Status && a.BidMultiplier == b.BidMultiplier && a.AllowedDomains == b.AllowedDomains
}
