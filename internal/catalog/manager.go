package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/nexusrtb/catalyst/pkg/logger"
)

// DemandManager holds the live, queryable bidder catalogue. It subscribes to
// one BidderProvider's change stream and applies events as they arrive;
// readers call Snapshot/Get while a background goroutine keeps the
// catalogue current.
type DemandManager struct {
	mu       sync.RWMutex
	bidders  map[string]Bidder
	subs     []chan<- BidderEvent
	subsMu   sync.Mutex
}

func NewDemandManager() *DemandManager {
	return &DemandManager{bidders: make(map[string]Bidder)}
}

// Subscribe registers ch to receive every applied change event. Subscribers
// must keep reading; the manager does not drop slow consumers, so callers
// should size ch generously or drain it promptly.
func (m *DemandManager) Subscribe(ch chan<- BidderEvent) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	m.subs = append(m.subs, ch)
}

// Apply updates the in-memory catalogue for a single event and notifies
// subscribers. Safe for concurrent use.
func (m *DemandManager) Apply(ev BidderEvent) {
	m.mu.Lock()
	switch ev.Kind {
	case Added, Modified:
		m.bidders[ev.Bidder.Code] = ev.Bidder
	case Removed:
		delete(m.bidders, ev.Bidder.Code)
	}
	m.mu.Unlock()

	m.subsMu.Lock()
	subs := append([]chan<- BidderEvent(nil), m.subs...)
	m.subsMu.Unlock()
	for _, ch := range subs {
		ch <- ev
	}
}

// Get returns a single bidder by code.
func (m *DemandManager) Get(code string) (Bidder, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bidders[code]
	return b, ok
}

// Snapshot returns every enabled bidder currently known.
func (m *DemandManager) Snapshot() []Bidder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Bidder, 0, len(m.bidders))
	for _, b := range m.bidders {
		if b.Enabled {
			out = append(out, b)
		}
	}
	return out
}

// Count returns how many enabled bidders are currently known, used to size
// QPS token buckets and histograms.
func (m *DemandManager) Count() int {
	return len(m.Snapshot())
}

// PublisherManager is the publisher-side analogue of DemandManager.
type PublisherManager struct {
	mu         sync.RWMutex
	publishers map[string]Publisher
	subsMu     sync.Mutex
	subs       []chan<- PublisherEvent
}

func NewPublisherManager() *PublisherManager {
	return &PublisherManager{publishers: make(map[string]Publisher)}
}

func (m *PublisherManager) Subscribe(ch chan<- PublisherEvent) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	m.subs = append(m.subs, ch)
}

func (m *PublisherManager) Apply(ev PublisherEvent) {
	m.mu.Lock()
	switch ev.Kind {
	case Added, Modified:
		m.publishers[ev.Publisher.PublisherID] = ev.Publisher
	case Removed:
		delete(m.publishers, ev.Publisher.PublisherID)
	}
	m.mu.Unlock()

	m.subsMu.Lock()
	subs := append([]chan<- PublisherEvent(nil), m.subs...)
	m.subsMu.Unlock()
	for _, ch := range subs {
		ch <- ev
	}
}

func (m *PublisherManager) Get(publisherID string) (Publisher, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.publishers[publisherID]
	return p, ok
}

func (m *PublisherManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.publishers)
}

// RunBidderProvider pumps events from provider into manager until ctx ends,
// logging provider failures but never exiting on them (the provider itself
// retries internally on its next poll tick).
func RunBidderProvider(ctx context.Context, provider BidderProvider, interval time.Duration, manager *DemandManager) {
	changes := make(chan BidderEvent, 64)
	go func() {
		if err := provider.WatchBidders(ctx, interval, changes); err != nil && ctx.Err() == nil {
			logger.Log.Error().Err(err).Str("provider", provider.Name()).Msg("bidder provider stopped")
		}
	}()
	for {
		select {
		case ev := <-changes:
			manager.Apply(ev)
		case <-ctx.Done():
			return
		}
	}
}

// RunPublisherProvider is the publisher-side analogue of RunBidderProvider.
func RunPublisherProvider(ctx context.Context, provider PublisherProvider, interval time.Duration, manager *PublisherManager) {
	changes := make(chan PublisherEvent, 64)
	go func() {
		if err := provider.WatchPublishers(ctx, interval, changes); err != nil && ctx.Err() == nil {
			logger.Log.Error().Err(err).Str("provider", provider.Name()).Msg("publisher provider stopped")
		}
	}()
	for {
		select {
		case ev := <-changes:
			manager.Apply(ev)
		case <-ctx.Done():
			return
		}
	}
}
