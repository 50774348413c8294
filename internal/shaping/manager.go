package shaping

import (
	"context"
	"sync"
	"time"

	"github.com/nexusrtb/catalyst/internal/catalog"
	"github.com/nexusrtb/catalyst/internal/openrtb"
)

const thresholdCycleInterval = time.Second

// entry pairs one endpoint's shaper with the per-process QPS budget it
// should be cycling against and the TTL its tree prunes on.
type entry struct {
	shaper     *TreeShaper
	segmentTTL time.Duration
	stop       chan struct{}

	mu          sync.RWMutex
	clusterQPS  float64
	clusterSize int
}

func (e *entry) targetQPS() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	size := e.clusterSize
	if size < 1 {
		size = 1
	}
	return e.clusterQPS / float64(size)
}

// Manager owns one TreeShaper per shaping-enabled endpoint, keeping them in
// sync with catalogue Added/Modified/Removed events and running each
// shaper's two background tasks: a once-per-second threshold recompute and
// a segment_ttl-interval tree prune.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry

	clusterSize int
}

func NewManager() *Manager {
	return &Manager{entries: make(map[string]*entry)}
}

// OnClusterSizeChanged updates every tracked shaper's per-process QPS
// budget; called from the cluster.Discovery subscription alongside
// qpslimiter.Limiter.OnClusterSizeChanged.
func (m *Manager) OnClusterSizeChanged(size int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		e.mu.Lock()
		e.clusterSize = size
		e.mu.Unlock()
	}
}

// Run consumes bidder catalogue events and keeps the shaper set current.
// Intended to run on a dedicated goroutine fed by catalog.DemandManager's
// subscriber channel.
func (m *Manager) Run(ctx context.Context, changes <-chan catalog.BidderEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-changes:
			if !ok {
				return
			}
			m.apply(ev)
		}
	}
}

func (m *Manager) apply(ev catalog.BidderEvent) {
	for _, ep := range ev.Bidder.Endpoints {
		switch ev.Kind {
		case catalog.Removed:
			m.remove(ep.ID)
		default:
			if !ep.Enabled || ep.Shaping.Mode != catalog.ShapingTree {
				m.remove(ep.ID)
				continue
			}
			m.upsert(ep)
		}
	}
}

func (m *Manager) upsert(ep catalog.Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	segmentTTL := 30 * time.Minute
	minAuctions := int64(200)

	if e, ok := m.entries[ep.ID]; ok {
		e.mu.Lock()
		e.clusterQPS = ep.TargetQPS
		e.mu.Unlock()
		return
	}

	e := &entry{
		shaper: NewTreeShaper(
			Metric(ep.Shaping.Metric),
			ep.Shaping.Features,
			minAuctions,
			segmentTTL,
			ep.Shaping.ControlPercent/100,
			ep.Shaping.MinTargetMetric,
		),
		segmentTTL:  segmentTTL,
		stop:        make(chan struct{}),
		clusterQPS:  ep.TargetQPS,
		clusterSize: m.clusterSize,
	}
	m.entries[ep.ID] = e
	go m.runThresholdCycle(e)
	go m.runPruneCycle(e)
}

func (m *Manager) remove(endpointID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[endpointID]; ok {
		close(e.stop)
		delete(m.entries, endpointID)
	}
}

func (m *Manager) runThresholdCycle(e *entry) {
	ticker := time.NewTicker(thresholdCycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.shaper.CycleThreshold(e.targetQPS())
		}
	}
}

func (m *Manager) runPruneCycle(e *entry) {
	ticker := time.NewTicker(e.segmentTTL)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.shaper.Prune()
		}
	}
}

// Decide runs the shaping decision for endpointID if it has an active
// shaper; ok is false for endpoints with shaping disabled, in which case
// the caller should always pass the callout through.
func (m *Manager) Decide(endpointID string, req *openrtb.BidRequest, pubid string) (Decision, bool) {
	m.mu.RLock()
	e, ok := m.entries[endpointID]
	m.mu.RUnlock()
	if !ok {
		return Decision{}, false
	}
	return e.shaper.Decide(req, pubid), true
}

// RecordAuction and RecordImpression forward training events to the named
// endpoint's shaper, if it has one.
func (m *Manager) RecordAuction(endpointID string, features Vector, bids int64, bidValueCPM float64) {
	m.mu.RLock()
	e, ok := m.entries[endpointID]
	m.mu.RUnlock()
	if ok {
		e.shaper.RecordAuction(features, bids, bidValueCPM)
	}
}

func (m *Manager) RecordImpression(endpointID string, features Vector, revenueGrossCPM, revenueCostCPM float64) {
	m.mu.RLock()
	e, ok := m.entries[endpointID]
	m.mu.RUnlock()
	if ok {
		e.shaper.RecordImpression(features, revenueGrossCPM, revenueCostCPM)
	}
}
