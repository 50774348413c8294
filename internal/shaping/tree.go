package shaping

import (
	"strings"
	"sync"
	"time"
)

// Input is one training observation fed into a handler.
type Input struct {
	Auctions        int64
	Bids            int64
	BidValueCPM     float64
	Impressions     int64
	RevenueGrossCPM float64
	RevenueCostCPM  float64
}

// handler accumulates one feature-prefix's running totals under its own
// lock, per the spec's "training uses fine-grained locks per handler".
type handler struct {
	mu sync.Mutex

	auctions        int64
	bids            int64
	bidValueCPM     float64
	impressions     int64
	revenueGrossCPM float64
	revenueCostCPM  float64

	lastSeen time.Time
}

func newHandler() *handler {
	return &handler{lastSeen: time.Now()}
}

func (h *handler) apply(in Input) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.auctions += in.Auctions
	h.bids += in.Bids
	h.bidValueCPM += in.BidValueCPM
	h.impressions += in.Impressions
	h.revenueGrossCPM += in.RevenueGrossCPM
	h.revenueCostCPM += in.RevenueCostCPM
	h.lastSeen = time.Now()
}

// snapshot is a point-in-time, lock-free copy used for metric/prediction math.
type snapshot struct {
	auctions        int64
	bids            int64
	bidValueCPM     float64
	impressions     int64
	revenueGrossCPM float64
	revenueCostCPM  float64
}

func (h *handler) snapshot() snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return snapshot{
		auctions:        h.auctions,
		bids:            h.bids,
		bidValueCPM:     h.bidValueCPM,
		impressions:     h.impressions,
		revenueGrossCPM: h.revenueGrossCPM,
		revenueCostCPM:  h.revenueCostCPM,
	}
}

func (h *handler) idleSince() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Since(h.lastSeen)
}

// Metric is the prediction target a shaper is trained against.
type Metric string

const (
	MetricRpm      Metric = "rpm"
	MetricFillRate Metric = "fillrate"
	MetricBidRate  Metric = "bidrate"
)

// Value computes the metric from a handler snapshot. Rpm and FillRate/
// BidRate share the same "per auction" denominator per spec §4.5.
func (s snapshot) Value(m Metric) float64 {
	if s.auctions == 0 {
		return 0
	}
	switch m {
	case MetricRpm:
		return s.revenueGrossCPM * 1000 / float64(s.auctions)
	case MetricFillRate:
		return float64(s.impressions) / float64(s.auctions)
	case MetricBidRate:
		return float64(s.bids) / float64(s.auctions)
	default:
		return 0
	}
}

// Prediction is what LogicTree.Predict returns: the snapshot used plus
// whether it came from the full-depth handler (all requested features
// matched) or a shallower fallback prefix.
type Prediction struct {
	snapshot
	FullDepth bool
}

// LogicTree stores one handler per observed feature-vector prefix and
// supports training at full depth, prediction with shallow fallback, and
// idle pruning.
type LogicTree struct {
	mu                 sync.RWMutex
	handlers           map[string]*handler
	minDecisionAuctions int64
	segmentTTL         time.Duration
}

func NewLogicTree(minDecisionAuctions int64, segmentTTL time.Duration) *LogicTree {
	return &LogicTree{
		handlers:            make(map[string]*handler),
		minDecisionAuctions: minDecisionAuctions,
		segmentTTL:          segmentTTL,
	}
}

func prefixKey(v Vector, depth int) string {
	if depth <= 0 {
		return ""
	}
	if depth > len(v) {
		depth = len(v)
	}
	return strings.Join([]string(v[:depth]), "\x1f")
}

// Train rolls the observation up through every prefix of features, from
// the root to the full-depth path, creating handlers on first observation
// of a given prefix. This is what lets Predict fall back to a shallower,
// better-populated segment when the full-depth one is still cold.
func (t *LogicTree) Train(features Vector, in Input) {
	for depth := 0; depth <= len(features); depth++ {
		key := prefixKey(features, depth)
		t.getOrCreate(key).apply(in)
	}
}

func (t *LogicTree) getOrCreate(key string) *handler {
	t.mu.RLock()
	h, ok := t.handlers[key]
	t.mu.RUnlock()
	if ok {
		return h
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok = t.handlers[key]; ok {
		return h
	}
	h = newHandler()
	t.handlers[key] = h
	return h
}

// Predict returns the deepest handler (by feature-vector prefix) whose
// auction count meets minDecisionAuctions, falling back to shallower
// prefixes; returns ok=false if even the root lacks sufficient data.
func (t *LogicTree) Predict(features Vector) (Prediction, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for depth := len(features); depth >= 0; depth-- {
		key := prefixKey(features, depth)
		h, ok := t.handlers[key]
		if !ok {
			continue
		}
		snap := h.snapshot()
		if snap.auctions >= t.minDecisionAuctions {
			return Prediction{snapshot: snap, FullDepth: depth == len(features)}, true
		}
	}
	return Prediction{}, false
}

// Prune discards handlers idle beyond segmentTTL.
func (t *LogicTree) Prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for key, h := range t.handlers {
		if h.idleSince() > t.segmentTTL {
			delete(t.handlers, key)
			removed++
		}
	}
	return removed
}

// Size reports how many handler prefixes are currently tracked.
func (t *LogicTree) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handlers)
}
