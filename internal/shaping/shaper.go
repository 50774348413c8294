package shaping

import (
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/nexusrtb/catalyst/internal/openrtb"
)

// Outcome is the result of one traffic-shaping decision.
type Outcome string

const (
	PassedMetric      Outcome = "passed_metric"
	PassedExploratory Outcome = "passed_exploratory"
	PassedBoost       Outcome = "passed_boost"
	Blocked           Outcome = "blocked"
)

// Decision is the outcome of shaping one callout, plus enough context to
// drive the downstream training call once the auction/bid/impression is
// known.
type Decision struct {
	Outcome     Outcome
	Features    Vector
	MetricValue float64
	Threshold   float64
	FullDepth   bool
}

// Passed reports whether the callout should go out to the endpoint.
func (d Decision) Passed() bool {
	return d.Outcome != Blocked
}

// thresholdState is the once-per-second recomputed operating point for a
// shaper. qpsLimit is the endpoint's configured budget; qpsExplore is the
// slice of it reserved for exploratory traffic; qpsPassing is the
// cross-tick QPS actually achieved at the chosen threshold; qpsAvail is the
// observed last-tick QPS (total incoming rate, independent of qpsLimit).
type thresholdState struct {
	threshold  float64
	qpsLimit   float64
	qpsExplore float64
	qpsPassing float64
	qpsAvail   float64
}

// TreeShaper binds one QpsHistogram and one LogicTree to a single
// endpoint's traffic-shaping policy.
type TreeShaper struct {
	histogram *QpsHistogram
	tree      *LogicTree

	metric          Metric
	featureKinds    []string
	controlPercent  float64
	minTargetMetric float64

	state atomic.Value // thresholdState
}

// NewTreeShaper builds a shaper for one endpoint. controlPercent is the
// fraction of the endpoint's QPS budget reserved for exploratory traffic
// (the slice that always passes regardless of merit, to keep the tree's
// predictions fresh). minTargetMetric floors the learned threshold so a
// cold or badly-performing segment never demands less than this.
func NewTreeShaper(metric Metric, featureKinds []string, minDecisionAuctions int64, segmentTTL time.Duration, controlPercent, minTargetMetric float64) *TreeShaper {
	s := &TreeShaper{
		histogram:       NewQpsHistogram(),
		tree:            NewLogicTree(minDecisionAuctions, segmentTTL),
		metric:          metric,
		featureKinds:    featureKinds,
		controlPercent:  controlPercent,
		minTargetMetric: minTargetMetric,
	}
	s.state.Store(thresholdState{})
	return s
}

// CycleThreshold rolls the histogram's active tick and recomputes the
// operating point against qpsLimit (the endpoint's current per-process QPS
// budget, as Manager computes it from the endpoint's cluster-wide target and
// cluster size). Intended to run once per second per shaper.
func (s *TreeShaper) CycleThreshold(qpsLimit float64) {
	tick := s.histogram.Cycle()

	qpsExplore := s.controlPercent * qpsLimit
	budgetPassing := qpsLimit - qpsExplore
	if budgetPassing < 0 {
		budgetPassing = 0
	}

	threshold, qpsPassing := tick.ThresholdAndQPS(budgetPassing)
	if threshold < s.minTargetMetric {
		threshold = s.minTargetMetric
	}

	s.state.Store(thresholdState{
		threshold:  threshold,
		qpsLimit:   qpsLimit,
		qpsExplore: qpsExplore,
		qpsPassing: qpsPassing,
		qpsAvail:   tick.QPS(),
	})
}

// Prune discards idle LogicTree segments; intended to run every segment_ttl.
func (s *TreeShaper) Prune() int {
	return s.tree.Prune()
}

func (s *TreeShaper) currentState() thresholdState {
	return s.state.Load().(thresholdState)
}

// Decide runs the seven-step shaping algorithm for one auction against one
// endpoint: extract features, predict the segment's metric, compare against
// the learned threshold, and fall back through exploratory/boost bands
// before blocking.
func (s *TreeShaper) Decide(req *openrtb.BidRequest, pubid string) Decision {
	features := Extract(req, pubid, s.featureKinds)
	st := s.currentState()

	pred, ok := s.tree.Predict(features)
	if !ok {
		s.histogram.Observe(0)
		return Decision{Outcome: PassedExploratory, Features: features, Threshold: st.threshold}
	}

	metricValue := pred.Value(s.metric)
	s.histogram.Observe(metricValue)

	d := Decision{Features: features, MetricValue: metricValue, Threshold: st.threshold, FullDepth: pred.FullDepth}

	if metricValue >= st.threshold {
		d.Outcome = PassedMetric
		return d
	}

	if st.qpsAvail > 0 && rand.Float64() < st.qpsExplore/st.qpsAvail {
		d.Outcome = PassedExploratory
		return d
	}

	if pred.FullDepth || metricValue == 0 {
		d.Outcome = Blocked
		return d
	}

	qpsBoost := st.qpsLimit - st.qpsPassing - st.qpsExplore
	if st.qpsAvail > 0 && qpsBoost > 0 && rand.Float64() < qpsBoost/st.qpsAvail {
		d.Outcome = PassedBoost
		return d
	}

	d.Outcome = Blocked
	return d
}

// RecordAuction trains the shaper's tree with one completed auction's
// observations: one auction, plus whatever bids/impressions/revenue were
// already known at auction-settlement time. Bid and impression training
// events recorded later (on notification and on billing) use the same
// feature vector the original decision extracted.
func (s *TreeShaper) RecordAuction(features Vector, bids int64, bidValueCPM float64) {
	s.tree.Train(features, Input{Auctions: 1, Bids: bids, BidValueCPM: bidValueCPM})
}

// RecordImpression trains on a billed impression, attributing gross/cost
// revenue to the feature vector captured at decision time.
func (s *TreeShaper) RecordImpression(features Vector, revenueGrossCPM, revenueCostCPM float64) {
	s.tree.Train(features, Input{Impressions: 1, RevenueGrossCPM: revenueGrossCPM, RevenueCostCPM: revenueCostCPM})
}
