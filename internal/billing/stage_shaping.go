package billing

import (
	"context"

	"github.com/nexusrtb/catalyst/internal/shaping"
)

// stageRecordShapingEvents is stage 6, grounded on record_shaping.rs: feed
// the impression back into the traffic shaper that made the routing
// decision, keyed by the same feature vector it decided on. A missing or
// unparseable shaping_key is not an error, it just means this endpoint had
// shaping turned off at bid time.
func stageRecordShapingEvents(ctx context.Context, c *EventContext) error {
	if c.Event.ShapingKey == "" {
		return nil
	}
	deps := depsFromContext(ctx)
	if deps == nil || deps.Shaping == nil {
		return nil
	}
	features := shaping.ParseKey(c.Event.ShapingKey)
	deps.Shaping.RecordImpression(c.Event.EndpointID, features, c.Event.CPMGross, c.Event.CPMCost)
	return nil
}
