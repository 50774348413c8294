package billing

import (
	"context"
	"fmt"

	"github.com/nexusrtb/catalyst/internal/dataurl"
)

// stageParseDataUrl is EventPipeline stage 1, grounded on
// original_source's ParseDataUrlTask: reparse the raw event URL into its
// typed query-parameter fields.
func stageParseDataUrl(_ context.Context, c *EventContext) error {
	u, err := dataurl.Parse(c.RawURL)
	if err != nil {
		return fmt.Errorf("billing: parse: %w", err)
	}
	c.URL = u
	return nil
}

// stageExtractBillingEvent is stage 2, grounded on ExtractBillingEventTask:
// decode the typed fields into a BillingEvent.
func stageExtractBillingEvent(_ context.Context, c *EventContext) error {
	event, err := extractEvent(c.URL)
	if err != nil {
		return err
	}
	c.Event = event
	return nil
}
