package billing

import (
	"context"

	"github.com/nexusrtb/catalyst/internal/pipeline"
)

// New builds the seven-stage EventPipeline, grounded on original_source's
// build_event_pipeline: parse, extract, validate against the
// NotificationCache, record raw stats, bail if expired, feed the shaper,
// then replay the partner's burl.
func New() *pipeline.Pipeline[EventContext] {
	return pipeline.New[EventContext]("billing").
		Stage("parse_data_url", stageParseDataUrl).
		Stage("extract_billing_event", stageExtractBillingEvent).
		Stage("cache_notice_urls_validation", stageCacheNoticeUrlsValidation).
		Stage("record_billing_metrics", stageRecordBillingMetrics).
		Stage("bail_if_expired", stageBailIfExpired).
		Stage("record_shaping_events", stageRecordShapingEvents).
		Stage("fire_demand_burl", stageFireDemandBurl)
}

// Run processes one inbound billing hit end to end. A non-nil error means
// the hit was rejected or expired; the caller (the billing endpoint
// handler) still answers 200/204 either way, since the demand partner
// cannot act on the outcome.
func Run(ctx context.Context, deps *Dependencies, rawURL string) (*EventContext, error) {
	c := NewEventContext(rawURL)
	ctx = withDeps(ctx, deps)

	result := pipeline.Run(ctx, New(), c)
	if !result.Ok() {
		return c, result.Err
	}
	return c, nil
}
