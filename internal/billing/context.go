package billing

import (
	"github.com/nexusrtb/catalyst/internal/dataurl"
	"github.com/nexusrtb/catalyst/internal/notify"
)

// EventContext is the per-hit state threaded through the EventPipeline,
// analogous to original_source's BillingEventContext. Each stage fills in
// one more field; later stages read what earlier ones produced.
type EventContext struct {
	// RawURL is the full event URL as received on the billing endpoint.
	RawURL string

	// URL is RawURL reparsed into typed fields. Set by ParseDataUrl.
	URL *dataurl.DataUrl

	// Event is URL's fields decoded into a BillingEvent. Set by
	// ExtractBillingEvent.
	Event *BillingEvent

	// Notice is the partner's original burl/lurl, recovered from the
	// NotificationCache. Set by CacheNoticeUrlsValidation; absent (Found
	// false) means the hit is a duplicate or the entry already expired.
	Notice      notify.NoticeUrls
	NoticeFound bool

	// Aborted records why FireDemandBurl and earlier stages gave up, for
	// logging; it never changes pipeline control flow by itself.
	Aborted string
}

// NewEventContext starts a context for one inbound billing hit.
func NewEventContext(rawURL string) *EventContext {
	return &EventContext{RawURL: rawURL}
}
