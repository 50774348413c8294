package counterstore

import (
	"database/sql"
	"time"
)

// NewPublisherCounters builds the store the auction pipeline's finalisers
// use for Dependencies.PublisherCounters, keyed on (pubid, status) per
// the labels finalizeCounters supplies. Grounded on original_source's
// PublisherCounterStore, simplified to a single label-tuple buffer since
// this exchange's spec only requires request/status rollups, not the
// original's full per-format revenue breakdown.
func NewPublisherCounters(db *sql.DB, flushInterval time.Duration) *Store {
	return New(db, "publisher_counters", []string{"pubid", "status"}, flushInterval)
}

// NewDemandCounters builds the store used for Dependencies.DemandCounters,
// keyed on (endpoint, bidder, skip) per the labels finalizeCounters
// supplies. Grounded on original_source's DemandCounterStore.
func NewDemandCounters(db *sql.DB, flushInterval time.Duration) *Store {
	return New(db, "demand_counters", []string{"endpoint", "bidder", "skip"}, flushInterval)
}
