// Package endpoints provides HTTP endpoint handlers
package endpoints

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/rs/zerolog/log"

	"github.com/nexusrtb/catalyst/internal/auction"
	"github.com/nexusrtb/catalyst/internal/openrtb"
	"github.com/nexusrtb/catalyst/internal/usersync"
	"github.com/nexusrtb/catalyst/pkg/logger"
)

// maxRequestBodySize limits request body reads to prevent OOM attacks (1MB)
const maxRequestBodySize = 1024 * 1024

// Context key for authenticated publisher ID (set by auth middleware)
type contextKey string

const publisherIDContextKey contextKey = "publisher_id"

// SetPublisherID sets the authenticated publisher ID in request context
// This should only be called by auth middleware after validating the API key
func SetPublisherID(ctx context.Context, publisherID string) context.Context {
	return context.WithValue(ctx, publisherIDContextKey, publisherID)
}

// GetPublisherID retrieves the authenticated publisher ID from context
func GetPublisherID(ctx context.Context) (string, bool) {
	publisherID, ok := ctx.Value(publisherIDContextKey).(string)
	return publisherID, ok && publisherID != ""
}

// BidRequestHandler handles POST /br: the exchange's single auction
// entrypoint. Any request that is a POST with a readable, valid bid request
// is answered 200, so that a demand-side failure never surfaces as anything
// other than a no-bid to the publisher; other methods get 405 and a
// malformed or invalid body gets 400.
type BidRequestHandler struct {
	deps *auction.Dependencies
}

// NewBidRequestHandler creates a new /br handler bound to the auction
// pipeline's shared Dependencies.
func NewBidRequestHandler(deps *auction.Dependencies) *BidRequestHandler {
	return &BidRequestHandler{deps: deps}
}

// nbrEnvelope is the no-bid response body spec'd for POST /br.
type nbrEnvelope struct {
	NBR  int    `json:"nbr"`
	Desc string `json:"desc"`
}

func (h *BidRequestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var bidRequest openrtb.BidRequest
	if err := json.Unmarshal(body, &bidRequest); err != nil {
		logger.Log.Warn().Err(err).Msg("Invalid JSON in bid request")
		writeError(w, "Invalid JSON in request body", http.StatusBadRequest)
		return
	}

	if err := validateBidRequest(&bidRequest); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	pubid := requestPubID(r, &bidRequest)
	cookies := map[string]string{}
	if c, err := r.Cookie(usersync.RXIDCookieName); err == nil {
		cookies[usersync.RXIDCookieName] = c.Value
	}

	start := time.Now()
	actx, err := auction.Run(r.Context(), h.deps, &bidRequest, pubid, cookies)
	duration := time.Since(start)

	if err != nil {
		logger.Log.Error().
			Err(err).
			Str("request_id", bidRequest.ID).
			Int("imp_count", len(bidRequest.Imp)).
			Dur("duration_ms", duration).
			Msg("Auction pipeline failed")
		LogAuction(bidRequest.ID, len(bidRequest.Imp), 0, nil, duration, false, err)
		writeJSON(w, http.StatusOK, nbrEnvelope{
			NBR:  int(openrtb.NoBidTechnicalError),
			Desc: openrtb.NoBidTechnicalError.Desc(),
		})
		return
	}

	if actx.Blocked || actx.Res == nil {
		LogAuction(bidRequest.ID, len(bidRequest.Imp), 0, nil, duration, false, nil)
		writeJSON(w, http.StatusOK, nbrEnvelope{
			NBR:  int(actx.BlockReason),
			Desc: actx.BlockReason.Desc(),
		})
		return
	}

	bidCount := 0
	winningBidders := make([]string, 0)
	for _, seatBid := range actx.Res.SeatBid {
		bidCount += len(seatBid.Bid)
		if len(seatBid.Bid) > 0 && seatBid.Seat != "" {
			winningBidders = append(winningBidders, seatBid.Seat)
		}
	}

	logger.Log.Info().
		Str("request_id", bidRequest.ID).
		Int("imp_count", len(bidRequest.Imp)).
		Int("bid_count", bidCount).
		Strs("winning_bidders", winningBidders).
		Dur("duration_ms", duration).
		Msg("Auction completed")
	LogAuction(bidRequest.ID, len(bidRequest.Imp), bidCount, winningBidders, duration, true, nil)

	writeJSON(w, http.StatusOK, actx.Res)
}

// requestPubID resolves the calling publisher: the query string is the
// primary channel (POST bodies are plain OpenRTB with no single pubid
// field standardized across site/app), falling back to site.publisher.id
// or app.publisher.id when the caller omitted it.
func requestPubID(r *http.Request, req *openrtb.BidRequest) string {
	if pubid := r.URL.Query().Get("pubid"); pubid != "" {
		return pubid
	}
	if req.Site != nil && req.Site.Publisher != nil {
		return req.Site.Publisher.ID
	}
	if req.App != nil && req.App.Publisher != nil {
		return req.App.Publisher.ID
	}
	return ""
}

// validateBidRequest validates the bid request
func validateBidRequest(req *openrtb.BidRequest) error {
	if req.ID == "" {
		return &ValidationError{Field: "id", Message: "required"}
	}
	if len(req.Imp) == 0 {
		return &ValidationError{Field: "imp", Message: "at least one impression required"}
	}
	for i, imp := range req.Imp {
		idx := i
		if imp.ID == "" {
			return &ValidationError{Field: "imp[].id", Message: "required", Index: &idx}
		}
		if imp.Banner == nil && imp.Video == nil && imp.Native == nil && imp.Audio == nil {
			return &ValidationError{Field: "imp[].banner|video|native|audio", Message: "at least one media type required", Index: &idx}
		}
	}
	return nil
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
	Index   *int // nil means no index (non-array field)
}

func (e *ValidationError) Error() string {
	if e.Index != nil && *e.Index >= 0 {
		return fmt.Sprintf("%s[%d]: %s", e.Field, *e.Index, e.Message)
	}
	return e.Field + ": " + e.Message
}

// writeError writes an error response
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response body")
	}
}

// StatusHandler handles /status requests
type StatusHandler struct{}

// NewStatusHandler creates a new status handler
func NewStatusHandler() *StatusHandler {
	return &StatusHandler{}
}

// ServeHTTP handles status requests
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// BidderLister is an interface for listing bidders
type BidderLister interface {
	ListBidders() []string
}

// InfoBiddersHandler handles /info/bidders requests
type InfoBiddersHandler struct {
	registry BidderLister
}

// NewInfoBiddersHandler creates a handler that queries the registry at
// request time.
func NewInfoBiddersHandler(registry BidderLister) *InfoBiddersHandler {
	return &InfoBiddersHandler{registry: registry}
}

// ServeHTTP handles info/bidders requests
func (h *InfoBiddersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bidderSet := make(map[string]bool)
	if h.registry != nil {
		for _, bidder := range h.registry.ListBidders() {
			bidderSet[bidder] = true
		}
	}

	bidders := make([]string, 0, len(bidderSet))
	for bidder := range bidderSet {
		bidders = append(bidders, bidder)
	}

	writeJSON(w, http.StatusOK, bidders)
}
