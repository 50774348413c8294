package endpoints

import (
	"net/http"

	"github.com/nexusrtb/catalyst/internal/billing"
	"github.com/nexusrtb/catalyst/pkg/logger"
)

// BillingHandler serves the billing event URL at GET /<billing-path>. The
// response is always 204: the demand partner firing the hit gets nothing
// back regardless of whether the event was fresh, expired, or malformed,
// so that retried or duplicated fires never change behavior on their end.
type BillingHandler struct {
	deps *billing.Dependencies
}

func NewBillingHandler(deps *billing.Dependencies) *BillingHandler {
	return &BillingHandler{deps: deps}
}

func (h *BillingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.RequestURI()

	if _, err := billing.Run(r.Context(), h.deps, rawURL); err != nil {
		logger.Log.Debug().Err(err).Str("url", rawURL).Msg("billing event not recorded")
	}

	w.WriteHeader(http.StatusNoContent)
}
