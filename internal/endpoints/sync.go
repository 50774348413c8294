package endpoints

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/nexusrtb/catalyst/internal/catalog"
	"github.com/nexusrtb/catalyst/internal/usersync"
	"github.com/nexusrtb/catalyst/pkg/logger"
)

// OutSyncHandler serves GET /sync: the out-sync entrypoint a publisher
// page embeds to let every enabled demand partner sync its own uid
// against our rxid.
type OutSyncHandler struct {
	publishers *catalog.PublisherManager
	demand     *catalog.DemandManager
	hostURL    string
}

func NewOutSyncHandler(publishers *catalog.PublisherManager, demand *catalog.DemandManager, hostURL string) *OutSyncHandler {
	return &OutSyncHandler{
		publishers: publishers,
		demand:     demand,
		hostURL:    strings.TrimSuffix(hostURL, "/"),
	}
}

func (h *OutSyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pubid := r.URL.Query().Get("pubid")
	if pubid == "" {
		http.Error(w, "missing pubid", http.StatusBadRequest)
		return
	}
	if _, ok := h.publishers.Get(pubid); !ok {
		http.Error(w, "unknown publisher", http.StatusNotFound)
		return
	}

	// rxid isn't consulted here (partner pixels carry no uid of ours to
	// substitute), but the round trip still needs it set before the
	// partner redirects back to /sync/in/{partner}.
	usersync.GetOrSetRXID(w, r)

	defaults := usersync.DefaultSyncerConfigs()
	var pixels strings.Builder
	for _, bidder := range h.demand.Snapshot() {
		if !bidder.Enabled {
			continue
		}
		cfg, ok := h.syncerConfig(bidder, defaults)
		if !ok {
			continue
		}
		info, err := usersync.NewSyncer(cfg, h.hostURL).GetSync(usersync.SyncTypeRedirect, "0", "", "")
		if err != nil {
			continue
		}
		pixels.WriteString(h.pixelFor(info))
	}

	if pixels.Len() == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // best-effort write of a sync pixel page
	_, _ = fmt.Fprintf(w, "<!DOCTYPE html><html><body>%s</body></html>", pixels.String())
}

// syncerConfig prefers the live catalogue's own sync URL, falling back to
// the built-in templates for bidders the catalogue hasn't configured one
// for yet.
func (h *OutSyncHandler) syncerConfig(bidder catalog.Bidder, defaults map[string]usersync.SyncerConfig) (usersync.SyncerConfig, bool) {
	if bidder.UserSyncURL != "" {
		return usersync.SyncerConfig{
			BidderCode:      bidder.Code,
			RedirectSyncURL: bidder.UserSyncURL,
			Enabled:         true,
		}, true
	}
	cfg, ok := defaults[strings.ToLower(bidder.Code)]
	return cfg, ok
}

func (h *OutSyncHandler) pixelFor(info *usersync.SyncInfo) string {
	if info.Type == usersync.SyncTypeIframe {
		return fmt.Sprintf(`<iframe src="%s" width="1" height="1" style="display:none" title="sync"></iframe>`, info.URL)
	}
	return fmt.Sprintf(`<img src="%s" width="1" height="1" style="display:none" alt="">`, info.URL)
}

// InSyncHandler serves GET /sync/in/{partner}: the callback a demand
// partner's own sync pixel redirects to once it knows its uid for the
// browser carrying our rxid.
type InSyncHandler struct {
	store *usersync.Store
}

func NewInSyncHandler(store *usersync.Store) *InSyncHandler {
	return &InSyncHandler{store: store}
}

func (h *InSyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	partner := r.PathValue("partner")
	remoteUID := r.URL.Query().Get("rid")

	if partner == "" || remoteUID == "" {
		http.Error(w, "missing partner or rid", http.StatusBadRequest)
		return
	}

	localID := usersync.RXIDFromRequest(r)
	if localID == "" {
		http.Error(w, "missing rxid", http.StatusBadRequest)
		return
	}

	if err := h.store.Record(r.Context(), localID, partner, remoteUID); err != nil {
		logger.Log.Debug().Err(err).Str("partner", partner).Msg("failed to record partner uid")
	}

	w.WriteHeader(http.StatusNoContent)
}
