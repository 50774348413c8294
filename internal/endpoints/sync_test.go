package endpoints

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/nexusrtb/catalyst/internal/catalog"
	"github.com/nexusrtb/catalyst/internal/usersync"
	"github.com/nexusrtb/catalyst/pkg/redis"
)

func newUsersyncStore(t *testing.T) *usersync.Store {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	client, err := redis.New("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("redis.New: %v", err)
	}
	return usersync.NewStore(client)
}

func TestOutSyncHandlerRequiresPubID(t *testing.T) {
	handler := NewOutSyncHandler(catalog.NewPublisherManager(), catalog.NewDemandManager(), "https://ex.example.com")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sync", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing pubid, got %d", w.Code)
	}
}

func TestOutSyncHandlerRejectsUnknownPublisher(t *testing.T) {
	handler := NewOutSyncHandler(catalog.NewPublisherManager(), catalog.NewDemandManager(), "https://ex.example.com")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sync?pubid=nope", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown publisher, got %d", w.Code)
	}
}

func TestOutSyncHandlerReturns204WithNoPartners(t *testing.T) {
	pubs := catalog.NewPublisherManager()
	pubs.Apply(catalog.PublisherEvent{Kind: catalog.Added, Publisher: catalog.Publisher{PublisherID: "pub1", Status: "active"}})

	handler := NewOutSyncHandler(pubs, catalog.NewDemandManager(), "https://ex.example.com")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sync?pubid=pub1", nil))

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 when no demand partners have a sync url, got %d", w.Code)
	}
}

func TestOutSyncHandlerRendersPixelsAndSetsRXID(t *testing.T) {
	pubs := catalog.NewPublisherManager()
	pubs.Apply(catalog.PublisherEvent{Kind: catalog.Added, Publisher: catalog.Publisher{PublisherID: "pub1", Status: "active"}})

	demand := catalog.NewDemandManager()
	demand.Apply(catalog.BidderEvent{Kind: catalog.Added, Bidder: catalog.Bidder{
		Code:        "acme",
		Enabled:     true,
		UserSyncURL: "https://sync.acme.example/s?redir={{redirect_url}}",
	}})

	handler := NewOutSyncHandler(pubs, demand, "https://ex.example.com")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sync?pubid=pub1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Fatalf("expected html content-type, got %q", ct)
	}
	if got := w.Body.String(); !strings.Contains(got, "sync.acme.example") {
		t.Fatalf("expected a pixel for acme, got body %q", got)
	}

	var sawRXID bool
	for _, c := range w.Result().Cookies() {
		if c.Name == usersync.RXIDCookieName {
			sawRXID = true
		}
	}
	if !sawRXID {
		t.Fatal("expected an rxid cookie to be set")
	}
}

func TestInSyncHandlerRequiresRXIDCookie(t *testing.T) {
	handler := NewInSyncHandler(newUsersyncStore(t))
	req := httptest.NewRequest(http.MethodGet, "/sync/in/acme?rid=remote-1", nil)
	req.SetPathValue("partner", "acme")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without an rxid cookie, got %d", w.Code)
	}
}

func TestInSyncHandlerRecordsPartnerUID(t *testing.T) {
	store := newUsersyncStore(t)
	handler := NewInSyncHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/sync/in/acme?rid=remote-1", nil)
	req.SetPathValue("partner", "acme")
	req.AddCookie(&http.Cookie{Name: usersync.RXIDCookieName, Value: usersync.NewRXID()})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}

	localID := usersync.RXIDFromRequest(req)
	got, ok, err := store.Lookup(req.Context(), localID, "acme")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok || got != "remote-1" {
		t.Fatalf("expected recorded uid remote-1, got %q ok=%v", got, ok)
	}
}
