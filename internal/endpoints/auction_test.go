package endpoints

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nexusrtb/catalyst/internal/openrtb"
)

func validBidRequest() *openrtb.BidRequest {
	return &openrtb.BidRequest{
		ID: "test-request-1",
		Imp: []openrtb.Imp{
			{ID: "imp-1", Banner: &openrtb.Banner{W: 300, H: 250}},
		},
		Site: &openrtb.Site{ID: "site-1", Domain: "example.com"},
	}
}

func TestBidRequestHandlerMethodNotAllowed(t *testing.T) {
	handler := NewBidRequestHandler(nil)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		req := httptest.NewRequest(method, "/br", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected 405, got %d", method, w.Code)
		}
	}
}

func TestBidRequestHandlerInvalidJSON(t *testing.T) {
	handler := NewBidRequestHandler(nil)
	req := httptest.NewRequest(http.MethodPost, "/br", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestBidRequestHandlerRejectsMissingID(t *testing.T) {
	req := validBidRequest()
	req.ID = ""
	body, _ := json.Marshal(req)

	handler := NewBidRequestHandler(nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/br", bytes.NewReader(body)))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing id, got %d", w.Code)
	}
}

func TestBidRequestHandlerRejectsEmptyImp(t *testing.T) {
	req := validBidRequest()
	req.Imp = nil
	body, _ := json.Marshal(req)

	handler := NewBidRequestHandler(nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/br", bytes.NewReader(body)))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty imp, got %d", w.Code)
	}
}

func TestRequestPubIDPrefersQueryString(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/br?pubid=from-query", nil)
	br := &openrtb.BidRequest{Site: &openrtb.Site{Publisher: &openrtb.Publisher{ID: "from-site"}}}

	if got := requestPubID(req, br); got != "from-query" {
		t.Fatalf("expected query pubid to win, got %q", got)
	}
}

func TestRequestPubIDFallsBackToSitePublisher(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/br", nil)
	br := &openrtb.BidRequest{Site: &openrtb.Site{Publisher: &openrtb.Publisher{ID: "from-site"}}}

	if got := requestPubID(req, br); got != "from-site" {
		t.Fatalf("expected site.publisher.id fallback, got %q", got)
	}
}

func TestRequestPubIDFallsBackToAppPublisher(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/br", nil)
	br := &openrtb.BidRequest{App: &openrtb.App{Publisher: &openrtb.Publisher{ID: "from-app"}}}

	if got := requestPubID(req, br); got != "from-app" {
		t.Fatalf("expected app.publisher.id fallback, got %q", got)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	idx := 2
	err := &ValidationError{Field: "imp[].id", Message: "required", Index: &idx}
	if err.Error() != "imp[].id[2]: required" {
		t.Fatalf("unexpected message: %q", err.Error())
	}

	err = &ValidationError{Field: "id", Message: "required"}
	if err.Error() != "id: required" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}
