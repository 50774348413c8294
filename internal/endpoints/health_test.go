package endpoints

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthHandlerRespondsHi(t *testing.T) {
	handler := NewHealthHandler()
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/hi", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != "hi!" {
		t.Fatalf("expected body %q, got %q", "hi!", got)
	}
}
