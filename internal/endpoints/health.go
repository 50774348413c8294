package endpoints

import "net/http"

// HealthHandler answers the liveness probe at GET /hi: no dependencies, no
// auth, just proof the process is accepting connections.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // best-effort write to a probe response
	_, _ = w.Write([]byte("hi!"))
}
