package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/nexusrtb/catalyst/internal/notify"
	"github.com/nexusrtb/catalyst/internal/shaping"
)

// Dependencies bundles the EventPipeline's collaborators. One Dependencies
// is shared process-wide; EventContext is per-hit.
type Dependencies struct {
	Notify  *notify.Cache
	Shaping *shaping.Manager
	Metrics *Metrics
	HTTP    *http.Client
}

type depsKey struct{}

func withDeps(ctx context.Context, deps *Dependencies) context.Context {
	return context.WithValue(ctx, depsKey{}, deps)
}

func depsFromContext(ctx context.Context) *Dependencies {
	d, _ := ctx.Value(depsKey{}).(*Dependencies)
	return d
}

func httpClientOf(deps *Dependencies) *http.Client {
	if deps != nil && deps.HTTP != nil {
		return deps.HTTP
	}
	return &http.Client{Timeout: 5 * time.Second}
}
