package auction

import (
	"context"
	"errors"
)

type depsKey struct{}

var errNoDeviceLookup = errors.New("auction: no device lookup configured")

// withDeps threads Dependencies through the pipeline's context.Context, the
// same way the teacher's middleware carries the authenticated publisher
// (middleware.PublisherFromContext).
func withDeps(ctx context.Context, deps *Dependencies) context.Context {
	return context.WithValue(ctx, depsKey{}, deps)
}

func depsFromContext(ctx context.Context) *Dependencies {
	d, _ := ctx.Value(depsKey{}).(*Dependencies)
	return d
}
