package resolver

import "context"

type ctxKey struct{}

// WithStore attaches a resolved store identity to the context.
func WithStore(ctx context.Context, sc *StoreContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, sc)
}

// FromContext returns the store identity resolved for this request, or nil
// when the request arrived on an unmapped host.
func FromContext(ctx context.Context) *StoreContext {
	sc, _ := ctx.Value(ctxKey{}).(*StoreContext)
	return sc
}
