package resolver

import "net/http"

// Middleware resolves the request's Host header and, when it maps to a
// store, stashes the identity in the request context. Requests on unmapped
// hosts pass through untouched.
func Middleware(r *Resolver) func(http.Handler) http.Handler {
	if r == nil {
		panic("resolver: middleware requires a resolver")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if sc := r.Resolve(req.Context(), req.Host); sc != nil {
				req = req.WithContext(WithStore(req.Context(), sc))
			}
			next.ServeHTTP(w, req)
		})
	}
}
