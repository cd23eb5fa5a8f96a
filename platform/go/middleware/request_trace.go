package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformauth "github.com/vendica/vendica-platform/platform/go/auth"
	platformlogging "github.com/vendica/vendica-platform/platform/go/logging"
	"github.com/vendica/vendica-platform/platform/go/requesttrace"
	"github.com/vendica/vendica-platform/platform/go/resolver"
)

// RequestTrace populates the context with request-scoped AuditInfo so services
// and repositories can stamp audit fields. It must run after the auth
// middleware (so account credentials are available) and after the hostname
// resolver (so the routed store can be recorded).
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := platformlogging.FromRequest(r, nil)
		requestID, _ := r.Context().Value(middleware.RequestIDKey).(string)

		var audit requesttrace.AuditInfo
		if creds, ok := platformauth.UserFromContext(r.Context()); ok && creds != nil {
			var err error
			audit, err = requesttrace.FromCredentials(creds, requestID)
			if err != nil {
				if logger != nil {
					logger.Error("build audit info from credentials", zap.Error(err))
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		} else {
			audit = requesttrace.Anonymous(requestID)
		}

		if sc := resolver.FromContext(r.Context()); sc != nil {
			audit = audit.WithStore(sc.StoreID.String())
		}

		ctx := requesttrace.IntoContext(r.Context(), audit)
		if logger != nil {
			fields := []zap.Field{zap.String("actor_kind", string(audit.ActorKind))}
			if audit.AccountID != nil && *audit.AccountID != "" {
				fields = append(fields, zap.String("account_id", *audit.AccountID))
			}
			if audit.StoreID != nil {
				fields = append(fields, zap.String("store_id", *audit.StoreID))
			}
			logger = logger.With(fields...)
			ctx = platformlogging.WithLogger(ctx, logger)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
