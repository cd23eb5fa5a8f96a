package requesttrace

import (
	"context"
	"errors"

	platformauth "github.com/vendica/vendica-platform/platform/go/auth"
)

type contextKey string

const (
	ctxAuditInfo contextKey = "VENDICA_REQUEST_TRACE"
)

// ActorKind represents who initiated a request.
type ActorKind string

const (
	ActorKindAccount   ActorKind = "account"
	ActorKindAnonymous ActorKind = "anonymous"
	ActorKindSystem    ActorKind = "system"
)

// AuditInfo captures request-scoped metadata needed for traceability.
// AccountID is set only when ActorKind is account. StoreID is set when the
// request arrived on a hostname that resolved to a store.
type AuditInfo struct {
	ActorKind ActorKind
	AccountID *string
	StoreID   *string
	RequestID string
}

// IntoContext stores the AuditInfo in the provided context.
func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, ctxAuditInfo, audit)
}

// FromContext extracts the AuditInfo from context, returning false when not present.
func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	v := ctx.Value(ctxAuditInfo)
	if v == nil {
		return AuditInfo{}, false
	}

	audit, ok := v.(AuditInfo)
	return audit, ok
}

// FromContextOrAnonymous returns the AuditInfo stored on the context, or an anonymous record when absent.
func FromContextOrAnonymous(ctx context.Context) AuditInfo {
	if audit, ok := FromContext(ctx); ok {
		return audit
	}
	return Anonymous("")
}

// FromCredentials builds an AuditInfo from authenticated account credentials
// and a request ID. Returns an error when creds are nil or carry no subject.
func FromCredentials(creds *platformauth.UserCredentials, requestID string) (AuditInfo, error) {
	if creds == nil {
		return AuditInfo{}, errors.New("credentials are required to build audit info")
	}
	if creds.Id == "" {
		return AuditInfo{}, errors.New("account id is required to build audit info")
	}

	return AuditInfo{
		ActorKind: ActorKindAccount,
		AccountID: &creds.Id,
		RequestID: requestID,
	}, nil
}

// WithStore returns a copy of the AuditInfo stamped with the store the
// request was routed to.
func (a AuditInfo) WithStore(storeID string) AuditInfo {
	a.StoreID = &storeID
	return a
}

// Anonymous builds an AuditInfo for unauthenticated requests where no account exists yet.
func Anonymous(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindAnonymous, RequestID: requestID}
}

// System builds an AuditInfo for background/system operations.
func System(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindSystem, RequestID: requestID}
}
