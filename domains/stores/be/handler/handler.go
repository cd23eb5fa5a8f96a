// Package handler exposes the stores domain over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vendica/vendica-platform/domains/stores/be/provisioning"
	"github.com/vendica/vendica-platform/domains/stores/be/service"
	platformauth "github.com/vendica/vendica-platform/platform/go/auth"
	"github.com/vendica/vendica-platform/platform/go/problem"
	"github.com/vendica/vendica-platform/platform/go/router"
	"github.com/vendica/vendica-platform/platform/go/vault"
)

const (
	problemTypeValidation = "https://vendica.dev/problems/validation-error"
	problemTypeNotFound   = "https://vendica.dev/problems/not-found"
	problemTypeConflict   = "https://vendica.dev/problems/conflict"
	problemTypeLimit      = "https://vendica.dev/problems/store-limit"
	problemTypeConnection = "https://vendica.dev/problems/connection-failed"
	problemTypeInternal   = "https://vendica.dev/problems/internal-error"

	codeConnectionFailed   = "CONNECTION_FAILED"
	codeProvisioningFailed = "PROVISIONING_FAILED"
)

// Handler wires the stores service to HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("stores service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes registers the stores endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/stores", h.list)
	r.Post("/stores", h.create)
	r.Get("/stores/{storeID}", h.get)
	r.Post("/stores/{storeID}/connect-database", h.connectDatabase)
	r.Post("/stores/{storeID}/suspend", h.suspend)
}

type storeResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Slug            string    `json:"slug"`
	Status          string    `json:"status"`
	IsActive        bool      `json:"isActive"`
	SuspendedReason *string   `json:"suspendedReason,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type creditSummaryResponse struct {
	Balance         int64 `json:"balance"`
	ReservedBalance int64 `json:"reservedBalance"`
	Available       int64 `json:"available"`
}

type detailsResponse struct {
	storeResponse
	Connection *router.ConnectionInfo `json:"connection,omitempty"`
	Credits    *creditSummaryResponse `json:"credits,omitempty"`
}

type provisioningResponse struct {
	AlreadyProvisioned bool     `json:"alreadyProvisioned"`
	SchemaOK           bool     `json:"schemaOk"`
	CompletedSteps     []string `json:"completedSteps"`
	StepErrors         []string `json:"stepErrors,omitempty"`
}

type createRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

type connectRequest struct {
	DatabaseKind string            `json:"databaseKind,omitempty"`
	Credentials  vault.Credentials `json:"credentials"`
	AdminEmail   string            `json:"adminEmail,omitempty"`
	Force        bool              `json:"force,omitempty"`
}

type suspendRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	stores, err := h.svc.List(r.Context(), accountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]storeResponse, 0, len(stores))
	for _, s := range stores {
		items = append(items, toStoreResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}
	store, err := h.svc.Create(r.Context(), service.CreateInput{
		AccountID: accountID,
		Name:      req.Name,
		Slug:      req.Slug,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStoreResponse(store))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.storeID(w, r)
	if !ok {
		return
	}
	details, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := detailsResponse{
		storeResponse: toStoreResponse(details.Store),
		Connection:    details.Connection,
	}
	if details.Credits != nil {
		resp.Credits = &creditSummaryResponse{
			Balance:         details.Credits.Balance,
			ReservedBalance: details.Credits.ReservedBalance,
			Available:       details.Credits.Available,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) connectDatabase(w http.ResponseWriter, r *http.Request) {
	id, ok := h.storeID(w, r)
	if !ok {
		return
	}
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}
	res, err := h.svc.ConnectDatabase(r.Context(), id, service.ConnectInput{
		Kind:        req.DatabaseKind,
		Credentials: req.Credentials,
		AdminEmail:  req.AdminEmail,
		Force:       req.Force,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	payload := map[string]any{
		"store":        toStoreResponse(res.Store),
		"provisioning": toProvisioningResponse(res.Provisioning),
	}
	if res.Hostname != "" {
		payload["hostname"] = res.Hostname
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	id, ok := h.storeID(w, r)
	if !ok {
		return
	}
	var req suspendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}
	store, err := h.svc.Suspend(r.Context(), id, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStoreResponse(store))
}

func (h *Handler) accountID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	creds, ok := platformauth.UserFromContext(r.Context())
	if !ok || creds == nil {
		problem.Write(w, problem.Details{
			Type: problemTypeValidation, Title: "Unauthorized",
			Status: http.StatusUnauthorized, Detail: "missing credentials",
		})
		return uuid.Nil, false
	}
	id, err := uuid.Parse(creds.Id)
	if err != nil {
		problem.Write(w, problem.Details{
			Type: problemTypeValidation, Title: "Unauthorized",
			Status: http.StatusUnauthorized, Detail: "invalid account id",
		})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) storeID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "storeID"))
	if err != nil {
		h.badRequest(w, "invalid store id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) badRequest(w http.ResponseWriter, detail string) {
	problem.Write(w, problem.Details{
		Type: problemTypeValidation, Title: "Invalid request",
		Status: http.StatusBadRequest, Detail: detail,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var limitErr *service.StoreLimitError
	var connErr *service.ConnectionFailedError
	var provErr *service.ProvisioningFailedError

	switch {
	case errors.Is(err, service.ErrNotFound):
		problem.Write(w, problem.Details{
			Type: problemTypeNotFound, Title: "Not found",
			Status: http.StatusNotFound, Detail: err.Error(),
		})
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrSuspended):
		problem.Write(w, problem.Details{
			Type: problemTypeConflict, Title: "Conflict",
			Status: http.StatusConflict, Detail: err.Error(),
		})
	case errors.As(err, &limitErr):
		problem.Write(w, problem.Details{
			Type: problemTypeLimit, Title: "Store limit reached",
			Status: http.StatusConflict, Detail: err.Error(),
		})
	case errors.As(err, &connErr):
		problem.Write(w, problem.Details{
			Type: problemTypeConnection, Title: "Database connection failed",
			Status: http.StatusBadGateway, Detail: err.Error(), Code: codeConnectionFailed,
		})
	case errors.As(err, &provErr):
		problem.Write(w, problem.Details{
			Type: problemTypeConnection, Title: "Provisioning failed",
			Status: http.StatusBadGateway, Detail: err.Error(), Code: codeProvisioningFailed,
			Errors: stepErrorsByStep(provErr.Result),
		})
	default:
		h.logger.Error("store operation failed", zap.Error(err))
		problem.Write(w, problem.Details{
			Type: problemTypeInternal, Title: "Internal error",
			Status: http.StatusInternalServerError, Detail: "internal error",
		})
	}
}

func toStoreResponse(s service.Store) storeResponse {
	return storeResponse{
		ID:              s.ID,
		Name:            s.Name,
		Slug:            s.Slug,
		Status:          s.Status,
		IsActive:        s.IsActive,
		SuspendedReason: s.SuspendedReason,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// stepErrorsByStep groups the accumulated provisioning errors by step so the
// failure body reports what was attempted, not just the fatal message.
func stepErrorsByStep(res provisioning.Result) map[string][]string {
	if len(res.StepErrors) == 0 {
		return nil
	}
	out := make(map[string][]string, len(res.StepErrors))
	for _, stepErr := range res.StepErrors {
		out[stepErr.Step] = append(out[stepErr.Step], stepErr.Err.Error())
	}
	return out
}

func toProvisioningResponse(res provisioning.Result) provisioningResponse {
	out := provisioningResponse{
		AlreadyProvisioned: res.AlreadyProvisioned,
		SchemaOK:           res.SchemaOK,
		CompletedSteps:     res.CompletedSteps,
	}
	for _, stepErr := range res.StepErrors {
		out.StepErrors = append(out.StepErrors, stepErr.Error())
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
