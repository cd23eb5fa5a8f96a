// Package handler exposes the credit ledger over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vendica/vendica-platform/domains/credits/be/service"
	"github.com/vendica/vendica-platform/platform/go/problem"
)

const (
	problemTypeValidation   = "https://vendica.dev/problems/validation-error"
	problemTypeNotFound     = "https://vendica.dev/problems/not-found"
	problemTypeInsufficient = "https://vendica.dev/problems/insufficient-balance"
	problemTypeInternal     = "https://vendica.dev/problems/internal-error"

	codeInsufficientBalance = "INSUFFICIENT_BALANCE"
)

// Handler wires the credits service to HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("credits service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes registers the credit endpoints under the store resource.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/stores/{storeID}/credits", h.getBalance)
	r.Post("/stores/{storeID}/credits/purchase", h.purchase)
	r.Post("/stores/{storeID}/credits/deduct", h.deduct)
}

type balanceResponse struct {
	Balance           int64     `json:"balance"`
	ReservedBalance   int64     `json:"reservedBalance"`
	Available         int64     `json:"available"`
	LifetimePurchased int64     `json:"lifetimePurchased"`
	LifetimeSpent     int64     `json:"lifetimeSpent"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type transactionResponse struct {
	ID               uuid.UUID `json:"id"`
	Amount           int64     `json:"amount"`
	Type             string    `json:"type"`
	PaymentReference *string   `json:"paymentReference,omitempty"`
	Description      string    `json:"description,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

type purchaseRequest struct {
	Amount           int64   `json:"amount"`
	PaymentReference *string `json:"paymentReference,omitempty"`
	Description      string  `json:"description,omitempty"`
}

type deductRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.storeID(w, r)
	if !ok {
		return
	}
	bal, err := h.svc.GetBalance(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	txs, err := h.svc.ListTransactions(r.Context(), id, 20)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		items = append(items, toTransactionResponse(tx))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"balance":      toBalanceResponse(bal),
		"transactions": items,
	})
}

func (h *Handler) purchase(w http.ResponseWriter, r *http.Request) {
	id, ok := h.storeID(w, r)
	if !ok {
		return
	}
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}
	bal, err := h.svc.AddCredits(r.Context(), id, service.AddInput{
		Amount:           req.Amount,
		PaymentReference: req.PaymentReference,
		Description:      req.Description,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceResponse(bal))
}

func (h *Handler) deduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.storeID(w, r)
	if !ok {
		return
	}
	var req deductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}
	bal, err := h.svc.DeductCredits(r.Context(), id, req.Amount, req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceResponse(bal))
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
	var insufficient *service.InsufficientBalanceError
	switch {
	case errors.Is(err, service.ErrNotFound):
		problem.Write(w, problem.Details{
			Type: problemTypeNotFound, Title: "Not found",
			Status: http.StatusNotFound, Detail: err.Error(),
		})
	case errors.Is(err, service.ErrInvalidAmount):
		h.badRequest(w, err.Error())
	case errors.As(err, &insufficient):
		problem.Write(w, problem.Details{
			Type: problemTypeInsufficient, Title: "Insufficient balance",
			Status: http.StatusPaymentRequired, Detail: err.Error(), Code: codeInsufficientBalance,
		})
	default:
		h.logger.Error("credit operation failed", zap.Error(err))
		problem.Write(w, problem.Details{
			Type: problemTypeInternal, Title: "Internal error",
			Status: http.StatusInternalServerError, Detail: "internal error",
		})
	}
}

func toBalanceResponse(b service.Balance) balanceResponse {
	return balanceResponse{
		Balance:           b.Balance,
		ReservedBalance:   b.ReservedBalance,
		Available:         b.Available,
		LifetimePurchased: b.LifetimePurchased,
		LifetimeSpent:     b.LifetimeSpent,
		UpdatedAt:         b.UpdatedAt,
	}
}

func toTransactionResponse(tx service.Transaction) transactionResponse {
	return transactionResponse{
		ID:               tx.ID,
		Amount:           tx.Amount,
		Type:             tx.Type,
		PaymentReference: tx.PaymentReference,
		Description:      tx.Description,
		CreatedAt:        tx.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
