package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vendica/vendica-platform/domains/credits/be/repo"
	"github.com/vendica/vendica-platform/domains/credits/be/service"
)

func newTestRouter(t *testing.T) (chi.Router, uuid.UUID) {
	t.Helper()
	mem := repo.NewMemory()
	storeID := uuid.New()
	_, err := mem.EnsureBalance(context.Background(), storeID)
	require.NoError(t, err)

	r := chi.NewRouter()
	New(service.New(mem), zap.NewNop()).Routes(r)
	return r, storeID
}

func TestPurchaseAndBalance(t *testing.T) {
	r, storeID := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stores/"+storeID.String()+"/credits/purchase",
		strings.NewReader(`{"amount":500,"description":"starter pack"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"balance":500`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stores/"+storeID.String()+"/credits", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":500`)
	assert.Contains(t, rec.Body.String(), "starter pack")
}

func TestDeductBeyondAvailable(t *testing.T) {
	r, storeID := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stores/"+storeID.String()+"/credits/deduct",
		strings.NewReader(`{"amount":10}`)))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "INSUFFICIENT_BALANCE")
}

func TestPurchaseRejectsNonPositiveAmount(t *testing.T) {
	r, storeID := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stores/"+storeID.String()+"/credits/purchase",
		strings.NewReader(`{"amount":-5}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownStoreBalance(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stores/"+uuid.NewString()+"/credits", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
