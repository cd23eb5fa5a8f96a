// Package service implements the credit ledger business operations: top-ups,
// spend, and the reserve/release pair used to hold funds for in-flight work.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vendica/vendica-platform/domains/credits/be/repo"
	"github.com/vendica/vendica-platform/platform/go/persistence"
)

// Domain sentinel errors.
var (
	ErrNotFound      = errors.New("credit balance not found")
	ErrInvalidAmount = errors.New("amount must be positive")
)

// InsufficientBalanceError is returned when a deduction or reservation asks
// for more than the available (balance minus reserved) amount.
type InsufficientBalanceError struct {
	StoreID   uuid.UUID
	Requested int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for store %s: requested %d, available %d", e.StoreID, e.Requested, e.Available)
}

// Balance is the domain view of a store's credit position.
type Balance struct {
	StoreID           uuid.UUID
	Balance           int64
	ReservedBalance   int64
	Available         int64
	LifetimePurchased int64
	LifetimeSpent     int64
	UpdatedAt         time.Time
}

// Transaction is one ledger movement. Reservations are holds, not
// movements, so they never appear here.
type Transaction struct {
	ID               uuid.UUID
	Amount           int64
	Type             string
	PaymentReference *string
	Description      string
	CreatedAt        time.Time
}

// AddInput represents a credit top-up.
type AddInput struct {
	Amount           int64
	Type             string
	PaymentReference *string
	Description      string
}

// Service defines the business operations for the credits domain.
type Service interface {
	GetBalance(ctx context.Context, storeID uuid.UUID) (Balance, error)
	AddCredits(ctx context.Context, storeID uuid.UUID, input AddInput) (Balance, error)
	DeductCredits(ctx context.Context, storeID uuid.UUID, amount int64, description string) (Balance, error)
	ReserveCredits(ctx context.Context, storeID uuid.UUID, amount int64) (Balance, error)
	ReleaseReservedCredits(ctx context.Context, storeID uuid.UUID, amount int64) (Balance, error)
	ListTransactions(ctx context.Context, storeID uuid.UUID, limit int) ([]Transaction, error)
}

type service struct {
	repo repo.Repository
}

// New constructs a credits Service backed by the provided repository.
func New(r repo.Repository) Service {
	if r == nil {
		panic("credits repository is required")
	}
	return &service{repo: r}
}

func (s *service) GetBalance(ctx context.Context, storeID uuid.UUID) (Balance, error) {
	rec, err := s.repo.GetBalance(ctx, storeID)
	if err != nil {
		return Balance{}, s.translate(ctx, storeID, 0, err)
	}
	return toBalance(rec), nil
}

func (s *service) AddCredits(ctx context.Context, storeID uuid.UUID, input AddInput) (Balance, error) {
	if input.Amount <= 0 {
		return Balance{}, ErrInvalidAmount
	}
	txType := input.Type
	switch txType {
	case "":
		txType = persistence.TxPurchase
	case persistence.TxPurchase, persistence.TxAdjustment, persistence.TxRefund, persistence.TxBonus, persistence.TxMigration:
	default:
		return Balance{}, fmt.Errorf("unknown transaction type %q", input.Type)
	}

	rec, err := s.repo.Add(ctx, storeID, input.Amount, txType, input.PaymentReference, input.Description)
	if err != nil {
		return Balance{}, s.translate(ctx, storeID, input.Amount, err)
	}
	return toBalance(rec), nil
}

func (s *service) DeductCredits(ctx context.Context, storeID uuid.UUID, amount int64, description string) (Balance, error) {
	if amount <= 0 {
		return Balance{}, ErrInvalidAmount
	}
	rec, err := s.repo.Deduct(ctx, storeID, amount, description)
	if err != nil {
		return Balance{}, s.translate(ctx, storeID, amount, err)
	}
	return toBalance(rec), nil
}

func (s *service) ReserveCredits(ctx context.Context, storeID uuid.UUID, amount int64) (Balance, error) {
	if amount <= 0 {
		return Balance{}, ErrInvalidAmount
	}
	rec, err := s.repo.Reserve(ctx, storeID, amount)
	if err != nil {
		return Balance{}, s.translate(ctx, storeID, amount, err)
	}
	return toBalance(rec), nil
}

func (s *service) ReleaseReservedCredits(ctx context.Context, storeID uuid.UUID, amount int64) (Balance, error) {
	if amount <= 0 {
		return Balance{}, ErrInvalidAmount
	}
	rec, err := s.repo.Release(ctx, storeID, amount)
	if err != nil {
		return Balance{}, s.translate(ctx, storeID, amount, err)
	}
	return toBalance(rec), nil
}

func (s *service) ListTransactions(ctx context.Context, storeID uuid.UUID, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	recs, err := s.repo.ListTransactions(ctx, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]Transaction, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Transaction{
			ID:               rec.TransactionID,
			Amount:           rec.Amount,
			Type:             rec.TransactionType,
			PaymentReference: rec.PaymentReference,
			Description:      rec.Description,
			CreatedAt:        rec.CreatedAt,
		})
	}
	return out, nil
}

// translate maps storage errors onto the domain surface. Insufficient funds
// are enriched with the current available amount when it can still be read.
func (s *service) translate(ctx context.Context, storeID uuid.UUID, requested int64, err error) error {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrInsufficientBalance):
		available := int64(0)
		if rec, getErr := s.repo.GetBalance(ctx, storeID); getErr == nil {
			available = rec.Available()
		}
		return &InsufficientBalanceError{StoreID: storeID, Requested: requested, Available: available}
	default:
		return fmt.Errorf("credits: %w", err)
	}
}

func toBalance(rec persistence.BalanceRecord) Balance {
	return Balance{
		StoreID:           rec.StoreID,
		Balance:           rec.Balance,
		ReservedBalance:   rec.ReservedBalance,
		Available:         rec.Available(),
		LifetimePurchased: rec.LifetimePurchased,
		LifetimeSpent:     rec.LifetimeSpent,
		UpdatedAt:         rec.UpdatedAt,
	}
}
