package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vendica/vendica-platform/domains/stores/be/service"
	"github.com/vendica/vendica-platform/platform/go/persistence"
)

// Memory is an in-memory Repository for tests. Transitions follow the same
// guards as the Postgres store: illegal moves return ErrInvalidTransition.
type Memory struct {
	mu      sync.Mutex
	records map[uuid.UUID]persistence.StoreRecord
}

var _ service.Repository = (*Memory)(nil)

// NewMemory constructs an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{records: make(map[uuid.UUID]persistence.StoreRecord)}
}

func (m *Memory) Create(_ context.Context, rec persistence.StoreRecord) (persistence.StoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	rec.Status = persistence.StatusPendingDatabase
	rec.IsActive = false
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.records[rec.StoreID] = rec
	return rec, nil
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (persistence.StoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return persistence.StoreRecord{}, persistence.ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ListByAccount(_ context.Context, accountID uuid.UUID) ([]persistence.StoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.StoreRecord
	for _, rec := range m.records {
		if rec.AccountID == accountID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Memory) CountByAccount(_ context.Context, accountID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, rec := range m.records {
		if rec.AccountID == accountID && rec.Status != persistence.StatusSuspended {
			count++
		}
	}
	return count, nil
}

func (m *Memory) StartProvisioning(_ context.Context, id uuid.UUID) (persistence.StoreRecord, error) {
	return m.transition(id, persistence.StatusProvisioning, false, nil, persistence.StatusPendingDatabase)
}

func (m *Memory) CompleteProvisioning(_ context.Context, id uuid.UUID) (persistence.StoreRecord, error) {
	return m.transition(id, persistence.StatusActive, true, nil, persistence.StatusProvisioning)
}

func (m *Memory) RevertToPending(_ context.Context, id uuid.UUID) (persistence.StoreRecord, error) {
	return m.transition(id, persistence.StatusPendingDatabase, false, nil, persistence.StatusProvisioning)
}

func (m *Memory) Suspend(_ context.Context, id uuid.UUID, reason string) (persistence.StoreRecord, error) {
	return m.transition(id, persistence.StatusSuspended, false, &reason,
		persistence.StatusPendingDatabase, persistence.StatusProvisioning,
		persistence.StatusActive, persistence.StatusFailed)
}

func (m *Memory) transition(id uuid.UUID, to string, active bool, reason *string, from ...string) (persistence.StoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return persistence.StoreRecord{}, persistence.ErrNotFound
	}
	allowed := false
	for _, f := range from {
		if rec.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return persistence.StoreRecord{}, persistence.ErrInvalidTransition
	}
	rec.Status = to
	rec.IsActive = active
	rec.SuspendedReason = reason
	rec.UpdatedAt = time.Now().UTC()
	m.records[id] = rec
	return rec, nil
}
