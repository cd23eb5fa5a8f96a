// Package repo provides registry storage implementations for the stores
// domain: Postgres for production, in-memory for tests.
package repo

import (
	"errors"

	"github.com/vendica/vendica-platform/domains/stores/be/service"
	"github.com/vendica/vendica-platform/platform/go/persistence"
)

// Postgres is the production Repository, backed by the master registry.
// RegistryStore already carries the guarded lifecycle semantics, so this is
// a construction-time wrapper only.
type Postgres struct {
	*persistence.RegistryStore
}

var _ service.Repository = (*Postgres)(nil)

// NewPostgres wraps a RegistryStore as a stores Repository.
func NewPostgres(store *persistence.RegistryStore) (*Postgres, error) {
	if store == nil {
		return nil, errors.New("registry store is required")
	}
	return &Postgres{RegistryStore: store}, nil
}
