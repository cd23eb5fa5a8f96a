package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeExecutor records every statement and fails those matching a fragment.
type fakeExecutor struct {
	statements  []string
	provisioned bool
	failOn      map[string]error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{failOn: map[string]error{}}
}

func (f *fakeExecutor) Exec(_ context.Context, sql string) error {
	f.statements = append(f.statements, sql)
	if strings.HasPrefix(sql, "SELECT store_id FROM stores") {
		if f.provisioned {
			return nil
		}
		return fmt.Errorf("probe: %w", ErrUndefinedTable)
	}
	for fragment, err := range f.failOn {
		if strings.Contains(sql, fragment) {
			return err
		}
	}
	return nil
}

func (f *fakeExecutor) executed(fragment string) int {
	n := 0
	for _, s := range f.statements {
		if strings.Contains(s, fragment) {
			n++
		}
	}
	return n
}

func TestProvisionFullRun(t *testing.T) {
	exec := newFakeExecutor()
	orch := New(zap.NewNop())
	storeID := uuid.New()

	res, err := orch.Provision(context.Background(), exec, Request{
		StoreID:    storeID,
		StoreName:  "Acme Shop",
		StoreSlug:  "acme",
		AdminEmail: "owner@acme.test",
	})
	require.NoError(t, err)
	assert.True(t, res.SchemaOK)
	assert.False(t, res.AlreadyProvisioned)
	assert.Empty(t, res.StepErrors)
	assert.Equal(t, []string{
		StepIdempotency, StepSchema, StepConstraints, StepSeed, StepBackfill, StepGenesis,
	}, res.CompletedSteps)

	// Every seeded table gets re-owned to the real store.
	for _, table := range backfillTables {
		assert.Equal(t, 1, exec.executed("UPDATE "+table+" SET store_id = '"+storeID.String()+"'"), table)
	}
	assert.Equal(t, 1, exec.executed("INSERT INTO stores "))
	assert.Equal(t, 1, exec.executed("INSERT INTO users "))
}

func TestProvisionShortCircuitsWhenAlreadyProvisioned(t *testing.T) {
	exec := newFakeExecutor()
	exec.provisioned = true
	orch := New(zap.NewNop())

	res, err := orch.Provision(context.Background(), exec, Request{StoreID: uuid.New()})
	require.NoError(t, err)
	assert.True(t, res.AlreadyProvisioned)
	assert.True(t, res.SchemaOK)
	assert.Equal(t, []string{StepIdempotency}, res.CompletedSteps)
	assert.Len(t, exec.statements, 1, "only the probe may run")
}

func TestProvisionForceSkipsProbe(t *testing.T) {
	exec := newFakeExecutor()
	exec.provisioned = true
	orch := New(zap.NewNop())

	res, err := orch.Provision(context.Background(), exec, Request{StoreID: uuid.New(), Force: true})
	require.NoError(t, err)
	assert.False(t, res.AlreadyProvisioned)
	assert.True(t, res.SchemaOK)
	assert.Equal(t, 0, exec.executed("SELECT store_id FROM stores"))
	assert.Greater(t, exec.executed("CREATE TABLE"), 10)
}

func TestProvisionSchemaFailureIsFatal(t *testing.T) {
	exec := newFakeExecutor()
	exec.failOn["CREATE TABLE IF NOT EXISTS products"] = errors.New("out of disk")
	orch := New(zap.NewNop())

	res, err := orch.Provision(context.Background(), exec, Request{StoreID: uuid.New()})
	require.Error(t, err)
	assert.False(t, res.SchemaOK)
	assert.NotContains(t, res.CompletedSteps, StepConstraints)
	assert.Equal(t, 0, exec.executed("ALTER TABLE"), "constraints must not run after a schema failure")
}

func TestProvisionToleratesConstraintFailures(t *testing.T) {
	exec := newFakeExecutor()
	exec.failOn["fk_order_items_order"] = errors.New("constraint already exists")
	orch := New(zap.NewNop())

	res, err := orch.Provision(context.Background(), exec, Request{StoreID: uuid.New()})
	require.NoError(t, err, "a failed constraint degrades, it does not abort")
	assert.True(t, res.SchemaOK)
	require.Len(t, res.StepErrors, 1)
	assert.Equal(t, StepConstraints, res.StepErrors[0].Step)
	assert.Contains(t, res.CompletedSteps, StepGenesis, "later steps still run")
}

func TestProvisionToleratesDuplicateAdmin(t *testing.T) {
	exec := newFakeExecutor()
	exec.failOn["INSERT INTO users"] = errors.New("duplicate key value violates unique constraint")
	orch := New(zap.NewNop())

	res, err := orch.Provision(context.Background(), exec, Request{
		StoreID:    uuid.New(),
		AdminEmail: "owner@acme.test",
	})
	require.NoError(t, err)
	require.Len(t, res.StepErrors, 1)
	assert.Equal(t, StepGenesis, res.StepErrors[0].Step)
}

func TestProvisionProbeErrorAborts(t *testing.T) {
	orch := New(zap.NewNop())
	probeErr := errors.New("connection refused")
	failing := executorFunc(func(ctx context.Context, sql string) error {
		if strings.HasPrefix(sql, "SELECT store_id") {
			return probeErr
		}
		return nil
	})

	_, err := orch.Provision(context.Background(), failing, Request{StoreID: uuid.New()})
	require.ErrorIs(t, err, probeErr)
}

func TestGenesisEscapesLiterals(t *testing.T) {
	exec := newFakeExecutor()
	orch := New(zap.NewNop())

	_, err := orch.Provision(context.Background(), exec, Request{
		StoreID:   uuid.New(),
		StoreName: "Bob's Bikes",
		StoreSlug: "bobs-bikes",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, exec.executed("'Bob''s Bikes'"))
}

type executorFunc func(ctx context.Context, sql string) error

func (f executorFunc) Exec(ctx context.Context, sql string) error { return f(ctx, sql) }
