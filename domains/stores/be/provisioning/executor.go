// Package provisioning runs the multi-step tenant database setup: schema,
// constraints, seed data, and genesis rows, executed through a pluggable
// statement executor so the same steps work over a direct connection or a
// hosted provider's management API.
package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrUndefinedTable reports that a statement referenced a relation that does
// not exist. Executors must wrap this so callers can distinguish "database
// reachable but never provisioned" from real failures.
var ErrUndefinedTable = errors.New("relation does not exist")

const undefinedTableCode = "42P01"

// StatementExecutor runs one SQL statement against the tenant database.
type StatementExecutor interface {
	Exec(ctx context.Context, sql string) error
}

type pgxExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PoolExecutor executes statements over a pgx connection pool.
type PoolExecutor struct {
	db pgxExecer
}

// NewPoolExecutor wraps a pgx pool (or compatible) as a StatementExecutor.
func NewPoolExecutor(db pgxExecer) *PoolExecutor {
	if db == nil {
		panic("pool executor requires a database")
	}
	return &PoolExecutor{db: db}
}

func (e *PoolExecutor) Exec(ctx context.Context, sql string) error {
	_, err := e.db.Exec(ctx, sql)
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTableCode {
		return fmt.Errorf("%w: %s", ErrUndefinedTable, pgErr.Message)
	}
	return err
}

// ManagementAPIExecutor executes statements through a hosted database
// provider's SQL-over-HTTP endpoint, for managed tenant databases that do
// not expose a direct connection.
type ManagementAPIExecutor struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewManagementAPIExecutor builds an executor for the given query endpoint.
// The client timeout bounds every statement; schema statements on cold
// managed instances can be slow, so the default is generous.
func NewManagementAPIExecutor(endpoint, apiKey string, timeout time.Duration) (*ManagementAPIExecutor, error) {
	if endpoint == "" {
		return nil, errors.New("management api endpoint is required")
	}
	if apiKey == "" {
		return nil, errors.New("management api key is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ManagementAPIExecutor{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (e *ManagementAPIExecutor) Exec(ctx context.Context, sql string) error {
	payload, err := json.Marshal(map[string]string{"query": sql})
	if err != nil {
		return fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("management api: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	if strings.Contains(msg, undefinedTableCode) || strings.Contains(msg, "does not exist") {
		return fmt.Errorf("%w: %s", ErrUndefinedTable, msg)
	}
	return fmt.Errorf("management api: status %d: %s", resp.StatusCode, msg)
}
