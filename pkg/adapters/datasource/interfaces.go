// Package datasource manages live connections to the databases users point
// the agent at. Each database family contributes a Dialect; the Manager
// caches one handle per connection URL and hands it to the schema and
// execution layers.
package datasource

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// Handle is a live, pooled connection to one endpoint. Exactly one of the
// family fields is set, matching Endpoint.Kind. Handles are shared across
// requests and must not be closed by callers; the Manager owns their
// lifecycle.
type Handle struct {
	Endpoint models.DatabaseEndpoint

	// Mongo and MongoDatabase are set for document endpoints. The database
	// name comes from the connection URL path.
	Mongo         *mongo.Client
	MongoDatabase string

	// Postgres is set for postgres endpoints.
	Postgres *pgxpool.Pool

	// MySQL is set for mysql endpoints.
	MySQL *sql.DB

	// dialect that produced this handle, filled in by the Manager for
	// introspection and execution dispatch.
	dialect Dialect
}

// Dialect returns the family implementation behind this handle.
func (h *Handle) Dialect() Dialect { return h.dialect }

// DialConfig carries pool sizing and deadline settings into Dial.
type DialConfig struct {
	PoolMaxConns     int32
	PoolMinConns     int32
	ConnMaxIdleTime  time.Duration
	PreflightTimeout time.Duration
	StatementTimeout time.Duration
}

// Dialect is one database family's implementation: dialing, schema
// introspection and query execution. Implementations self-register in
// init() via Register.
type Dialect interface {
	// Kind identifies the family this dialect serves.
	Kind() models.DatabaseKind

	// Dial opens a pooled connection for the endpoint and verifies it with
	// a liveness probe bounded by cfg.PreflightTimeout. On probe failure
	// the partially opened resources are released and an error of kind
	// ConnectionFailed is returned.
	Dial(ctx context.Context, endpoint models.DatabaseEndpoint, cfg DialConfig) (*Handle, error)

	// Close releases the handle's underlying pool. Safe to call once per
	// handle; the Manager calls it on eviction and shutdown.
	Close(h *Handle)

	// Introspect builds the live schema of the endpoint behind the handle.
	Introspect(ctx context.Context, h *Handle) (*Introspection, error)

	// Execute runs one validated query and returns its rows or write
	// outcome. The query must already have passed the safety gate.
	Execute(ctx context.Context, h *Handle, q *models.ExecutedQuery) (*QueryResult, error)
}

// Introspection is the result of live schema discovery. Document endpoints
// fill Collections; relational endpoints fill Tables.
type Introspection struct {
	Collections []models.CollectionSchema
	Tables      []models.TableSchema
}

// Count returns the number of discovered collections or tables.
func (i *Introspection) Count() int {
	if i.Collections != nil {
		return len(i.Collections)
	}
	return len(i.Tables)
}

// QueryResult is the uniform execution result across all families. Reads
// fill Columns/Rows/RowCount; writes fill RowsAffected and may carry a
// single echo row (inserted id, matched counts).
type QueryResult struct {
	Columns      []string         `json:"columns,omitempty"`
	Rows         []map[string]any `json:"rows,omitempty"`
	RowCount     int              `json:"rowCount"`
	RowsAffected int64            `json:"rowsAffected,omitempty"`
}
