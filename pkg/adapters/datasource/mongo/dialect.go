// Package mongo implements the datasource dialect for MongoDB endpoints.
// Schema discovery works by sampling documents; execution dispatches the
// validated operation set against collections of the database named in the
// connection URL.
package mongo

import (
	"context"
	"net/url"
	"strings"

	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/datapilot-ai/datapilot-engine/pkg/adapters/datasource"
	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// defaultDatabase is used when the connection URL carries no database path,
// matching the mongo shell's default.
const defaultDatabase = "test"

type dialect struct{}

func (d *dialect) Kind() models.DatabaseKind { return models.KindMongo }

// Dial connects a client for the endpoint and verifies it with a ping
// against the primary. Server selection is bounded by the preflight window
// so unreachable clusters fail fast instead of blocking on discovery.
func (d *dialect) Dial(ctx context.Context, endpoint models.DatabaseEndpoint, cfg datasource.DialConfig) (*datasource.Handle, error) {
	opts := options.Client().ApplyURI(endpoint.RawURL)
	if cfg.PreflightTimeout > 0 {
		opts.SetServerSelectionTimeout(cfg.PreflightTimeout)
		opts.SetConnectTimeout(cfg.PreflightTimeout)
	}
	if cfg.PoolMaxConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.PoolMaxConns))
	}
	if cfg.PoolMinConns > 0 {
		opts.SetMinPoolSize(uint64(cfg.PoolMinConns))
	}
	if cfg.ConnMaxIdleTime > 0 {
		opts.SetMaxConnIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.StatementTimeout > 0 {
		opts.SetTimeout(cfg.StatementTimeout)
	}
	if err := opts.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindBadInput, "invalid mongodb connection URL", err)
	}

	pctx, cancel := context.WithTimeout(ctx, cfg.PreflightTimeout)
	defer cancel()

	client, err := mongodriver.Connect(pctx, opts)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConnectionFailed, "connect to mongodb", err)
	}
	if err := client.Ping(pctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, apperrors.Wrap(apperrors.KindConnectionFailed, "mongodb endpoint unreachable", err)
	}

	return &datasource.Handle{
		Endpoint:      endpoint,
		Mongo:         client,
		MongoDatabase: databaseFromURL(endpoint.RawURL),
	}, nil
}

func (d *dialect) Close(h *datasource.Handle) {
	if h.Mongo != nil {
		_ = h.Mongo.Disconnect(context.Background())
	}
}

// databaseFromURL extracts the database path segment from a mongodb URL.
func databaseFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return defaultDatabase
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return defaultDatabase
	}
	return name
}

var _ datasource.Dialect = (*dialect)(nil)
