package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/datapilot-ai/datapilot-engine/pkg/adapters/datasource"
	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
	"github.com/datapilot-ai/datapilot-engine/pkg/repositories"
)

// schemaCachePrefix namespaces registry entries in the hot cache.
const schemaCachePrefix = "schema:"

// SchemaRegistry serves the schema JSON for an endpoint, rebuilding it via
// live introspection when the cached snapshot is stale or a rebuild is forced.
type SchemaRegistry interface {
	// GetOrBuild returns the canonical schema JSON for the endpoint behind
	// the handle. Introspection failures degrade to "[]" rather than failing
	// the request.
	GetOrBuild(ctx context.Context, handle *datasource.Handle, forceRebuild bool) (string, error)
}

type schemaRegistry struct {
	snapshots repositories.SchemaRepository
	cache     *redis.Client // nil when the hot cache is disabled
	ttl       time.Duration
	group     singleflight.Group
	logger    *zap.Logger

	now func() time.Time
}

// NewSchemaRegistry creates a schema registry. cache may be nil.
func NewSchemaRegistry(snapshots repositories.SchemaRepository, cache *redis.Client, ttl time.Duration, logger *zap.Logger) SchemaRegistry {
	return &schemaRegistry{
		snapshots: snapshots,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.Named("schema"),
		now:       time.Now,
	}
}

var _ SchemaRegistry = (*schemaRegistry)(nil)

func (r *schemaRegistry) GetOrBuild(ctx context.Context, handle *datasource.Handle, forceRebuild bool) (string, error) {
	dbKey := handle.Endpoint.DBKey()

	if !forceRebuild {
		if schemaJSON, ok := r.lookup(ctx, dbKey); ok {
			return schemaJSON, nil
		}
	}

	// Coalesce concurrent rebuilds per key; the second caller observes the
	// first's snapshot.
	v, err, _ := r.group.Do(dbKey, func() (any, error) {
		if !forceRebuild {
			if schemaJSON, ok := r.lookup(ctx, dbKey); ok {
				return schemaJSON, nil
			}
		}
		return r.rebuild(ctx, handle, dbKey)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// lookup checks the hot cache, then the persisted snapshot. Only fresh
// snapshots count.
func (r *schemaRegistry) lookup(ctx context.Context, dbKey string) (string, bool) {
	if r.cache != nil {
		cached, err := r.cache.Get(ctx, schemaCachePrefix+dbKey).Result()
		if err == nil && cached != "" {
			return cached, true
		}
	}

	snapshot, err := r.snapshots.Get(ctx, dbKey)
	if err != nil {
		r.logger.Warn("snapshot lookup failed", zap.String("db_key", dbKey), zap.Error(err))
		return "", false
	}
	if snapshot == nil || !snapshot.Fresh(r.ttl, r.now()) {
		return "", false
	}

	r.storeHot(ctx, dbKey, snapshot.SchemaJSON, r.remainingFreshness(snapshot))
	return snapshot.SchemaJSON, true
}

// remainingFreshness returns how long a snapshot has left in its freshness
// window. A hot-cache entry must not outlive the snapshot it mirrors, or a
// stale schema could be served for up to a full extra TTL.
func (r *schemaRegistry) remainingFreshness(snapshot *models.SchemaSnapshot) time.Duration {
	return r.ttl - r.now().UTC().Sub(snapshot.LastBuilt)
}

// rebuild introspects the live database and persists the result. An
// introspection failure degrades to an empty schema: the planner gets less
// context but the request proceeds.
func (r *schemaRegistry) rebuild(ctx context.Context, handle *datasource.Handle, dbKey string) (string, error) {
	intro, err := handle.Dialect().Introspect(ctx, handle)
	if err != nil {
		r.logger.Warn("schema introspection failed, continuing with empty schema",
			zap.String("db_key", dbKey),
			zap.String("kind", string(handle.Endpoint.Kind)),
			zap.Error(apperrors.Wrap(apperrors.KindSchemaBuildFailed, "introspection failed", err)))
		return "[]", nil
	}

	schemaJSON, err := marshalIntrospection(handle.Endpoint.Kind, intro)
	if err != nil {
		return "", fmt.Errorf("failed to encode schema: %w", err)
	}

	snapshot := &models.SchemaSnapshot{
		DBKey:      dbKey,
		Kind:       handle.Endpoint.Kind,
		SchemaJSON: schemaJSON,
		TableCount: intro.Count(),
		LastBuilt:  r.now().UTC(),
	}
	if err := r.snapshots.Upsert(ctx, snapshot); err != nil {
		// A failed persist only costs the next request a rebuild.
		r.logger.Warn("failed to persist schema snapshot", zap.String("db_key", dbKey), zap.Error(err))
	}
	r.storeHot(ctx, dbKey, schemaJSON, r.ttl)

	r.logger.Info("schema rebuilt",
		zap.String("db_key", dbKey),
		zap.String("kind", string(handle.Endpoint.Kind)),
		zap.Int("tables", intro.Count()))
	return schemaJSON, nil
}

func (r *schemaRegistry) storeHot(ctx context.Context, dbKey, schemaJSON string, ttl time.Duration) {
	if r.cache == nil || ttl <= 0 {
		return
	}
	if err := r.cache.Set(ctx, schemaCachePrefix+dbKey, schemaJSON, ttl).Err(); err != nil {
		r.logger.Debug("hot cache store failed", zap.String("db_key", dbKey), zap.Error(err))
	}
}

// marshalIntrospection produces the canonical JSON array for the snapshot:
// collections for document endpoints, tables for relational ones. The order
// is whatever the detector discovered, which is stable per engine.
func marshalIntrospection(kind models.DatabaseKind, intro *datasource.Introspection) (string, error) {
	var payload any
	if kind == models.KindMongo {
		collections := intro.Collections
		if collections == nil {
			collections = []models.CollectionSchema{}
		}
		payload = collections
	} else {
		tables := intro.Tables
		if tables == nil {
			tables = []models.TableSchema{}
		}
		payload = tables
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
