// Package postgres implements the datasource dialect for PostgreSQL
// endpoints on top of pgx connection pools.
package postgres

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datapilot-ai/datapilot-engine/pkg/adapters/datasource"
	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
	"github.com/datapilot-ai/datapilot-engine/pkg/retry"
)

type dialect struct{}

func (d *dialect) Kind() models.DatabaseKind { return models.KindPostgres }

// Dial opens a pgx pool for the endpoint and probes it with SELECT 1. The
// statement timeout is pushed to the server at pool construction so every
// connection carries it.
func (d *dialect) Dial(ctx context.Context, endpoint models.DatabaseEndpoint, cfg datasource.DialConfig) (*datasource.Handle, error) {
	poolCfg, err := pgxpool.ParseConfig(endpoint.RawURL)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindBadInput, "invalid postgres connection URL", err)
	}

	if cfg.PoolMaxConns > 0 {
		poolCfg.MaxConns = cfg.PoolMaxConns
	}
	if cfg.PoolMinConns > 0 {
		poolCfg.MinConns = cfg.PoolMinConns
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
	if cfg.StatementTimeout > 0 {
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] =
			strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConnectionFailed, "create postgres pool", err)
	}

	pctx, cancel := context.WithTimeout(ctx, cfg.PreflightTimeout)
	defer cancel()

	var one int
	err = retry.Do(pctx, retry.DefaultConfig(), func() error {
		return pool.QueryRow(pctx, "SELECT 1").Scan(&one)
	})
	if err != nil {
		pool.Close()
		return nil, apperrors.Wrap(apperrors.KindConnectionFailed, "postgres endpoint unreachable", err)
	}

	return &datasource.Handle{Endpoint: endpoint, Postgres: pool}, nil
}

func (d *dialect) Close(h *datasource.Handle) {
	if h.Postgres != nil {
		h.Postgres.Close()
	}
}

var _ datasource.Dialect = (*dialect)(nil)
