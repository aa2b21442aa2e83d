// Package mysql implements the datasource dialect for MySQL and MariaDB
// endpoints over database/sql with the go-sql-driver driver.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/datapilot-ai/datapilot-engine/pkg/adapters/datasource"
	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
	"github.com/datapilot-ai/datapilot-engine/pkg/retry"
)

type dialect struct{}

func (d *dialect) Kind() models.DatabaseKind { return models.KindMySQL }

// Dial opens a database/sql pool for the endpoint and probes it with
// SELECT 1. The driver takes DSN form rather than a URL, so the endpoint
// URL is converted first.
func (d *dialect) Dial(ctx context.Context, endpoint models.DatabaseEndpoint, cfg datasource.DialConfig) (*datasource.Handle, error) {
	dsn, err := dsnFromURL(endpoint.RawURL, cfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindBadInput, "invalid mysql connection URL", err)
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConnectionFailed, "create mysql pool", err)
	}

	if cfg.PoolMaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.PoolMaxConns))
	}
	if cfg.PoolMinConns > 0 {
		db.SetMaxIdleConns(int(cfg.PoolMinConns))
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	pctx, cancel := context.WithTimeout(ctx, cfg.PreflightTimeout)
	defer cancel()

	var one int
	err = retry.Do(pctx, retry.DefaultConfig(), func() error {
		return db.QueryRowContext(pctx, "SELECT 1").Scan(&one)
	})
	if err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.KindConnectionFailed, "mysql endpoint unreachable", err)
	}

	return &datasource.Handle{Endpoint: endpoint, MySQL: db}, nil
}

func (d *dialect) Close(h *datasource.Handle) {
	if h.MySQL != nil {
		h.MySQL.Close()
	}
}

// dsnFromURL converts a mysql:// connection URL into the driver's DSN form.
// parseTime is forced on so temporal columns scan as time.Time, and the
// statement deadline rides along as the max_execution_time session variable
// (MySQL applies it to SELECT statements only).
func dsnFromURL(rawURL string, cfg datasource.DialConfig) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("connection URL has no host")
	}

	mc := mysqldriver.NewConfig()
	mc.Net = "tcp"
	mc.Addr = u.Host
	mc.DBName = strings.TrimPrefix(u.Path, "/")
	if u.User != nil {
		mc.User = u.User.Username()
		mc.Passwd, _ = u.User.Password()
	}
	mc.ParseTime = true
	if cfg.PreflightTimeout > 0 {
		mc.Timeout = cfg.PreflightTimeout
	}

	mc.Params = make(map[string]string)
	for key, values := range u.Query() {
		// parseTime and timeout are owned by the settings above.
		if key == "parseTime" || key == "timeout" || len(values) == 0 {
			continue
		}
		mc.Params[key] = values[0]
	}
	if cfg.StatementTimeout > 0 {
		mc.Params["max_execution_time"] =
			strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}

	return mc.FormatDSN(), nil
}

var _ datasource.Dialect = (*dialect)(nil)
