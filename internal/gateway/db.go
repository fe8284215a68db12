package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
)

type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverDuckDB   Driver = "duckdb"
)

type DBConfig struct {
	Driver          Driver
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// Open connects to the data database. The connection is expected to carry no
// write privilege: Postgres deployments point the DSN at a read-only role,
// DuckDB files are opened with access_mode=read_only. That engine-level
// restriction is independent of SQL validation and stays in force even if the
// validator were bypassed.
func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	driverName, dsn, err := resolveDriver(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open data db: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping data db: %w", err)
	}

	return db, nil
}

func resolveDriver(cfg DBConfig) (string, string, error) {
	switch cfg.Driver {
	case DriverPostgres:
		if cfg.DSN == "" {
			return "", "", fmt.Errorf("data db dsn is required")
		}
		return "pgx", cfg.DSN, nil
	case DriverDuckDB:
		if cfg.DSN == "" {
			return "", "", fmt.Errorf("data db dsn is required")
		}
		return "duckdb", duckdbReadOnlyDSN(cfg.DSN), nil
	default:
		return "", "", fmt.Errorf("unsupported data db driver %q", cfg.Driver)
	}
}

func duckdbReadOnlyDSN(dsn string) string {
	if strings.Contains(dsn, "access_mode=") {
		return dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + "access_mode=read_only"
}
