package sqlsource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql" // register mysql as a database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "github.com/mattn/go-sqlite3"    // register sqlite3 as a database/sql driver

	ge "github.com/mimiro-io/grade-export"
)

// DriverName maps the configured database flavour to the registered database/sql driver.
func DriverName(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pgx":
		return "pgx", nil
	case "mysql", "mariadb":
		return "mysql", nil
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	default:
		return "", ge.Errorf(ge.LayerErrorBadParameter, "unsupported database driver %q", driver)
	}
}

func placeholderFormat(driverName string) sq.PlaceholderFormat {
	if driverName == "pgx" {
		return sq.Dollar
	}
	return sq.Question
}

// Open connects to the configured database, retrying the initial ping with exponential backoff.
func Open(ctx context.Context, conf *ge.DatabaseConfig, logger ge.Logger) (*sql.DB, error) {
	name, err := DriverName(conf.Driver)
	if err != nil {
		return nil, err
	}
	if conf.DSN == "" {
		return nil, ge.Errorf(ge.LayerErrorBadParameter, "no dsn configured for %s", conf.Driver)
	}

	db, err := sql.Open(name, conf.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	retries := conf.ConnectRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries)), ctx)
	err = backoff.RetryNotify(func() error {
		return db.PingContext(ctx)
	}, policy, func(err error, wait time.Duration) {
		logger.Warn("database not reachable, retrying", "error", err.Error(), "wait", wait.String())
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", name, err)
	}
	return db, nil
}
