package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

type mysqlDialect struct{}

func (mysqlDialect) engine() Engine { return EngineMySQL }

func (mysqlDialect) dialector(cfg Config) (gorm.Dialector, error) {
	dsn, err := normalizeMySQLDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	return mysql.New(mysql.Config{
		DSN:                       dsn,
		SkipInitializeWithVersion: true,
	}), nil
}

func (mysqlDialect) configurePool(db *sql.DB) {
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(50)
	db.SetConnMaxLifetime(30 * time.Minute)
}

func (mysqlDialect) run(ctx context.Context, db *gorm.DB, query string, args []any) (Result, error) {
	return execResult(ctx, db, query, args)
}

func (mysqlDialect) insertIgnore(table string, columns []string) string {
	return "INSERT IGNORE INTO " + insertIgnoreBody(table, columns)
}

func (mysqlDialect) resyncSequence(context.Context, *gorm.DB, string) error {
	return nil
}

// normalizeMySQLDSN forces time parsing in UTC so DATETIME columns scan into time.Time.
func normalizeMySQLDSN(raw string) (string, error) {
	dsn := strings.TrimSpace(raw)
	if dsn == "" {
		return "", ErrMissingDSN
	}
	dsn = strings.TrimPrefix(dsn, "mysql://")
	parsed, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("store: parse mysql dsn: %w", err)
	}
	parsed.ParseTime = true
	parsed.Loc = time.UTC
	if parsed.Params == nil {
		parsed.Params = map[string]string{}
	}
	if _, ok := parsed.Params["charset"]; !ok {
		parsed.Params["charset"] = "utf8mb4"
	}
	return parsed.FormatDSN(), nil
}
