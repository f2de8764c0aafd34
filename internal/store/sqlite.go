package store

import (
	"context"
	"database/sql"
	"strings"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const sqliteForeignKeysPragma = "_pragma=foreign_keys(1)"

type sqliteDialect struct{}

func (sqliteDialect) engine() Engine { return EngineSQLite }

func (sqliteDialect) dialector(cfg Config) (gorm.Dialector, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, ErrMissingPath
	}
	return sqlite.Open(sqliteDSN(path)), nil
}

// SQLite serializes writers; a single connection keeps the foreign key pragma
// and transactions on one handle.
func (sqliteDialect) configurePool(db *sql.DB) {
	db.SetMaxOpenConns(1)
}

func (sqliteDialect) run(ctx context.Context, db *gorm.DB, query string, args []any) (Result, error) {
	return execResult(ctx, db, query, args)
}

func (sqliteDialect) insertIgnore(table string, columns []string) string {
	return "INSERT OR IGNORE INTO " + insertIgnoreBody(table, columns)
}

func (sqliteDialect) resyncSequence(context.Context, *gorm.DB, string) error {
	return nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "foreign_keys") {
		return path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return path + separator + sqliteForeignKeysPragma
}
