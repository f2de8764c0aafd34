package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type postgresDialect struct{}

func (postgresDialect) engine() Engine { return EnginePostgres }

func (postgresDialect) dialector(cfg Config) (gorm.Dialector, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, ErrMissingDSN
	}
	return postgres.Open(dsn), nil
}

func (postgresDialect) configurePool(db *sql.DB) {
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(50)
	db.SetConnMaxLifetime(30 * time.Minute)
}

// The pgx driver has no LastInsertId, so inserts return their rows instead.
func (postgresDialect) run(ctx context.Context, db *gorm.DB, query string, args []any) (Result, error) {
	if !isInsert(query) {
		exec := db.Exec(query, args...)
		return Result{Affected: exec.RowsAffected}, exec.Error
	}

	statement := strings.TrimRight(strings.TrimSpace(query), ";")
	if !strings.Contains(strings.ToLower(statement), " returning ") {
		statement += " RETURNING *"
	}
	rows, err := db.Raw(statement, args...).Rows()
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}
	idIndex := -1
	for index, column := range columns {
		if column == "id" {
			idIndex = index
			break
		}
	}

	var result Result
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for index := range values {
			pointers[index] = &values[index]
		}
		if err := rows.Scan(pointers...); err != nil {
			return Result{}, err
		}
		if idIndex >= 0 {
			id, err := toInt64(values[idIndex])
			if err != nil {
				return Result{}, err
			}
			result.GeneratedID = id
		}
		result.Affected++
	}
	return result, rows.Err()
}

func (postgresDialect) insertIgnore(table string, columns []string) string {
	return "INSERT INTO " + insertIgnoreBody(table, columns) + " ON CONFLICT DO NOTHING"
}

func (postgresDialect) resyncSequence(ctx context.Context, db *gorm.DB, table string) error {
	statement := fmt.Sprintf(
		"SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE((SELECT MAX(id) FROM %s), 0) + 1, false)",
		table, table,
	)
	return db.WithContext(ctx).Exec(statement).Error
}

func toInt64(value any) (int64, error) {
	switch typed := value.(type) {
	case int64:
		return typed, nil
	case int32:
		return int64(typed), nil
	case int:
		return int64(typed), nil
	case []byte:
		return strconv.ParseInt(string(typed), 10, 64)
	case string:
		return strconv.ParseInt(typed, 10, 64)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("store: unexpected id type %T", value)
	}
}
