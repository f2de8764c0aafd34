package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// dialect isolates the engine-specific pieces behind the shared gorm adapter.
type dialect interface {
	engine() Engine
	dialector(cfg Config) (gorm.Dialector, error)
	configurePool(db *sql.DB)
	run(ctx context.Context, db *gorm.DB, query string, args []any) (Result, error)
	insertIgnore(table string, columns []string) string
	resyncSequence(ctx context.Context, db *gorm.DB, table string) error
}

type gormStore struct {
	db      *gorm.DB
	dialect dialect
}

func (s *gormStore) Engine() Engine {
	return s.dialect.engine()
}

func (s *gormStore) Query(ctx context.Context, dest any, query string, args ...any) error {
	return s.db.WithContext(ctx).Raw(query, args...).Scan(dest).Error
}

func (s *gormStore) Run(ctx context.Context, query string, args ...any) (Result, error) {
	return s.dialect.run(ctx, s.db.WithContext(ctx), query, args)
}

func (s *gormStore) InsertIgnore(ctx context.Context, table string, columns []string, args ...any) (Result, error) {
	if err := validateIdentifiers(append([]string{table}, columns...)...); err != nil {
		return Result{}, err
	}
	if len(columns) != len(args) {
		return Result{}, fmt.Errorf("store: insert into %s: %d columns, %d values", table, len(columns), len(args))
	}
	return s.Run(ctx, s.dialect.insertIgnore(table, columns), args...)
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx, dialect: s.dialect})
	})
}

func (s *gormStore) ResyncSequence(ctx context.Context, table string) error {
	if err := validateIdentifiers(table); err != nil {
		return err
	}
	return s.dialect.resyncSequence(ctx, s.db.WithContext(ctx), table)
}

func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *gormStore) Gorm() *gorm.DB {
	return s.db
}

// execResult runs a statement on the current connection or transaction and
// reads the driver result. Used by engines whose drivers report LastInsertId.
func execResult(ctx context.Context, db *gorm.DB, query string, args []any) (Result, error) {
	result, err := db.Statement.ConnPool.ExecContext(ctx, query, args...)
	if err != nil {
		return Result{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Result{}, err
	}
	out := Result{Affected: affected}
	if isInsert(query) && affected > 0 {
		id, err := result.LastInsertId()
		if err == nil {
			out.GeneratedID = id
		}
	}
	return out, nil
}

func insertIgnoreBody(table string, columns []string) string {
	return fmt.Sprintf("%s (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders(len(columns)))
}

func newGormLogger(logger *zap.Logger) gormlogger.Interface {
	return gormlogger.New(
		zap.NewStdLog(logger.Named("gorm")),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
