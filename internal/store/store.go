package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine names a supported relational engine.
type Engine string

const (
	EngineSQLite   Engine = "sqlite"
	EngineMySQL    Engine = "mysql"
	EnginePostgres Engine = "postgres"
)

var (
	ErrUnknownEngine     = errors.New("store: unknown database engine")
	ErrMissingPath       = errors.New("store: sqlite database path is required")
	ErrMissingDSN        = errors.New("store: database dsn is required")
	ErrInvalidIdentifier = errors.New("store: invalid sql identifier")
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ParseEngine normalizes a configured engine name.
func ParseEngine(value string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "sqlite", "sqlite3", "":
		return EngineSQLite, nil
	case "mysql", "mariadb":
		return EngineMySQL, nil
	case "postgres", "postgresql", "pg":
		return EnginePostgres, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEngine, value)
	}
}

// Result normalizes the outcome of a write statement across engines.
type Result struct {
	GeneratedID int64
	Affected    int64
}

// Store is the engine-agnostic access layer. Statements use positional "?"
// placeholders; values are always bound by the driver.
type Store interface {
	Engine() Engine
	// Query runs a read statement and scans every row, in order, into dest
	// (a pointer to a slice of structs or a pointer to a scalar).
	Query(ctx context.Context, dest any, query string, args ...any) error
	// Run executes a write statement.
	Run(ctx context.Context, query string, args ...any) (Result, error)
	// InsertIgnore inserts one row and silently skips it when a unique or
	// primary key already holds the same values.
	InsertIgnore(ctx context.Context, table string, columns []string, args ...any) (Result, error)
	// Transaction runs fn against a transactional Store; any returned error rolls back.
	Transaction(ctx context.Context, fn func(tx Store) error) error
	// ResyncSequence moves an autoincrement counter past explicitly inserted ids.
	ResyncSequence(ctx context.Context, table string) error
	Ping(ctx context.Context) error
	Close() error
	Gorm() *gorm.DB
}

// Config describes how to reach the configured engine.
type Config struct {
	Engine Engine
	Path   string
	DSN    string
	Logger *zap.Logger
}

// Open connects to the configured engine and returns its Store adapter.
func Open(cfg Config) (Store, error) {
	var adapter dialect
	switch cfg.Engine {
	case EngineSQLite:
		adapter = sqliteDialect{}
	case EngineMySQL:
		adapter = mysqlDialect{}
	case EnginePostgres:
		adapter = postgresDialect{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Engine)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dialector, err := adapter.dialector(cfg)
	if err != nil {
		return nil, err
	}
	// Connectivity is checked by the caller's readiness wait, not at open.
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:               newGormLogger(logger),
		TranslateError:       true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", cfg.Engine, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	adapter.configurePool(sqlDB)

	return &gormStore{db: db, dialect: adapter}, nil
}

func validateIdentifiers(names ...string) error {
	for _, name := range names {
		if !identifierPattern.MatchString(name) {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
		}
	}
	return nil
}

func isInsert(query string) bool {
	trimmed := strings.TrimSpace(query)
	return len(trimmed) >= 6 && strings.EqualFold(trimmed[:6], "insert")
}

func placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", count), ", ")
}
