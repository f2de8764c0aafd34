package database

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/ghostwatch/internal/auth"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var testNow = time.Date(2026, time.October, 31, 21, 0, 0, 0, time.UTC)

func openTestDatabase(testContext *testing.T, path string, seed bool, logger *zap.Logger) store.Store {
	testContext.Helper()
	st, err := Open(context.Background(), Config{
		Engine:      store.EngineSQLite,
		Path:        path,
		SeedEnabled: seed,
		Clock:       func() time.Time { return testNow },
	}, logger)
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	return st
}

func countRows(testContext *testing.T, st store.Store, table string) int64 {
	testContext.Helper()
	var count int64
	if err := st.Query(context.Background(), &count, "SELECT COUNT(*) FROM "+table); err != nil {
		testContext.Fatalf("failed to count %s: %v", table, err)
	}
	return count
}

func TestOpenCreatesEveryTable(testContext *testing.T) {
	st := openTestDatabase(testContext, filepath.Join(testContext.TempDir(), "schema.db"), false, zap.NewNop())
	defer st.Close()

	var tables []string
	if err := st.Query(context.Background(), &tables, "SELECT name FROM sqlite_master WHERE type = 'table'"); err != nil {
		testContext.Fatalf("failed to list tables: %v", err)
	}
	present := make(map[string]bool, len(tables))
	for _, table := range tables {
		present[table] = true
	}
	for _, want := range []string{
		"users", "ghosts", "sightings", "sighting_reports_ghost", "sighting_comments", "ghost_comments",
		"tours", "tour_includes", "tour_sign_ups", "ghost_busters", "ghost_buster_fights_ghost", "db_migrations",
	} {
		if !present[want] {
			testContext.Fatalf("expected table %s to exist, have %v", want, tables)
		}
	}
}

func TestOpenIsIdempotentAndSeedsOnce(testContext *testing.T) {
	path := filepath.Join(testContext.TempDir(), "seed.db")

	first := openTestDatabase(testContext, path, true, zap.NewNop())
	users := countRows(testContext, first, "users")
	sightings := countRows(testContext, first, "sightings")
	signups := countRows(testContext, first, "tour_sign_ups")
	if users == 0 || sightings == 0 || signups == 0 {
		testContext.Fatalf("expected seed data, got users=%d sightings=%d signups=%d", users, sightings, signups)
	}
	if err := first.Close(); err != nil {
		testContext.Fatalf("close failed: %v", err)
	}

	second := openTestDatabase(testContext, path, true, zap.NewNop())
	defer second.Close()
	if got := countRows(testContext, second, "users"); got != users {
		testContext.Fatalf("expected %d users after restart, got %d", users, got)
	}
	if got := countRows(testContext, second, "sightings"); got != sightings {
		testContext.Fatalf("expected %d sightings after restart, got %d", sightings, got)
	}
	if got := countRows(testContext, second, "db_migrations"); got != int64(len(migrations())) {
		testContext.Fatalf("expected each migration recorded once, got %d", got)
	}
}

func TestSeedSkipsPopulatedDatabase(testContext *testing.T) {
	st := openTestDatabase(testContext, filepath.Join(testContext.TempDir(), "populated.db"), false, zap.NewNop())
	defer st.Close()
	ctx := context.Background()

	if _, err := st.Run(ctx, "INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)", "owner", "owner@campus.edu", "x", testNow); err != nil {
		testContext.Fatalf("insert failed: %v", err)
	}
	applied, err := Seed(ctx, st, zap.NewNop(), testNow)
	if err != nil {
		testContext.Fatalf("seed failed: %v", err)
	}
	if applied != 0 || countRows(testContext, st, "ghosts") != 0 {
		testContext.Fatalf("expected seeding to be skipped, applied=%d", applied)
	}
}

func TestSeedLogsAndSkipsFailingStatements(testContext *testing.T) {
	st := openTestDatabase(testContext, filepath.Join(testContext.TempDir(), "partial.db"), false, zap.NewNop())
	defer st.Close()
	ctx := context.Background()

	// A ghost already holding id 2 makes exactly one seed insert collide.
	if _, err := st.Run(ctx, "INSERT INTO ghosts (id, ghost_type, name, description, visibility) VALUES (?, ?, ?, ?, ?)", 2, "Wisp", "Squatter", "", 1); err != nil {
		testContext.Fatalf("insert failed: %v", err)
	}

	core, recorded := observer.New(zapcore.WarnLevel)
	applied, err := Seed(ctx, st, zap.New(core), testNow)
	if err != nil {
		testContext.Fatalf("seed failed: %v", err)
	}
	total := len(seedStatements(testNow, "hash"))
	if applied != total-1 {
		testContext.Fatalf("expected %d statements applied, got %d", total-1, applied)
	}
	failures := recorded.FilterMessage("seed statement failed").All()
	if len(failures) != 1 {
		testContext.Fatalf("expected one logged failure, got %d", len(failures))
	}
	if countRows(testContext, st, "users") == 0 {
		testContext.Fatalf("expected the remaining statements to run")
	}
}

func TestSeedPasswordsAreHashed(testContext *testing.T) {
	st := openTestDatabase(testContext, filepath.Join(testContext.TempDir(), "hash.db"), true, zap.NewNop())
	defer st.Close()

	var hashes []string
	if err := st.Query(context.Background(), &hashes, "SELECT password_hash FROM users ORDER BY id"); err != nil {
		testContext.Fatalf("query failed: %v", err)
	}
	if len(hashes) == 0 {
		testContext.Fatalf("expected seeded users")
	}
	if err := auth.ComparePassword(hashes[0], SeedPassword); err != nil {
		testContext.Fatalf("expected seed password to verify: %v", err)
	}
}

func TestClampVisibilityRangeMigration(testContext *testing.T) {
	st := openTestDatabase(testContext, filepath.Join(testContext.TempDir(), "clamp.db"), false, zap.NewNop())
	defer st.Close()
	ctx := context.Background()

	// Rebuild ghosts without its check constraint to simulate a legacy table.
	for _, statement := range []string{
		"DROP TABLE ghosts",
		"CREATE TABLE ghosts (id INTEGER PRIMARY KEY AUTOINCREMENT, ghost_type TEXT, name TEXT, description TEXT, visibility INTEGER)",
		"INSERT INTO ghosts (ghost_type, name, description, visibility) VALUES ('Wisp', 'Too Bright', '', 14)",
		"INSERT INTO ghosts (ghost_type, name, description, visibility) VALUES ('Wisp', 'Too Dim', '', -3)",
	} {
		if _, err := st.Run(ctx, statement); err != nil {
			testContext.Fatalf("fixture failed: %v", err)
		}
	}

	if err := clampVisibilityRange(ctx, st); err != nil {
		testContext.Fatalf("migration failed: %v", err)
	}

	var values []int
	if err := st.Query(ctx, &values, "SELECT visibility FROM ghosts ORDER BY id"); err != nil {
		testContext.Fatalf("query failed: %v", err)
	}
	if len(values) != 2 || values[0] != 10 || values[1] != 0 {
		testContext.Fatalf("expected clamped values [10 0], got %v", values)
	}
}

func TestMigrationsLeaveUnlinkedSightingsAlone(testContext *testing.T) {
	st := openTestDatabase(testContext, filepath.Join(testContext.TempDir(), "unlinked.db"), false, zap.NewNop())
	defer st.Close()
	ctx := context.Background()

	user, err := st.Run(ctx, "INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)", "u", "u@campus.edu", "x", testNow)
	if err != nil {
		testContext.Fatalf("insert user failed: %v", err)
	}
	if _, err := st.Run(ctx, "INSERT INTO sightings (visibility, sighted_at, user_report_id, description) VALUES (?, ?, ?, ?)", 5, testNow, user.GeneratedID, "unlinked"); err != nil {
		testContext.Fatalf("insert sighting failed: %v", err)
	}
	if _, err := st.Run(ctx, "DELETE FROM db_migrations"); err != nil {
		testContext.Fatalf("reset migrations failed: %v", err)
	}

	if err := applyMigrations(ctx, st, func() time.Time { return testNow }, zap.NewNop()); err != nil {
		testContext.Fatalf("migrations failed: %v", err)
	}
	if got := countRows(testContext, st, "sighting_reports_ghost"); got != 0 {
		testContext.Fatalf("expected the sighting to stay unlinked, got %d links", got)
	}
	if got := countRows(testContext, st, "ghosts"); got != 0 {
		testContext.Fatalf("expected no ghost to be created, got %d", got)
	}
}

type unreachableStore struct {
	store.Store
}

func (unreachableStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func TestWaitReadyStopsWhenTheContextEnds(testContext *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	err := waitReady(ctx, unreachableStore{}, 30*time.Second)
	if !errors.Is(err, context.Canceled) {
		testContext.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		testContext.Fatalf("expected the wait to end with the context, took %s", elapsed)
	}
}

func TestWaitReadyReportsTimeout(testContext *testing.T) {
	err := waitReady(context.Background(), unreachableStore{}, 200*time.Millisecond)
	if err == nil || errors.Is(err, context.Canceled) {
		testContext.Fatalf("expected a timeout error, got %v", err)
	}
	if !strings.Contains(err.Error(), "not ready") || !strings.Contains(err.Error(), "connection refused") {
		testContext.Fatalf("expected the timeout and the last ping error, got %v", err)
	}
}

func TestOpenRejectsUnknownEngine(testContext *testing.T) {
	if _, err := Open(context.Background(), Config{Engine: "oracle"}, nil); err == nil {
		testContext.Fatalf("expected an error for an unknown engine")
	}
}
