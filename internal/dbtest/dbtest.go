// Package dbtest opens throwaway SQLite stores with the full schema for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/ghostwatch/internal/database"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/store"
	"go.uber.org/zap"
)

// FixedNow is the clock used by seeded test stores.
var FixedNow = time.Date(2026, time.October, 31, 21, 0, 0, 0, time.UTC)

// NewStore returns an empty, schema-ready store backed by a temp file.
func NewStore(t testing.TB) store.Store {
	t.Helper()
	return open(t, false)
}

// NewSeededStore returns a store holding the demonstration seed data.
func NewSeededStore(t testing.TB) store.Store {
	t.Helper()
	return open(t, true)
}

func open(t testing.TB, seed bool) store.Store {
	t.Helper()
	st, err := database.Open(context.Background(), database.Config{
		Engine:      store.EngineSQLite,
		Path:        filepath.Join(t.TempDir(), "ghostwatch.db"),
		SeedEnabled: seed,
		Clock:       func() time.Time { return FixedNow },
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// MustRun executes a fixture statement.
func MustRun(t testing.TB, st store.Store, query string, args ...any) store.Result {
	t.Helper()
	result, err := st.Run(context.Background(), query, args...)
	if err != nil {
		t.Fatalf("fixture statement failed: %v\n%s", err, query)
	}
	return result
}

// Count returns SELECT COUNT(*) for the given FROM/WHERE clause.
func Count(t testing.TB, st store.Store, clause string, args ...any) int64 {
	t.Helper()
	var count int64
	if err := st.Query(context.Background(), &count, "SELECT COUNT(*) FROM "+clause, args...); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return count
}

// CreateUser inserts a user with a placeholder password hash and returns its id.
func CreateUser(t testing.TB, st store.Store, username string) int64 {
	t.Helper()
	return MustRun(t, st,
		"INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)",
		username, username+"@campus.edu", "x", FixedNow,
	).GeneratedID
}

// CreateGhost inserts a ghost and returns its id.
func CreateGhost(t testing.TB, st store.Store, name string, visibility int) int64 {
	t.Helper()
	return MustRun(t, st,
		"INSERT INTO ghosts (ghost_type, name, description, visibility) VALUES (?, ?, ?, ?)",
		"Apparition", name, "", visibility,
	).GeneratedID
}

// CreateSighting inserts a sighting reported by userID at the given time.
func CreateSighting(t testing.TB, st store.Store, userID int64, sightedAt time.Time, description string) int64 {
	t.Helper()
	return MustRun(t, st,
		"INSERT INTO sightings (visibility, sighted_at, user_report_id, description) VALUES (?, ?, ?, ?)",
		5, sightedAt.UTC(), userID, description,
	).GeneratedID
}

// Link attaches a sighting to a ghost.
func Link(t testing.TB, st store.Store, sightingID, ghostID int64) {
	t.Helper()
	MustRun(t, st, "INSERT INTO sighting_reports_ghost (sighting_id, ghost_id) VALUES (?, ?)", sightingID, ghostID)
}
