//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("ghostwatch"),
		postgres.WithUsername("ghostwatch"),
		postgres.WithPassword("ghostwatch"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to read connection string: %v", err)
	}
	return dsn
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	dsn := startPostgres(t)
	st, err := Open(Config{Engine: EnginePostgres, DSN: dsn, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("failed to open postgres store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	if _, err := st.Run(ctx, "CREATE TABLE widgets (id SERIAL PRIMARY KEY, name TEXT NOT NULL UNIQUE)"); err != nil {
		t.Fatalf("create table failed: %v", err)
	}

	created, err := st.Run(ctx, "INSERT INTO widgets (name) VALUES (?)", "lantern")
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if created.GeneratedID != 1 || created.Affected != 1 {
		t.Fatalf("unexpected insert result %+v", created)
	}

	ignored, err := st.InsertIgnore(ctx, "widgets", []string{"name"}, "lantern")
	if err != nil {
		t.Fatalf("insert ignore failed: %v", err)
	}
	if ignored.Affected != 0 {
		t.Fatalf("expected duplicate to be skipped, got %+v", ignored)
	}

	if _, err := st.Run(ctx, "INSERT INTO widgets (id, name) VALUES (?, ?)", 40, "seeded"); err != nil {
		t.Fatalf("explicit id insert failed: %v", err)
	}
	if err := st.ResyncSequence(ctx, "widgets"); err != nil {
		t.Fatalf("resync failed: %v", err)
	}
	next, err := st.Run(ctx, "INSERT INTO widgets (name) VALUES (?)", "candle")
	if err != nil {
		t.Fatalf("insert after resync failed: %v", err)
	}
	if next.GeneratedID != 41 {
		t.Fatalf("expected id 41 after resync, got %d", next.GeneratedID)
	}

	var names []string
	if err := st.Query(ctx, &names, "SELECT name FROM widgets ORDER BY id"); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(names) != 3 || names[2] != "candle" {
		t.Fatalf("unexpected names %v", names)
	}
}
