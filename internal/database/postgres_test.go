//go:build integration

package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *Pool {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil || container == nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())
	pool, err := Open(ctx, DriverPostgres, dsn)
	if err != nil {
		t.Fatalf("Failed to open pool: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func TestPostgres_EachRowVectorColumn(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()

	for _, stmt := range []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE people (user_id BIGINT PRIMARY KEY, embedding vector(3), name TEXT, enrolled_at TIMESTAMPTZ)`,
		`INSERT INTO people VALUES (7, '[0.1,0.2,0.3]', 'Alice', '2024-05-01T10:00:00Z')`,
	} {
		if _, err := pool.DB().ExecContext(ctx, stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}

	var rows []Row
	err := pool.EachRow(ctx, `SELECT user_id, embedding, name, enrolled_at FROM people`, func(r Row) error {
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		t.Fatalf("EachRow: %v", err)
	}
	if len(rows) != 1 || rows[0].Err != nil {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[0].UserID != "7" || len(rows[0].Embedding) != 3 {
		t.Errorf("unexpected row: %+v", rows[0])
	}
	if rows[0].Metadata["enrolled_at"] != "2024-05-01T10:00:00Z" {
		t.Errorf("enrolled_at = %v", rows[0].Metadata["enrolled_at"])
	}
}
