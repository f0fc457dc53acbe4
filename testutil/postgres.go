// Package testutil provides shared test utilities for ffstorage
package testutil

import (
	"context"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fenixflow/ff-storage-sub000/db"
)

var suppressedLogger = log.New(io.Discard, "", 0)

// getPostgresVersion returns the PostgreSQL version to use for testing.
// It reads from the FFSTORAGE_POSTGRES_VERSION environment variable,
// defaulting to "17" if not set.
func getPostgresVersion() string {
	if version := os.Getenv("FFSTORAGE_POSTGRES_VERSION"); version != "" {
		return version
	}
	return "17"
}

// ContainerInfo holds PostgreSQL container connection details
type ContainerInfo struct {
	Container testcontainers.Container
	Config    *db.ConnectionConfig
	DSN       string
	DB        *db.DB
}

// SetupPostgresContainer starts a PostgreSQL container and connects to it
// through the pgx pool. The container is terminated when the test ends.
// Tests calling it are skipped under -short.
func SetupPostgresContainer(ctx context.Context, t *testing.T) *ContainerInfo {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	const (
		database = "testdb"
		username = "testuser"
		password = "testpass"
	)
	postgresContainer, err := postgres.Run(ctx,
		"postgres:"+getPostgresVersion()+"-alpine",
		postgres.WithDatabase(database),
		postgres.WithUsername(username),
		postgres.WithPassword(password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(suppressedLogger),
	)
	if err != nil {
		t.Fatalf("Failed to start container: %v", err)
	}
	t.Cleanup(func() {
		if err := postgresContainer.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	testDSN, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}
	host, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	config := &db.ConnectionConfig{
		Dialect:  db.Postgres,
		Host:     host,
		Port:     port.Int(),
		Database: database,
		User:     username,
		Password: password,
		SSLMode:  "disable",
		Pool:     db.PoolConfig{MinConns: 2, MaxConns: 10},
	}
	conn, err := db.Connect(ctx, config)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return &ContainerInfo{
		Container: postgresContainer,
		Config:    config,
		DSN:       testDSN,
		DB:        conn,
	}
}
