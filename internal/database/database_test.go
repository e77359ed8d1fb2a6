package database

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"minority/internal/config"
)

// pgDSN is set by TestMain when a Postgres container is running.
var pgDSN string

func mustStartPostgresContainer() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	var (
		dbName = "database"
		dbPwd  = "password"
		dbUser = "user"
	)

	// Create context with timeout to prevent hanging
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbContainer, err := postgres.Run(
		ctx,
		"postgres:latest",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	dbHost, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, err
	}

	dbPort, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, err
	}

	pgDSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", dbUser, dbPwd, dbHost, dbPort.Port(), dbName)
	return dbContainer.Terminate, nil
}

func TestMain(m *testing.M) {
	var teardown func(context.Context, ...testcontainers.TerminateOption) error

	// SQLite tests always run; Postgres ones only with Docker.
	if os.Getenv("SKIP_INTEGRATION") == "" && isDockerAvailable() {
		var err error
		teardown, err = mustStartPostgresContainer()
		if err != nil {
			pgDSN = ""
		}
	}

	code := m.Run()

	if teardown != nil {
		teardown(context.Background())
	}

	os.Exit(code)
}

func isDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.DaemonHost(ctx)
	return err == nil
}

func postgresConfig(t *testing.T) config.DatabaseConfig {
	t.Helper()
	if pgDSN == "" {
		t.Skip("postgres container not available")
	}
	return config.DatabaseConfig{Driver: "postgres", DSN: pgDSN, AutoMigrate: true}
}

func sqliteConfig() config.DatabaseConfig {
	return config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", AutoMigrate: true}
}

func TestNew(t *testing.T) {
	srv, err := New(postgresConfig(t))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if srv == nil {
		t.Fatal("New() returned nil")
	}
	srv.Close()
}

func TestHealth(t *testing.T) {
	for name, cfg := range map[string]func(*testing.T) config.DatabaseConfig{
		"sqlite":   func(*testing.T) config.DatabaseConfig { return sqliteConfig() },
		"postgres": postgresConfig,
	} {
		t.Run(name, func(t *testing.T) {
			srv, err := New(cfg(t))
			if err != nil {
				t.Fatalf("New() returned error: %v", err)
			}
			defer srv.Close()

			stats := srv.Health()

			if stats["status"] != "up" {
				t.Fatalf("expected status to be up, got %s", stats["status"])
			}

			if _, ok := stats["error"]; ok {
				t.Fatalf("expected error not to be present")
			}

			if stats["message"] != "It's healthy" {
				t.Fatalf("expected message to be 'It's healthy', got %s", stats["message"])
			}
		})
	}
}

func TestClose(t *testing.T) {
	srv, err := New(sqliteConfig())
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	if srv.Close() != nil {
		t.Fatalf("expected Close() to return nil")
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, _, err := Open(config.DatabaseConfig{Driver: "mysql"}); err == nil {
		t.Fatal("expected an error for an unsupported driver")
	}
}

func TestMigrations_RoundTrip(t *testing.T) {
	db, dialect, err := Open(sqliteConfig())
	if err != nil {
		t.Fatalf("Open() returned error: %v", err)
	}
	defer db.Close()

	if err := RunMigrations(db, dialect); err != nil {
		t.Fatalf("RunMigrations() returned error: %v", err)
	}
	version, dirty, err := GetMigrationVersion(db, dialect)
	if err != nil || dirty || version != 1 {
		t.Fatalf("version = %d dirty = %v err = %v", version, dirty, err)
	}

	// running again is a no-op
	if err := RunMigrations(db, dialect); err != nil {
		t.Fatalf("second RunMigrations() returned error: %v", err)
	}

	if err := RollbackMigration(db, dialect); err != nil {
		t.Fatalf("RollbackMigration() returned error: %v", err)
	}
	if _, err := db.Exec(`SELECT 1 FROM rounds`); err == nil {
		t.Fatal("rounds table survived rollback")
	}
}
