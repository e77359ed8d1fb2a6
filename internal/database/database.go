package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"minority/internal/config"
)

// Dialect selects SQL driver and placeholder style.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// Service owns the database handle and the history store on top of it.
type Service interface {
	Health() map[string]string
	Close() error
	Store() *Store
}

type service struct {
	db      *sql.DB
	dialect Dialect
	store   *Store
}

// Open connects to the configured database and checks it answers.
func Open(cfg config.DatabaseConfig) (*sql.DB, Dialect, error) {
	dialect := Dialect(cfg.Driver)
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, "", fmt.Errorf("unsupported driver %q", cfg.Driver)
	}

	db, err := sql.Open(dialect.driverName(), cfg.DSN)
	if err != nil {
		return nil, "", fmt.Errorf("open: %w", err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1) // SQLite is single-writer
		db.SetMaxIdleConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("ping: %w", err)
	}
	return db, dialect, nil
}

// New opens the configured database, optionally migrating it.
func New(cfg config.DatabaseConfig) (Service, error) {
	db, dialect, err := Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("database.New: %w", err)
	}

	if cfg.AutoMigrate {
		if err := RunMigrations(db, dialect); err != nil {
			db.Close()
			return nil, fmt.Errorf("database.New: %w", err)
		}
	}

	log.WithField("driver", dialect).Info("[DB] connected")
	return &service{db: db, dialect: dialect, store: NewStore(db, dialect)}, nil
}

func (s *service) Store() *Store {
	return s.store
}

// Health checks the health of the database connection by pinging the
// database. It returns a map with keys indicating various health
// statistics.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"
	stats["driver"] = string(s.dialect)

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()

	if dbStats.OpenConnections > 40 {
		stats["message"] = "The database is experiencing heavy load."
	}
	if dbStats.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}

	return stats
}

func (s *service) Close() error {
	log.Info("[DB] disconnecting")
	return s.db.Close()
}
