package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/joho/godotenv/autoload"
	log "github.com/sirupsen/logrus"

	"minority/internal/config"
	"minority/internal/database"
)

const MIGRATIONS_DIR = "./internal/database/migrations"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	if command == "create" {
		if len(os.Args) < 3 {
			log.Fatal("Usage: migrate create <migration_name>")
		}
		createMigration(getEnv("MIGRATIONS_PATH", MIGRATIONS_DIR), os.Args[2])
		return
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.Driver == "none" {
		log.Fatal("database.driver is none; nothing to migrate")
	}

	db, dialect, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	switch command {
	case "up":
		log.WithField("driver", dialect).Info("Running migrations...")
		if err := database.RunMigrations(db, dialect); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Info("Migrations completed successfully")

	case "down":
		log.WithField("driver", dialect).Info("Rolling back last migration...")
		if err := database.RollbackMigration(db, dialect); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		log.Info("Rollback completed successfully")

	case "version":
		version, dirty, err := database.GetMigrationVersion(db, dialect)
		if err != nil {
			log.Fatalf("Failed to get version: %v", err)
		}
		if dirty {
			log.Warnf("Current version: %d (DIRTY - needs manual intervention)", version)
		} else {
			log.Infof("Current version: %d", version)
		}

	default:
		log.Errorf("Unknown command: %s", command)
		printUsage()
		os.Exit(1)
	}
}

// createMigration writes an empty up/down pair. Migrations are embedded,
// so the binary must be rebuilt to pick them up.
func createMigration(dir, name string) {
	ups, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		log.Fatalf("Failed to read migrations directory: %v", err)
	}
	nextVersion := len(ups) + 1

	upFile := filepath.Join(dir, fmt.Sprintf("%06d_%s.up.sql", nextVersion, name))
	downFile := filepath.Join(dir, fmt.Sprintf("%06d_%s.down.sql", nextVersion, name))

	created := time.Now().UTC().Format(time.RFC3339)
	upContent := fmt.Sprintf("-- Migration: %s\n-- Created: %s\n\n-- Add your SQL here\n", name, created)
	if err := os.WriteFile(upFile, []byte(upContent), 0644); err != nil {
		log.Fatalf("Failed to create up migration: %v", err)
	}
	downContent := fmt.Sprintf("-- Rollback: %s\n\n-- Add your rollback SQL here\n", name)
	if err := os.WriteFile(downFile, []byte(downContent), 0644); err != nil {
		log.Fatalf("Failed to create down migration: %v", err)
	}

	log.Info("Created migration files:")
	log.Infof("   - %s", upFile)
	log.Infof("   - %s", downFile)
}

func printUsage() {
	fmt.Println("Database Migration Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  migrate up              Run all pending migrations")
	fmt.Println("  migrate down            Rollback the last migration")
	fmt.Println("  migrate version         Show current migration version")
	fmt.Println("  migrate create <name>   Create a new migration file")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  CONFIG_PATH             YAML config file (optional)")
	fmt.Println("  DB_DRIVER               postgres or sqlite (default: sqlite)")
	fmt.Println("  DB_DSN                  Connection string (default: minority.db)")
	fmt.Println("  MIGRATIONS_PATH         Where create writes files (default: " + MIGRATIONS_DIR + ")")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
