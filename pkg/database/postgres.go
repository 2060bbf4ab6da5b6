package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps the database/sql connection used by migrations and health checks
type DB struct {
	*sql.DB
}

// NewDB opens a lib/pq connection and verifies it
func NewDB(config Config) (*DB, error) {
	config = config.withDefaults()

	sqlDB, err := sql.Open("postgres", config.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Migrations run serially; a small pool is enough.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(1)
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", config, err)
	}

	return &DB{sqlDB}, nil
}

// Close closes the database connection gracefully
func (db *DB) Close() error {
	return db.DB.Close()
}

// HealthCheck performs a database health check with timeout
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("health check returned unexpected value: %d", result)
	}
	return nil
}
