package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		cfg: cfg,
	}, nil
}

// Open creates, initializes, and migrates a store in one step.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	store, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	// Verify connection and set PRAGMAs
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveResolution stores a resolution and its per-service results in one
// transaction.
func (s *SQLiteStore) SaveResolution(ctx context.Context, record *ResolutionRecord) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO resolutions (id, created_at, valid, fulfilled_count, unmet_count, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, query,
		record.ID,
		record.CreatedAt,
		record.Valid,
		record.FulfilledCount,
		record.UnmetCount,
		record.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to insert resolution: %w", err)
	}

	serviceQuery := `
		INSERT INTO service_results (resolution_id, slug, optional, fulfilled, reasons)
		VALUES (?, ?, ?, ?, ?)
	`

	for i := range record.Services {
		sr := &record.Services[i]
		_, err = tx.ExecContext(ctx, serviceQuery,
			record.ID,
			sr.Slug,
			sr.Optional,
			sr.Fulfilled,
			sr.Reasons,
		)
		if err != nil {
			return fmt.Errorf("failed to insert service result %s: %w", sr.Slug, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resolution: %w", err)
	}

	return nil
}

// GetResolution retrieves a resolution with its service results by ID
func (s *SQLiteStore) GetResolution(ctx context.Context, id string) (*ResolutionRecord, error) {
	query := `
		SELECT id, created_at, valid, fulfilled_count, unmet_count, detail
		FROM resolutions
		WHERE id = ?
	`

	record := &ResolutionRecord{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID,
		&record.CreatedAt,
		&record.Valid,
		&record.FulfilledCount,
		&record.UnmetCount,
		&record.Detail,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("resolution not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resolution: %w", err)
	}

	services, err := s.serviceResults(ctx, id)
	if err != nil {
		return nil, err
	}
	record.Services = services

	return record, nil
}

// ListResolutions lists the most recent resolutions, newest first. A
// non-positive limit returns the default page of 20.
func (s *SQLiteStore) ListResolutions(ctx context.Context, limit int) ([]*ResolutionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, created_at, valid, fulfilled_count, unmet_count, detail
		FROM resolutions
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list resolutions: %w", err)
	}
	defer rows.Close()

	records := []*ResolutionRecord{}
	for rows.Next() {
		record := &ResolutionRecord{}
		err := rows.Scan(
			&record.ID,
			&record.CreatedAt,
			&record.Valid,
			&record.FulfilledCount,
			&record.UnmetCount,
			&record.Detail,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resolutions: %w", err)
	}

	for _, record := range records {
		services, err := s.serviceResults(ctx, record.ID)
		if err != nil {
			return nil, err
		}
		record.Services = services
	}

	return records, nil
}

// serviceResults loads the per-service rows for a resolution.
func (s *SQLiteStore) serviceResults(ctx context.Context, resolutionID string) ([]ServiceResult, error) {
	query := `
		SELECT resolution_id, slug, optional, fulfilled, reasons
		FROM service_results
		WHERE resolution_id = ?
		ORDER BY slug ASC
	`

	rows, err := s.db.QueryContext(ctx, query, resolutionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list service results: %w", err)
	}
	defer rows.Close()

	results := []ServiceResult{}
	for rows.Next() {
		sr := ServiceResult{}
		err := rows.Scan(
			&sr.ResolutionID,
			&sr.Slug,
			&sr.Optional,
			&sr.Fulfilled,
			&sr.Reasons,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service result: %w", err)
		}
		results = append(results, sr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating service results: %w", err)
	}

	return results, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
