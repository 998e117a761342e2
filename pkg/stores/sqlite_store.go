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

	"github.com/openhoist/openhoist/pkg/assets"
	"github.com/openhoist/openhoist/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded filesystem.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CreateDeployment records a new deployment run.
func (s *SQLiteStore) CreateDeployment(ctx context.Context, d *Deployment) error {
	query := `
		INSERT INTO deployments (id, stack, mode, status, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Stack, string(d.Mode), string(d.Status), d.Error, d.StartedAt, d.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to create deployment: %w", err)
	}
	return nil
}

// CompleteDeployment sets the terminal status of a deployment run.
func (s *SQLiteStore) CompleteDeployment(ctx context.Context, id string, status DeploymentStatus, errMsg *string) error {
	now := time.Now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE deployments SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(status), errMsg, now, id)
	if err != nil {
		return fmt.Errorf("failed to complete deployment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("deployment not found: %s", id)
	}
	return nil
}

// GetDeployment retrieves a deployment run by ID.
func (s *SQLiteStore) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	query := `
		SELECT id, stack, mode, status, error, started_at, completed_at
		FROM deployments
		WHERE id = ?
	`
	d := &Deployment{}
	var mode, status string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.Stack, &mode, &status, &d.Error, &d.StartedAt, &d.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("deployment not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}
	d.Mode = engine.Mode(mode)
	d.Status = DeploymentStatus(status)
	return d, nil
}

// ListDeployments returns the most recent deployment runs of a stack.
func (s *SQLiteStore) ListDeployments(ctx context.Context, stack string, limit int) ([]*Deployment, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, stack, mode, status, error, started_at, completed_at
		FROM deployments
		WHERE stack = ?
		ORDER BY started_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, stack, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	defer rows.Close()

	var out []*Deployment
	for rows.Next() {
		d := &Deployment{}
		var mode, status string
		if err := rows.Scan(&d.ID, &d.Stack, &mode, &status, &d.Error, &d.StartedAt, &d.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		d.Mode = engine.Mode(mode)
		d.Status = DeploymentStatus(status)
		out = append(out, d)
	}
	return out, rows.Err()
}

// SaveExports stores the export map of a deployment run.
func (s *SQLiteStore) SaveExports(ctx context.Context, deploymentID string, exports []engine.Export) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range exports {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO exports (deployment_id, name, value) VALUES (?, ?, ?)`,
			deploymentID, e.Name, e.Value); err != nil {
			return fmt.Errorf("failed to save export %s: %w", e.Name, err)
		}
	}
	return tx.Commit()
}

// LatestExports returns the exports of the most recent successful apply of a
// stack.
func (s *SQLiteStore) LatestExports(ctx context.Context, stack string) ([]engine.Export, error) {
	query := `
		SELECT e.name, e.value
		FROM exports e
		WHERE e.deployment_id = (
			SELECT id FROM deployments
			WHERE stack = ? AND mode = ? AND status = ?
			ORDER BY started_at DESC LIMIT 1
		)
		ORDER BY e.name
	`
	rows, err := s.db.QueryContext(ctx, query,
		stack, string(engine.ModeApply), string(DeploymentStatusSucceeded))
	if err != nil {
		return nil, fmt.Errorf("failed to query exports: %w", err)
	}
	defer rows.Close()

	var out []engine.Export
	for rows.Next() {
		var e engine.Export
		if err := rows.Scan(&e.Name, &e.Value); err != nil {
			return nil, fmt.Errorf("failed to scan export: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordPublishedObjects stores the publish results of a deployment run.
func (s *SQLiteStore) RecordPublishedObjects(ctx context.Context, deploymentID string, objects []assets.PublishedObject) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, o := range objects {
		var expires *time.Time
		if !o.ExpiresAt.IsZero() {
			t := o.ExpiresAt
			expires = &t
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO published_objects (deployment_id, name, content_type, size, signed_url, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			deploymentID, o.Name, o.ContentType, o.Size, nullable(o.SignedURL), expires); err != nil {
			return fmt.Errorf("failed to record object %s: %w", o.Name, err)
		}
	}
	return tx.Commit()
}

// AppliedRuleIDs returns the rule identifiers recorded for a scope.
func (s *SQLiteStore) AppliedRuleIDs(ctx context.Context, scope string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rule_id FROM firewall_rules WHERE scope = ? ORDER BY rule_id`, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// RecordRules replaces the recorded rule set for a scope.
func (s *SQLiteStore) RecordRules(ctx context.Context, scope string, rules []engine.AddressRule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM firewall_rules WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}

	now := time.Now()
	for _, r := range rules {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO firewall_rules (scope, rule_id, address, updated_at) VALUES (?, ?, ?, ?)`,
			scope, r.ID, r.StartAddress, now); err != nil {
			return fmt.Errorf("failed to record rule %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
