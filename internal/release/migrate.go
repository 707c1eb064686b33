package release

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// migrationPool is the slice of pgxpool the migrator uses; pgxmock
// implements it for tests.
type migrationPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Migration is one versioned, idempotent schema change.
type Migration struct {
	Version    int
	Name       string
	Statements []string
}

// catalog is the ordered migration ladder. Statements use IF NOT EXISTS
// so a re-run over an up-to-date schema is a no-op, never corruption.
var catalog = []Migration{
	{
		Version: 1,
		Name:    "user_data admin flag",
		Statements: []string{
			`ALTER TABLE user_data ADD COLUMN IF NOT EXISTS is_admin BOOLEAN DEFAULT FALSE`,
		},
	},
	{
		Version: 2,
		Name:    "license usage accounting",
		Statements: []string{
			`ALTER TABLE license ADD COLUMN IF NOT EXISTS max_usage INTEGER DEFAULT 1000`,
			`ALTER TABLE license ADD COLUMN IF NOT EXISTS usage_count INTEGER DEFAULT 0`,
		},
	},
	{
		Version: 3,
		Name:    "license lifecycle",
		Statements: []string{
			`ALTER TABLE license ADD COLUMN IF NOT EXISTS last_used TIMESTAMPTZ`,
			`ALTER TABLE license ADD COLUMN IF NOT EXISTS revoked BOOLEAN DEFAULT FALSE`,
		},
	},
	{
		Version: 4,
		Name:    "user_data active flag",
		Statements: []string{
			`ALTER TABLE user_data ADD COLUMN IF NOT EXISTS is_active BOOLEAN DEFAULT TRUE`,
		},
	},
}

// Migrator applies pending schema migrations against Postgres.
type Migrator struct {
	pool   migrationPool
	logger *zap.Logger
}

// NewMigrator connects a Migrator to the database at dsn.
func NewMigrator(ctx context.Context, dsn string, logger *zap.Logger) (*Migrator, error) {
	if dsn == "" {
		return nil, fmt.Errorf("release.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewMigratorWithPool(pool, logger)
}

// NewMigratorWithPool constructs a Migrator from an existing pool
// (primarily for testing).
func NewMigratorWithPool(pool migrationPool, logger *zap.Logger) (*Migrator, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{pool: pool, logger: logger}, nil
}

// Apply runs all pending migrations in version order and returns the
// number applied. Any failure aborts immediately; nothing past the
// failing migration runs.
func (m *Migrator) Apply(ctx context.Context) (int, error) {
	if _, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return 0, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	var current int
	if err := m.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return 0, fmt.Errorf("read current schema version: %w", err)
	}

	applied := 0
	for _, mig := range catalog {
		if mig.Version <= current {
			continue
		}
		for _, stmt := range mig.Statements {
			if _, err := m.pool.Exec(ctx, stmt); err != nil {
				return applied, fmt.Errorf("migration %d (%s): %w", mig.Version, mig.Name, err)
			}
		}
		if _, err := m.pool.Exec(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
			mig.Version, mig.Name); err != nil {
			return applied, fmt.Errorf("record migration %d: %w", mig.Version, err)
		}
		m.logger.Info("migration applied",
			zap.Int("version", mig.Version),
			zap.String("name", mig.Name),
		)
		applied++
	}
	return applied, nil
}

// Close releases the underlying pool.
func (m *Migrator) Close() {
	m.pool.Close()
}
