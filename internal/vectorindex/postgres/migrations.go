package postgres

import (
	"context"
	"embed"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-search/internal/logging"
	"github.com/kozaktomas/face-search/internal/vectorindex"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// dimPlaceholder is replaced with the embedding dimension in migration SQL.
const dimPlaceholder = "{{dim}}"

type migration struct {
	version string
	sql     string
}

// loadMigrations returns the embedded migrations in version order with the
// dimension filled in.
func loadMigrations(dim int) ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var out []migration
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, migration{
			version: e.Name(),
			sql:     strings.ReplaceAll(string(content), dimPlaceholder, strconv.Itoa(dim)),
		})
	}
	slices.SortFunc(out, func(a, b migration) int { return strings.Compare(a.version, b.version) })
	return out, nil
}

// Migrate applies pending migrations, each in its own transaction, and checks
// that the faces table stores vectors of length dim.
func (p *Pool) Migrate(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dim)
	}
	if _, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := p.MigrationsApplied(ctx)
	if err != nil {
		return err
	}
	migrations, err := loadMigrations(dim)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if slices.Contains(applied, m.version) {
			continue
		}
		if err := p.apply(ctx, m); err != nil {
			return err
		}
		logging.Infow("applied migration", "version", m.version, "dim", dim)
	}

	return p.checkDim(ctx, dim)
}

func (p *Pool) apply(ctx context.Context, m migration) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for %s: %w", m.version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("execute migration %s: %w", m.version, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.version); err != nil {
		return fmt.Errorf("record migration %s: %w", m.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.version, err)
	}
	return nil
}

// checkDim compares the declared length of faces.embedding with dim.
// pgvector stores the length as the column's type modifier.
func (p *Pool) checkDim(ctx context.Context, dim int) error {
	var stored int
	err := p.db.QueryRowContext(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'faces'::regclass AND attname = 'embedding'
	`).Scan(&stored)
	if err != nil {
		return fmt.Errorf("read embedding dimension: %w", err)
	}
	if stored != dim {
		return fmt.Errorf("%w: faces table stores %d, configured %d", vectorindex.ErrDimensionMismatch, stored, dim)
	}
	return nil
}

// MigrationsApplied returns the applied migration versions in order.
func (p *Pool) MigrationsApplied(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration versions: %w", err)
	}
	return versions, nil
}
