package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"
)

// Runner applies one migration source to a Postgres database. The SQL uses
// partial indexes so other dialects are not supported here; SQLite schemas
// come from the models instead.
type Runner struct {
	provider *goose.Provider
}

func NewRunner(db *sql.DB, source fs.FS) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if err := ValidateFS(source); err != nil {
		return nil, err
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, source)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: p}, nil
}

func (r *Runner) Up(ctx context.Context) ([]*goose.MigrationResult, error) {
	return r.provider.Up(ctx)
}

// Down rolls back the last applied migration.
func (r *Runner) Down(ctx context.Context) (*goose.MigrationResult, error) {
	return r.provider.Down(ctx)
}

func (r *Runner) Status(ctx context.Context) ([]*goose.MigrationStatus, error) {
	return r.provider.Status(ctx)
}

// MigrateTo moves the schema up or down until version is the newest applied
// migration. version uses the YYYYMMDDHHMMSS file prefix.
func (r *Runner) MigrateTo(ctx context.Context, version string) ([]*goose.MigrationResult, error) {
	target, err := strconv.ParseInt(version, 10, 64)
	if err != nil || target < 0 {
		return nil, fmt.Errorf("invalid version %q", version)
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("current version: %w", err)
	}
	switch {
	case target > current:
		return r.provider.UpTo(ctx, target)
	case target < current:
		return r.provider.DownTo(ctx, target)
	default:
		return nil, nil
	}
}
