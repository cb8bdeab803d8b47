// Package migrate applies the embedded SQL schema files in lexical order,
// recording each applied file in schema_migrations.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/ekklesia/commhub/internal/pkg/logger"
)

const ledger = `CREATE TABLE IF NOT EXISTS schema_migrations (
	name       TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Migration is one schema file and whether it has been applied.
type Migration struct {
	Name    string
	Applied bool
}

// Files returns the *.sql names in fsys, sorted.
func Files(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Status lists every migration with its applied flag.
func Status(ctx context.Context, db *sql.DB, fsys fs.FS) ([]Migration, error) {
	files, err := Files(fsys)
	if err != nil {
		return nil, err
	}
	applied, err := appliedSet(ctx, db)
	if err != nil {
		return nil, err
	}
	out := make([]Migration, 0, len(files))
	for _, f := range files {
		_, ok := applied[f]
		out = append(out, Migration{Name: f, Applied: ok})
	}
	return out, nil
}

// Up applies pending migrations, each in its own transaction. It stops at
// the first failure and returns how many were applied before it.
func Up(ctx context.Context, db *sql.DB, fsys fs.FS) (int, error) {
	files, err := Files(fsys)
	if err != nil {
		return 0, err
	}
	applied, err := appliedSet(ctx, db)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, f := range files {
		if _, ok := applied[f]; ok {
			continue
		}
		data, err := fs.ReadFile(fsys, f)
		if err != nil {
			return n, fmt.Errorf("read %s: %w", f, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		if err := apply(ctx, db, f, string(data)); err != nil {
			return n, err
		}
		logger.Info("migration applied", "file", f)
		n++
	}
	return n, nil
}

func apply(ctx context.Context, db *sql.DB, name, content string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, content); err != nil {
		return fmt.Errorf("apply %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
		return fmt.Errorf("record %s: %w", name, err)
	}
	return tx.Commit()
}

func appliedSet(ctx context.Context, db *sql.DB) (map[string]struct{}, error) {
	if _, err := db.ExecContext(ctx, ledger); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	rows, err := db.QueryContext(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied: %w", err)
	}
	defer rows.Close()

	out := map[string]struct{}{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = struct{}{}
	}
	return out, rows.Err()
}
