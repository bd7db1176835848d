package functions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite persists functions in a single table
type SQLite struct {
	path string
	db   *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open function database %q: %w", path, err)
	}
	// One connection serialises writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS dynamic_functions (
			name TEXT PRIMARY KEY,
			code TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			updated_at_unix_nano INTEGER NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialise function schema: %w", err)
	}
	return &SQLite{path: path, db: db}, nil
}

func (s *SQLite) Lookup(ctx context.Context, name string) (string, error) {
	var code string
	err := s.db.QueryRowContext(ctx, `SELECT code FROM dynamic_functions WHERE name = ?`, name).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound(name)
	}
	if err != nil {
		return "", fmt.Errorf("lookup function %s: %w", name, err)
	}
	return code, nil
}

func (s *SQLite) Get(ctx context.Context, name string) (*Function, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, code, description, updated_at_unix_nano
		FROM dynamic_functions
		WHERE name = ?
	`, name)

	fn, err := scanFunction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("get function %s: %w", name, err)
	}
	return &fn, nil
}

func (s *SQLite) List(ctx context.Context) ([]Function, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, code, description, updated_at_unix_nano
		FROM dynamic_functions
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list functions: %w", err)
	}
	defer rows.Close()

	var out []Function
	for rows.Next() {
		fn, err := scanFunction(rows)
		if err != nil {
			return nil, fmt.Errorf("list functions: %w", err)
		}
		out = append(out, fn)
	}
	return out, rows.Err()
}

func (s *SQLite) Put(ctx context.Context, fn Function) error {
	if err := ValidateFunction(fn); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dynamic_functions (name, code, description, updated_at_unix_nano)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			code = excluded.code,
			description = excluded.description,
			updated_at_unix_nano = excluded.updated_at_unix_nano
	`, fn.Name, fn.Code, fn.Description, time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("store function %s: %w", fn.Name, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dynamic_functions WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete function %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(name)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFunction(row scanner) (Function, error) {
	var (
		fn      Function
		updated int64
	)
	if err := row.Scan(&fn.Name, &fn.Code, &fn.Description, &updated); err != nil {
		return Function{}, err
	}
	fn.UpdatedAt = time.Unix(0, updated).UTC()
	return fn, nil
}
