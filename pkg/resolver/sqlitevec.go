//go:build cgo

package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS resolution_names (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
CREATE VIRTUAL TABLE IF NOT EXISTS vec_resolution USING vec0(
	embedding float[%d] distance_metric=cosine
);`

// SQLiteVecStore persists canonical names in SQLite with a sqlite-vec index.
type SQLiteVecStore struct {
	db   *sql.DB
	dims int
}

// NewSQLiteVecStore opens (or creates) the database at path with vectors of width dims.
func NewSQLiteVecStore(path string, dims int) (*SQLiteVecStore, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("sqlitevec store needs a positive embedding width, got %d", dims)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf(sqliteSchema, dims)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create resolution schema: %w", err)
	}
	return &SQLiteVecStore{db: db, dims: dims}, nil
}

func (s *SQLiteVecStore) check(vec []float32) error {
	if len(vec) != s.dims {
		return fmt.Errorf("%w: got %d, store has %d", ErrDimensionMismatch, len(vec), s.dims)
	}
	return nil
}

func (s *SQLiteVecStore) Nearest(ctx context.Context, embedding []float32) (*Match, error) {
	if err := s.check(embedding); err != nil {
		return nil, err
	}
	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize embedding: %w", err)
	}

	// k > 1 so equidistant names can be ordered by name.
	row := s.db.QueryRowContext(ctx, `
		SELECT n.name, knn.distance
		FROM (
			SELECT rowid, distance FROM vec_resolution
			WHERE embedding MATCH ? AND k = 4
		) knn
		JOIN resolution_names n ON n.id = knn.rowid
		ORDER BY knn.distance, n.name
		LIMIT 1`, blob)

	var m Match
	if err := row.Scan(&m.Name, &m.Distance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("nearest neighbour query failed: %w", err)
	}
	return &m, nil
}

func (s *SQLiteVecStore) Register(ctx context.Context, name string, embedding []float32) (bool, error) {
	if err := s.check(embedding); err != nil {
		return false, err
	}
	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return false, fmt.Errorf("failed to serialize embedding: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO resolution_names (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name)
	if err != nil {
		return false, fmt.Errorf("failed to register %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO vec_resolution (rowid, embedding) VALUES (?, ?)`, id, blob); err != nil {
		return false, fmt.Errorf("failed to index %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteVecStore) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resolution_names`).Scan(&n)
	return n, err
}

func (s *SQLiteVecStore) Close() error {
	return s.db.Close()
}
