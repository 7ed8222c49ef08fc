//go:build !cgo

package resolver

import (
	"context"
	"errors"
)

// ErrCGORequired is returned when the sqlite-vec store is used without CGO support.
var ErrCGORequired = errors.New("sqlitevec resolver store requires CGO; build with CGO_ENABLED=1")

// SQLiteVecStore is a stub when CGO is disabled.
type SQLiteVecStore struct{}

// NewSQLiteVecStore returns ErrCGORequired when CGO is disabled.
func NewSQLiteVecStore(path string, dims int) (*SQLiteVecStore, error) {
	return nil, ErrCGORequired
}

func (s *SQLiteVecStore) Nearest(context.Context, []float32) (*Match, error) {
	return nil, ErrCGORequired
}

func (s *SQLiteVecStore) Register(context.Context, string, []float32) (bool, error) {
	return false, ErrCGORequired
}

func (s *SQLiteVecStore) Len(context.Context) (int, error) { return 0, ErrCGORequired }

func (s *SQLiteVecStore) Close() error { return nil }
