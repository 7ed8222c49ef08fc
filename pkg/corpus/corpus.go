// Package corpus enumerates the plain-text documents fed to the pipeline.
package corpus

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"

	"github.com/soundprediction/lorekeeper/pkg/types"
)

// DefaultGlob matches the documents read by DirSource.
const DefaultGlob = "*.txt"

// Source yields corpus documents. Iteration stops at the first error.
type Source interface {
	Documents(ctx context.Context) iter.Seq2[types.Document, error]
}

// DirSource reads matching files from a directory in lexical order.
// A document's ID is its file name.
type DirSource struct {
	Dir  string
	Glob string
}

// NewDirSource creates a source over dir. An empty glob means DefaultGlob.
func NewDirSource(dir, glob string) *DirSource {
	if glob == "" {
		glob = DefaultGlob
	}
	return &DirSource{Dir: dir, Glob: glob}
}

// Paths returns the matching file paths in lexical order.
func (s *DirSource) Paths() ([]string, error) {
	info, err := os.Stat(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("corpus directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus path %q is not a directory", s.Dir)
	}
	paths, err := filepath.Glob(filepath.Join(s.Dir, s.Glob))
	if err != nil {
		return nil, fmt.Errorf("invalid corpus glob %q: %w", s.Glob, err)
	}
	slices.Sort(paths)
	return paths, nil
}

func (s *DirSource) Documents(ctx context.Context) iter.Seq2[types.Document, error] {
	return func(yield func(types.Document, error) bool) {
		paths, err := s.Paths()
		if err != nil {
			yield(types.Document{}, err)
			return
		}
		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				yield(types.Document{}, err)
				return
			}
			content, err := os.ReadFile(path)
			if err != nil {
				yield(types.Document{}, fmt.Errorf("read %s: %w", path, err))
				return
			}
			doc := types.Document{ID: filepath.Base(path), Path: path, Content: string(content)}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// SliceSource serves documents held in memory.
type SliceSource []types.Document

func (s SliceSource) Documents(ctx context.Context) iter.Seq2[types.Document, error] {
	return func(yield func(types.Document, error) bool) {
		for _, doc := range s {
			if err := ctx.Err(); err != nil {
				yield(types.Document{}, err)
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}
