// Package checkpoint records per-chunk progress so an interrupted or partially
// failed extraction run can be resumed.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// ErrLedgerLocked is returned when another process holds the ledger.
var ErrLedgerLocked = errors.New("ledger is locked by another process")

const ledgerVersion = 1

// ChunkStatus is the last known outcome of a chunk.
type ChunkStatus string

const (
	StatusDone   ChunkStatus = "done"
	StatusFailed ChunkStatus = "failed"
)

// ChunkRecord is the ledger entry for one chunk.
type ChunkRecord struct {
	DocumentID    string      `json:"document_id"`
	ChunkIndex    int         `json:"chunk_index"`
	Hash          string      `json:"hash"`
	Status        ChunkStatus `json:"status"`
	Reason        string      `json:"reason,omitempty"`
	AttemptCount  int         `json:"attempt_count"`
	LastUpdatedAt time.Time   `json:"last_updated_at"`
}

// CanRetry reports whether a failed chunk is still under the attempt limit.
// A non-positive limit means unlimited.
func (r *ChunkRecord) CanRetry(maxAttempts int) bool {
	return r.Status == StatusFailed && (maxAttempts <= 0 || r.AttemptCount < maxAttempts)
}

// Ledger is the on-disk state, keyed by chunk hash.
type Ledger struct {
	Version       int                     `json:"version"`
	Chunks        map[string]*ChunkRecord `json:"chunks"`
	LastUpdatedAt time.Time               `json:"last_updated_at"`
}

// Manager owns a ledger file for the lifetime of a run. The file is guarded
// by an advisory lock so two runs cannot interleave writes.
type Manager struct {
	path   string
	lock   *flock.Flock
	mu     sync.Mutex
	ledger *Ledger
}

// ChunkHash identifies a chunk by its document and content.
func ChunkHash(documentID, content string) string {
	sum := sha256.Sum256([]byte(documentID + "\x00" + content))
	return hex.EncodeToString(sum[:])
}

// Open locks and loads the ledger at path, creating it if needed.
func Open(ctx context.Context, path string) (*Manager, error) {
	if path == "" {
		return nil, errors.New("ledger path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	locked, err := lock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("failed to lock ledger: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLedgerLocked, path)
	}

	m := &Manager{path: path, lock: lock}
	if m.ledger, err = load(path); err != nil {
		lock.Unlock()
		return nil, err
	}
	return m, nil
}

func load(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Ledger{Version: ledgerVersion, Chunks: make(map[string]*ChunkRecord)}, nil
		}
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	var ledger Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger: %w", err)
	}
	if ledger.Version != ledgerVersion {
		return nil, fmt.Errorf("unsupported ledger version %d", ledger.Version)
	}
	if ledger.Chunks == nil {
		ledger.Chunks = make(map[string]*ChunkRecord)
	}
	return &ledger, nil
}

// Path returns the ledger file path.
func (m *Manager) Path() string {
	return m.path
}

// IsDone reports whether the chunk completed in an earlier run.
func (m *Manager) IsDone(hash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ledger.Chunks[hash]
	return ok && r.Status == StatusDone
}

// Get returns a copy of the chunk record.
func (m *Manager) Get(hash string) (ChunkRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ledger.Chunks[hash]
	if !ok {
		return ChunkRecord{}, false
	}
	return *r, true
}

// MarkDone records a completed chunk and persists the ledger.
func (m *Manager) MarkDone(documentID string, chunkIndex int, hash string) error {
	return m.mark(documentID, chunkIndex, hash, StatusDone, "")
}

// MarkFailed records a failed chunk and persists the ledger.
func (m *Manager) MarkFailed(documentID string, chunkIndex int, hash, reason string) error {
	return m.mark(documentID, chunkIndex, hash, StatusFailed, reason)
}

func (m *Manager) mark(documentID string, chunkIndex int, hash string, status ChunkStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.ledger.Chunks[hash]
	if !ok {
		r = &ChunkRecord{DocumentID: documentID, ChunkIndex: chunkIndex, Hash: hash}
		m.ledger.Chunks[hash] = r
	}
	r.Status = status
	r.Reason = reason
	r.AttemptCount++
	r.LastUpdatedAt = time.Now()
	return m.save()
}

// Failed returns the failed chunks ordered by document and chunk index.
func (m *Manager) Failed() []ChunkRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ChunkRecord
	for _, r := range m.ledger.Chunks {
		if r.Status == StatusFailed {
			out = append(out, *r)
		}
	}
	slices.SortFunc(out, func(a, b ChunkRecord) int {
		if c := strings.Compare(a.DocumentID, b.DocumentID); c != 0 {
			return c
		}
		return a.ChunkIndex - b.ChunkIndex
	})
	return out
}

// Counts returns the number of done and failed chunks.
func (m *Manager) Counts() (done, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.ledger.Chunks {
		switch r.Status {
		case StatusDone:
			done++
		case StatusFailed:
			failed++
		}
	}
	return done, failed
}

// save writes the ledger atomically. Callers hold m.mu.
func (m *Manager) save() error {
	m.ledger.LastUpdatedAt = time.Now()

	data, err := json.MarshalIndent(m.ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	// Write to a temporary file first, then rename for atomic write
	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write ledger file: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		return fmt.Errorf("failed to rename ledger file: %w", err)
	}
	return nil
}

// Close persists the ledger and releases the lock.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.save()
	return errors.Join(err, m.lock.Unlock())
}
