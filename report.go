package lorekeeper

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soundprediction/lorekeeper/pkg/nlp"
	"github.com/soundprediction/lorekeeper/pkg/types"
)

// RunReport summarizes an extraction run.
type RunReport struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	DocumentsProcessed int `json:"documents_processed" yaml:"documents_processed"`
	DocumentsSkipped   int `json:"documents_skipped" yaml:"documents_skipped"`

	ChunksProcessed int `json:"chunks_processed" yaml:"chunks_processed"`
	ChunksFailed    int `json:"chunks_failed" yaml:"chunks_failed"`
	// ChunksResumed counts chunks the ledger already recorded as done.
	ChunksResumed int `json:"chunks_resumed" yaml:"chunks_resumed"`
	// ChunksSkipped counts chunks passed over by an only-failed run.
	ChunksSkipped int `json:"chunks_skipped" yaml:"chunks_skipped"`

	RelationshipsRejected int               `json:"relationships_rejected" yaml:"relationships_rejected"`
	Merge                 types.MergeResult `json:"merge" yaml:"merge"`

	Tokens     types.TokenUsage `json:"tokens" yaml:"tokens"`
	ModelCalls int              `json:"model_calls" yaml:"model_calls"`

	Failures []ChunkFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

func newRunReport(runID string) *RunReport {
	return &RunReport{RunID: runID, StartedAt: time.Now()}
}

func (r *RunReport) addDocument(d *DocumentReport) {
	if d.Skipped {
		r.DocumentsSkipped++
		return
	}
	r.DocumentsProcessed++
	r.ChunksProcessed += d.ChunksProcessed
	r.ChunksFailed += len(d.Failures)
	r.ChunksResumed += d.ChunksResumed
	r.ChunksSkipped += d.ChunksSkipped
	r.RelationshipsRejected += d.RelationshipsRejected
	r.Merge.Add(&d.Merge)
	r.Failures = append(r.Failures, d.Failures...)
}

func (r *RunReport) finish(tracker *nlp.TokenTracker) {
	r.FinishedAt = time.Now()
	if tracker != nil {
		r.Tokens, r.ModelCalls = tracker.Totals()
	}
}

// Duration returns how long the run took.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// String renders the report as human readable text.
func (r *RunReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s)\n", r.RunID, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "  documents: %d processed, %d skipped\n", r.DocumentsProcessed, r.DocumentsSkipped)
	fmt.Fprintf(&b, "  chunks: %d processed, %d failed, %d resumed, %d skipped\n",
		r.ChunksProcessed, r.ChunksFailed, r.ChunksResumed, r.ChunksSkipped)
	fmt.Fprintf(&b, "  entities: %d created, %d updated\n", r.Merge.EntitiesCreated, r.Merge.EntitiesUpdated)
	fmt.Fprintf(&b, "  relationships: %d created, %d existing, %d skipped, %d rejected\n",
		r.Merge.RelationshipsCreated, r.Merge.RelationshipsExisting, r.Merge.RelationshipsSkipped, r.RelationshipsRejected)
	if r.ModelCalls > 0 {
		fmt.Fprintf(&b, "  model: %d calls, %d tokens\n", r.ModelCalls, r.Tokens.TotalTokens)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "  failed %s#%d: %s: %s\n", f.DocumentID, f.ChunkIndex, f.Reason, f.Message)
	}
	return b.String()
}

// WriteYAML writes the report as YAML.
func (r *RunReport) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}

// WriteJSON writes the report as indented JSON.
func (r *RunReport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteFile writes the report to path. The format follows the extension:
// .json for JSON, .yaml or .yml for YAML, anything else for text.
func (r *RunReport) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = r.WriteJSON(f)
	case ".yaml", ".yml":
		err = r.WriteYAML(f)
	default:
		_, err = io.WriteString(f, r.String())
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
