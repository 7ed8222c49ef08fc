package driver

import (
	"errors"
	"fmt"

	"github.com/soundprediction/lorekeeper/pkg/config"
)

// GraphProvider represents the type of graph database provider
type GraphProvider string

const (
	GraphProviderNeo4j  GraphProvider = "neo4j"
	GraphProviderMemory GraphProvider = "memory"
)

// ErrEntityNotFound is returned when no entity has the requested name.
var ErrEntityNotFound = errors.New("entity not found")

// MergeOutcome reports what MergeRelationship did with an edge.
type MergeOutcome int

const (
	// OutcomeCreated means the edge did not exist and was written.
	OutcomeCreated MergeOutcome = iota
	// OutcomeExisting means an identical edge was already present.
	OutcomeExisting
	OutcomeMissingSource
	OutcomeMissingTarget
	OutcomeMissingBoth
)

func (o MergeOutcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeExisting:
		return "existing"
	case OutcomeMissingSource:
		return "missing_source"
	case OutcomeMissingTarget:
		return "missing_target"
	case OutcomeMissingBoth:
		return "missing_both"
	default:
		return fmt.Sprintf("MergeOutcome(%d)", int(o))
	}
}

// outcomeFor classifies an edge whose endpoints may be absent.
func outcomeFor(hasSource, hasTarget bool) MergeOutcome {
	switch {
	case !hasSource && !hasTarget:
		return OutcomeMissingBoth
	case !hasSource:
		return OutcomeMissingSource
	case !hasTarget:
		return OutcomeMissingTarget
	default:
		return OutcomeExisting
	}
}

// GraphStats holds statistics about the graph.
type GraphStats struct {
	EntityCount         int64            `json:"entity_count" yaml:"entity_count"`
	RelationshipCount   int64            `json:"relationship_count" yaml:"relationship_count"`
	EntitiesByLabel     map[string]int64 `json:"entities_by_label" yaml:"entities_by_label"`
	RelationshipsByType map[string]int64 `json:"relationships_by_type" yaml:"relationships_by_type"`
}

func newGraphStats() *GraphStats {
	return &GraphStats{
		EntitiesByLabel:     make(map[string]int64),
		RelationshipsByType: make(map[string]int64),
	}
}

// New creates the graph driver named by cfg.Driver.
func New(cfg config.DatabaseConfig) (GraphDriver, error) {
	switch GraphProvider(cfg.Driver) {
	case GraphProviderNeo4j, "":
		d, err := NewNeo4jDriver(cfg.URI, cfg.Username, cfg.Password, cfg.Database)
		if err != nil {
			return nil, err
		}
		return d, nil
	case GraphProviderMemory:
		return NewMemoryDriver(), nil
	default:
		return nil, fmt.Errorf("unknown graph driver %q", cfg.Driver)
	}
}
