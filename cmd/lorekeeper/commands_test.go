package lorekeeper

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/lorekeeper/pkg/config"
	"github.com/soundprediction/lorekeeper/pkg/driver"
)

func newExtractFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "extract"}
	registerExtractFlags(cmd)
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"extract", "resolve", "stats", "schema"} {
		assert.True(t, names[want], want)
	}
}

func TestApplyExtractFlags(t *testing.T) {
	t.Run("unset flags keep config", func(t *testing.T) {
		cfg := config.Default()
		cfg.Pipeline.Concurrency = 3
		applyExtractFlags(newExtractFlags(t), cfg)
		assert.Equal(t, 3, cfg.Pipeline.Concurrency)
		assert.False(t, cfg.Pipeline.Resume)
	})

	t.Run("run mode flags", func(t *testing.T) {
		cfg := config.Default()
		applyExtractFlags(newExtractFlags(t, "--resume", "--concurrency=4", "--ledger=/tmp/ledger.json", "--max-attempts=3"), cfg)
		assert.True(t, cfg.Pipeline.Resume)
		assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
		assert.Equal(t, 4, cfg.Pipeline.Concurrency)
		assert.Equal(t, "/tmp/ledger.json", cfg.Pipeline.LedgerPath)
	})

	t.Run("dry run uses memory stores", func(t *testing.T) {
		cfg := config.Default()
		cfg.Pipeline.LedgerPath = "/tmp/ledger.json"
		applyExtractFlags(newExtractFlags(t, "--dry-run", "--only-failed"), cfg)
		assert.Equal(t, "memory", cfg.Database.Driver)
		assert.Equal(t, "memory", cfg.Resolver.Backend)
		assert.Empty(t, cfg.Pipeline.LedgerPath)
		assert.False(t, cfg.Pipeline.OnlyFailed)
		assert.NoError(t, cfg.Validate())
	})
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, &driver.GraphStats{
		EntityCount:         3,
		RelationshipCount:   2,
		EntitiesByLabel:     map[string]int64{"Person": 2, "Location": 1},
		RelationshipsByType: map[string]int64{"CHILD_OF": 1, "SIBLING_OF": 1},
	})

	assert.Equal(t, "entities: 3\n  Location: 1\n  Person: 2\nrelationships: 2\n  CHILD_OF: 1\n  SIBLING_OF: 1\n", buf.String())
}
