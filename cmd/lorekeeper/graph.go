package lorekeeper

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/soundprediction/lorekeeper"
	"github.com/soundprediction/lorekeeper/pkg/driver"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print entity and relationship counts of the graph",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the graph constraints and indexes",
	Args:  cobra.NoArgs,
	RunE:  runSchema,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(schemaCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	graph, err := lorekeeper.OpenGraph(cmd.Context(), rt.cfg.Database)
	if err != nil {
		return err
	}
	defer graph.Close()

	stats, err := graph.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read graph stats: %w", err)
	}
	printStats(cmd.OutOrStdout(), stats)
	return nil
}

func printStats(w io.Writer, stats *driver.GraphStats) {
	fmt.Fprintf(w, "entities: %d\n", stats.EntityCount)
	for _, label := range slices.Sorted(maps.Keys(stats.EntitiesByLabel)) {
		fmt.Fprintf(w, "  %s: %d\n", label, stats.EntitiesByLabel[label])
	}
	fmt.Fprintf(w, "relationships: %d\n", stats.RelationshipCount)
	for _, relType := range slices.Sorted(maps.Keys(stats.RelationshipsByType)) {
		fmt.Fprintf(w, "  %s: %d\n", relType, stats.RelationshipsByType[relType])
	}
}

func runSchema(cmd *cobra.Command, _ []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	// OpenGraph ensures the schema before returning.
	graph, err := lorekeeper.OpenGraph(cmd.Context(), rt.cfg.Database)
	if err != nil {
		return err
	}
	defer graph.Close()

	for _, q := range driver.GetSchemaQueries() {
		fmt.Fprintln(cmd.OutOrStdout(), q)
	}
	return nil
}
