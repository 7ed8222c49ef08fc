package lorekeeper

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soundprediction/lorekeeper"
	"github.com/soundprediction/lorekeeper/pkg/config"
	"github.com/soundprediction/lorekeeper/pkg/corpus"
	"github.com/soundprediction/lorekeeper/pkg/driver"
)

var extractCmd = &cobra.Command{
	Use:   "extract [corpus-dir]",
	Short: "Extract entities and relationships from a corpus into the graph",
	Long: `Extract reads every matching document in corpus-dir (default: the current
directory), processes it chunk by chunk and merges the result into the graph.

Chunks that fail are skipped and listed in the run report. With a ledger,
--resume skips chunks completed by an earlier run and --only-failed re-runs
just the chunks that failed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
	registerExtractFlags(extractCmd)
}

func registerExtractFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("resume", false, "skip chunks the ledger records as done")
	cmd.Flags().Bool("only-failed", false, "process only chunks the ledger records as failed")
	cmd.Flags().Int("max-attempts", 0, "with --only-failed, skip chunks attempted this many times (0 means no limit)")
	cmd.Flags().String("report", "", "write the run report to this file (.json, .yaml or text)")
	cmd.Flags().Bool("dry-run", false, "use in-memory graph and resolution stores and no ledger")
	cmd.Flags().Int("concurrency", 0, "chunks processed at once per document")
	cmd.Flags().String("glob", "", "corpus file pattern")
	cmd.Flags().String("ledger", "", "ledger file path")
}

// applyExtractFlags copies the extract flags that were set onto cfg.
func applyExtractFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("resume") {
		cfg.Pipeline.Resume, _ = flags.GetBool("resume")
	}
	if flags.Changed("only-failed") {
		cfg.Pipeline.OnlyFailed, _ = flags.GetBool("only-failed")
	}
	if flags.Changed("max-attempts") {
		cfg.Pipeline.MaxAttempts, _ = flags.GetInt("max-attempts")
	}
	if flags.Changed("concurrency") {
		cfg.Pipeline.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("glob") {
		cfg.Pipeline.CorpusGlob, _ = flags.GetString("glob")
	}
	if flags.Changed("ledger") {
		cfg.Pipeline.LedgerPath, _ = flags.GetString("ledger")
	}
	if dry, _ := flags.GetBool("dry-run"); dry {
		cfg.Database.Driver = string(driver.GraphProviderMemory)
		cfg.Resolver.Backend = "memory"
		cfg.Pipeline.LedgerPath = ""
		cfg.Pipeline.Resume = false
		cfg.Pipeline.OnlyFailed = false
	}
}

func runExtract(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	applyExtractFlags(cmd, rt.cfg)

	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := lorekeeper.New(ctx, rt.cfg, rt.logger)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	report, runErr := pipeline.Run(ctx, corpus.NewDirSource(dir, rt.cfg.Pipeline.CorpusGlob))
	if report != nil {
		fmt.Fprint(cmd.OutOrStdout(), report)
		if path, _ := cmd.Flags().GetString("report"); path != "" {
			if err := report.WriteFile(path); err != nil {
				rt.logger.Error("failed to write run report", "path", path, "error", err)
			}
		}
	}
	if runErr != nil && ctx.Err() != nil {
		return fmt.Errorf("extraction interrupted: %w", context.Cause(ctx))
	}
	return runErr
}
