package lorekeeper

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soundprediction/lorekeeper/pkg/config"
	"github.com/soundprediction/lorekeeper/pkg/logger"
	"github.com/soundprediction/lorekeeper/pkg/telemetry"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "lorekeeper",
		Short: "Lorekeeper: lore knowledge graph builder",
		Long: `Lorekeeper reads a corpus of plain-text lore documents, extracts entities and
relationships with a language model, resolves entity names by embedding
similarity and merges the result into a Neo4j graph.

Runs are idempotent: extracting the same corpus twice does not duplicate
entities or relationships.`,
		SilenceUsage: true,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./lorekeeper.yaml or $HOME/.lorekeeper.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "also write JSON logs to this rotating file")

	// Bind flags to viper
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("lorekeeper")
	}

	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// runtime holds what every command needs: configuration and a logger.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []io.Closer
}

// setup loads configuration and builds the logger. When telemetry is enabled,
// warnings and errors are also persisted to Parquet.
func setup() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	log, logCloser, err := logger.New(logger.Options{
		Level:      level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	rt := &runtime{cfg: cfg, logger: log, closers: []io.Closer{logCloser}}

	if cfg.Telemetry.Enabled && cfg.Telemetry.ParquetPath != "" {
		handler, err := telemetry.NewParquetHandler(log.Handler(), filepath.Join(cfg.Telemetry.ParquetPath, "events"))
		if err != nil {
			log.Warn("failed to initialize chunk event tracking", "error", err)
		} else {
			rt.logger = slog.New(handler)
			// Flush before the log file closes.
			rt.closers = append(rt.closers, handler)
		}
	}
	slog.SetDefault(rt.logger)
	return rt, nil
}

// close releases the logger resources in reverse order.
func (rt *runtime) close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i].Close())
	}
	return errors.Join(errs...)
}
