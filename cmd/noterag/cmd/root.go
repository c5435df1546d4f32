// Package cmd provides the CLI commands for noterag.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/noterag/internal/config"
	"github.com/Aman-CERP/noterag/internal/logging"
	"github.com/Aman-CERP/noterag/internal/profiling"
	"github.com/Aman-CERP/noterag/pkg/version"
)

var (
	configPath     string
	logLevel       string
	profileCPU     string
	profileMem     string
	loggingCleanup func()
	cpuCleanup     func()

	// logLevelVar drives the level of the logger installed by setupRun.
	// Logging starts before the config file is read, so loadConfig
	// applies the configured level through this after the fact.
	logLevelVar = new(slog.LevelVar)
)

// NewRootCmd creates the root command for the noterag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "noterag",
		Short: "Retrieval-augmented question answering over Markdown notes",
		Long: `noterag indexes a directory of Logseq-style Markdown notes and
answers questions over them, fusing local semantic retrieval with
web search and citing its sources.

Run 'noterag index' once to build the index, then 'noterag serve'
to start the HTTP API or 'noterag search' for one-off queries.`,
		Version:      version.Version,
		SilenceUsage: true,
	}

	cmd.SetVersionTemplate("noterag version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Minimum log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write heap profile to file on exit")

	cmd.PersistentPreRunE = setupRun
	cmd.PersistentPostRunE = teardownRun

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupRun initializes file-based logging and optional profiling
// before any command runs.
func setupRun(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	logCfg.LevelVar = logLevelVar
	if logLevel != "" {
		logCfg.Level = logLevel
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)

	if profileCPU != "" {
		cpuCleanup, err = profiling.StartCPU(profileCPU)
		if err != nil {
			return err
		}
	}
	return nil
}

func teardownRun(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}

	if profileMem != "" {
		if err := profiling.WriteHeap(profileMem); err != nil {
			return err
		}
	}

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// loadConfig loads configuration honoring the --config and --log-level
// flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logLevelVar.Set(logging.LevelFromString(cfg.LogLevel))
	return cfg, nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
