// Package cli wires configuration, storage and the allocator into the
// audiencemix command-line interface.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/audience-mix/internal/infrastructure/config"
)

// NewRootCommand builds the audiencemix command tree.
func NewRootCommand() *cobra.Command {
	global := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "audiencemix",
		Short: "Percentage distributions that always sum to 100",
		Long: `audiencemix keeps named percentage buckets (such as campaign audience age ` +
			`ranges) summing to exactly 100. Editing one bucket redistributes the ` +
			`difference across the others in proportion to their current values.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&global.ConfigPath, "config", "config.yaml", "Path to the YAML config file")
	root.PersistentFlags().BoolVarP(&global.Verbose, "verbose", "v", false, "Verbose output")

	root.AddCommand(
		newServeCommand(global),
		newApplyCommand(global),
		newPresetsCommand(),
	)

	return root
}

// loadConfig reads the config file, falling back to environment variables
// when the file does not exist.
func loadConfig(global *GlobalFlags) (*config.Config, error) {
	cfg, err := config.LoadOrEnvWithPath(global.ConfigPath)
	if err != nil {
		return nil, err
	}
	if global.Verbose {
		cfg.Observability.Logging.Level = "debug"
	}
	return cfg, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
