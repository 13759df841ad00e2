package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openfroyo/beanstack/pkg/telemetry"
)

var (
	// Global flags
	configPath    string
	envFile       string
	logLevel      string
	jsonOutput    bool
	traceExporter string
	otlpEndpoint  string

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "beanstack",
		Short: "beanstack - Elastic Beanstalk stack reconciler",
		Long: `beanstack brings the Elastic Beanstalk environments of a stack into
agreement with a declared stack file.

Features:
  - Configuration templates built from property files, one per family
  - Concurrent, idempotent create/update of every environment
  - Readiness gating before every mutating call
  - Sequential teardown
  - Settings guardrails via Open Policy Agent
  - Drift reporting and run history`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logLevel != "" {
				zerolog.SetGlobalLevel(telemetry.ParseLogLevel(logLevel))
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "stack.yaml", "stack file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the stack file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error); defaults to LOG_LEVEL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace-exporter", "none", "trace exporter (none, stdout, otlp)")
	rootCmd.PersistentFlags().StringVar(&otlpEndpoint, "otlp-endpoint", "localhost:4317", "OTLP collector endpoint")

	rootCmd.AddCommand(newSetupCommand())
	rootCmd.AddCommand(newTeardownCommand())
	rootCmd.AddCommand(newDescribeCommand())
	rootCmd.AddCommand(newSettingsCommand())
	rootCmd.AddCommand(newDriftCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}

// effectiveLogLevel is --log-level, then LOG_LEVEL, then info.
func effectiveLogLevel() string {
	if logLevel != "" {
		return logLevel
	}
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		return env
	}
	return "info"
}
