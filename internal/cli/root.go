package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dl-alexandre/drivesync/internal/config"
	"github.com/dl-alexandre/drivesync/internal/logging"
	"github.com/dl-alexandre/drivesync/internal/types"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"github.com/dl-alexandre/drivesync/pkg/version"
	"github.com/spf13/cobra"
)

var (
	globalFlags types.GlobalFlags
	logger      logging.Logger = logging.NewNoOpLogger()
	appConfig                  = config.DefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:   "drivesync",
	Short: "Mirror a local folder into Google Drive",
	Long: `drivesync makes a Google Drive folder an exact copy of a local directory.

New and newer local files are uploaded, missing folders are created, and
remote items that no longer exist locally are deleted. Use --dry-run to
see what would change without touching Drive.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(globalFlags.Config)
		if err != nil {
			// config commands must stay usable to repair a broken file
			if !isConfigCommand(cmd) {
				return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build(), err)
			}
			fmt.Fprintf(os.Stderr, "Warning: %v; using defaults\n", err)
			cfg = config.DefaultConfig()
		}
		appConfig = cfg

		if !cmd.Flags().Changed("output") && !globalFlags.JSON {
			globalFlags.OutputFormat = cfg.DefaultOutputFormat
		}
		if err := validateGlobalFlags(); err != nil {
			return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build(), err)
		}

		logger, err = logging.NewLogger(logConfigFor(cfg, globalFlags))
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "Print the version number of drivesync",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := NewOutputWriter(globalFlags.OutputFormat, globalFlags.Quiet)
		if globalFlags.OutputFormat == types.OutputFormatJSON {
			return out.WriteSuccess("version", version.Get())
		}
		fmt.Fprintln(out.stdout, version.Get().String())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.Profile, "profile", "", "Credential profile to use (default from config)")
	rootCmd.PersistentFlags().StringVar((*string)(&globalFlags.OutputFormat), "output", string(types.OutputFormatTable), "Output format (json, table)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress status lines")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Debug, "debug", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogFile, "log-file", "", "Path to log file")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.DryRun, "dry-run", false, "Show what would be done without making changes")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format (alias for --output json)")

	rootCmd.AddCommand(versionCmd)
}

func validateGlobalFlags() error {
	// Handle --json flag as alias for --output json
	if globalFlags.JSON {
		globalFlags.OutputFormat = types.OutputFormatJSON
	}

	if globalFlags.OutputFormat != types.OutputFormatJSON && globalFlags.OutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s", globalFlags.OutputFormat)
	}
	return nil
}

// logConfigFor merges the configured log level with the command-line flags
func logConfigFor(cfg *config.Config, flags types.GlobalFlags) logging.LogConfig {
	logConfig := logging.DefaultLogConfig()
	logConfig.Level = logging.WARN
	logConfig.OutputFile = flags.LogFile
	logConfig.Clock = clock
	logConfig.EnableColor = cfg.ColorOutput
	logConfig.EnableDebug = flags.Debug || cfg.LogLevel == "debug"

	switch {
	case flags.Verbose || cfg.LogLevel == "verbose":
		logConfig.Level = logging.DEBUG
	case flags.Quiet || cfg.LogLevel == "quiet":
		logConfig.EnableConsole = false
	}
	if flags.LogFile != "" && logConfig.Level > logging.INFO {
		logConfig.Level = logging.INFO
	}
	if flags.OutputFormat == types.OutputFormatJSON && !flags.Verbose && !flags.Debug {
		logConfig.EnableConsole = false
	}
	return logConfig
}

func isConfigCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c == configCmd {
			return true
		}
	}
	return false
}

// Execute runs the root command and returns the process exit code.
// SIGINT and SIGTERM cancel the command's context.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return utils.ExitSuccess
	}

	var reported *reportedError
	if !errors.As(err, &reported) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	if err == nil {
		return utils.ExitSuccess
	}
	if utils.IsCancelled(err) {
		return utils.ExitCancelled
	}
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return utils.GetExitCode(appErr.CLIError.Code)
	}
	return utils.ExitUnknown
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() types.GlobalFlags {
	return globalFlags
}

// GetLogger returns the global logger
func GetLogger() logging.Logger {
	return logger
}
