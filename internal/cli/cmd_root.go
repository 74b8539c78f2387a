package cli

import (
	"os"

	"github.com/spf13/cobra"

	"insights/internal/log"
)

// rootOptions carry state set up by the root command for its subcommands.
type rootOptions struct {
	logLevel string
	logger   *log.Logger
}

// NewRootCmd builds the insights-cli command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "insights-cli",
		Short: "Operate the PhonePe Pulse insights dashboard from a terminal",
		Long: `insights-cli lists and runs the dashboard reports against the configured
store and prepares the SQLite development database.

Configuration comes from the same environment variables (and .env file) as
the server: DATA_BACKEND, SQLITE_DB_PATH, MYSQL_DSN, REPORTS_FILE and friends.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			LoadEnvFile()
			if !cmd.Flags().Changed("log-level") {
				if env := os.Getenv("LOG_LEVEL"); env != "" {
					opts.logLevel = env
				}
			}
			opts.logger = SetupLoggerTo(cmd.ErrOrStderr(), opts.logLevel).WithComponent(log.ComponentCLI)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newReportsCmd(opts),
		newMigrateCmd(opts),
		newSeedCmd(opts),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
