package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"insights/internal/config"
	"insights/internal/storage"
)

// sqlitePath returns the development database path, refusing MySQL where the
// schema is owned elsewhere.
func sqlitePath(cfg *config.Config) (string, error) {
	if cfg.DataBackend != string(storage.SQLite) {
		return "", fmt.Errorf("DATA_BACKEND is %q: the schema is only managed for sqlite", cfg.DataBackend)
	}
	if cfg.SQLiteDBPath == "" {
		return "", fmt.Errorf("SQLITE_DB_PATH is empty")
	}
	return cfg.SQLiteDBPath, nil
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQLite development schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := sqlitePath(config.Load())
			if err != nil {
				return err
			}
			if err := storage.RunMigrations(path); err != nil {
				return err
			}
			version, _, err := storage.SchemaVersion(path)
			if err != nil {
				return err
			}
			opts.logger.Info("Migrations applied", "path", path, "version", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %d: %s\n", version, path)
			return nil
		},
	}
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the synthetic sample dataset into an empty SQLite database",
		Long: `seed applies the schema and fills it with a small deterministic dataset so
every report has rows to show. It refuses to touch a database that already
holds transactions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := sqlitePath(config.Load())
			if err != nil {
				return err
			}
			if err := storage.RunMigrations(path); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			store, err := storage.Open(ctx, storage.Options{Dialect: storage.SQLite, DSN: path, Writable: true}, opts.logger.Logger)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := storage.LoadSample(ctx, store.DB())
			if err != nil {
				return fmt.Errorf("seed %s: %w", path, err)
			}
			opts.logger.Info("Sample dataset loaded", "path", path, "rows", n)
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d sample rows into %s\n", n, path)
			return nil
		},
	}
}
