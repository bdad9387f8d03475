package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/senpa-rd/casewatch/internal/bus"
	"github.com/senpa-rd/casewatch/internal/store"
)

var (
	confirmReset bool
	resetRedis   bool
	resetDB      bool
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset Redis streams and/or the database",
	Long: `Reset clears the casewatch Redis streams and the database.

For SQLite the database files are removed. For PostgreSQL every source table
is dropped; the audit log is kept.

By default, both Redis and database are reset. Use --redis-only or --db-only
to reset one of them.

WARNING: This operation is irreversible and will permanently delete all data.

Examples:
  # Reset both Redis and database (requires confirmation)
  casewatch reset

  # Reset with automatic confirmation
  casewatch reset --yes

  # Reset only the database
  casewatch reset --db-only`,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().BoolVarP(&confirmReset, "yes", "y", false, "Automatically confirm reset operation")
	resetCmd.Flags().BoolVar(&resetRedis, "redis-only", false, "Reset only Redis streams")
	resetCmd.Flags().BoolVar(&resetDB, "db-only", false, "Reset only database")
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	out := cmd.OutOrStdout()

	doRedis, doDB := resetRedis, resetDB
	if !doRedis && !doDB {
		doRedis, doDB = true, true
	}
	if cfg.Redis.URL == "" && doRedis {
		if !doDB {
			return fmt.Errorf("redis.url is not configured")
		}
		doRedis = false
	}

	var targets []string
	if doRedis {
		targets = append(targets, "Redis streams")
	}
	if doDB {
		targets = append(targets, "database "+redactDSN(cfg.Database.DSN))
	}
	fmt.Fprintf(out, "This will permanently delete: %s\n", strings.Join(targets, " and "))

	if !confirmReset && !confirm(cmd.InOrStdin(), out, "Are you sure you want to continue? (y/N): ") {
		fmt.Fprintln(out, "Reset operation cancelled.")
		return nil
	}

	if doRedis {
		if err := resetRedisStreams(ctx, cfg.Redis.URL, out); err != nil {
			if !doDB {
				return err
			}
			fmt.Fprintf(out, "Warning: %v\n", err)
		} else {
			fmt.Fprintln(out, "✓ Redis streams cleared")
		}
	}

	if doDB {
		if err := resetDatabase(ctx, cfg.Database, out); err != nil {
			return fmt.Errorf("failed to reset database: %w", err)
		}
		fmt.Fprintln(out, "✓ Database cleared")
	}

	fmt.Fprintln(out, "Reset operation completed successfully!")
	return nil
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	var response string
	fmt.Fscanln(in, &response)
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}

func resetRedisStreams(ctx context.Context, redisURL string, out io.Writer) error {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	n, err := client.Del(ctx, bus.StreamCaseChanges, bus.StreamRefreshes).Result()
	if err != nil {
		return fmt.Errorf("failed to delete Redis streams: %w", err)
	}
	fmt.Fprintf(out, "Deleted %d Redis streams\n", n)
	return nil
}

func resetDatabase(ctx context.Context, cfg DatabaseConfig, out io.Writer) error {
	if isSQLitePath(cfg.Driver, cfg.DSN) {
		return removeSQLiteFiles(resolvePathRelativeToBase(getWorkingDir(), cfg.DSN), out)
	}

	db, err := store.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	tables, err := db.ListTables(ctx)
	if err != nil {
		return err
	}
	for _, t := range tables {
		if err := db.DropTable(ctx, t); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "Dropped %d tables\n", len(tables))
	return nil
}

func removeSQLiteFiles(dbPath string, out io.Writer) error {
	var removed []string
	for _, file := range []string{dbPath, dbPath + "-shm", dbPath + "-wal"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := os.Remove(file); err != nil {
			return fmt.Errorf("failed to remove database file %s: %w", file, err)
		}
		removed = append(removed, filepath.Base(file))
	}

	if len(removed) == 0 {
		fmt.Fprintln(out, "No database files found to remove")
		return nil
	}
	fmt.Fprintf(out, "Removed database files: %s\n", strings.Join(removed, ", "))
	return nil
}
