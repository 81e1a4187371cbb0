// CLI tool to run pending database migrations.
// With DB_URL set it applies db/*.sql to Postgres, skipping files already
// recorded in the migrations table, one transaction per file. Without DB_URL
// it opens SQLITE_PATH, which applies the embedded SQLite schema.
// Usage: go run ./cmd/migrate [--dir db]
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lg/keto-go-api/internal/store"
)

var migrationsDir string

var rootCmd = &cobra.Command{
	Use:          "migrate",
	Short:        "Apply pending database migrations",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load .env: %w", err)
		}
		ctx := cmd.Context()
		if url := os.Getenv("DB_URL"); url != "" {
			return migratePostgres(ctx, cmd, url, migrationsDir)
		}
		path := os.Getenv("SQLITE_PATH")
		if path == "" {
			path = "keto.db"
		}
		st, err := store.OpenSQLite(ctx, path, zap.NewNop())
		if err != nil {
			return err
		}
		st.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "SQLite schema at %s is up to date.\n", path)
		return nil
	},
}

func main() {
	rootCmd.Flags().StringVar(&migrationsDir, "dir", "db", "directory holding the *.sql migrations")
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func migratePostgres(ctx context.Context, cmd *cobra.Command, dbURL, dir string) error {
	out := cmd.OutOrStdout()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil || len(files) == 0 {
		return fmt.Errorf("no migration files found in %s", dir)
	}
	sort.Strings(files)

	// Get already-applied migrations (table may not exist yet)
	applied := make(map[string]bool)
	var hasTable bool
	if err := conn.QueryRow(ctx, "SELECT to_regclass('migrations') IS NOT NULL").Scan(&hasTable); err != nil {
		return fmt.Errorf("check migrations table: %w", err)
	}
	if hasTable {
		rows, _ := conn.Query(ctx, "SELECT migration FROM migrations")
		names, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("read applied migrations: %w", err)
		}
		for _, name := range names {
			applied[name] = true
		}
	}

	ran := 0
	for _, f := range files {
		filename := filepath.Base(f)
		if applied[filename] {
			fmt.Fprintf(out, "  skip: %s\n", filename)
			continue
		}

		content, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", filename, err)
		}

		err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return fmt.Errorf("run %s: %w", filename, err)
			}
			if _, err := tx.Exec(ctx,
				"INSERT INTO migrations (migration, description) VALUES ($1, $2)",
				filename, descriptionFromFilename(filename)); err != nil {
				return fmt.Errorf("record %s: %w", filename, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "  applied: %s\n", filename)
		ran++
	}

	if ran == 0 {
		fmt.Fprintln(out, "No pending migrations.")
	} else {
		fmt.Fprintf(out, "\n%d migration(s) applied.\n", ran)
	}
	return nil
}

var migrationPrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}-\d{3}-`)

// descriptionFromFilename strips the YYYY-MM-DD-NNN- prefix and .sql suffix.
func descriptionFromFilename(filename string) string {
	name := strings.TrimSuffix(filename, ".sql")
	name = migrationPrefix.ReplaceAllString(name, "")
	return strings.ReplaceAll(name, "-", " ")
}
