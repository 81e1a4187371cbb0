// CLI tool to reissue every auth token older than --max-age. Meant to run
// from cron; clients with a rotated token have to log in again.
// Usage: go run ./cmd/rotate-tokens [--max-age 720h]
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lg/keto-go-api/internal/store"
)

var maxAge time.Duration

var rootCmd = &cobra.Command{
	Use:          "rotate-tokens",
	Short:        "Reissue auth tokens older than --max-age",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load .env: %w", err)
		}
		if maxAge <= 0 {
			return fmt.Errorf("--max-age must be positive")
		}

		logger, err := zap.NewProduction()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		path := os.Getenv("SQLITE_PATH")
		if path == "" {
			path = "keto.db"
		}
		ctx := cmd.Context()
		st, err := store.Open(ctx, os.Getenv("DB_URL"), path, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		cutoff := time.Now().Add(-maxAge)
		n, err := st.RotateTokens(ctx, cutoff, func() string { return uuid.New().String() })
		if err != nil {
			return fmt.Errorf("rotate tokens: %w", err)
		}
		logger.Info("[rotate-tokens] done", zap.Int("rotated", n), zap.Time("cutoff", cutoff))
		fmt.Fprintf(cmd.OutOrStdout(), "%d token(s) rotated.\n", n)
		return nil
	},
}

func main() {
	rootCmd.Flags().DurationVar(&maxAge, "max-age", 30*24*time.Hour, "rotate tokens issued longer ago than this")
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
