// CLI tool to create a user with a bcrypt-hashed password and an empty
// biometric profile. Missing flags are prompted for on stdin.
// Usage: go run ./cmd/create-user [--username u --email e --password p]
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"lg/keto-go-api/internal/store"
)

var username, email, password string

var rootCmd = &cobra.Command{
	Use:          "create-user",
	Short:        "Create a user and print its auth token",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load .env: %w", err)
		}

		reader := bufio.NewReader(cmd.InOrStdin())
		out := cmd.OutOrStdout()
		username = promptIfEmpty(reader, out, "Username", username)
		email = promptIfEmpty(reader, out, "Email", email)
		password = promptIfEmpty(reader, out, "Password", password)
		if username == "" || password == "" {
			return fmt.Errorf("username and password are required")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}

		ctx := cmd.Context()
		st, err := store.Open(ctx, os.Getenv("DB_URL"), sqlitePath(), zap.NewNop())
		if err != nil {
			return err
		}
		defer st.Close()

		u, err := st.CreateUser(ctx, store.NewUser{
			Username:     username,
			Email:        email,
			PasswordHash: string(hash),
			AuthToken:    uuid.New().String(),
		})
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		fmt.Fprintf(out, "\nUser created successfully!\n")
		fmt.Fprintf(out, "  ID:         %d\n", u.ID)
		fmt.Fprintf(out, "  Username:   %s\n", u.Username)
		fmt.Fprintf(out, "  Auth Token: %s\n", u.AuthToken)
		return nil
	},
}

func main() {
	rootCmd.Flags().StringVar(&username, "username", "", "login name")
	rootCmd.Flags().StringVar(&email, "email", "", "e-mail address")
	rootCmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func promptIfEmpty(r *bufio.Reader, w io.Writer, label, value string) string {
	if value != "" {
		return value
	}
	fmt.Fprintf(w, "%s: ", label)
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}

func sqlitePath() string {
	if p := os.Getenv("SQLITE_PATH"); p != "" {
		return p
	}
	return "keto.db"
}
