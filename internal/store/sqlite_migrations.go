package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type sqliteMigration struct {
	version int
	name    string
	sql     string
}

// Dates are TEXT "YYYY-MM-DD" and timestamps TEXT in tsLayout, so both sort
// lexicographically. DATE/DATETIME column types are avoided because the
// driver converts them to time.Time on scan.
var sqliteMigrations = []sqliteMigration{
	{
		version: 1,
		name:    "initial_schema",
		sql: `
CREATE TABLE IF NOT EXISTS users (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  username TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL,
  password TEXT NOT NULL,
  auth_token TEXT NOT NULL UNIQUE,
  auth_token_created_at TEXT NOT NULL,
  created_at TEXT
);

CREATE TABLE IF NOT EXISTS food_entries (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  grams REAL NOT NULL CHECK(grams > 0),
  calories INTEGER CHECK(calories >= 0),
  carbs_g INTEGER CHECK(carbs_g >= 0),
  fat_g INTEGER CHECK(fat_g >= 0),
  protein_g INTEGER CHECK(protein_g >= 0),
  date TEXT NOT NULL,
  created_at TEXT,
  updated_at TEXT,
  CHECK(
    (calories IS NULL AND carbs_g IS NULL AND fat_g IS NULL AND protein_g IS NULL)
    OR (calories IS NOT NULL AND carbs_g IS NOT NULL AND fat_g IS NOT NULL AND protein_g IS NOT NULL)
  )
);

CREATE INDEX IF NOT EXISTS idx_food_entries_user_date ON food_entries(user_id, date);

CREATE TABLE IF NOT EXISTS daily_aggregates (
  user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  date TEXT NOT NULL,
  total_kcal INTEGER NOT NULL DEFAULT 0 CHECK(total_kcal >= 0),
  total_carbs INTEGER NOT NULL DEFAULT 0 CHECK(total_carbs >= 0),
  total_fat INTEGER NOT NULL DEFAULT 0 CHECK(total_fat >= 0),
  total_protein INTEGER NOT NULL DEFAULT 0 CHECK(total_protein >= 0),
  remarks TEXT,
  updated_at TEXT,
  PRIMARY KEY(user_id, date)
);
`,
	},
	{
		version: 2,
		name:    "profiles_and_demands",
		sql: `
CREATE TABLE IF NOT EXISTS biometric_profiles (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id INTEGER NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
  weight_kg INTEGER CHECK(weight_kg >= 0),
  height_cm INTEGER CHECK(height_cm >= 0),
  age_years INTEGER CHECK(age_years >= 0),
  gender TEXT CHECK(gender IN ('MALE', 'FEMALE')),
  activity_level TEXT CHECK(activity_level IN ('INACTIVE', 'LOW', 'MEDIUM', 'HIGH', 'VERY_HIGH')),
  updated_at TEXT
);

CREATE TABLE IF NOT EXISTS demands (
  profile_id INTEGER PRIMARY KEY REFERENCES biometric_profiles(id) ON DELETE CASCADE,
  kcal INTEGER NOT NULL CHECK(kcal >= 0),
  fat_g INTEGER NOT NULL CHECK(fat_g >= 0),
  protein_g INTEGER NOT NULL CHECK(protein_g >= 0),
  carbs_g INTEGER NOT NULL CHECK(carbs_g >= 0),
  updated_at TEXT
);
`,
	},
}

// applySQLiteMigrations runs every migration not yet recorded in
// schema_migrations, each in its own transaction. It is safe to call on
// every start.
func applySQLiteMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	for _, m := range sqliteMigrations {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.version).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration version %d: %w", m.version, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration tx: %w", err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration version %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES(?, ?)`, m.version, m.name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration version %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration version %d: %w", m.version, err)
		}
	}
	return nil
}
