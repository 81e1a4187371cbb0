package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"lg/keto-go-api/internal/nutrition"
)

// tsLayout is fixed-width so stored timestamps compare correctly as text.
const tsLayout = "2006-01-02T15:04:05.000000Z"

// SQLite is the embedded Store. The pool is capped at one connection, so a
// transaction holds the only writer and every InDayTx is serialized.
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// OpenSQLite opens (or creates) the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLite, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	if err := applySQLiteMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db, logger: logger, now: time.Now}, nil
}

func (s *SQLite) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("[sqlite] close", zap.Error(err))
	}
}

func (s *SQLite) stamp() string {
	return s.now().UTC().Format(tsLayout)
}

/* ─── Scan helpers ────────────────────────────────────────────────────── */

type rowScanner interface {
	Scan(dest ...any) error
}

const (
	foodEntryColumns = "id, user_id, name, grams, calories, carbs_g, fat_g, protein_g, date, created_at, updated_at"
	aggregateColumns = "user_id, date, total_kcal, total_carbs, total_fat, total_protein, remarks, updated_at"
	profileColumns   = "id, user_id, weight_kg, height_cm, age_years, gender, activity_level, updated_at"
	demandColumns    = "profile_id, kcal, fat_g, protein_g, carbs_g, updated_at"
	userColumns      = "id, username, email, password, auth_token, auth_token_created_at, created_at"
)

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := time.Parse(tsLayout, v.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func scanFoodEntry(r rowScanner) (nutrition.FoodEntry, error) {
	var e nutrition.FoodEntry
	var calories, carbs, fat, protein sql.NullInt64
	var date string
	var createdAt, updatedAt sql.NullString
	if err := r.Scan(&e.ID, &e.UserID, &e.Name, &e.Grams, &calories, &carbs, &fat, &protein, &date, &createdAt, &updatedAt); err != nil {
		return e, mapSQLiteError(err)
	}
	d, err := nutrition.ParseDate(date)
	if err != nil {
		return e, fmt.Errorf("parse entry date %q: %w", date, err)
	}
	e.Date = d
	e.Calories, e.CarbsG, e.FatG, e.ProteinG = nullInt(calories), nullInt(carbs), nullInt(fat), nullInt(protein)
	e.CreatedAt, e.UpdatedAt = nullTime(createdAt), nullTime(updatedAt)
	return e, nil
}

func scanAggregate(r rowScanner) (nutrition.DailyAggregate, error) {
	var a nutrition.DailyAggregate
	var date string
	var remarks, updatedAt sql.NullString
	if err := r.Scan(&a.UserID, &date, &a.TotalKcal, &a.TotalCarbs, &a.TotalFat, &a.TotalProtein, &remarks, &updatedAt); err != nil {
		return a, mapSQLiteError(err)
	}
	d, err := nutrition.ParseDate(date)
	if err != nil {
		return a, fmt.Errorf("parse aggregate date %q: %w", date, err)
	}
	a.Date = d
	a.Remarks = nullString(remarks)
	a.UpdatedAt = nullTime(updatedAt)
	return a, nil
}

func scanProfile(r rowScanner) (nutrition.Profile, error) {
	var p nutrition.Profile
	var weight, height, age sql.NullInt64
	var gender, activity, updatedAt sql.NullString
	if err := r.Scan(&p.ID, &p.UserID, &weight, &height, &age, &gender, &activity, &updatedAt); err != nil {
		return p, mapSQLiteError(err)
	}
	p.WeightKg, p.HeightCm, p.AgeYears = nullInt(weight), nullInt(height), nullInt(age)
	if gender.Valid {
		g := nutrition.Gender(gender.String)
		p.Gender = &g
	}
	if activity.Valid {
		a := nutrition.ActivityLevel(activity.String)
		p.ActivityLevel = &a
	}
	p.UpdatedAt = nullTime(updatedAt)
	return p, nil
}

func scanDemand(r rowScanner) (nutrition.Demand, error) {
	var d nutrition.Demand
	var updatedAt sql.NullString
	if err := r.Scan(&d.ProfileID, &d.Kcal, &d.FatG, &d.ProteinG, &d.CarbsG, &updatedAt); err != nil {
		return d, mapSQLiteError(err)
	}
	d.UpdatedAt = nullTime(updatedAt)
	return d, nil
}

func scanUser(r rowScanner) (User, error) {
	var u User
	var tokenCreatedAt string
	var createdAt sql.NullString
	if err := r.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.AuthToken, &tokenCreatedAt, &createdAt); err != nil {
		return u, mapSQLiteError(err)
	}
	t, err := time.Parse(tsLayout, tokenCreatedAt)
	if err != nil {
		return u, fmt.Errorf("parse token timestamp: %w", err)
	}
	u.AuthTokenCreatedAt = t
	u.CreatedAt = nullTime(createdAt)
	return u, nil
}

func scanAll[T any](rows *sql.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func mapSQLiteError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %s", ErrConflict, se.Error())
		}
	}
	return err
}

func enumString[T ~string](v *T) any {
	if v == nil {
		return nil
	}
	return string(*v)
}

func intArg(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

/* ─── Transactions ────────────────────────────────────────────────────── */

func (s *SQLite) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLite) InDayTx(ctx context.Context, userID int, date nutrition.Date, fn func(Tx) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&sqliteTx{tx: tx, stamp: s.stamp})
	})
}

func (s *SQLite) InProfileTx(ctx context.Context, userID int, fn func(Tx, nutrition.Profile) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := scanProfile(tx.QueryRowContext(ctx,
			"SELECT "+profileColumns+" FROM biometric_profiles WHERE user_id = ?", userID))
		if err != nil {
			return err
		}
		return fn(&sqliteTx{tx: tx, stamp: s.stamp}, p)
	})
}

/* ─── Food entries ────────────────────────────────────────────────────── */

func (s *SQLite) GetFoodEntry(ctx context.Context, userID, id int) (nutrition.FoodEntry, error) {
	return scanFoodEntry(s.db.QueryRowContext(ctx,
		"SELECT "+foodEntryColumns+" FROM food_entries WHERE id = ? AND user_id = ?", id, userID))
}

func (s *SQLite) ListFoodEntries(ctx context.Context, userID int, f EntryFilter) ([]nutrition.FoodEntry, error) {
	where := []string{"user_id = ?"}
	args := []any{userID}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, f.To.String())
	}
	if name := strings.TrimSpace(f.Name); name != "" {
		where = append(where, "name LIKE '%' || ? || '%'")
		args = append(args, name)
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+foodEntryColumns+" FROM food_entries WHERE "+strings.Join(where, " AND ")+" ORDER BY "+orderClause(f.Ordering),
		args...)
	if err != nil {
		return nil, fmt.Errorf("list food entries: %w", err)
	}
	return scanAll(rows, scanFoodEntry)
}

/* ─── Daily aggregates ────────────────────────────────────────────────── */

func (s *SQLite) GetDailyAggregate(ctx context.Context, userID int, date nutrition.Date) (nutrition.DailyAggregate, error) {
	return scanAggregate(s.db.QueryRowContext(ctx,
		"SELECT "+aggregateColumns+" FROM daily_aggregates WHERE user_id = ? AND date = ?", userID, date.String()))
}

func (s *SQLite) ListDailyAggregates(ctx context.Context, userID int, from, to nutrition.Date) ([]nutrition.DailyAggregate, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+aggregateColumns+" FROM daily_aggregates WHERE user_id = ? AND date BETWEEN ? AND ? ORDER BY date",
		userID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("list daily aggregates: %w", err)
	}
	return scanAll(rows, scanAggregate)
}

func (s *SQLite) SetDailyRemarks(ctx context.Context, userID int, date nutrition.Date, remarks *string) (nutrition.DailyAggregate, error) {
	var arg any
	if remarks != nil {
		arg = *remarks
	}
	return scanAggregate(s.db.QueryRowContext(ctx,
		"UPDATE daily_aggregates SET remarks = ?, updated_at = ? WHERE user_id = ? AND date = ? RETURNING "+aggregateColumns,
		arg, s.stamp(), userID, date.String()))
}

/* ─── Profiles & demands ──────────────────────────────────────────────── */

func (s *SQLite) GetProfile(ctx context.Context, userID int) (nutrition.Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM biometric_profiles WHERE user_id = ?", userID))
}

func (s *SQLite) GetDemand(ctx context.Context, userID int) (nutrition.Demand, error) {
	return scanDemand(s.db.QueryRowContext(ctx,
		`SELECT d.profile_id, d.kcal, d.fat_g, d.protein_g, d.carbs_g, d.updated_at
		 FROM demands d JOIN biometric_profiles p ON p.id = d.profile_id
		 WHERE p.user_id = ?`, userID))
}

/* ─── Users ───────────────────────────────────────────────────────────── */

func (s *SQLite) CreateUser(ctx context.Context, u NewUser) (User, error) {
	var created User
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := s.stamp()
		var err error
		created, err = scanUser(tx.QueryRowContext(ctx,
			"INSERT INTO users (username, email, password, auth_token, auth_token_created_at, created_at) VALUES (?, ?, ?, ?, ?, ?) RETURNING "+userColumns,
			u.Username, u.Email, u.PasswordHash, u.AuthToken, now, now))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO biometric_profiles (user_id, updated_at) VALUES (?, ?)", created.ID, now); err != nil {
			return mapSQLiteError(err)
		}
		return nil
	})
	return created, err
}

func (s *SQLite) UserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = ?", username))
}

func (s *SQLite) UserByToken(ctx context.Context, token string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE auth_token = ?", token))
}

func (s *SQLite) RotateTokens(ctx context.Context, olderThan time.Time, newToken func() string) (int, error) {
	rotated := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			"SELECT id FROM users WHERE auth_token_created_at < ?", olderThan.UTC().Format(tsLayout))
		if err != nil {
			return err
		}
		ids, err := scanAll(rows, func(r rowScanner) (int, error) {
			var id int
			return id, r.Scan(&id)
		})
		if err != nil {
			return err
		}
		now := s.stamp()
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				"UPDATE users SET auth_token = ?, auth_token_created_at = ? WHERE id = ?",
				newToken(), now, id); err != nil {
				return mapSQLiteError(err)
			}
		}
		rotated = len(ids)
		return nil
	})
	return rotated, err
}

/* ─── Tx ──────────────────────────────────────────────────────────────── */

// sqliteTx must only touch tx: the pool has a single connection, so going
// back to the *sql.DB here would block forever.
type sqliteTx struct {
	tx    *sql.Tx
	stamp func() string
}

func (t *sqliteTx) InsertFoodEntry(ctx context.Context, e nutrition.FoodEntry) (nutrition.FoodEntry, error) {
	now := t.stamp()
	return scanFoodEntry(t.tx.QueryRowContext(ctx,
		`INSERT INTO food_entries (user_id, name, grams, calories, carbs_g, fat_g, protein_g, date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+foodEntryColumns,
		e.UserID, e.Name, e.Grams, intArg(e.Calories), intArg(e.CarbsG), intArg(e.FatG), intArg(e.ProteinG),
		e.Date.String(), now, now))
}

func (t *sqliteTx) UpdateFoodEntryNutrients(ctx context.Context, e nutrition.FoodEntry) (nutrition.FoodEntry, error) {
	return scanFoodEntry(t.tx.QueryRowContext(ctx,
		`UPDATE food_entries
		 SET grams = ?, calories = ?, carbs_g = ?, fat_g = ?, protein_g = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?
		 RETURNING `+foodEntryColumns,
		e.Grams, intArg(e.Calories), intArg(e.CarbsG), intArg(e.FatG), intArg(e.ProteinG), t.stamp(),
		e.ID, e.UserID))
}

func (t *sqliteTx) DeleteFoodEntry(ctx context.Context, userID, id int) error {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM food_entries WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqliteTx) ListDayEntries(ctx context.Context, userID int, date nutrition.Date) ([]nutrition.FoodEntry, error) {
	rows, err := t.tx.QueryContext(ctx,
		"SELECT "+foodEntryColumns+" FROM food_entries WHERE user_id = ? AND date = ? ORDER BY id",
		userID, date.String())
	if err != nil {
		return nil, fmt.Errorf("list day entries: %w", err)
	}
	return scanAll(rows, scanFoodEntry)
}

func (t *sqliteTx) UpsertDailyTotals(ctx context.Context, userID int, date nutrition.Date, totals nutrition.Totals) (nutrition.DailyAggregate, error) {
	return scanAggregate(t.tx.QueryRowContext(ctx,
		`INSERT INTO daily_aggregates (user_id, date, total_kcal, total_carbs, total_fat, total_protein, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, date) DO UPDATE SET
		   total_kcal = excluded.total_kcal,
		   total_carbs = excluded.total_carbs,
		   total_fat = excluded.total_fat,
		   total_protein = excluded.total_protein,
		   updated_at = excluded.updated_at
		 RETURNING `+aggregateColumns,
		userID, date.String(), totals.Kcal, totals.Carbs, totals.Fat, totals.Protein, t.stamp()))
}

func (t *sqliteTx) ZeroDailyTotals(ctx context.Context, userID int, date nutrition.Date) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE daily_aggregates
		 SET total_kcal = 0, total_carbs = 0, total_fat = 0, total_protein = 0, updated_at = ?
		 WHERE user_id = ? AND date = ?`,
		t.stamp(), userID, date.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *sqliteTx) UpdateProfile(ctx context.Context, p nutrition.Profile) (nutrition.Profile, error) {
	return scanProfile(t.tx.QueryRowContext(ctx,
		`UPDATE biometric_profiles
		 SET weight_kg = ?, height_cm = ?, age_years = ?, gender = ?, activity_level = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?
		 RETURNING `+profileColumns,
		intArg(p.WeightKg), intArg(p.HeightCm), intArg(p.AgeYears),
		enumString(p.Gender), enumString(p.ActivityLevel), t.stamp(),
		p.ID, p.UserID))
}

func (t *sqliteTx) UpsertDemand(ctx context.Context, d nutrition.Demand) (nutrition.Demand, error) {
	return scanDemand(t.tx.QueryRowContext(ctx,
		`INSERT INTO demands (profile_id, kcal, fat_g, protein_g, carbs_g, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(profile_id) DO UPDATE SET
		   kcal = excluded.kcal,
		   fat_g = excluded.fat_g,
		   protein_g = excluded.protein_g,
		   carbs_g = excluded.carbs_g,
		   updated_at = excluded.updated_at
		 RETURNING `+demandColumns,
		d.ProfileID, d.Kcal, d.FatG, d.ProteinG, d.CarbsG, t.stamp()))
}

var (
	_ Store = (*SQLite)(nil)
	_ Store = (*Postgres)(nil)
	_ Tx    = (*sqliteTx)(nil)
	_ Tx    = (*pgTx)(nil)
)
