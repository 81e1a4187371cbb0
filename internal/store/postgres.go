package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"lg/keto-go-api/internal/nutrition"
)

// Postgres is the pgx-backed Store.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// OpenPostgres creates a connection pool. A pool (not a single conn) survives
// providers that close idle connections after a few minutes.
func OpenPostgres(ctx context.Context, dbURL string, logger *zap.Logger) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse DB URL: %w", err)
	}
	// Simple protocol avoids "cached plan must not change result type" errors
	// from server-side prepared statement caches after schema changes.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool, logger: logger}, nil
}

func (s *Postgres) Close() { s.pool.Close() }

/* ─── Query helpers ───────────────────────────────────────────────────── */

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// queryOne runs a query and scans the first row into T using RowToStructByName.
// Scan errors other than "no rows" are logged, since they usually mean the
// struct and the columns drifted apart.
func queryOne[T any](ctx context.Context, q pgQuerier, logger *zap.Logger, sql string, args pgx.NamedArgs) (T, error) {
	var zero T
	rows, err := q.Query(ctx, sql, args)
	if err != nil {
		logger.Error("[queryOne] query error", zap.Error(err))
		return zero, mapPgError(err)
	}
	result, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			logger.Error("[queryOne] scan error", zap.Error(err))
		}
		return zero, mapPgError(err)
	}
	return result, nil
}

// queryMany runs a query and scans all rows into []T using RowToStructByName.
func queryMany[T any](ctx context.Context, q pgQuerier, logger *zap.Logger, sql string, args pgx.NamedArgs) ([]T, error) {
	rows, err := q.Query(ctx, sql, args)
	if err != nil {
		logger.Error("[queryMany] query error", zap.Error(err))
		return nil, mapPgError(err)
	}
	results, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		logger.Error("[queryMany] scan error", zap.Error(err))
		return nil, mapPgError(err)
	}
	return results, nil
}

func mapPgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

// enumArg passes a closed string enum to pgx as a plain *string.
func enumArg[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

/* ─── Transactions ────────────────────────────────────────────────────── */

func (s *Postgres) InDayTx(ctx context.Context, userID int, date nutrition.Date, fn func(Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Serializes every recompute of (user, date) until commit.
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(@userID::int4, @day::int4)",
			pgx.NamedArgs{"userID": userID, "day": date.DayNumber()}); err != nil {
			return fmt.Errorf("lock day: %w", err)
		}
		return fn(&pgTx{tx: tx, logger: s.logger})
	})
}

func (s *Postgres) InProfileTx(ctx context.Context, userID int, fn func(Tx, nutrition.Profile) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		p, err := queryOne[nutrition.Profile](ctx, tx, s.logger,
			"SELECT * FROM biometric_profiles WHERE user_id = @userID FOR UPDATE",
			pgx.NamedArgs{"userID": userID})
		if err != nil {
			return err
		}
		return fn(&pgTx{tx: tx, logger: s.logger}, p)
	})
}

/* ─── Food entries ────────────────────────────────────────────────────── */

func (s *Postgres) GetFoodEntry(ctx context.Context, userID, id int) (nutrition.FoodEntry, error) {
	return queryOne[nutrition.FoodEntry](ctx, s.pool, s.logger,
		"SELECT * FROM food_entries WHERE id = @id AND user_id = @userID",
		pgx.NamedArgs{"id": id, "userID": userID})
}

func (s *Postgres) ListFoodEntries(ctx context.Context, userID int, f EntryFilter) ([]nutrition.FoodEntry, error) {
	where := []string{"user_id = @userID"}
	args := pgx.NamedArgs{"userID": userID}
	if !f.From.IsZero() {
		where = append(where, "date >= @from::date")
		args["from"] = f.From.String()
	}
	if !f.To.IsZero() {
		where = append(where, "date <= @to::date")
		args["to"] = f.To.String()
	}
	if name := strings.TrimSpace(f.Name); name != "" {
		where = append(where, "name ILIKE '%' || @name || '%'")
		args["name"] = name
	}
	return queryMany[nutrition.FoodEntry](ctx, s.pool, s.logger,
		"SELECT * FROM food_entries WHERE "+strings.Join(where, " AND ")+" ORDER BY "+orderClause(f.Ordering),
		args)
}

/* ─── Daily aggregates ────────────────────────────────────────────────── */

func (s *Postgres) GetDailyAggregate(ctx context.Context, userID int, date nutrition.Date) (nutrition.DailyAggregate, error) {
	return queryOne[nutrition.DailyAggregate](ctx, s.pool, s.logger,
		"SELECT * FROM daily_aggregates WHERE user_id = @userID AND date = @date::date",
		pgx.NamedArgs{"userID": userID, "date": date.String()})
}

func (s *Postgres) ListDailyAggregates(ctx context.Context, userID int, from, to nutrition.Date) ([]nutrition.DailyAggregate, error) {
	return queryMany[nutrition.DailyAggregate](ctx, s.pool, s.logger,
		`SELECT * FROM daily_aggregates
		 WHERE user_id = @userID AND date BETWEEN @from::date AND @to::date
		 ORDER BY date`,
		pgx.NamedArgs{"userID": userID, "from": from.String(), "to": to.String()})
}

func (s *Postgres) SetDailyRemarks(ctx context.Context, userID int, date nutrition.Date, remarks *string) (nutrition.DailyAggregate, error) {
	return queryOne[nutrition.DailyAggregate](ctx, s.pool, s.logger,
		`UPDATE daily_aggregates SET remarks = @remarks, updated_at = NOW()
		 WHERE user_id = @userID AND date = @date::date
		 RETURNING *`,
		pgx.NamedArgs{"userID": userID, "date": date.String(), "remarks": remarks})
}

/* ─── Profiles & demands ──────────────────────────────────────────────── */

func (s *Postgres) GetProfile(ctx context.Context, userID int) (nutrition.Profile, error) {
	return queryOne[nutrition.Profile](ctx, s.pool, s.logger,
		"SELECT * FROM biometric_profiles WHERE user_id = @userID",
		pgx.NamedArgs{"userID": userID})
}

func (s *Postgres) GetDemand(ctx context.Context, userID int) (nutrition.Demand, error) {
	return queryOne[nutrition.Demand](ctx, s.pool, s.logger,
		`SELECT d.* FROM demands d
		 JOIN biometric_profiles p ON p.id = d.profile_id
		 WHERE p.user_id = @userID`,
		pgx.NamedArgs{"userID": userID})
}

/* ─── Users ───────────────────────────────────────────────────────────── */

func (s *Postgres) CreateUser(ctx context.Context, u NewUser) (User, error) {
	var created User
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		created, err = queryOne[User](ctx, tx, s.logger,
			`INSERT INTO users (username, email, password, auth_token)
			 VALUES (@username, @email, @password, @token)
			 RETURNING *`,
			pgx.NamedArgs{"username": u.Username, "email": u.Email, "password": u.PasswordHash, "token": u.AuthToken})
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, "INSERT INTO biometric_profiles (user_id) VALUES (@userID)",
			pgx.NamedArgs{"userID": created.ID})
		return mapPgError(err)
	})
	return created, err
}

func (s *Postgres) UserByUsername(ctx context.Context, username string) (User, error) {
	return queryOne[User](ctx, s.pool, s.logger,
		"SELECT * FROM users WHERE username = @username",
		pgx.NamedArgs{"username": username})
}

func (s *Postgres) UserByToken(ctx context.Context, token string) (User, error) {
	return queryOne[User](ctx, s.pool, s.logger,
		"SELECT * FROM users WHERE auth_token = @token",
		pgx.NamedArgs{"token": token})
}

func (s *Postgres) RotateTokens(ctx context.Context, olderThan time.Time, newToken func() string) (int, error) {
	rotated := 0
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			"SELECT id FROM users WHERE auth_token_created_at < @olderThan FOR UPDATE",
			pgx.NamedArgs{"olderThan": olderThan})
		if err != nil {
			return err
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[int])
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := tx.Exec(ctx,
				"UPDATE users SET auth_token = @token, auth_token_created_at = NOW() WHERE id = @id",
				pgx.NamedArgs{"token": newToken(), "id": id}); err != nil {
				return mapPgError(err)
			}
		}
		rotated = len(ids)
		return nil
	})
	return rotated, err
}

/* ─── Tx ──────────────────────────────────────────────────────────────── */

type pgTx struct {
	tx     pgx.Tx
	logger *zap.Logger
}

func (t *pgTx) InsertFoodEntry(ctx context.Context, e nutrition.FoodEntry) (nutrition.FoodEntry, error) {
	return queryOne[nutrition.FoodEntry](ctx, t.tx, t.logger,
		`INSERT INTO food_entries (user_id, name, grams, calories, carbs_g, fat_g, protein_g, date)
		 VALUES (@userID, @name, @grams, @calories, @carbs, @fat, @protein, @date::date)
		 RETURNING *`,
		pgx.NamedArgs{
			"userID":   e.UserID,
			"name":     e.Name,
			"grams":    e.Grams,
			"calories": e.Calories,
			"carbs":    e.CarbsG,
			"fat":      e.FatG,
			"protein":  e.ProteinG,
			"date":     e.Date.String(),
		})
}

func (t *pgTx) UpdateFoodEntryNutrients(ctx context.Context, e nutrition.FoodEntry) (nutrition.FoodEntry, error) {
	return queryOne[nutrition.FoodEntry](ctx, t.tx, t.logger,
		`UPDATE food_entries
		 SET grams = @grams, calories = @calories, carbs_g = @carbs, fat_g = @fat, protein_g = @protein, updated_at = NOW()
		 WHERE id = @id AND user_id = @userID
		 RETURNING *`,
		pgx.NamedArgs{
			"id":       e.ID,
			"userID":   e.UserID,
			"grams":    e.Grams,
			"calories": e.Calories,
			"carbs":    e.CarbsG,
			"fat":      e.FatG,
			"protein":  e.ProteinG,
		})
}

func (t *pgTx) DeleteFoodEntry(ctx context.Context, userID, id int) error {
	tag, err := t.tx.Exec(ctx, "DELETE FROM food_entries WHERE id = @id AND user_id = @userID",
		pgx.NamedArgs{"id": id, "userID": userID})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) ListDayEntries(ctx context.Context, userID int, date nutrition.Date) ([]nutrition.FoodEntry, error) {
	return queryMany[nutrition.FoodEntry](ctx, t.tx, t.logger,
		"SELECT * FROM food_entries WHERE user_id = @userID AND date = @date::date ORDER BY id",
		pgx.NamedArgs{"userID": userID, "date": date.String()})
}

func (t *pgTx) UpsertDailyTotals(ctx context.Context, userID int, date nutrition.Date, totals nutrition.Totals) (nutrition.DailyAggregate, error) {
	return queryOne[nutrition.DailyAggregate](ctx, t.tx, t.logger,
		`INSERT INTO daily_aggregates (user_id, date, total_kcal, total_carbs, total_fat, total_protein, updated_at)
		 VALUES (@userID, @date::date, @kcal, @carbs, @fat, @protein, NOW())
		 ON CONFLICT (user_id, date) DO UPDATE SET
		   total_kcal = EXCLUDED.total_kcal,
		   total_carbs = EXCLUDED.total_carbs,
		   total_fat = EXCLUDED.total_fat,
		   total_protein = EXCLUDED.total_protein,
		   updated_at = NOW()
		 RETURNING *`,
		pgx.NamedArgs{
			"userID":  userID,
			"date":    date.String(),
			"kcal":    totals.Kcal,
			"carbs":   totals.Carbs,
			"fat":     totals.Fat,
			"protein": totals.Protein,
		})
}

func (t *pgTx) ZeroDailyTotals(ctx context.Context, userID int, date nutrition.Date) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE daily_aggregates
		 SET total_kcal = 0, total_carbs = 0, total_fat = 0, total_protein = 0, updated_at = NOW()
		 WHERE user_id = @userID AND date = @date::date`,
		pgx.NamedArgs{"userID": userID, "date": date.String()})
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgTx) UpdateProfile(ctx context.Context, p nutrition.Profile) (nutrition.Profile, error) {
	return queryOne[nutrition.Profile](ctx, t.tx, t.logger,
		`UPDATE biometric_profiles
		 SET weight_kg = @weight, height_cm = @height, age_years = @age,
		     gender = @gender, activity_level = @activity, updated_at = NOW()
		 WHERE id = @id AND user_id = @userID
		 RETURNING *`,
		pgx.NamedArgs{
			"id":       p.ID,
			"userID":   p.UserID,
			"weight":   p.WeightKg,
			"height":   p.HeightCm,
			"age":      p.AgeYears,
			"gender":   enumArg(p.Gender),
			"activity": enumArg(p.ActivityLevel),
		})
}

func (t *pgTx) UpsertDemand(ctx context.Context, d nutrition.Demand) (nutrition.Demand, error) {
	return queryOne[nutrition.Demand](ctx, t.tx, t.logger,
		`INSERT INTO demands (profile_id, kcal, fat_g, protein_g, carbs_g, updated_at)
		 VALUES (@profileID, @kcal, @fat, @protein, @carbs, NOW())
		 ON CONFLICT (profile_id) DO UPDATE SET
		   kcal = EXCLUDED.kcal,
		   fat_g = EXCLUDED.fat_g,
		   protein_g = EXCLUDED.protein_g,
		   carbs_g = EXCLUDED.carbs_g,
		   updated_at = NOW()
		 RETURNING *`,
		pgx.NamedArgs{
			"profileID": d.ProfileID,
			"kcal":      d.Kcal,
			"fat":       d.FatG,
			"protein":   d.ProteinG,
			"carbs":     d.CarbsG,
		})
}
