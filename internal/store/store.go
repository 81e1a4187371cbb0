// Package store persists users, food entries, daily aggregates, biometric
// profiles and demands. Two backends implement the same interfaces: Postgres
// (pgx) for deployments and SQLite (modernc) for local use and tests.
package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"lg/keto-go-api/internal/nutrition"
)

var (
	// ErrNotFound is returned when a row addressed by key does not exist or
	// belongs to another user.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("conflict")
)

// User maps to users.
type User struct {
	ID                 int        `json:"id"                    db:"id"`
	Username           string     `json:"username"              db:"username"`
	Email              string     `json:"email"                 db:"email"`
	Password           string     `json:"-"                     db:"password"`
	AuthToken          string     `json:"-"                     db:"auth_token"`
	AuthTokenCreatedAt time.Time  `json:"auth_token_created_at" db:"auth_token_created_at"`
	CreatedAt          *time.Time `json:"created_at"            db:"created_at"`
}

// NewUser carries the values needed to insert a user. Password must already
// be hashed.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	AuthToken    string
}

// EntryFilter narrows ListFoodEntries. Zero dates leave that side open.
type EntryFilter struct {
	From     nutrition.Date
	To       nutrition.Date
	Name     string // case-insensitive substring
	Ordering string // name, -name, date, -date; default is date then id
}

// Store is the read side plus the transactional entry points. Every write
// that feeds a derived aggregate goes through InDayTx or InProfileTx so the
// recompute runs in the same transaction as the mutation.
type Store interface {
	// InDayTx runs fn in a transaction that holds the (userID, date)
	// serialization point. fn's error rolls the transaction back.
	InDayTx(ctx context.Context, userID int, date nutrition.Date, fn func(Tx) error) error
	// InProfileTx locks the user's profile row and hands it to fn.
	InProfileTx(ctx context.Context, userID int, fn func(Tx, nutrition.Profile) error) error

	GetFoodEntry(ctx context.Context, userID, id int) (nutrition.FoodEntry, error)
	ListFoodEntries(ctx context.Context, userID int, f EntryFilter) ([]nutrition.FoodEntry, error)

	GetDailyAggregate(ctx context.Context, userID int, date nutrition.Date) (nutrition.DailyAggregate, error)
	ListDailyAggregates(ctx context.Context, userID int, from, to nutrition.Date) ([]nutrition.DailyAggregate, error)
	SetDailyRemarks(ctx context.Context, userID int, date nutrition.Date, remarks *string) (nutrition.DailyAggregate, error)

	GetProfile(ctx context.Context, userID int) (nutrition.Profile, error)
	GetDemand(ctx context.Context, userID int) (nutrition.Demand, error)

	// CreateUser inserts the user and its empty biometric profile together.
	CreateUser(ctx context.Context, u NewUser) (User, error)
	UserByUsername(ctx context.Context, username string) (User, error)
	UserByToken(ctx context.Context, token string) (User, error)
	// RotateTokens replaces every token issued before olderThan and returns
	// how many were replaced.
	RotateTokens(ctx context.Context, olderThan time.Time, newToken func() string) (int, error)

	Close()
}

// Tx is the write side, only reachable inside InDayTx or InProfileTx.
type Tx interface {
	InsertFoodEntry(ctx context.Context, e nutrition.FoodEntry) (nutrition.FoodEntry, error)
	UpdateFoodEntryNutrients(ctx context.Context, e nutrition.FoodEntry) (nutrition.FoodEntry, error)
	DeleteFoodEntry(ctx context.Context, userID, id int) error
	ListDayEntries(ctx context.Context, userID int, date nutrition.Date) ([]nutrition.FoodEntry, error)

	// UpsertDailyTotals inserts or overwrites the four totals of (userID,
	// date), keeping any remarks.
	UpsertDailyTotals(ctx context.Context, userID int, date nutrition.Date, t nutrition.Totals) (nutrition.DailyAggregate, error)
	// ZeroDailyTotals resets an existing aggregate to zero. It reports false
	// when there was no row to reset.
	ZeroDailyTotals(ctx context.Context, userID int, date nutrition.Date) (bool, error)

	UpdateProfile(ctx context.Context, p nutrition.Profile) (nutrition.Profile, error)
	UpsertDemand(ctx context.Context, d nutrition.Demand) (nutrition.Demand, error)
}

// orderClause maps an EntryFilter ordering to SQL. Unknown values fall back
// to the default.
func orderClause(ordering string) string {
	switch ordering {
	case "name":
		return "name ASC, id ASC"
	case "-name":
		return "name DESC, id DESC"
	case "-date":
		return "date DESC, id DESC"
	default:
		return "date ASC, id ASC"
	}
}

// Open returns a Postgres store when dbURL is set and the SQLite file at
// sqlitePath otherwise.
func Open(ctx context.Context, dbURL, sqlitePath string, logger *zap.Logger) (Store, error) {
	if dbURL != "" {
		return OpenPostgres(ctx, dbURL, logger)
	}
	return OpenSQLite(ctx, sqlitePath, logger)
}
