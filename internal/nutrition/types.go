// Package nutrition holds the domain types of the tracker and the two pure
// derivations over them: summing a day's food entries and turning a
// biometric profile into a daily macro demand.
package nutrition

import (
	"strings"
	"time"
)

// FoodEntry maps to food_entries. Macro fields use pointers because an entry
// is either fully resolved by the nutrient lookup or not resolved at all.
type FoodEntry struct {
	ID        int        `json:"id"         db:"id"`
	UserID    int        `json:"user_id"    db:"user_id"`
	Name      string     `json:"name"       db:"name"`
	Grams     float64    `json:"grams"      db:"grams"`
	Calories  *int       `json:"kcal"       db:"calories"`
	CarbsG    *int       `json:"carbs_g"    db:"carbs_g"`
	FatG      *int       `json:"fat_g"      db:"fat_g"`
	ProteinG  *int       `json:"protein_g"  db:"protein_g"`
	Date      Date       `json:"date"       db:"date"`
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at" db:"updated_at"`
}

// DailyAggregate maps to daily_aggregates, one row per (user_id, date).
type DailyAggregate struct {
	UserID       int        `json:"user_id"       db:"user_id"`
	Date         Date       `json:"date"          db:"date"`
	TotalKcal    int        `json:"total_kcal"    db:"total_kcal"`
	TotalCarbs   int        `json:"total_carbs"   db:"total_carbs"`
	TotalFat     int        `json:"total_fat"     db:"total_fat"`
	TotalProtein int        `json:"total_protein" db:"total_protein"`
	Remarks      *string    `json:"remarks"       db:"remarks"`
	UpdatedAt    *time.Time `json:"updated_at"    db:"updated_at"`
}

// Gender is the closed set of values the BMR formula is defined for.
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

// ParseGender accepts any casing of MALE or FEMALE.
func ParseGender(s string) (Gender, bool) {
	g := Gender(strings.ToUpper(strings.TrimSpace(s)))
	return g, g.Valid()
}

func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// ActivityLevel selects the TDEE multiplier.
type ActivityLevel string

const (
	ActivityInactive ActivityLevel = "INACTIVE"
	ActivityLow      ActivityLevel = "LOW"
	ActivityMedium   ActivityLevel = "MEDIUM"
	ActivityHigh     ActivityLevel = "HIGH"
	ActivityVeryHigh ActivityLevel = "VERY_HIGH"
)

// ParseActivityLevel accepts any casing of the known levels, e.g. "very_high".
func ParseActivityLevel(s string) (ActivityLevel, bool) {
	a := ActivityLevel(strings.ToUpper(strings.TrimSpace(s)))
	return a, a.Valid()
}

func (a ActivityLevel) Valid() bool {
	_, ok := activityMultipliers[a]
	return ok
}

// Profile maps to biometric_profiles. Every metric is optional: the row is
// created empty together with its user and filled in later.
type Profile struct {
	ID            int            `json:"id"             db:"id"`
	UserID        int            `json:"user_id"        db:"user_id"`
	WeightKg      *int           `json:"weight_kg"      db:"weight_kg"`
	HeightCm      *int           `json:"height_cm"      db:"height_cm"`
	AgeYears      *int           `json:"age_years"      db:"age_years"`
	Gender        *Gender        `json:"gender"         db:"gender"`
	ActivityLevel *ActivityLevel `json:"activity_level" db:"activity_level"`
	UpdatedAt     *time.Time     `json:"updated_at"     db:"updated_at"`
}

// Demand maps to demands, one row per profile.
type Demand struct {
	ProfileID int        `json:"profile_id" db:"profile_id"`
	Kcal      int        `json:"kcal"       db:"kcal"`
	FatG      int        `json:"fat_g"      db:"fat_g"`
	ProteinG  int        `json:"protein_g"  db:"protein_g"`
	CarbsG    int        `json:"carbs_g"    db:"carbs_g"`
	UpdatedAt *time.Time `json:"updated_at" db:"updated_at"`
}
