package main

import (
	"lg/keto-go-api/internal/nutrition"
)

/* ─── Auth ───────────────────────────────────────────────────────────── */

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token  string `json:"token"`
	UserID int    `json:"user_id"`
}

/* ─── Food entries ───────────────────────────────────────────────────── */

// createFoodEntryRequest is the request body for POST /api/food-entries.
// Date is optional and defaults to today.
type createFoodEntryRequest struct {
	Name  string          `json:"name"`
	Grams float64         `json:"grams"`
	Date  *nutrition.Date `json:"date"`
}

// updateFoodEntryRequest is the request body for PATCH /api/food-entries/:id.
// Only the mass can change; the macros are looked up again.
type updateFoodEntryRequest struct {
	Grams *float64 `json:"grams"`
}

type previewRequest struct {
	Name  string  `json:"name"`
	Grams float64 `json:"grams"`
}

// dayResponse is the shape of GET /api/food-entries: the day's entries and
// its aggregate, zero-valued when the day was never logged.
type dayResponse struct {
	Date      string                   `json:"date"`
	Entries   []nutrition.FoodEntry    `json:"entries"`
	Aggregate nutrition.DailyAggregate `json:"aggregate"`
}

/* ─── Daily aggregates ───────────────────────────────────────────────── */

// patchDailyAggregateRequest sets or, with null or "", clears the remarks.
type patchDailyAggregateRequest struct {
	Remarks *string `json:"remarks"`
}

/* ─── Profile ────────────────────────────────────────────────────────── */

// patchProfileRequest is the request body for PATCH /api/profile. All fields
// are pointers; only non-nil fields are written.
type patchProfileRequest struct {
	WeightKg      *int    `json:"weight_kg"`
	HeightCm      *int    `json:"height_cm"`
	AgeYears      *int    `json:"age_years"`
	Gender        *string `json:"gender"`
	ActivityLevel *string `json:"activity_level"`
}

// profileResponse bundles the profile with its demand, nil until derivable.
type profileResponse struct {
	Profile nutrition.Profile `json:"profile"`
	Demand  *nutrition.Demand `json:"demand"`
}

/* ─── Reports ────────────────────────────────────────────────────────── */

type createReportRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Email     string `json:"email"`
}

type reportResponse struct {
	Filename string `json:"filename"`
	Entries  int    `json:"entries"`
	Days     int    `json:"days"`
	SentTo   string `json:"sent_to"`
}
