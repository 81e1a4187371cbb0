package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lg/keto-go-api/internal/nutrition"
	"lg/keto-go-api/internal/store"
)

// listFoodEntries returns one day's entries together with its aggregate.
// GET /api/food-entries?date=YYYY-MM-DD (defaults to today), optional name
// substring and ordering (name, -name, date, -date).
func (h *Handler) listFoodEntries(c *gin.Context) {
	userID := c.GetInt("user_id")
	day := nutrition.NewDate(h.now())
	if s := c.Query("date"); s != "" {
		var ok bool
		if day, ok = parseDateParam(c, "date", s); !ok {
			return
		}
	}

	ctx := c.Request.Context()
	entries, err := h.svc.ListFoodEntries(ctx, userID, store.EntryFilter{
		From: day, To: day, Name: c.Query("name"), Ordering: c.Query("ordering"),
	})
	if err != nil {
		h.fail(c, "listFoodEntries", err, "failed to fetch food entries")
		return
	}
	// Ensure entries is an empty array (not null) in JSON
	if entries == nil {
		entries = []nutrition.FoodEntry{}
	}

	agg, err := h.svc.GetDailyAggregate(ctx, userID, day)
	if errors.Is(err, store.ErrNotFound) {
		agg = nutrition.DailyAggregate{UserID: userID, Date: day}
	} else if err != nil {
		h.fail(c, "listFoodEntries", err, "failed to fetch daily aggregate")
		return
	}

	c.JSON(http.StatusOK, dayResponse{Date: day.String(), Entries: entries, Aggregate: agg})
}

// getFoodEntry returns a single entry owned by the caller.
// GET /api/food-entries/:id
func (h *Handler) getFoodEntry(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	e, err := h.svc.GetFoodEntry(c.Request.Context(), c.GetInt("user_id"), id)
	if err != nil {
		h.fail(c, "getFoodEntry", err, "failed to fetch food entry")
		return
	}
	c.JSON(http.StatusOK, e)
}

// createFoodEntry looks up the nutrients and stores a new entry.
// POST /api/food-entries
func (h *Handler) createFoodEntry(c *gin.Context) {
	var body createFoodEntryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	e, err := h.svc.AddFoodEntry(c.Request.Context(), c.GetInt("user_id"), body.Name, body.Grams, body.Date)
	if err != nil {
		h.fail(c, "createFoodEntry", err, "failed to create food entry")
		return
	}
	c.JSON(http.StatusCreated, e)
}

// updateFoodEntry changes an entry's mass and re-resolves its macros.
// PATCH /api/food-entries/:id
func (h *Handler) updateFoodEntry(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body updateFoodEntryRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.Grams == nil {
		apiError(c, http.StatusBadRequest, "grams is required")
		return
	}
	e, err := h.svc.UpdateFoodEntryMass(c.Request.Context(), c.GetInt("user_id"), id, *body.Grams)
	if err != nil {
		h.fail(c, "updateFoodEntry", err, "failed to update food entry")
		return
	}
	c.JSON(http.StatusOK, e)
}

// deleteFoodEntry removes an entry and recomputes its day.
// DELETE /api/food-entries/:id
func (h *Handler) deleteFoodEntry(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteFoodEntry(c.Request.Context(), c.GetInt("user_id"), id); err != nil {
		h.fail(c, "deleteFoodEntry", err, "failed to delete food entry")
		return
	}
	c.Status(http.StatusNoContent)
}

// previewFoodEntry runs the nutrient lookup without saving anything.
// POST /api/food-entries/preview
func (h *Handler) previewFoodEntry(c *gin.Context) {
	var body previewRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	n, err := h.svc.PreviewNutrients(c.Request.Context(), body.Name, body.Grams)
	if err != nil {
		h.fail(c, "previewFoodEntry", err, "failed to look up nutrients")
		return
	}
	c.JSON(http.StatusOK, n)
}
