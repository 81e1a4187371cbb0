package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lg/keto-go-api/internal/nutrition"
)

// getDailyAggregate returns one day's totals.
// GET /api/daily-aggregates/:date (404 when the day was never logged).
func (h *Handler) getDailyAggregate(c *gin.Context) {
	day, ok := parseDateParam(c, "date", c.Param("date"))
	if !ok {
		return
	}
	agg, err := h.svc.GetDailyAggregate(c.Request.Context(), c.GetInt("user_id"), day)
	if err != nil {
		h.fail(c, "getDailyAggregate", err, "failed to fetch daily aggregate")
		return
	}
	c.JSON(http.StatusOK, agg)
}

// listDailyAggregates returns the aggregates between start and end inclusive,
// which the calendar view renders as events.
// GET /api/daily-aggregates?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *Handler) listDailyAggregates(c *gin.Context) {
	start, ok := parseDateParam(c, "start", c.Query("start"))
	if !ok {
		return
	}
	end, ok := parseDateParam(c, "end", c.Query("end"))
	if !ok {
		return
	}
	aggs, err := h.svc.ListDailyAggregates(c.Request.Context(), c.GetInt("user_id"), start, end)
	if err != nil {
		h.fail(c, "listDailyAggregates", err, "failed to fetch daily aggregates")
		return
	}
	if aggs == nil {
		aggs = []nutrition.DailyAggregate{}
	}
	c.JSON(http.StatusOK, aggs)
}

// patchDailyAggregate sets the remarks of an existing day.
// PATCH /api/daily-aggregates/:date
func (h *Handler) patchDailyAggregate(c *gin.Context) {
	day, ok := parseDateParam(c, "date", c.Param("date"))
	if !ok {
		return
	}
	var body patchDailyAggregateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	remarks := ""
	if body.Remarks != nil {
		remarks = *body.Remarks
	}
	agg, err := h.svc.SetDailyRemarks(c.Request.Context(), c.GetInt("user_id"), day, remarks)
	if err != nil {
		h.fail(c, "patchDailyAggregate", err, "failed to update remarks")
		return
	}
	c.JSON(http.StatusOK, agg)
}
