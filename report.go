package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// createReport e-mails a PDF of the caller's entries between two dates.
// POST /api/reports (404 "no food entries in range" for an empty range).
func (h *Handler) createReport(c *gin.Context) {
	var body createReportRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	start, ok := parseDateParam(c, "start_date", body.StartDate)
	if !ok {
		return
	}
	end, ok := parseDateParam(c, "end_date", body.EndDate)
	if !ok {
		return
	}

	r, err := h.svc.SendReport(c.Request.Context(), c.GetInt("user_id"), start, end, body.Email)
	if err != nil {
		h.fail(c, "createReport", err, "failed to send report")
		return
	}
	c.JSON(http.StatusAccepted, reportResponse{
		Filename: r.Filename(),
		Entries:  len(r.Entries),
		Days:     len(r.Aggregates),
		SentTo:   body.Email,
	})
}
