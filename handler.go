package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lg/keto-go-api/internal/lookup"
	"lg/keto-go-api/internal/nutrition"
	"lg/keto-go-api/internal/store"
	"lg/keto-go-api/internal/tracker"
)

// Handler holds shared dependencies for all route handlers.
type Handler struct {
	svc         *tracker.Service
	store       store.Store
	logger      *zap.Logger
	tokenMaxAge time.Duration // zero disables the age check
	now         func() time.Time
}

// apiError returns a consistent JSON error response: {"error": "message"}.
func apiError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// statusForError maps domain errors to an HTTP status and a message that is
// safe to return. Anything unrecognized is a 500 with fallback as message.
func statusForError(err error, fallback string) (int, string) {
	var ve *tracker.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Message
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "already exists"
	case errors.Is(err, lookup.ErrLookupFailure):
		return http.StatusBadGateway, "nutrient lookup failed"
	case errors.Is(err, tracker.ErrNoEntriesInRange):
		return http.StatusNotFound, tracker.ErrNoEntriesInRange.Error()
	case errors.Is(err, tracker.ErrReportsDisabled):
		return http.StatusServiceUnavailable, tracker.ErrReportsDisabled.Error()
	default:
		return http.StatusInternalServerError, fallback
	}
}

// fail logs server-side failures and renders the mapped error.
func (h *Handler) fail(c *gin.Context, where string, err error, fallback string) {
	status, msg := statusForError(err, fallback)
	if status >= http.StatusInternalServerError {
		h.logger.Error("["+where+"] "+fallback, zap.Int("user_id", c.GetInt("user_id")), zap.Error(err))
	}
	apiError(c, status, msg)
}

// requestLogger writes one structured line per request.
func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Info("[request]",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.Int("user_id", c.GetInt("user_id")),
		)
	}
}

// pathID parses the :id route parameter, writing a 400 on failure.
func pathID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		apiError(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// parseDateParam parses a YYYY-MM-DD value, writing a 400 naming the field on
// failure.
func parseDateParam(c *gin.Context, field, value string) (nutrition.Date, bool) {
	d, err := nutrition.ParseDate(value)
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid "+field+", expected YYYY-MM-DD")
		return nutrition.Date{}, false
	}
	return d, true
}

// registerRoutes registers all API routes on the router.
func (h *Handler) registerRoutes(router *gin.Engine) {
	// Public routes
	router.POST("/api/register", h.register)
	router.POST("/api/login", h.login)

	// Authenticated routes
	api := router.Group("/api", h.authMiddleware())
	api.GET("/food-entries", h.listFoodEntries)
	api.POST("/food-entries", h.createFoodEntry)
	api.POST("/food-entries/preview", h.previewFoodEntry)
	api.GET("/food-entries/:id", h.getFoodEntry)
	api.PATCH("/food-entries/:id", h.updateFoodEntry)
	api.DELETE("/food-entries/:id", h.deleteFoodEntry)
	api.GET("/daily-aggregates", h.listDailyAggregates)
	api.GET("/daily-aggregates/:date", h.getDailyAggregate)
	api.PATCH("/daily-aggregates/:date", h.patchDailyAggregate)
	api.GET("/profile", h.getProfile)
	api.PATCH("/profile", h.patchProfile)
	api.GET("/demand", h.getDemand)
	api.POST("/reports", h.createReport)
}
