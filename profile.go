package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lg/keto-go-api/internal/nutrition"
	"lg/keto-go-api/internal/store"
	"lg/keto-go-api/internal/tracker"
)

// getProfile returns the caller's biometric profile and demand.
// GET /api/profile
func (h *Handler) getProfile(c *gin.Context) {
	userID := c.GetInt("user_id")
	p, err := h.svc.GetProfile(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "getProfile", err, "failed to fetch profile")
		return
	}
	h.respondProfile(c, p)
}

// patchProfile validates and merges the non-nil fields, then re-derives the
// demand. A profile that is still incomplete is saved without a demand.
// PATCH /api/profile
func (h *Handler) patchProfile(c *gin.Context) {
	var body patchProfileRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	patch := tracker.ProfilePatch{WeightKg: body.WeightKg, HeightCm: body.HeightCm, AgeYears: body.AgeYears}
	if body.Gender != nil {
		g, ok := nutrition.ParseGender(*body.Gender)
		if !ok {
			apiError(c, http.StatusBadRequest, "gender must be MALE or FEMALE")
			return
		}
		patch.Gender = &g
	}
	if body.ActivityLevel != nil {
		a, ok := nutrition.ParseActivityLevel(*body.ActivityLevel)
		if !ok {
			apiError(c, http.StatusBadRequest, "activity_level must be one of INACTIVE, LOW, MEDIUM, HIGH, VERY_HIGH")
			return
		}
		patch.ActivityLevel = &a
	}

	p, err := h.svc.UpdateBiometricProfile(c.Request.Context(), c.GetInt("user_id"), patch)
	if err != nil {
		h.fail(c, "patchProfile", err, "failed to update profile")
		return
	}
	h.respondProfile(c, p)
}

// getDemand returns the derived daily demand.
// GET /api/demand (404 until the profile is complete).
func (h *Handler) getDemand(c *gin.Context) {
	d, err := h.svc.GetDemand(c.Request.Context(), c.GetInt("user_id"))
	if err != nil {
		h.fail(c, "getDemand", err, "failed to fetch demand")
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) respondProfile(c *gin.Context, p nutrition.Profile) {
	resp := profileResponse{Profile: p}
	d, err := h.svc.GetDemand(c.Request.Context(), c.GetInt("user_id"))
	switch {
	case err == nil:
		resp.Demand = &d
	case !errors.Is(err, store.ErrNotFound):
		h.fail(c, "respondProfile", err, "failed to fetch demand")
		return
	}
	c.JSON(http.StatusOK, resp)
}
