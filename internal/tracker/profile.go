package tracker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"lg/keto-go-api/internal/nutrition"
	"lg/keto-go-api/internal/store"
)

// ProfilePatch holds the fields of a profile update. Nil fields keep their
// stored value.
type ProfilePatch struct {
	WeightKg      *int
	HeightCm      *int
	AgeYears      *int
	Gender        *nutrition.Gender
	ActivityLevel *nutrition.ActivityLevel
}

// Upper bounds for the biometric metrics.
const (
	maxWeightKg = 500
	maxHeightCm = 300
	maxAgeYears = 150
)

func (p ProfilePatch) validate() error {
	checks := []struct {
		field string
		v     *int
		max   int
	}{
		{"weight_kg", p.WeightKg, maxWeightKg},
		{"height_cm", p.HeightCm, maxHeightCm},
		{"age_years", p.AgeYears, maxAgeYears},
	}
	for _, c := range checks {
		if c.v != nil && (*c.v < 0 || *c.v > c.max) {
			return invalid(c.field, "%s must be between 0 and %d", c.field, c.max)
		}
	}
	if p.Gender != nil && !p.Gender.Valid() {
		return invalid("gender", "gender must be MALE or FEMALE")
	}
	if p.ActivityLevel != nil && !p.ActivityLevel.Valid() {
		return invalid("activity_level", "activity_level must be one of INACTIVE, LOW, MEDIUM, HIGH, VERY_HIGH")
	}
	return nil
}

func (p ProfilePatch) apply(to *nutrition.Profile) {
	if p.WeightKg != nil {
		to.WeightKg = p.WeightKg
	}
	if p.HeightCm != nil {
		to.HeightCm = p.HeightCm
	}
	if p.AgeYears != nil {
		to.AgeYears = p.AgeYears
	}
	if p.Gender != nil {
		to.Gender = p.Gender
	}
	if p.ActivityLevel != nil {
		to.ActivityLevel = p.ActivityLevel
	}
}

// UpdateBiometricProfile merges patch into the stored profile and re-derives
// the demand in the same transaction. An incomplete or invalid profile is
// still saved; only the demand write is skipped.
func (s *Service) UpdateBiometricProfile(ctx context.Context, userID int, patch ProfilePatch) (nutrition.Profile, error) {
	if err := patch.validate(); err != nil {
		return nutrition.Profile{}, err
	}

	var updated nutrition.Profile
	err := s.store.InProfileTx(ctx, userID, func(tx store.Tx, current nutrition.Profile) error {
		patch.apply(&current)
		var err error
		if updated, err = tx.UpdateProfile(ctx, current); err != nil {
			return fmt.Errorf("update profile: %w", err)
		}

		err = s.UpdateOrCreateDemand(ctx, tx, updated)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, nutrition.ErrIncompleteProfile):
			s.logger.Debug("[UpdateBiometricProfile] demand not yet computable",
				zap.Int("user_id", userID), zap.Error(err))
			return nil
		case errors.Is(err, nutrition.ErrInvalidProfile):
			s.logger.Warn("[UpdateBiometricProfile] demand not derived",
				zap.Int("user_id", userID), zap.Error(err))
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nutrition.Profile{}, err
	}
	return updated, nil
}

// UpdateOrCreateDemand derives the demand of profile and upserts it. On a
// derivation error nothing is written and the error is returned, so the
// previous demand (if any) stays as it was.
func (s *Service) UpdateOrCreateDemand(ctx context.Context, tx store.Tx, profile nutrition.Profile) error {
	d, err := nutrition.DeriveDemand(profile)
	if err != nil {
		return err
	}
	if _, err := tx.UpsertDemand(ctx, d); err != nil {
		return fmt.Errorf("upsert demand: %w", err)
	}
	return nil
}

func (s *Service) GetProfile(ctx context.Context, userID int) (nutrition.Profile, error) {
	return s.store.GetProfile(ctx, userID)
}

// GetDemand returns store.ErrNotFound until the profile is complete enough
// to derive one.
func (s *Service) GetDemand(ctx context.Context, userID int) (nutrition.Demand, error) {
	return s.store.GetDemand(ctx, userID)
}
