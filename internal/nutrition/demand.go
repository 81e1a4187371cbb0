package nutrition

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidProfile means the profile holds a value the formulas are not
	// defined for, e.g. an unknown gender.
	ErrInvalidProfile = errors.New("invalid profile")
	// ErrIncompleteProfile means a required metric is still missing. It is
	// "not yet computable", not a user-facing failure.
	ErrIncompleteProfile = errors.New("profile incomplete")
)

// activityMultipliers maps activity levels to their TDEE multiplier. This is
// the single source of truth for valid activity levels.
var activityMultipliers = map[ActivityLevel]float64{
	ActivityInactive: 1.2,
	ActivityLow:      1.4,
	ActivityMedium:   1.6,
	ActivityHigh:     1.8,
	ActivityVeryHigh: 2.1,
}

// Share of TDEE per macro and its energy density in kcal per gram.
const (
	carbsShare   = 0.05
	fatShare     = 0.80
	proteinShare = 0.15

	kcalPerGramCarbs   = 4
	kcalPerGramFat     = 9
	kcalPerGramProtein = 4
)

// BMR computes the Mifflin-St Jeor basal metabolic rate rounded to two
// decimal places.
func BMR(g Gender, weightKg, heightCm, ageYears int) (float64, error) {
	bmr := 9.99*float64(weightKg) + 6.25*float64(heightCm) - 4.92*float64(ageYears)
	switch g {
	case GenderMale:
		bmr += 5
	case GenderFemale:
		bmr -= 161
	default:
		return 0, fmt.Errorf("%w: no BMR defined for gender %q", ErrInvalidProfile, string(g))
	}
	return roundTo2(bmr), nil
}

// TDEE scales bmr by the activity multiplier and truncates to whole kcal.
func TDEE(bmr float64, level ActivityLevel) (int, error) {
	mult, ok := activityMultipliers[level]
	if !ok {
		return 0, fmt.Errorf("%w: unknown activity level %q", ErrIncompleteProfile, string(level))
	}
	return int(math.Floor(bmr * mult)), nil
}

// MacroTargets splits tdee into gram targets for carbs, fat and protein.
func MacroTargets(tdee int) (carbsG, fatG, proteinG int) {
	kcal := float64(tdee)
	carbsG = int(math.Floor(kcal * carbsShare / kcalPerGramCarbs))
	fatG = int(math.Floor(kcal * fatShare / kcalPerGramFat))
	proteinG = int(math.Floor(kcal * proteinShare / kcalPerGramProtein))
	return carbsG, fatG, proteinG
}

// DeriveDemand runs BMR -> TDEE -> macro split for p. Missing metrics and an
// unset or unknown activity level yield ErrIncompleteProfile; an unknown
// gender or a non-positive BMR yields ErrInvalidProfile.
func DeriveDemand(p Profile) (Demand, error) {
	if p.WeightKg == nil || p.HeightCm == nil || p.AgeYears == nil || p.Gender == nil {
		return Demand{}, fmt.Errorf("%w: weight, height, age and gender are required", ErrIncompleteProfile)
	}
	if p.ActivityLevel == nil {
		return Demand{}, fmt.Errorf("%w: activity level is required", ErrIncompleteProfile)
	}

	bmr, err := BMR(*p.Gender, *p.WeightKg, *p.HeightCm, *p.AgeYears)
	if err != nil {
		return Demand{}, err
	}
	if bmr <= 0 {
		return Demand{}, fmt.Errorf("%w: BMR %.2f is not positive", ErrInvalidProfile, bmr)
	}

	tdee, err := TDEE(bmr, *p.ActivityLevel)
	if err != nil {
		return Demand{}, err
	}
	carbs, fat, protein := MacroTargets(tdee)

	return Demand{
		ProfileID: p.ID,
		Kcal:      tdee,
		FatG:      fat,
		ProteinG:  protein,
		CarbsG:    carbs,
	}, nil
}

// roundTo2 rounds half away from zero at the second decimal.
func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
