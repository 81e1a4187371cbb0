// Package lookup resolves calories and macros for a named food and mass.
package lookup

import (
	"context"
	"errors"
	"math"
)

// ErrLookupFailure is returned (wrapped) whenever a provider could not be
// reached, answered with a non-2xx status, or sent data we could not parse.
var ErrLookupFailure = errors.New("nutrient lookup failed")

// Nutrients are the totals for the full requested mass, not per 100 g.
type Nutrients struct {
	Calories int     `json:"kcal"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
	ProteinG float64 `json:"protein_g"`
}

// Lookup is implemented by every nutrient provider.
type Lookup interface {
	LookupNutrients(ctx context.Context, name string, grams float64) (Nutrients, error)
}

// valid reports whether every value is a finite, non-negative number.
func (n Nutrients) valid() bool {
	for _, v := range []float64{float64(n.Calories), n.CarbsG, n.FatG, n.ProteinG} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
