package tracker

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"lg/keto-go-api/internal/lookup"
	"lg/keto-go-api/internal/nutrition"
	"lg/keto-go-api/internal/store"
)

// maxGrams bounds a single entry; anything larger is almost certainly a typo.
const maxGrams = 100000

// AddFoodEntry resolves the nutrients of name at grams, stores the entry and
// recomputes its day. A nil date means today. A lookup failure leaves both
// the entries and the aggregate untouched.
func (s *Service) AddFoodEntry(ctx context.Context, userID int, name string, grams float64, date *nutrition.Date) (nutrition.FoodEntry, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return nutrition.FoodEntry{}, err
	}
	if err := validateGrams(grams); err != nil {
		return nutrition.FoodEntry{}, err
	}
	day := s.today()
	if date != nil && !date.IsZero() {
		day = *date
	}

	e := nutrition.FoodEntry{UserID: userID, Name: name, Grams: grams, Date: day}
	if err := s.resolve(ctx, &e); err != nil {
		return nutrition.FoodEntry{}, err
	}

	var created nutrition.FoodEntry
	err := s.store.InDayTx(ctx, userID, day, func(tx store.Tx) error {
		var err error
		if created, err = tx.InsertFoodEntry(ctx, e); err != nil {
			return fmt.Errorf("insert food entry: %w", err)
		}
		return s.recompute(ctx, tx, userID, day)
	})
	if err != nil {
		return nutrition.FoodEntry{}, err
	}
	s.logger.Debug("[AddFoodEntry] entry created",
		zap.Int("user_id", userID), zap.Int("entry_id", created.ID), zap.String("date", day.String()))
	return created, nil
}

// UpdateFoodEntryMass re-resolves the entry's nutrients for the new mass and
// overwrites all four macro fields. The date never changes.
func (s *Service) UpdateFoodEntryMass(ctx context.Context, userID, entryID int, grams float64) (nutrition.FoodEntry, error) {
	if err := validateGrams(grams); err != nil {
		return nutrition.FoodEntry{}, err
	}
	e, err := s.store.GetFoodEntry(ctx, userID, entryID)
	if err != nil {
		return nutrition.FoodEntry{}, err
	}
	e.Grams = grams
	if err := s.resolve(ctx, &e); err != nil {
		return nutrition.FoodEntry{}, err
	}

	var updated nutrition.FoodEntry
	err = s.store.InDayTx(ctx, userID, e.Date, func(tx store.Tx) error {
		var err error
		if updated, err = tx.UpdateFoodEntryNutrients(ctx, e); err != nil {
			return fmt.Errorf("update food entry: %w", err)
		}
		return s.recompute(ctx, tx, userID, e.Date)
	})
	if err != nil {
		return nutrition.FoodEntry{}, err
	}
	return updated, nil
}

// DeleteFoodEntry removes the entry and recomputes its day. The aggregate
// row stays, with zero totals if this was the last entry.
func (s *Service) DeleteFoodEntry(ctx context.Context, userID, entryID int) error {
	e, err := s.store.GetFoodEntry(ctx, userID, entryID)
	if err != nil {
		return err
	}
	return s.store.InDayTx(ctx, userID, e.Date, func(tx store.Tx) error {
		if err := tx.DeleteFoodEntry(ctx, userID, entryID); err != nil {
			return err
		}
		return s.recompute(ctx, tx, userID, e.Date)
	})
}

func (s *Service) GetFoodEntry(ctx context.Context, userID, entryID int) (nutrition.FoodEntry, error) {
	return s.store.GetFoodEntry(ctx, userID, entryID)
}

func (s *Service) ListFoodEntries(ctx context.Context, userID int, f store.EntryFilter) ([]nutrition.FoodEntry, error) {
	return s.store.ListFoodEntries(ctx, userID, f)
}

// PreviewNutrients runs the lookup without storing anything.
func (s *Service) PreviewNutrients(ctx context.Context, name string, grams float64) (lookup.Nutrients, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return lookup.Nutrients{}, err
	}
	if err := validateGrams(grams); err != nil {
		return lookup.Nutrients{}, err
	}
	return s.lookup.LookupNutrients(ctx, name, grams)
}

// resolve fills the macro fields of e from the lookup. Fractional grams are
// truncated; the fields are set all together or not at all.
func (s *Service) resolve(ctx context.Context, e *nutrition.FoodEntry) error {
	n, err := s.lookup.LookupNutrients(ctx, e.Name, e.Grams)
	if err != nil {
		s.logger.Warn("[resolve] nutrient lookup failed", zap.String("name", e.Name), zap.Error(err))
		return err
	}
	carbs, ok1 := wholeGrams(n.CarbsG)
	fat, ok2 := wholeGrams(n.FatG)
	protein, ok3 := wholeGrams(n.ProteinG)
	if n.Calories < 0 || !ok1 || !ok2 || !ok3 {
		return fmt.Errorf("%w: negative or non-finite values for %q", lookup.ErrLookupFailure, e.Name)
	}
	kcal := n.Calories
	e.Calories, e.CarbsG, e.FatG, e.ProteinG = &kcal, &carbs, &fat, &protein
	return nil
}

func wholeGrams(v float64) (int, bool) {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return int(v), true
}

func validateName(name string) error {
	if name == "" {
		return invalid("name", "name is required")
	}
	if len(name) > 200 {
		return invalid("name", "name must be at most 200 characters")
	}
	if strings.IndexFunc(name, unicode.IsDigit) >= 0 {
		return invalid("name", "name must not contain digits, send the mass as grams")
	}
	return nil
}

func validateGrams(grams float64) error {
	if math.IsNaN(grams) || grams <= 0 {
		return invalid("grams", "grams must be greater than 0")
	}
	if grams > maxGrams {
		return invalid("grams", "grams must be at most %d", maxGrams)
	}
	return nil
}
