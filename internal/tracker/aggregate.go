package tracker

import (
	"context"
	"errors"
	"fmt"

	"lg/keto-go-api/internal/nutrition"
	"lg/keto-go-api/internal/store"
)

// RecomputeDailyAggregate rebuilds the (userID, date) aggregate from the
// day's entries and returns it. A day with neither entries nor an aggregate
// row gets no row; the zero-valued aggregate is returned without error.
func (s *Service) RecomputeDailyAggregate(ctx context.Context, userID int, date nutrition.Date) (nutrition.DailyAggregate, error) {
	err := s.store.InDayTx(ctx, userID, date, func(tx store.Tx) error {
		return s.recompute(ctx, tx, userID, date)
	})
	if err != nil {
		return nutrition.DailyAggregate{}, err
	}
	agg, err := s.store.GetDailyAggregate(ctx, userID, date)
	if errors.Is(err, store.ErrNotFound) {
		return nutrition.DailyAggregate{UserID: userID, Date: date}, nil
	}
	return agg, err
}

// recompute must run inside InDayTx for (userID, date). It never reads the
// previous aggregate: totals come only from the entries.
func (s *Service) recompute(ctx context.Context, tx store.Tx, userID int, date nutrition.Date) error {
	entries, err := tx.ListDayEntries(ctx, userID, date)
	if err != nil {
		return fmt.Errorf("list day entries: %w", err)
	}

	if len(entries) == 0 {
		if _, err := tx.ZeroDailyTotals(ctx, userID, date); err != nil {
			return fmt.Errorf("zero daily totals: %w", err)
		}
		return nil
	}

	if _, err := tx.UpsertDailyTotals(ctx, userID, date, nutrition.SumEntries(entries)); err != nil {
		return fmt.Errorf("upsert daily totals: %w", err)
	}
	return nil
}

// GetDailyAggregate returns store.ErrNotFound when the day was never logged.
func (s *Service) GetDailyAggregate(ctx context.Context, userID int, date nutrition.Date) (nutrition.DailyAggregate, error) {
	return s.store.GetDailyAggregate(ctx, userID, date)
}

func (s *Service) ListDailyAggregates(ctx context.Context, userID int, from, to nutrition.Date) ([]nutrition.DailyAggregate, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	return s.store.ListDailyAggregates(ctx, userID, from, to)
}

// SetDailyRemarks attaches free text to an existing aggregate. An empty
// string clears the remarks.
func (s *Service) SetDailyRemarks(ctx context.Context, userID int, date nutrition.Date, remarks string) (nutrition.DailyAggregate, error) {
	if len(remarks) > 2000 {
		return nutrition.DailyAggregate{}, invalid("remarks", "remarks must be at most 2000 characters")
	}
	var arg *string
	if remarks != "" {
		arg = &remarks
	}
	return s.store.SetDailyRemarks(ctx, userID, date, arg)
}

func validateRange(from, to nutrition.Date) error {
	if from.IsZero() || to.IsZero() {
		return invalid("range", "start and end are required")
	}
	if to.Before(from.Time) {
		return invalid("range", "end must not be before start")
	}
	if to.Sub(from.Time).Hours() > 366*24 {
		return invalid("range", "range must not exceed one year")
	}
	return nil
}
