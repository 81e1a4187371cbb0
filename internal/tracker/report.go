package tracker

import (
	"context"
	"fmt"
	"net/mail"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lg/keto-go-api/internal/nutrition"
	"lg/keto-go-api/internal/report"
	"lg/keto-go-api/internal/store"
)

// BuildReport collects the user's entries and aggregates in [start, end].
// The emptiness check runs on the entries actually read, so a concurrent
// delete can never yield an empty report.
func (s *Service) BuildReport(ctx context.Context, userID int, start, end nutrition.Date) (report.Report, error) {
	if err := validateRange(start, end); err != nil {
		return report.Report{}, err
	}

	r := report.Report{UserID: userID, Start: start, End: end}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		r.Entries, err = s.store.ListFoodEntries(gctx, userID, store.EntryFilter{From: start, To: end})
		return err
	})
	g.Go(func() error {
		var err error
		r.Aggregates, err = s.store.ListDailyAggregates(gctx, userID, start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		return report.Report{}, fmt.Errorf("collect report data: %w", err)
	}
	if len(r.Entries) == 0 {
		return report.Report{}, ErrNoEntriesInRange
	}
	return r, nil
}

// SendReport builds the report and hands it to the configured sink.
func (s *Service) SendReport(ctx context.Context, userID int, start, end nutrition.Date, email string) (report.Report, error) {
	if s.sink == nil {
		return report.Report{}, ErrReportsDisabled
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return report.Report{}, invalid("email", "email is not a valid address")
	}
	r, err := s.BuildReport(ctx, userID, start, end)
	if err != nil {
		return report.Report{}, err
	}
	if err := s.sink.Deliver(ctx, r, email); err != nil {
		return report.Report{}, fmt.Errorf("deliver report: %w", err)
	}
	s.logger.Info("[SendReport] report delivered",
		zap.Int("user_id", userID), zap.String("start", start.String()), zap.String("end", end.String()))
	return r, nil
}
