// Package tracker is the derived-nutrition pipeline. Every food entry
// mutation recomputes its day's aggregate, and every profile update
// re-derives the demand, inside the same store transaction as the write.
package tracker

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lg/keto-go-api/internal/lookup"
	"lg/keto-go-api/internal/nutrition"
	"lg/keto-go-api/internal/report"
	"lg/keto-go-api/internal/store"
)

// ValidationError is a rejected input. Message is safe to show to users.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var (
	// ErrNoEntriesInRange means a report was requested for a range without
	// a single food entry.
	ErrNoEntriesInRange = errors.New("no food entries in range")
	// ErrReportsDisabled means no report sink is configured.
	ErrReportsDisabled = errors.New("report delivery is not configured")
)

// Service wires the store to the nutrient lookup and the report sink.
type Service struct {
	store  store.Store
	lookup lookup.Lookup
	sink   report.Sink
	logger *zap.Logger
	now    func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides time.Now, which decides the default entry date.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithReportSink enables SendReport.
func WithReportSink(sink report.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

func New(st store.Store, l lookup.Lookup, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{store: st, lookup: l, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() nutrition.Date {
	return nutrition.NewDate(s.now())
}
