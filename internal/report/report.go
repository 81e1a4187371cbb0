// Package report renders a date-range food report as PDF and delivers it.
package report

import (
	"context"
	"fmt"
	"sort"

	"lg/keto-go-api/internal/nutrition"
)

// Body is the plain-text body of the report e-mail.
const Body = "Please find the report attached in PDF format."

// Report is everything logged by one user in an inclusive date range.
type Report struct {
	UserID     int
	Start      nutrition.Date
	End        nutrition.Date
	Entries    []nutrition.FoodEntry
	Aggregates []nutrition.DailyAggregate
}

// Sink delivers a rendered report to destination, e.g. an e-mail address.
type Sink interface {
	Deliver(ctx context.Context, r Report, destination string) error
}

func (r Report) Title() string {
	return fmt.Sprintf("Report for dates between %s and %s.", r.Start, r.End)
}

func (r Report) Subject() string {
	return fmt.Sprintf("KetoApp report for dates between %s and %s.", r.Start, r.End)
}

func (r Report) Filename() string {
	return fmt.Sprintf("report_%s_%s.pdf", r.Start, r.End)
}

// ArchiveKey is the object key a sent report is archived under.
func (r Report) ArchiveKey() string {
	return fmt.Sprintf("reports/%d/%s", r.UserID, r.Filename())
}

// Lines lays the report out as text: the title, then per day its entry lines
// followed by the day's totals. Days appear in date order.
func (r Report) Lines() []string {
	byDay := make(map[string][]nutrition.FoodEntry)
	totals := make(map[string]nutrition.DailyAggregate)
	var days []string
	seen := make(map[string]bool)
	addDay := func(d string) {
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	for _, e := range r.Entries {
		d := e.Date.String()
		byDay[d] = append(byDay[d], e)
		addDay(d)
	}
	for _, a := range r.Aggregates {
		d := a.Date.String()
		totals[d] = a
		addDay(d)
	}
	sort.Strings(days)

	lines := []string{r.Title()}
	for _, d := range days {
		for _, e := range byDay[d] {
			lines = append(lines, fmt.Sprintf("Product: %s, date: %s, kcal: %s, fat: %s, carbs: %s, protein: %s",
				e.Name, d, amount(e.Calories), amount(e.FatG), amount(e.CarbsG), amount(e.ProteinG)))
		}
		// A day can have entries but no aggregate only if it was written
		// outside the tracker; fall back to summing the entries.
		t, ok := totals[d]
		sum := t.Totals()
		if !ok {
			sum = nutrition.SumEntries(byDay[d])
		}
		lines = append(lines, fmt.Sprintf("Total kcal: %d, date: %s, total fat: %d, total carbs: %d, total protein: %d",
			sum.Kcal, d, sum.Fat, sum.Carbs, sum.Protein))
	}
	return lines
}

func amount(v *int) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprint(*v)
}
