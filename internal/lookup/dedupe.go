package lookup

import (
	"context"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"
)

type deduped struct {
	next  Lookup
	group singleflight.Group
}

// Dedupe collapses concurrent identical lookups (same lowercased name and
// mass) into a single upstream call. Results are not cached once the call
// returns.
func Dedupe(l Lookup) Lookup {
	return &deduped{next: l}
}

// LookupNutrients runs the shared call detached from the caller that started
// it, so one caller going away does not fail the others waiting on the same
// key. Each caller still stops waiting when its own ctx is done.
func (d *deduped) LookupNutrients(ctx context.Context, name string, grams float64) (Nutrients, error) {
	key := strings.ToLower(strings.TrimSpace(name)) + "|" + strconv.FormatFloat(grams, 'f', -1, 64)
	shared := context.WithoutCancel(ctx)
	ch := d.group.DoChan(key, func() (any, error) {
		return d.next.LookupNutrients(shared, name, grams)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Nutrients{}, res.Err
		}
		return res.Val.(Nutrients), nil
	case <-ctx.Done():
		return Nutrients{}, ctx.Err()
	}
}
