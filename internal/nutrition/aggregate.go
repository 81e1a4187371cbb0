package nutrition

// Totals are the summed macros of one (user, date).
type Totals struct {
	Kcal    int `json:"total_kcal"`
	Carbs   int `json:"total_carbs"`
	Fat     int `json:"total_fat"`
	Protein int `json:"total_protein"`
}

// SumEntries adds up the macros of entries. Unresolved (nil) values count as
// zero so one missing lookup never blanks the whole day.
func SumEntries(entries []FoodEntry) Totals {
	var t Totals
	for _, e := range entries {
		t.Kcal += valueOrZero(e.Calories)
		t.Carbs += valueOrZero(e.CarbsG)
		t.Fat += valueOrZero(e.FatG)
		t.Protein += valueOrZero(e.ProteinG)
	}
	return t
}

// Totals returns the summed macros stored on the aggregate.
func (a DailyAggregate) Totals() Totals {
	return Totals{Kcal: a.TotalKcal, Carbs: a.TotalCarbs, Fat: a.TotalFat, Protein: a.TotalProtein}
}

func valueOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
