package nutrition

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// Date wraps time.Time to serialize as "YYYY-MM-DD" in JSON. The time part is
// always midnight UTC so two Dates for the same day compare equal.
type Date struct{ time.Time }

// NewDate truncates t to its calendar day.
func NewDate(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a "YYYY-MM-DD" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Time.Format(DateLayout)
}

// DayNumber is the number of days since 1970-01-01. It is small enough to be
// used as the int4 half of a Postgres advisory lock key.
func (d Date) DayNumber() int32 {
	return int32(d.Time.Unix() / 86400)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	t, err := time.Parse(`"2006-01-02"`, string(b))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// ScanDate implements pgtype.DateScanner so pgx can scan PostgreSQL date
// columns (OID 1082) into Date. NULL values zero the time and return nil
// so that *Date pointer fields can be set to nil by pgx's NULL handling.
func (d *Date) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		d.Time = time.Time{}
		return nil
	}
	d.Time = NewDate(v.Time).Time
	return nil
}
