// Package dates holds the calendar-date JSON type and the date-time formats
// accepted from clients.
package dates

import (
	"fmt"
	"strings"
	"time"
)

const Layout = "2006-01-02"

// Date is a calendar day serialized as YYYY-MM-DD. The zero value encodes as
// null.
type Date struct {
	time.Time
}

func Of(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Ptr converts a nullable column value.
func Ptr(t *time.Time) *Date {
	if t == nil {
		return nil
	}
	d := Of(*t)
	return &d
}

func Today() Date {
	return Of(time.Now())
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(Layout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(Layout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDate accepts a bare date or any of the date-time layouts and keeps the
// day.
func ParseDate(s string) (Date, error) {
	if t, err := time.Parse(Layout, s); err == nil {
		return Of(t), nil
	}
	t, err := ParseDateTime(s, time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD", s)
	}
	return Of(t), nil
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	Layout,
}

// ParseDateTime parses a client-supplied date-time. Values with a zone
// designator (Z or an offset) keep it; naive values are read in loc.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date-time")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date-time %q, use ISO-8601 (YYYY-MM-DDTHH:MM:SS)", s)
}
