/**
 * @description
 * Calendar date value used as part of every race key.
 * Stored as SQL DATE and always interpreted in JST.
 *
 * @dependencies
 * - backend/internal/clock
 */

package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kyotei-project/backend/internal/clock"
)

const dateLayout = "2006-01-02"

// Date is a JST calendar day in "YYYY-MM-DD" form.
type Date string

// DateOf returns the JST calendar day containing t.
func DateOf(t time.Time) Date {
	return Date(t.In(clock.JST).Format(dateLayout))
}

// ParseDate accepts "YYYY-MM-DD" or "YYYYMMDD".
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{dateLayout, "20060102"} {
		if t, err := time.ParseInLocation(layout, s, clock.JST); err == nil {
			return DateOf(t), nil
		}
	}
	return "", fmt.Errorf("invalid date %q", s)
}

// Time returns midnight JST of the day.
func (d Date) Time() time.Time {
	t, err := time.ParseInLocation(dateLayout, string(d), clock.JST)
	if err != nil {
		return time.Time{}
	}
	return t
}

// AddDays shifts the date by n days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// Compact returns "YYYYMMDD" as used by the live site.
func (d Date) Compact() string {
	return strings.ReplaceAll(string(d), "-", "")
}

// YearMonth returns "YYYY-MM".
func (d Date) YearMonth() string {
	if len(d) < 7 {
		return ""
	}
	return string(d[:7])
}

func (d Date) String() string { return string(d) }

// Value implements the driver.Valuer interface
func (d Date) Value() (driver.Value, error) {
	if d == "" {
		return nil, nil
	}
	return string(d), nil
}

// Scan implements the sql.Scanner interface
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = ""
	case time.Time:
		// DATE columns come back as UTC midnight; keep the civil day as-is.
		*d = Date(v.Format(dateLayout))
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	default:
		return errors.New("type assertion failed for Date")
	}
	return nil
}

func (d *Date) scanString(s string) error {
	if len(s) < len(dateLayout) {
		return fmt.Errorf("invalid date %q", s)
	}
	*d = Date(s[:len(dateLayout)])
	return nil
}

// GormDataType tells gorm to create a DATE column.
func (Date) GormDataType() string { return "date" }

// RaceKey is the natural key of a race.
type RaceKey struct {
	Date       Date   `json:"race_date"`
	VenueCode  string `json:"venue_code"`
	RaceNumber int    `json:"race_number"`
}

func (k RaceKey) String() string {
	return fmt.Sprintf("%s#%s#%02d", k.Date, k.VenueCode, k.RaceNumber)
}
