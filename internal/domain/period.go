package domain

import (
	"fmt"
	"strings"
	"time"
)

type PeriodType string

const (
	PeriodDay   PeriodType = "day"
	PeriodWeek  PeriodType = "week"
	PeriodMonth PeriodType = "month"
)

// PeriodTypes lists every rollup granularity, in the order rows are written.
var PeriodTypes = []PeriodType{PeriodDay, PeriodWeek, PeriodMonth}

// ParsePeriodType accepts day, week or month (case-insensitive); empty means day.
func ParsePeriodType(s string) (PeriodType, error) {
	switch PeriodType(strings.ToLower(strings.TrimSpace(s))) {
	case "", PeriodDay:
		return PeriodDay, nil
	case PeriodWeek:
		return PeriodWeek, nil
	case PeriodMonth:
		return PeriodMonth, nil
	}
	return "", fmt.Errorf("unknown period type %q", s)
}

// PeriodKey maps a calendar date onto the key of the period containing it:
// day YYYY-MM-DD, week YYYY-Www (ISO-8601 year and week), month YYYY-MM.
func PeriodKey(pt PeriodType, date time.Time) string {
	switch pt {
	case PeriodWeek:
		year, week := date.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case PeriodMonth:
		return date.Format("2006-01")
	default:
		return date.Format("2006-01-02")
	}
}

// DateOf strips the clock from t as seen in loc and returns midnight UTC of
// that calendar day, the representation used for DATE columns.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
