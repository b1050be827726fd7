// Package recurrence computes subscription due dates.
//
// Month and year steps clamp to the last day of the target month instead of
// rolling over: Jan 31 + 1 month is Feb 29 (leap year) or Feb 28, and
// Feb 29 + 1 year is Feb 28. The rule is applied to every monthly and yearly step.
package recurrence

import "time"

// Frequency mirrors the values stored in subscriptions.frequency.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// Frequencies lists every recognised frequency.
var Frequencies = []Frequency{Daily, Weekly, Monthly, Yearly}

// IsValid reports whether f is one of the recognised frequencies.
func (f Frequency) IsValid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// NextDueDate returns the due date following current. Unrecognised
// frequencies advance by one month. The time of day is preserved.
func NextDueDate(current time.Time, frequency Frequency) time.Time {
	switch frequency {
	case Daily:
		return current.AddDate(0, 0, 1)
	case Weekly:
		return current.AddDate(0, 0, 7)
	case Yearly:
		return addMonthsClamped(current, 12)
	default:
		return addMonthsClamped(current, 1)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	total := int(month) - 1 + months
	targetYear := year + total/12
	targetMonth := time.Month(total%12 + 1)

	if last := daysIn(targetYear, targetMonth, t.Location()); day > last {
		day = last
	}
	hour, min, sec := t.Clock()
	return time.Date(targetYear, targetMonth, day, hour, min, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
