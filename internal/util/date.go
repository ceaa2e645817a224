package util

import "time"

// AddMonthsClamped returns the date n calendar months after t, keeping the
// same day-of-month and clamping to the month length (e.g. Jan 31 + 1 month
// = Feb 28/29). time.AddDate alone would normalize Feb 31 into March.
func AddMonthsClamped(t time.Time, n int) time.Time {
	year, month, day := t.Date()

	totalMonths := int(month) - 1 + n
	targetYear := year + totalMonths/12
	targetMonth := time.Month(totalMonths%12 + 1)
	if totalMonths < 0 {
		targetYear = year + (totalMonths-11)/12
		targetMonth = time.Month((totalMonths%12+12)%12 + 1)
	}

	lastDay := time.Date(targetYear, targetMonth+1, 0, 0, 0, 0, 0, t.Location()).Day()
	if day > lastDay {
		day = lastDay
	}

	return time.Date(targetYear, targetMonth, day, 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the whole number of days from a to b, flooring partial
// days. Negative when b is before a.
func DaysBetween(a, b time.Time) int {
	aDay := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bDay := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bDay.Sub(aDay).Hours() / 24)
}
