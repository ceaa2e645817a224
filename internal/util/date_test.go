package util

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddMonthsClamped(t *testing.T) {
	cases := []struct {
		name  string
		start time.Time
		n     int
		want  time.Time
	}{
		{"plain month", date(2025, 3, 15), 1, date(2025, 4, 15)},
		{"year rollover", date(2025, 11, 10), 3, date(2026, 2, 10)},
		{"clamp to february", date(2025, 1, 31), 1, date(2025, 2, 28)},
		{"clamp leap february", date(2024, 1, 31), 1, date(2024, 2, 29)},
		{"clamp 30-day month", date(2025, 3, 31), 1, date(2025, 4, 30)},
		{"no clamp after short month", date(2025, 1, 31), 2, date(2025, 3, 31)},
		{"many months", date(2025, 1, 31), 13, date(2026, 2, 28)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AddMonthsClamped(tc.start, tc.n); !got.Equal(tc.want) {
				t.Errorf("AddMonthsClamped(%s, %d) = %s, want %s", tc.start, tc.n, got, tc.want)
			}
		})
	}
}

func TestDaysBetween(t *testing.T) {
	if got := DaysBetween(date(2025, 1, 1), date(2025, 1, 20)); got != 19 {
		t.Errorf("DaysBetween = %d, want 19", got)
	}
	if got := DaysBetween(date(2025, 1, 20), date(2025, 1, 1)); got != -19 {
		t.Errorf("DaysBetween reversed = %d, want -19", got)
	}
	// Partial days floor.
	late := time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC)
	if got := DaysBetween(late, date(2025, 1, 2)); got != 1 {
		t.Errorf("DaysBetween with partial day = %d, want 1", got)
	}
}
