package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCalendarSortsAndDedupes(t *testing.T) {
	cal := NewCalendar([]time.Time{
		d("2024-01-05"),
		d("2024-01-02"),
		d("2024-01-05").Add(15 * time.Hour),
		d("2024-01-03"),
	})

	assert.Equal(t, 3, cal.Len())
	assert.Equal(t, []time.Time{d("2024-01-02"), d("2024-01-03"), d("2024-01-05")}, cal.days)
}

func TestCalendarIsTradingDay(t *testing.T) {
	cal := NewCalendar([]time.Time{d("2024-01-02"), d("2024-01-03"), d("2024-01-05")})

	assert.True(t, cal.IsTradingDay(d("2024-01-03")))
	assert.True(t, cal.IsTradingDay(d("2024-01-05").Add(9*time.Hour)))
	assert.False(t, cal.IsTradingDay(d("2024-01-04")))
	assert.False(t, cal.IsTradingDay(d("2024-01-06")))
	assert.False(t, NewCalendar(nil).IsTradingDay(d("2024-01-02")))
}

func TestCalendarDaysBefore(t *testing.T) {
	cal := NewCalendar([]time.Time{
		d("2024-01-02"), d("2024-01-03"), d("2024-01-05"), d("2024-01-08"),
	})

	tests := []struct {
		name     string
		date     string
		n        int
		want     string
		wantKind ErrorKind
	}{
		{name: "zero lag is the date itself", date: "2024-01-05", n: 0, want: "2024-01-05"},
		{name: "one day skips the gap", date: "2024-01-05", n: 1, want: "2024-01-03"},
		{name: "across two gaps", date: "2024-01-08", n: 2, want: "2024-01-03"},
		{name: "all the way back", date: "2024-01-08", n: 3, want: "2024-01-02"},
		{name: "date between trading days", date: "2024-01-04", n: 1, want: "2024-01-03"},
		{name: "first day has no history", date: "2024-01-02", n: 1, wantKind: KindInsufficientHistory},
		{name: "too far back", date: "2024-01-08", n: 4, wantKind: KindInsufficientHistory},
		{name: "negative lag", date: "2024-01-08", n: -1, wantKind: KindInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cal.DaysBefore(d(tt.date), tt.n)
			if tt.wantKind != KindUnknown {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, d(tt.want), got)
		})
	}
}

func TestCalendarInsufficientHistoryMatchesSentinel(t *testing.T) {
	_, err := NewCalendar([]time.Time{d("2024-01-02")}).DaysBefore(d("2024-01-02"), 5)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}
