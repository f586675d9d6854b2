package backtest

import (
	"sort"
	"time"

	"github.com/wonny/signal-backtest/internal/contracts"
)

// Calendar is a trading calendar derived from observed price dates.
// A date is a trading day iff at least one record exists for it.
type Calendar struct {
	days []time.Time // strictly increasing, normalized with contracts.Day
}

// NewCalendar builds a calendar from dates in any order, duplicates allowed
func NewCalendar(dates []time.Time) *Calendar {
	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		days = append(days, contracts.Day(d))
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	uniq := days[:0]
	for i, d := range days {
		if i == 0 || !d.Equal(uniq[len(uniq)-1]) {
			uniq = append(uniq, d)
		}
	}

	return &Calendar{days: uniq}
}

// newSortedCalendar wraps days that are already normalized and strictly increasing
func newSortedCalendar(days []time.Time) *Calendar {
	return &Calendar{days: days}
}

// Len returns the number of trading days
func (c *Calendar) Len() int {
	return len(c.days)
}

// search returns the index of the first trading day not before d
func (c *Calendar) search(d time.Time) int {
	return sort.Search(len(c.days), func(i int) bool { return !c.days[i].Before(d) })
}

// IsTradingDay reports whether date is in the calendar
func (c *Calendar) IsTradingDay(date time.Time) bool {
	d := contracts.Day(date)
	i := c.search(d)
	return i < len(c.days) && c.days[i].Equal(d)
}

// DaysBefore returns the date n trading days strictly before date.
// n == 0 returns date itself. Fails with ErrInsufficientHistory when fewer
// than n trading days precede date.
func (c *Calendar) DaysBefore(date time.Time, n int) (time.Time, error) {
	d := contracts.Day(date)
	if n < 0 {
		return time.Time{}, newError(KindInvalidRequest, "lag", "negative lag %d", n)
	}
	if n == 0 {
		return d, nil
	}

	// c.days[:i] are the trading days strictly before d
	i := c.search(d)
	if i < n {
		return time.Time{}, newError(KindInsufficientHistory, "",
			"%d trading days before %s, need %d", i, d.Format(contracts.DateLayout), n)
	}
	return c.days[i-n], nil
}
