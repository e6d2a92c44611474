package calendar

import (
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DaysPerWeek          = 7
	ThirdMondayOffset    = 2
	FourthThursdayOffset = 3

	// DefaultMarketTimezone is where trading days are counted.
	DefaultMarketTimezone = "America/New_York"
)

// Holiday is a fixed or computed NYSE full-day closure.
type Holiday struct {
	Name string
	Date time.Time
}

// LoadMarketLocation resolves the market time zone, falling back to UTC when the zone
// database does not know it.
func LoadMarketLocation(name string) *time.Location {
	if name == "" {
		name = DefaultMarketTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logrus.WithError(err).WithField("timezone", name).Warn("unknown market timezone, using UTC")
		return time.UTC
	}
	return loc
}

// IsWeekend reports whether the calendar date falls on Saturday or Sunday.
func IsWeekend(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsHoliday reports whether the calendar date is a market holiday and returns its name.
func IsHoliday(day time.Time) (string, bool) {
	for _, h := range Holidays(day.Year()) {
		if sameDate(day, h.Date) {
			return h.Name, true
		}
	}
	return "", false
}

// IsTradingDay is true for weekdays that are not market holidays.
func IsTradingDay(day time.Time) bool {
	if IsWeekend(day) {
		return false
	}
	_, holiday := IsHoliday(day)
	return !holiday
}

// Holidays lists the observed full-day closures of a year.
func Holidays(year int) []Holiday {
	memorialDay := time.Date(year, time.May, 31, 0, 0, 0, 0, time.UTC)
	for memorialDay.Weekday() != time.Monday {
		memorialDay = memorialDay.AddDate(0, 0, -1)
	}

	holidays := []Holiday{
		{Name: "New Year's Day", Date: observed(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC))},
		{Name: "Martin Luther King Jr. Day", Date: specificWeekday(year, time.January, time.Monday, ThirdMondayOffset)},
		{Name: "Presidents' Day", Date: specificWeekday(year, time.February, time.Monday, ThirdMondayOffset)},
		{Name: "Good Friday", Date: easterSunday(year).AddDate(0, 0, -2)},
		{Name: "Memorial Day", Date: memorialDay},
		{Name: "Independence Day", Date: observed(time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC))},
		{Name: "Labor Day", Date: specificWeekday(year, time.September, time.Monday, 0)},
		{Name: "Thanksgiving Day", Date: specificWeekday(year, time.November, time.Thursday, FourthThursdayOffset)},
		{Name: "Christmas Day", Date: observed(time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC))},
	}
	if year >= 2022 {
		holidays = append(holidays, Holiday{Name: "Juneteenth", Date: observed(time.Date(year, time.June, 19, 0, 0, 0, 0, time.UTC))})
	}
	return holidays
}

// observed moves a Sunday holiday to Monday and a Saturday holiday to Friday.
// New Year's Day on a Saturday is not observed on the previous Friday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	case time.Saturday:
		if d.Month() == time.January && d.Day() == 1 {
			return d
		}
		return d.AddDate(0, 0, -1)
	}
	return d
}

// easterSunday is the Gregorian Easter date (anonymous Gregorian algorithm).
func easterSunday(year int) time.Time {
	a := year % 19
	b, c := year/100, year%100
	d, e := b/4, b%4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i, k := c/4, c%4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// specificWeekday returns the weekday of a month after skipping offset weeks
// (offset 2 with Monday is the third Monday).
func specificWeekday(year int, month time.Month, weekday time.Weekday, offset int) time.Time {
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	shift := int(weekday-firstOfMonth.Weekday()+DaysPerWeek) % DaysPerWeek
	return firstOfMonth.AddDate(0, 0, shift+offset*DaysPerWeek)
}

func sameDate(a, b time.Time) bool {
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}
