package recurring

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/carriage/carriage-api/internal/model"
)

// Day is a calendar date with no zone attached.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Day: d}
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Start is midnight of d in loc.
func (d Day) Start(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Day) Before(o Day) bool {
	return d.Start(time.UTC).Before(o.Start(time.UTC))
}

// parseRule extracts the RRULE line from an iCalendar recurrence string.
func parseRule(s string, dtstart time.Time) (*rrule.RRule, error) {
	var line string
	for _, l := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		l = strings.TrimSpace(l)
		switch {
		case strings.HasPrefix(strings.ToUpper(l), "RRULE:"):
			line = l[len("RRULE:"):]
		case line == "" && l != "" && !strings.Contains(l, ":"):
			line = l
		}
	}
	if line == "" {
		return nil, fmt.Errorf("no RRULE in %q", s)
	}

	opt, err := rrule.StrToROption(line)
	if err != nil {
		return nil, fmt.Errorf("invalid rrule %q: %w", line, err)
	}
	opt.Dtstart = dtstart
	return rrule.NewRRule(*opt)
}

// covers reports whether master recurs on day, evaluated in loc.
func covers(master *model.Ride, day Day, loc *time.Location) (bool, error) {
	for _, t := range master.RDate {
		if DayOf(t.In(loc)) == day {
			return true, nil
		}
	}

	start := master.StartTime.In(loc)
	if day.Before(DayOf(start)) {
		return false, nil
	}

	if master.RRule != "" {
		rule, err := parseRule(master.RRule, start)
		if err != nil {
			return false, err
		}
		from := day.Start(loc)
		to := from.AddDate(0, 0, 1).Add(-time.Nanosecond)
		return len(rule.Between(from, to, true)) > 0, nil
	}

	if master.EndDate != nil && DayOf(master.EndDate.In(loc)).Before(day) {
		return false, nil
	}
	wd := model.WeekdayOf(day.Start(loc))
	for _, d := range master.RecurringDays {
		if d == wd {
			return true, nil
		}
	}
	return false, nil
}

func excluded(master *model.Ride, day Day, loc *time.Location) bool {
	for _, t := range master.ExDate {
		if DayOf(t.In(loc)) == day {
			return true
		}
	}
	return false
}

func override(master *model.Ride, day Day) *model.RideOverride {
	key := day.String()
	for i := range master.Overrides {
		if master.Overrides[i].Date == key {
			return &master.Overrides[i]
		}
	}
	return nil
}
