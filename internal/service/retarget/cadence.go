package retarget

import (
	"time"

	"github.com/regabilling/retarget/internal/config"
)

// CadenceRule describes the send slot for one drip week.
type CadenceRule struct {
	Weekday time.Weekday
	Hour    int
}

// Cadence computes send times from per-week rules in the business time zone.
// Rules come from configuration; weeks without an explicit rule fall back to
// the historical defaults (week 1 Monday, later weeks Tuesday, hour 11 up to
// week 2 and 10 after).
type Cadence struct {
	rules map[int]CadenceRule
	loc   *time.Location
}

// NewCadence builds a Cadence from config rules and a resolved location.
func NewCadence(rules []config.CadenceRule, loc *time.Location) Cadence {
	m := make(map[int]CadenceRule, len(rules))
	for _, r := range rules {
		m[r.Week] = CadenceRule{Weekday: ParseWeekday(r.Weekday), Hour: r.Hour}
	}
	return Cadence{rules: m, loc: loc}
}

// Location returns the cadence's business time zone.
func (c Cadence) Location() *time.Location { return c.loc }

// NextSendTime returns the next occurrence of the week's send slot strictly
// after from. If the slot of the current week is not in the future, the send
// moves one week out.
func (c Cadence) NextSendTime(week int, from time.Time) time.Time {
	rule, ok := c.rules[week]
	if !ok {
		rule = defaultRule(week)
	}

	local := from.In(c.loc)
	daysAhead := (int(rule.Weekday) - int(local.Weekday()) + 7) % 7
	t := time.Date(local.Year(), local.Month(), local.Day()+daysAhead,
		rule.Hour, 0, 0, 0, c.loc)

	if !t.After(from) {
		t = t.AddDate(0, 0, 7)
	}
	return t
}

// StartOfWeek returns Monday 00:00 of the week containing t, in the business
// time zone. This is the budget accounting window boundary.
func (c Cadence) StartOfWeek(t time.Time) time.Time {
	local := t.In(c.loc)
	daysBack := (int(local.Weekday()) - int(time.Monday) + 7) % 7
	return time.Date(local.Year(), local.Month(), local.Day()-daysBack, 0, 0, 0, 0, c.loc)
}

func defaultRule(week int) CadenceRule {
	rule := CadenceRule{Weekday: time.Tuesday, Hour: 10}
	if week == 1 {
		rule.Weekday = time.Monday
	}
	if week <= 2 {
		rule.Hour = 11
	}
	return rule
}

// ParseWeekday maps a config weekday name to a time.Weekday, defaulting to
// Monday on unknown input.
func ParseWeekday(s string) time.Weekday {
	switch s {
	case "Sunday":
		return time.Sunday
	case "Monday":
		return time.Monday
	case "Tuesday":
		return time.Tuesday
	case "Wednesday":
		return time.Wednesday
	case "Thursday":
		return time.Thursday
	case "Friday":
		return time.Friday
	case "Saturday":
		return time.Saturday
	}
	return time.Monday
}
