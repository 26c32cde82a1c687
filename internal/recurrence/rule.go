package recurrence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/roach88/noticeboard/internal/model"
)

// Kind discriminates recurrence rules.
type Kind string

const (
	KindWeekly   Kind = "weekly"
	KindMonthly  Kind = "monthly"
	KindInterval Kind = "interval"
	KindCron     Kind = "cron"
)

// LastDay in a monthly rule selects the last day of every month.
const LastDay = -1

// cronParser accepts standard 5-field expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Rule is a parsed recurrence rule.
type Rule struct {
	Kind Kind

	// Weekdays is set for weekly rules, sorted and deduplicated.
	Weekdays []time.Weekday

	// Days is set for monthly rules. LastDay selects the month's last day.
	Days []int

	// Every and Anchor are set for interval rules.
	Every  int
	Anchor model.Date

	// Expr and schedule are set for cron rules.
	Expr     string
	schedule cron.Schedule
}

// wireRule is the stored JSON form.
type wireRule struct {
	Kind     Kind     `json:"kind"`
	Weekdays []string `json:"weekdays,omitempty"`
	Days     []int    `json:"days,omitempty"`
	Every    int      `json:"every,omitempty"`
	Anchor   string   `json:"anchor,omitempty"`
	Expr     string   `json:"expr,omitempty"`
}

// Parse parses a rule in JSON or shorthand form.
func Parse(raw string) (*Rule, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, &RuleError{Rule: raw, Reason: "empty rule"}
	}
	if !strings.HasPrefix(text, "{") {
		return parseShorthand(raw, text)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()
	var w wireRule
	if err := dec.Decode(&w); err != nil {
		return nil, &RuleError{Rule: raw, Reason: "malformed JSON", Err: err}
	}
	if dec.More() {
		return nil, &RuleError{Rule: raw, Reason: "trailing data after rule"}
	}

	switch w.Kind {
	case KindWeekly:
		return parseWeekly(raw, w.Weekdays)
	case KindMonthly:
		return parseMonthly(raw, w.Days)
	case KindInterval:
		return parseInterval(raw, w.Every, w.Anchor)
	case KindCron:
		return parseCron(raw, w.Expr)
	case "":
		return nil, &RuleError{Rule: raw, Reason: "missing kind"}
	default:
		return nil, &RuleError{Rule: raw, Reason: fmt.Sprintf("unknown kind %q", w.Kind)}
	}
}

func parseWeekly(raw string, names []string) (*Rule, error) {
	if len(names) == 0 {
		return nil, &RuleError{Rule: raw, Reason: "weekly rule needs at least one weekday"}
	}
	seen := make(map[time.Weekday]bool, len(names))
	days := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		wd, ok := parseWeekday(name)
		if !ok {
			return nil, &RuleError{Rule: raw, Reason: fmt.Sprintf("unknown weekday %q", name)}
		}
		if !seen[wd] {
			seen[wd] = true
			days = append(days, wd)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return &Rule{Kind: KindWeekly, Weekdays: days}, nil
}

func parseMonthly(raw string, days []int) (*Rule, error) {
	if len(days) == 0 {
		return nil, &RuleError{Rule: raw, Reason: "monthly rule needs at least one day"}
	}
	for _, d := range days {
		if d != LastDay && (d < 1 || d > 31) {
			return nil, &RuleError{Rule: raw, Reason: fmt.Sprintf("day of month %d out of range", d)}
		}
	}
	return &Rule{Kind: KindMonthly, Days: append([]int(nil), days...)}, nil
}

func parseInterval(raw string, every int, anchor string) (*Rule, error) {
	if every < 1 {
		return nil, &RuleError{Rule: raw, Reason: "interval must be at least 1 day"}
	}
	a, err := model.ParseDate(anchor)
	if err != nil {
		return nil, &RuleError{Rule: raw, Reason: "bad anchor date", Err: err}
	}
	return &Rule{Kind: KindInterval, Every: every, Anchor: a}, nil
}

func parseCron(raw, expr string) (*Rule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, &RuleError{Rule: raw, Reason: "bad cron expression", Err: err}
	}
	return &Rule{Kind: KindCron, Expr: expr, schedule: sched}, nil
}

func parseShorthand(raw, text string) (*Rule, error) {
	lower := strings.ToLower(strings.Join(strings.Fields(text), " "))
	switch lower {
	case "daily", "every day":
		return &Rule{Kind: KindWeekly, Weekdays: []time.Weekday{
			time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
			time.Thursday, time.Friday, time.Saturday,
		}}, nil
	case "weekdays", "every weekday":
		return &Rule{Kind: KindWeekly, Weekdays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		}}, nil
	}
	if name, ok := strings.CutPrefix(lower, "every "); ok {
		if wd, ok := parseWeekday(name); ok {
			return &Rule{Kind: KindWeekly, Weekdays: []time.Weekday{wd}}, nil
		}
	}
	return nil, &RuleError{Rule: raw, Reason: "unrecognized shorthand"}
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func parseWeekday(name string) (time.Weekday, bool) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	return wd, ok
}

// Matches reports whether date is an occurrence of r.
func (r *Rule) Matches(date model.Date) bool {
	switch r.Kind {
	case KindWeekly:
		wd := date.Weekday()
		for _, d := range r.Weekdays {
			if d == wd {
				return true
			}
		}
		return false

	case KindMonthly:
		last := date.DaysInMonth()
		for _, d := range r.Days {
			if d == date.Day || (d == LastDay && date.Day == last) {
				return true
			}
		}
		return false

	case KindInterval:
		since := date.DaysSince(r.Anchor)
		return since >= 0 && since%r.Every == 0

	case KindCron:
		if r.schedule == nil {
			return false
		}
		start := date.Midnight()
		next := r.schedule.Next(start.Add(-time.Second))
		return !next.IsZero() && next.Before(start.AddDate(0, 0, 1))
	}
	return false
}

// IsOccurrence reports whether date is an occurrence of rule.
// Malformed rules never occur.
func IsOccurrence(rule string, date model.Date) bool {
	r, err := Parse(rule)
	if err != nil {
		return false
	}
	return r.Matches(date)
}
