package parse

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"session-scheduler-backend/internal/engine"
)

var (
	hoursRe = regexp.MustCompile(`(?i)^(?:(\d+(?:\.\d+)?)\s*h(?:ours?|rs?)?)?\s*(?:(\d+)\s*m(?:in(?:utes?)?)?)?$`)
	hourRe  = regexp.MustCompile(`^(\d{1,2})(?::00)?$`)
	dateRe  = regexp.MustCompile(`^(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})$`)
)

// ParsePriority normalizes a priority tag. An empty tag is normal.
func ParsePriority(raw string) (engine.Priority, error) {
	switch p := engine.Priority(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return engine.PriorityNormal, nil
	case engine.PriorityUrgent, engine.PriorityHigh, engine.PriorityNormal:
		return p, nil
	default:
		return "", fmt.Errorf("unknown priority: %q", raw)
	}
}

// ParseHours reads an estimated duration. A bare number is hours; "1.5h",
// "90m" and "1h30m" are accepted too.
func ParseHours(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("duration must be finite: %q", raw)
		}
		if f <= 0 {
			return 0, fmt.Errorf("duration must be positive: %q", raw)
		}
		return f, nil
	}

	m := hoursRe.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "") {
		return 0, fmt.Errorf("unable to parse duration: %q", raw)
	}
	var hours float64
	if m[1] != "" {
		h, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("unable to parse duration: %q", raw)
		}
		hours = h
	}
	if m[2] != "" {
		mins, err := strconv.Atoi(m[2])
		if err != nil {
			return 0, fmt.Errorf("unable to parse duration: %q", raw)
		}
		hours += float64(mins) / 60
	}
	if hours <= 0 {
		return 0, fmt.Errorf("duration must be positive: %q", raw)
	}
	return hours, nil
}

// ParseDate accepts 2026-10-19, 2026/10/19 and 2026.10.19 and returns the
// canonical YYYY-MM-DD form.
func ParseDate(raw string) (string, error) {
	m := dateRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", fmt.Errorf("unable to parse date: %q", raw)
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
		return "", fmt.Errorf("invalid calendar date: %q", raw)
	}
	return t.Format("2006-01-02"), nil
}

// ParseStartHour accepts "9", "09" or "09:00".
func ParseStartHour(raw string) (int, error) {
	m := hourRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, fmt.Errorf("unable to parse hour: %q", raw)
	}
	h, _ := strconv.Atoi(m[1])
	if h > 23 {
		return 0, fmt.Errorf("hour out of range: %q", raw)
	}
	return h, nil
}
