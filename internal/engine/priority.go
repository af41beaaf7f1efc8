package engine

import (
	"cmp"
	"math"
	"slices"
	"strings"
)

// Rank maps a priority tier to its attempt order; unknown tiers rank as
// normal.
func Rank(p Priority) int {
	switch Priority(strings.ToLower(strings.TrimSpace(string(p)))) {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	default:
		return 2
	}
}

// SortByPriority returns the sessions in attempt order: tier first, then
// shorter estimated duration. Equal keys keep their input order.
func SortByPriority(sessions []Session) []Session {
	out := slices.Clone(sessions)
	slices.SortStableFunc(out, func(a, b Session) int {
		if c := cmp.Compare(Rank(a.Priority), Rank(b.Priority)); c != 0 {
			return c
		}
		return cmp.Compare(a.EstimatedHours, b.EstimatedHours)
	})
	return out
}

// RequiredSlots is the number of consecutive slots a session occupies:
// ceil(hours / slotHours), at least one. Durations too long to count, or
// infinite, saturate at math.MaxInt32 and so never fit a horizon.
func RequiredSlots(hours, slotHours float64) int {
	if slotHours <= 0 || hours <= 0 || math.IsNaN(hours) {
		return 1
	}
	q := math.Ceil(hours/slotHours - 1e-9)
	if q >= math.MaxInt32 {
		return math.MaxInt32
	}
	n := int(q)
	if n < 1 {
		return 1
	}
	return n
}
