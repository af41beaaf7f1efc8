package engine

import (
	"fmt"
	"time"
)

// DayPart tags a slot as falling in the day or night shift.
type DayPart string

const (
	DayPartDay   DayPart = "day"
	DayPartNight DayPart = "night"
)

const (
	dayShiftStart = 6
	dayShiftEnd   = 18

	dateKeyLayout = "2006-01-02"
	slotKeyLayout = "15:04"
	refLayout     = "2006-01-02T15:04"
)

// TimeSlot is the smallest schedulable interval.
type TimeSlot struct {
	ID        string    `json:"id"`
	Day       int       `json:"day"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Part      DayPart   `json:"part"`
	Available bool      `json:"available"`
}

// DateKey is the calendar date of the slot, e.g. 2026-10-20.
func (s TimeSlot) DateKey() string { return s.Start.Format(dateKeyLayout) }

// SlotKey is the wall-clock start of the slot, e.g. 06:00.
func (s TimeSlot) SlotKey() string { return s.Start.Format(slotKeyLayout) }

// Ref identifies the slot independently of the horizon it was generated in.
func (s TimeSlot) Ref() string { return s.Start.Format(refLayout) }

// Universe is the ordered set of slots a pass schedules into.
type Universe struct {
	slots    []TimeSlot
	byID     map[string]int
	byStart  map[int64]int
	duration time.Duration
	loc      *time.Location
}

// GenerateSlots builds the slot universe for the horizon starting at the
// calendar day containing now.
func GenerateSlots(opts Options, now time.Time) (*Universe, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	local := now.In(opts.Location)
	base := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, opts.Location)
	first, last := opts.dayBounds()
	step := opts.slotDuration()

	u := &Universe{
		byID:     make(map[string]int),
		byStart:  make(map[int64]int),
		duration: step,
		loc:      opts.Location,
	}
	for day := 0; day < opts.MaxDays; day++ {
		dayStart := base.AddDate(0, 0, day)
		open := dayStart.Add(time.Duration(first) * time.Hour)
		shut := dayStart.Add(time.Duration(last) * time.Hour)
		for t := open; !t.Add(step).After(shut); t = t.Add(step) {
			slot := TimeSlot{
				ID:        fmt.Sprintf("d%d-%02d%02d", day, t.Hour(), t.Minute()),
				Day:       day,
				Start:     t,
				End:       t.Add(step),
				Part:      partOf(t.Hour()),
				Available: true,
			}
			u.byID[slot.ID] = len(u.slots)
			u.byStart[t.Unix()] = len(u.slots)
			u.slots = append(u.slots, slot)
		}
	}
	if len(u.slots) == 0 {
		return nil, ErrEmptySlotUniverse
	}
	return u, nil
}

func partOf(hour int) DayPart {
	if hour >= dayShiftStart && hour < dayShiftEnd {
		return DayPartDay
	}
	return DayPartNight
}

// Len is the number of slots.
func (u *Universe) Len() int { return len(u.slots) }

// Slot returns the slot at index i.
func (u *Universe) Slot(i int) TimeSlot { return u.slots[i] }

// Slots returns a copy of all slots in start order.
func (u *Universe) Slots() []TimeSlot {
	return append([]TimeSlot(nil), u.slots...)
}

// Lookup finds a slot index by its identifier.
func (u *Universe) Lookup(id string) (int, bool) {
	i, ok := u.byID[id]
	return i, ok
}

// IndexAt finds the slot starting exactly at t.
func (u *Universe) IndexAt(t time.Time) (int, bool) {
	i, ok := u.byStart[t.Unix()]
	return i, ok
}

// Duration is the length of every slot.
func (u *Universe) Duration() time.Duration { return u.duration }

// contiguous reports whether slots [start, start+count) exist and follow
// each other without a gap.
func (u *Universe) contiguous(start, count int) bool {
	if start < 0 || count < 1 || start+count > len(u.slots) {
		return false
	}
	for i := start; i < start+count-1; i++ {
		if !u.slots[i].End.Equal(u.slots[i+1].Start) {
			return false
		}
	}
	return true
}

// span resolves an interval to slot indexes. Slots of the interval that
// fall outside the universe are skipped.
func (u *Universe) span(from, to time.Time) []int {
	var out []int
	for t := from; t.Before(to); t = t.Add(u.duration) {
		if i, ok := u.IndexAt(t); ok {
			out = append(out, i)
		}
	}
	return out
}
