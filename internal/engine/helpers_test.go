package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// Monday 08:30 UTC: with working hours 6..18 the first future slot of the
// first day starts at 09:00 (index 3).
var fixedNow = time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

func at(day, hour int) time.Time {
	return time.Date(2026, 10, 19+day, hour, 0, 0, 0, time.UTC)
}

func testOptions() Options {
	return Options{Now: func() time.Time { return fixedNow }}.withDefaults()
}

// newTestEngine returns an engine with the fixed clock and sequential ids.
func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	e, err := New(opts, zerolog.Nop())
	require.NoError(t, err)
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("a%d", n)
	}
	return e
}

func newTestLedger(t *testing.T, opts Options, machines []Machine, combos []HardwareCombination, inv []Inventory) *Ledger {
	t.Helper()
	u, err := GenerateSlots(opts, fixedNow)
	require.NoError(t, err)
	return NewLedger(u, opts, machines, combos, inv)
}

func newTestAllocator(l *Ledger) *Allocator {
	a := NewAllocator(l, fixedNow)
	n := 0
	a.newID = func() string {
		n++
		return fmt.Sprintf("a%d", n)
	}
	return a
}

// placed builds an assignment covering count slots from index start.
func placed(l *Ledger, id, session, machine, combo string, start, count int) Assignment {
	a := NewAllocator(l, fixedNow)
	a.newID = func() string { return id }
	return a.build(session, placement{start: start, machine: machine, combo: combo}, count)
}

// existing builds a persisted assignment as a store would hand it back.
func existing(id, session, machine, combo string, startsAt time.Time, hours int) Assignment {
	return Assignment{
		ID:            id,
		SessionID:     session,
		MachineID:     machine,
		CombinationID: combo,
		StartsAt:      startsAt,
		EndsAt:        startsAt.Add(time.Duration(hours) * time.Hour),
	}
}

func linux(id string) Machine {
	return Machine{ID: id, Name: id, OSType: "linux", Status: MachineAvailable}
}

func session(id string, p Priority, hours float64) Session {
	return Session{ID: id, Name: id, Priority: p, EstimatedHours: hours, RequiredOS: "linux", Status: StatusPending}
}

func withHardware(s Session, platform, debugger string) Session {
	s.Hardware = &HardwareRequirement{PlatformID: platform, DebuggerID: debugger}
	return s
}

func combo(id, platform, debugger string) HardwareCombination {
	return HardwareCombination{ID: id, Name: id, PlatformID: platform, DebuggerID: debugger, Enabled: true, Priority: "normal"}
}

// mondayWindow limits a combination to Monday [from, to).
func mondayWindow(from, to, maxConcurrent int) AvailabilityWindow {
	return AvailabilityWindow{DayOfWeek: time.Monday, StartHour: from, EndHour: to, Enabled: true, MaxConcurrentUsage: maxConcurrent}
}
