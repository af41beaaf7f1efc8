package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Allocator places sessions into the earliest feasible window of a ledger.
type Allocator struct {
	ledger *Ledger
	now    time.Time
	newID  func() string
}

// NewAllocator returns an allocator committing into ledger. Slots starting
// at or before now are never used.
func NewAllocator(ledger *Ledger, now time.Time) *Allocator {
	return &Allocator{ledger: ledger, now: now, newID: uuid.NewString}
}

// placement is a feasible window found by the search.
type placement struct {
	start   int
	machine string
	combo   string
}

// Allocate searches every start index of the slot universe in time order
// and commits the first window where a machine and, when required, a
// hardware combination are free for every slot. Failures are returned as
// *AllocationError and leave the ledger untouched.
func (a *Allocator) Allocate(s Session) (Assignment, error) {
	l := a.ledger
	count := RequiredSlots(s.EstimatedHours, l.opts.SlotDurationHours)

	machines := l.MachinesFor(s)
	if len(machines) == 0 {
		return Assignment{}, &AllocationError{
			Kind:   MachineUnavailable,
			Reason: ReasonNoMachineAvailable,
			Detail: fmt.Sprintf("no schedulable machine runs os %q", s.RequiredOS),
		}
	}
	if !a.anyFreeSlot(machines) {
		return Assignment{}, &AllocationError{
			Kind:   MachineUnavailable,
			Reason: ReasonNoMachineAvailable,
			Detail: fmt.Sprintf("every machine running os %q is fully booked for the horizon", s.RequiredOS),
		}
	}

	var combos []HardwareCombination
	if s.Hardware != nil {
		combos = l.CombinationsFor(s.Hardware)
		if len(combos) == 0 {
			return Assignment{}, &AllocationError{
				Kind:   NoCompatibleHardware,
				Reason: ReasonNoCompatibleHardware,
				Detail: describeRequirement(s.Hardware),
			}
		}
	}

	p, machineWindow, ok := a.search(machines, combos, count)
	if !ok {
		if machineWindow && len(combos) > 0 {
			return Assignment{}, &AllocationError{
				Kind:   HardwareConflict,
				Reason: ReasonHardwareConflict,
				Detail: fmt.Sprintf("no capacity or availability window on %s for %d consecutive slot(s)",
					comboIDs(combos), count),
			}
		}
		return Assignment{}, &AllocationError{
			Kind:   NoAvailableSlot,
			Reason: ReasonNoAvailableSlots,
			Detail: fmt.Sprintf("no %d consecutive free slot(s) within the horizon", count),
		}
	}

	asg := a.build(s.ID, p, count)
	if err := l.Commit(asg); err != nil {
		return Assignment{}, err
	}
	return asg, nil
}

// search scans start indexes in ascending order. It also reports whether
// any window had a free machine, which separates hardware contention from
// plain lack of time.
func (a *Allocator) search(machines []Machine, combos []HardwareCombination, count int) (placement, bool, bool) {
	l := a.ledger
	machineWindow := false
	for start := 0; start+count <= l.universe.Len(); start++ {
		if !a.openWindow(start, count) {
			continue
		}
		machine := ""
		for _, m := range machines {
			if l.machineFreeFor(m.ID, start, count) {
				machine = m.ID
				break
			}
		}
		if machine == "" {
			continue
		}
		machineWindow = true
		if len(combos) == 0 {
			return placement{start: start, machine: machine}, true, true
		}
		for _, c := range combos {
			if l.hardwareFreeFor(c.ID, start, count) {
				return placement{start: start, machine: machine, combo: c.ID}, true, true
			}
		}
	}
	return placement{}, machineWindow, false
}

// openWindow rejects windows that are not contiguous, start in the past or
// contain a slot already marked unavailable.
func (a *Allocator) openWindow(start, count int) bool {
	l := a.ledger
	if !l.universe.contiguous(start, count) {
		return false
	}
	for i := start; i < start+count; i++ {
		ts := l.slots[i]
		if !ts.Start.After(a.now) || !ts.Available {
			return false
		}
	}
	return true
}

func (a *Allocator) anyFreeSlot(machines []Machine) bool {
	l := a.ledger
	for i := range l.slots {
		if !l.slots[i].Start.After(a.now) {
			continue
		}
		for _, m := range machines {
			if l.IsMachineFree(m.ID, i) {
				return true
			}
		}
	}
	return false
}

func (a *Allocator) build(sessionID string, p placement, count int) Assignment {
	l := a.ledger
	ids := make([]string, 0, count)
	for i := p.start; i < p.start+count; i++ {
		ids = append(ids, l.slots[i].ID)
	}
	return Assignment{
		ID:            a.newID(),
		SessionID:     sessionID,
		MachineID:     p.machine,
		CombinationID: p.combo,
		StartsAt:      l.slots[p.start].Start,
		EndsAt:        l.slots[p.start+count-1].End,
		SlotIDs:       ids,
		start:         p.start,
		count:         count,
	}
}

// relocate returns a copy of asg moved to another start and machine.
func (a *Allocator) relocate(asg Assignment, start int, machine string) Assignment {
	l := a.ledger
	moved := asg
	moved.MachineID = machine
	moved.start = start
	moved.StartsAt = l.slots[start].Start
	moved.EndsAt = l.slots[start+asg.count-1].End
	moved.SlotIDs = make([]string, 0, asg.count)
	for i := start; i < start+asg.count; i++ {
		moved.SlotIDs = append(moved.SlotIDs, l.slots[i].ID)
	}
	return moved
}

func describeRequirement(req *HardwareRequirement) string {
	var parts []string
	if req.PlatformID != "" || req.PlatformName != "" {
		parts = append(parts, "platform "+firstNonEmpty(req.PlatformID, req.PlatformName))
	}
	if req.DebuggerID != "" || req.DebuggerName != "" {
		parts = append(parts, "debugger "+firstNonEmpty(req.DebuggerID, req.DebuggerName))
	}
	if len(parts) == 0 {
		return "hardware requirement names neither platform nor debugger"
	}
	return "no enabled hardware combination matches " + strings.Join(parts, " and ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func comboIDs(combos []HardwareCombination) string {
	ids := make([]string, len(combos))
	for i, c := range combos {
		ids[i] = c.ID
	}
	return strings.Join(ids, ", ")
}
