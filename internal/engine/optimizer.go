package engine

import (
	"cmp"
	"slices"
)

// Optimizer compacts committed assignments toward earlier slots.
type Optimizer struct {
	alloc *Allocator
}

// NewOptimizer returns an optimizer that relocates through alloc's ledger
// using the same feasibility rules as allocation.
func NewOptimizer(alloc *Allocator) *Optimizer {
	return &Optimizer{alloc: alloc}
}

// Compact moves the given assignments earlier while every relocated window
// stays feasible. The first pass slides each assignment on its own machine,
// machine by machine. The second pass lets an assignment move to any
// machine able to run its session. Every move strictly lowers the start
// index, so the work is bounded by assignments times slots. It returns the
// assignments with their final placement, in input order, and the number of
// moves made.
func (o *Optimizer) Compact(assignments []Assignment, sessions map[string]Session) ([]Assignment, int) {
	l := o.alloc.ledger
	current := make(map[string]Assignment, len(assignments))
	for _, a := range assignments {
		if stored, ok := l.Assignment(a.ID); ok {
			current[a.ID] = stored
		}
	}

	moves := 0
	byMachine := make(map[string][]string)
	for _, a := range assignments {
		byMachine[a.MachineID] = append(byMachine[a.MachineID], a.ID)
	}
	for _, m := range l.machines {
		ids := byMachine[m.ID]
		o.sortByStart(ids, current)
		for _, id := range ids {
			a, ok := current[id]
			if !ok {
				continue
			}
			for {
				moved, ok := o.slide(a, []Machine{m})
				if !ok {
					break
				}
				a = moved
				moves++
			}
			current[id] = a
		}
	}

	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		ids = append(ids, a.ID)
	}
	o.sortByStart(ids, current)
	for _, id := range ids {
		a, ok := current[id]
		if !ok {
			continue
		}
		candidates := l.MachinesFor(sessions[a.SessionID])
		if len(candidates) == 0 {
			continue
		}
		for {
			moved, ok := o.slide(a, candidates)
			if !ok {
				break
			}
			a = moved
			moves++
		}
		current[id] = a
	}

	out := make([]Assignment, 0, len(assignments))
	for _, a := range assignments {
		if c, ok := current[a.ID]; ok {
			out = append(out, c)
		} else {
			out = append(out, a)
		}
	}
	return out, moves
}

// slide scans the starts strictly earlier than a's current start, newest
// first, and relocates a to the first one where some candidate machine and
// its hardware combination are free once a's own occupancy is excluded.
func (o *Optimizer) slide(a Assignment, machines []Machine) (Assignment, bool) {
	l := o.alloc.ledger
	l.Release(a)
	for start := a.start - 1; start >= 0; start-- {
		if !o.alloc.openWindow(start, a.count) {
			continue
		}
		if a.CombinationID != "" && !l.hardwareFreeFor(a.CombinationID, start, a.count) {
			continue
		}
		for _, m := range machines {
			if !l.machineFreeFor(m.ID, start, a.count) {
				continue
			}
			moved := o.alloc.relocate(a, start, m.ID)
			if err := l.Commit(moved); err == nil {
				return moved, true
			}
		}
	}
	l.apply(a)
	return a, false
}

func (o *Optimizer) sortByStart(ids []string, current map[string]Assignment) {
	slices.SortStableFunc(ids, func(x, y string) int {
		return cmp.Compare(current[x].start, current[y].start)
	})
}
