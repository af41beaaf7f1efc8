package engine

import (
	"fmt"
	"slices"
	"sort"
)

type slotRef struct {
	resource string
	slot     int
}

// Ledger is the resource registry of one pass: the machines and hardware
// known to the pass plus the usage counters committed so far. A ledger is
// not safe for concurrent use; every pass checks out its own.
type Ledger struct {
	universe *Universe
	opts     Options
	slots    []TimeSlot

	machines   []Machine
	machineIdx map[string]int
	combos     []HardwareCombination
	comboIdx   map[string]int
	inventory  map[string]Inventory

	machineUse  map[slotRef]int
	hardwareUse map[slotRef]int
	hours       map[string]float64

	assignments map[string]Assignment
	order       []string

	// outside holds preloaded assignments with no slot in the universe.
	outside []Assignment
}

// NewLedger registers resources against a slot universe with zeroed usage.
func NewLedger(u *Universe, opts Options, machines []Machine, combos []HardwareCombination, inventories []Inventory) *Ledger {
	l := &Ledger{
		universe:   u,
		opts:       opts.withDefaults(),
		slots:      u.Slots(),
		machines:   append([]Machine(nil), machines...),
		machineIdx: make(map[string]int, len(machines)),
		combos:     append([]HardwareCombination(nil), combos...),
		comboIdx:   make(map[string]int, len(combos)),
		inventory:  make(map[string]Inventory, len(inventories)),
	}
	for i, m := range l.machines {
		l.machineIdx[m.ID] = i
	}
	for i, c := range l.combos {
		l.comboIdx[c.ID] = i
	}
	for _, inv := range inventories {
		l.inventory[inv.CombinationID] = inv
	}
	l.Reset()
	return l
}

// Reset drops every committed assignment and zeroes all usage counters.
func (l *Ledger) Reset() {
	l.machineUse = make(map[slotRef]int)
	l.hardwareUse = make(map[slotRef]int)
	l.hours = make(map[string]float64)
	l.assignments = make(map[string]Assignment)
	l.order = nil
	l.outside = nil
	for i := range l.slots {
		l.slots[i].Available = true
	}
}

// Clone returns an independent copy of the ledger and its counters.
func (l *Ledger) Clone() *Ledger {
	c := *l
	c.slots = append([]TimeSlot(nil), l.slots...)
	c.machineUse = make(map[slotRef]int, len(l.machineUse))
	for k, v := range l.machineUse {
		c.machineUse[k] = v
	}
	c.hardwareUse = make(map[slotRef]int, len(l.hardwareUse))
	for k, v := range l.hardwareUse {
		c.hardwareUse[k] = v
	}
	c.hours = make(map[string]float64, len(l.hours))
	for k, v := range l.hours {
		c.hours[k] = v
	}
	c.assignments = make(map[string]Assignment, len(l.assignments))
	for k, v := range l.assignments {
		c.assignments[k] = v
	}
	c.order = append([]string(nil), l.order...)
	c.outside = append([]Assignment(nil), l.outside...)
	return &c
}

// Universe is the slot universe the ledger was built on.
func (l *Ledger) Universe() *Universe { return l.universe }

// Slot returns the slot at index i with its current availability flag.
func (l *Ledger) Slot(i int) TimeSlot { return l.slots[i] }

// Machine looks up a registered machine.
func (l *Ledger) Machine(id string) (Machine, bool) {
	i, ok := l.machineIdx[id]
	if !ok {
		return Machine{}, false
	}
	return l.machines[i], true
}

// Combination looks up a registered hardware combination.
func (l *Ledger) Combination(id string) (HardwareCombination, bool) {
	i, ok := l.comboIdx[id]
	if !ok {
		return HardwareCombination{}, false
	}
	return l.combos[i], true
}

// MachinesFor lists, in registration order, the machines that may run s.
func (l *Ledger) MachinesFor(s Session) []Machine {
	var out []Machine
	for _, m := range l.machines {
		if m.schedulable() && m.runs(s) {
			out = append(out, m)
		}
	}
	return out
}

// CombinationsFor lists enabled combinations satisfying req, ordered by
// priority tag then registration order.
func (l *Ledger) CombinationsFor(req *HardwareRequirement) []HardwareCombination {
	var out []HardwareCombination
	for _, c := range l.combos {
		if c.Enabled && c.matches(req) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].priorityRank() < out[j].priorityRank()
	})
	return out
}

// IsMachineFree reports whether no committed assignment holds machineID
// during slot.
func (l *Ledger) IsMachineFree(machineID string, slot int) bool {
	return l.machineUse[slotRef{machineID, slot}] == 0
}

// IsHardwareFree reports whether the combination is enabled, open during
// slot and still has capacity left there.
func (l *Ledger) IsHardwareFree(comboID string, slot int) bool {
	c, ok := l.Combination(comboID)
	if !ok || !c.Enabled {
		return false
	}
	return l.hardwareUse[slotRef{comboID, slot}] < l.capacity(c, slot)
}

// HardwareCapacity is the number of concurrent uses the combination allows
// during slot.
func (l *Ledger) HardwareCapacity(comboID string, slot int) int {
	c, ok := l.Combination(comboID)
	if !ok || !c.Enabled {
		return 0
	}
	return l.capacity(c, slot)
}

func (l *Ledger) capacity(c HardwareCombination, slot int) int {
	ts := l.slots[slot]
	hour := ts.Start.Hour()
	if len(c.HourlyAvailability) == 24 && !c.HourlyAvailability[hour] {
		return 0
	}

	capacity := 0
	if inv, ok := l.inventory[c.ID]; ok {
		capacity = inv.Capacity()
	} else if l.opts.MissingInventory == InventorySingleUnit {
		capacity = 1
	}
	if capacity == 0 {
		return 0
	}

	var windows []AvailabilityWindow
	for _, w := range c.Windows {
		if w.Enabled {
			windows = append(windows, w)
		}
	}
	if len(windows) == 0 {
		if l.opts.MissingAvailability == AvailabilityFailClosed {
			return 0
		}
		return capacity
	}

	inside := false
	limit := 0
	for _, w := range windows {
		if !windowContains(w, ts) {
			continue
		}
		inside = true
		if w.MaxConcurrentUsage <= 0 {
			limit = -1
		} else if limit >= 0 && w.MaxConcurrentUsage > limit {
			limit = w.MaxConcurrentUsage
		}
	}
	if !inside {
		return 0
	}
	if limit > 0 && limit < capacity {
		return limit
	}
	return capacity
}

// windowContains reports whether the slot lies entirely inside the window.
func windowContains(w AvailabilityWindow, ts TimeSlot) bool {
	if ts.Start.Weekday() != w.DayOfWeek {
		return false
	}
	startMin := ts.Start.Hour()*60 + ts.Start.Minute()
	endMin := startMin + int(ts.End.Sub(ts.Start).Minutes())
	return startMin >= w.StartHour*60 && endMin <= w.EndHour*60
}

// machineFreeFor reports whether the machine is free for the whole window.
func (l *Ledger) machineFreeFor(machineID string, start, count int) bool {
	for i := start; i < start+count; i++ {
		if !l.IsMachineFree(machineID, i) {
			return false
		}
	}
	return true
}

// hardwareFreeFor reports whether the combination can be used for the
// whole window without exceeding capacity or its hour budget.
func (l *Ledger) hardwareFreeFor(comboID string, start, count int) bool {
	c, ok := l.Combination(comboID)
	if !ok {
		return false
	}
	for i := start; i < start+count; i++ {
		if !l.IsHardwareFree(comboID, i) {
			return false
		}
	}
	if c.TotalAvailableHours > 0 {
		need := l.universe.Duration().Hours() * float64(count)
		if l.hours[comboID]+need > c.TotalAvailableHours+1e-9 {
			return false
		}
	}
	return true
}

// resolve fills the slot index range of an assignment from its times.
func (l *Ledger) resolve(a Assignment) (Assignment, bool) {
	idx := l.universe.span(a.StartsAt, a.EndsAt)
	if len(idx) == 0 {
		return a, false
	}
	a.start = idx[0]
	a.count = len(idx)
	return a, true
}

// Commit records the assignment if every slot it covers is still free.
// Either all counters move or none do.
func (l *Ledger) Commit(a Assignment) error {
	if _, exists := l.assignments[a.ID]; exists {
		return fmt.Errorf("assignment %s already committed", a.ID)
	}
	if !l.universe.contiguous(a.start, a.count) {
		return fmt.Errorf("%w: assignment %s does not cover contiguous slots", ErrSlotOccupied, a.ID)
	}
	if !l.machineFreeFor(a.MachineID, a.start, a.count) {
		return fmt.Errorf("%w: machine %s is busy between %s and %s", ErrSlotOccupied, a.MachineID,
			l.slots[a.start].Ref(), l.slots[a.start+a.count-1].Ref())
	}
	if a.CombinationID != "" && !l.hardwareFreeFor(a.CombinationID, a.start, a.count) {
		return fmt.Errorf("%w: hardware %s has no capacity between %s and %s", ErrSlotOccupied, a.CombinationID,
			l.slots[a.start].Ref(), l.slots[a.start+a.count-1].Ref())
	}
	l.apply(a)
	return nil
}

// Preload records an already persisted assignment without any checks so
// that later feasibility queries see it. Slots outside the universe are
// ignored. An assignment with no slot in the universe is kept aside and
// only returned by Persisted. It reports whether any slot of the
// assignment was recorded.
func (l *Ledger) Preload(a Assignment) bool {
	if _, exists := l.assignments[a.ID]; exists {
		return false
	}
	resolved, ok := l.resolve(a)
	if !ok {
		if !slices.ContainsFunc(l.outside, func(o Assignment) bool { return o.ID == a.ID }) {
			l.outside = append(l.outside, a)
		}
		return false
	}
	l.apply(resolved)
	return true
}

func (l *Ledger) apply(a Assignment) {
	for i := a.start; i < a.start+a.count; i++ {
		l.machineUse[slotRef{a.MachineID, i}]++
		if a.CombinationID != "" {
			l.hardwareUse[slotRef{a.CombinationID, i}]++
		}
	}
	if a.CombinationID != "" {
		l.hours[a.CombinationID] += l.universe.Duration().Hours() * float64(a.count)
	}
	l.assignments[a.ID] = a
	l.order = append(l.order, a.ID)
	l.refresh(a.start, a.count)
}

// Release removes a committed assignment and gives back its usage.
func (l *Ledger) Release(a Assignment) {
	stored, ok := l.assignments[a.ID]
	if !ok {
		return
	}
	for i := stored.start; i < stored.start+stored.count; i++ {
		decrement(l.machineUse, slotRef{stored.MachineID, i})
		if stored.CombinationID != "" {
			decrement(l.hardwareUse, slotRef{stored.CombinationID, i})
		}
	}
	if stored.CombinationID != "" {
		l.hours[stored.CombinationID] -= l.universe.Duration().Hours() * float64(stored.count)
		if l.hours[stored.CombinationID] <= 1e-9 {
			delete(l.hours, stored.CombinationID)
		}
	}
	delete(l.assignments, a.ID)
	for i, id := range l.order {
		if id == a.ID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	l.refresh(stored.start, stored.count)
}

func decrement(m map[slotRef]int, k slotRef) {
	if m[k] <= 1 {
		delete(m, k)
		return
	}
	m[k]--
}

// refresh recomputes the availability flag of the given slots: a slot is
// unavailable once every schedulable machine is occupied in it.
func (l *Ledger) refresh(start, count int) {
	for i := start; i < start+count; i++ {
		full := false
		for _, m := range l.machines {
			if !m.schedulable() {
				continue
			}
			if l.IsMachineFree(m.ID, i) {
				full = false
				break
			}
			full = true
		}
		l.slots[i].Available = !full
	}
}

// Assignments returns the committed assignments in commit order.
func (l *Ledger) Assignments() []Assignment {
	out := make([]Assignment, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.assignments[id])
	}
	return out
}

// Persisted returns every assignment the ledger knows of, including the
// ones outside the universe, in the order a store should keep them.
func (l *Ledger) Persisted() []Assignment {
	return append(l.Assignments(), l.outside...)
}

// dropOutside forgets the out-of-universe assignments of a session.
func (l *Ledger) dropOutside(sessionID string) {
	l.outside = slices.DeleteFunc(l.outside, func(a Assignment) bool { return a.SessionID == sessionID })
}

// Assignment returns a committed assignment by id.
func (l *Ledger) Assignment(id string) (Assignment, bool) {
	a, ok := l.assignments[id]
	return a, ok
}

// MachineUsage reports, per machine, the number of assignments holding it
// in each slot (keyed by slot ref).
func (l *Ledger) MachineUsage() map[string]map[string]int {
	return l.usage(l.machineUse)
}

// HardwareUsage reports, per combination, the number of concurrent uses in
// each slot (keyed by slot ref).
func (l *Ledger) HardwareUsage() map[string]map[string]int {
	return l.usage(l.hardwareUse)
}

// PersistedHardwareUsage is HardwareUsage plus the slots held by
// assignments outside the universe.
func (l *Ledger) PersistedHardwareUsage() map[string]map[string]int {
	out := l.HardwareUsage()
	step := l.universe.Duration()
	for _, a := range l.outside {
		if a.CombinationID == "" || step <= 0 {
			continue
		}
		if out[a.CombinationID] == nil {
			out[a.CombinationID] = make(map[string]int)
		}
		for t := a.StartsAt.In(l.universe.loc); t.Before(a.EndsAt); t = t.Add(step) {
			out[a.CombinationID][t.Format(refLayout)]++
		}
	}
	return out
}

func (l *Ledger) usage(src map[slotRef]int) map[string]map[string]int {
	out := make(map[string]map[string]int)
	for k, v := range src {
		if v == 0 {
			continue
		}
		if out[k.resource] == nil {
			out[k.resource] = make(map[string]int)
		}
		out[k.resource][l.slots[k.slot].Ref()] = v
	}
	return out
}
