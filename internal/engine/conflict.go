package engine

import (
	"cmp"
	"slices"
)

// ConflictType distinguishes overallocated resource kinds.
type ConflictType string

const (
	MachineOverallocation  ConflictType = "machine_overallocation"
	HardwareOverallocation ConflictType = "hardware_overallocation"
)

// Overallocation reports a resource referenced beyond its capacity in one
// slot.
type Overallocation struct {
	Type          ConflictType `json:"type"`
	SlotID        string       `json:"slotId"`
	SlotRef       string       `json:"slot"`
	ResourceID    string       `json:"resourceId"`
	Required      int          `json:"required"`
	Available     int          `json:"available"`
	Excess        int          `json:"excess"`
	AssignmentIDs []string     `json:"assignmentIds"`
}

// DetectConflicts counts, per slot, the assignments holding each machine
// and each hardware combination and reports every count above capacity.
// Capacity is one for machines and the ledger's capacity for hardware. It
// never mutates the ledger or the assignments.
func DetectConflicts(l *Ledger, assignments []Assignment) []Overallocation {
	machineHolders := make(map[slotRef][]string)
	hardwareHolders := make(map[slotRef][]string)
	for _, a := range assignments {
		resolved, ok := l.resolve(a)
		if !ok {
			continue
		}
		for i := resolved.start; i < resolved.start+resolved.count; i++ {
			machineHolders[slotRef{a.MachineID, i}] = append(machineHolders[slotRef{a.MachineID, i}], a.ID)
			if a.CombinationID != "" {
				hardwareHolders[slotRef{a.CombinationID, i}] = append(hardwareHolders[slotRef{a.CombinationID, i}], a.ID)
			}
		}
	}

	var out []Overallocation
	for ref, ids := range machineHolders {
		if len(ids) > 1 {
			out = append(out, l.overallocation(MachineOverallocation, ref, ids, 1))
		}
	}
	for ref, ids := range hardwareHolders {
		capacity := l.HardwareCapacity(ref.resource, ref.slot)
		if len(ids) > capacity {
			out = append(out, l.overallocation(HardwareOverallocation, ref, ids, capacity))
		}
	}

	slices.SortFunc(out, func(a, b Overallocation) int {
		if c := cmp.Compare(a.SlotRef, b.SlotRef); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Type, b.Type); c != 0 {
			return c
		}
		return cmp.Compare(a.ResourceID, b.ResourceID)
	})
	return out
}

func (l *Ledger) overallocation(kind ConflictType, ref slotRef, ids []string, capacity int) Overallocation {
	ts := l.slots[ref.slot]
	return Overallocation{
		Type:          kind,
		SlotID:        ts.ID,
		SlotRef:       ts.Ref(),
		ResourceID:    ref.resource,
		Required:      len(ids),
		Available:     capacity,
		Excess:        len(ids) - capacity,
		AssignmentIDs: slices.Clone(ids),
	}
}
