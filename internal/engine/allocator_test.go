package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocator_Allocate(t *testing.T) {
	windowed := combo("c1", "p", "d")
	windowed.Windows = []AvailabilityWindow{mondayWindow(9, 10, 0)}

	low := combo("c-low", "p", "d")
	low.Priority = "low"
	high := combo("c-high", "p", "d")
	high.Priority = "high"

	maint := linux("m-maint")
	maint.Status = MachineMaintenance

	testCases := []struct {
		name      string
		machines  []Machine
		combos    []HardwareCombination
		inv       []Inventory
		before    []Session
		session   Session
		wantSlots []string
		wantMach  string
		wantCombo string
		wantKind  FailureKind
		wantRsn   string
	}{
		{
			name:      "earliest future window",
			machines:  []Machine{linux("m1")},
			session:   session("s1", PriorityNormal, 2),
			wantSlots: []string{"d0-0900", "d0-1000"},
			wantMach:  "m1",
		},
		{
			name:      "fractional hours round up",
			machines:  []Machine{linux("m1")},
			session:   session("s1", PriorityNormal, 2.2),
			wantSlots: []string{"d0-0900", "d0-1000", "d0-1100"},
			wantMach:  "m1",
		},
		{
			name:      "os match ignores case",
			machines:  []Machine{{ID: "m1", OSType: "Linux", Status: MachineAvailable}},
			session:   session("s1", PriorityNormal, 1),
			wantSlots: []string{"d0-0900"},
			wantMach:  "m1",
		},
		{
			name:      "second machine when the first is taken",
			machines:  []Machine{linux("m1"), linux("m2")},
			before:    []Session{session("s0", PriorityNormal, 1)},
			session:   session("s1", PriorityNormal, 1),
			wantSlots: []string{"d0-0900"},
			wantMach:  "m2",
		},
		{
			name:      "window spills over to the next day",
			machines:  []Machine{linux("m1")},
			before:    []Session{session("s0", PriorityNormal, 8)},
			session:   session("s1", PriorityNormal, 2),
			wantSlots: []string{"d1-0600", "d1-0700"},
			wantMach:  "m1",
		},
		{
			name:     "no machine with the os",
			machines: []Machine{{ID: "w1", OSType: "windows", Status: MachineAvailable}},
			session:  session("s1", PriorityNormal, 1),
			wantKind: MachineUnavailable,
			wantRsn:  ReasonNoMachineAvailable,
		},
		{
			name:     "only machine in maintenance",
			machines: []Machine{maint},
			session:  session("s1", PriorityNormal, 1),
			wantKind: MachineUnavailable,
			wantRsn:  ReasonNoMachineAvailable,
		},
		{
			name:     "no compatible hardware",
			machines: []Machine{linux("m1")},
			combos:   []HardwareCombination{combo("c1", "other", "d")},
			session:  withHardware(session("s1", PriorityNormal, 1), "p", "d"),
			wantKind: NoCompatibleHardware,
			wantRsn:  ReasonNoCompatibleHardware,
		},
		{
			name:      "hardware window",
			machines:  []Machine{linux("m1")},
			combos:    []HardwareCombination{windowed},
			inv:       []Inventory{{CombinationID: "c1", Total: 1, Available: 1}},
			session:   withHardware(session("s1", PriorityNormal, 1), "p", "d"),
			wantSlots: []string{"d0-0900"},
			wantMach:  "m1",
			wantCombo: "c1",
		},
		{
			name:     "hardware taken in its only window",
			machines: []Machine{linux("m1"), linux("m2")},
			combos:   []HardwareCombination{windowed},
			inv:      []Inventory{{CombinationID: "c1", Total: 1, Available: 1}},
			before:   []Session{withHardware(session("s0", PriorityNormal, 1), "p", "d")},
			session:  withHardware(session("s1", PriorityNormal, 1), "p", "d"),
			wantKind: HardwareConflict,
			wantRsn:  ReasonHardwareConflict,
		},
		{
			name:     "longer than a working day",
			machines: []Machine{linux("m1")},
			session:  session("s1", PriorityNormal, 13),
			wantKind: NoAvailableSlot,
			wantRsn:  ReasonNoAvailableSlots,
		},
		{
			name:      "combination priority tag",
			machines:  []Machine{linux("m1")},
			combos:    []HardwareCombination{low, high},
			session:   withHardware(session("s1", PriorityNormal, 1), "p", ""),
			wantSlots: []string{"d0-0900"},
			wantMach:  "m1",
			wantCombo: "c-high",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l := newTestLedger(t, testOptions(), tc.machines, tc.combos, tc.inv)
			alloc := newTestAllocator(l)
			for _, s := range tc.before {
				_, err := alloc.Allocate(s)
				require.NoError(t, err)
			}

			asg, err := alloc.Allocate(tc.session)
			if tc.wantKind != "" {
				var ae *AllocationError
				require.True(t, errors.As(err, &ae), "expected *AllocationError, got %v", err)
				assert.Equal(t, tc.wantKind, ae.Kind)
				assert.Equal(t, tc.wantRsn, ae.Reason)
				assert.NotEmpty(t, ae.Detail)
				assert.Len(t, l.Assignments(), len(tc.before), "failures leave the ledger untouched")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantSlots, asg.SlotIDs)
			assert.Equal(t, tc.wantMach, asg.MachineID)
			assert.Equal(t, tc.wantCombo, asg.CombinationID)
			assert.True(t, asg.StartsAt.After(fixedNow))
			stored, ok := l.Assignment(asg.ID)
			require.True(t, ok)
			assert.Equal(t, asg, stored)
		})
	}
}

func TestAllocator_FillsGaps(t *testing.T) {
	l := newTestLedger(t, testOptions(), []Machine{linux("m1")}, nil, nil)
	// 10:00 is taken, leaving a one hour hole at 09:00.
	require.True(t, l.Preload(existing("x", "sx", "m1", "", at(0, 10), 1)))
	alloc := newTestAllocator(l)

	long, err := alloc.Allocate(session("long", PriorityNormal, 2))
	require.NoError(t, err)
	assert.Equal(t, []string{"d0-1100", "d0-1200"}, long.SlotIDs)

	short, err := alloc.Allocate(session("short", PriorityNormal, 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"d0-0900"}, short.SlotIDs)
}

func TestAllocator_FullyBookedMachine(t *testing.T) {
	opts := testOptions()
	opts.MaxDays = 1
	l := newTestLedger(t, opts, []Machine{linux("m1")}, nil, nil)
	alloc := newTestAllocator(l)

	_, err := alloc.Allocate(session("all-day", PriorityNormal, 9))
	require.NoError(t, err)

	_, err = alloc.Allocate(session("late", PriorityNormal, 1))
	var ae *AllocationError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, MachineUnavailable, ae.Kind)
	assert.True(t, ae.Structural())
}
