package engine

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(Options{SlotDurationHours: -2}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestEngine_Run_PriorityOrder(t *testing.T) {
	e := newTestEngine(t, Options{})
	in := Input{
		Sessions: []Session{
			session("normal-1", PriorityNormal, 1),
			session("urgent", PriorityUrgent, 1),
			session("normal-2", PriorityNormal, 1),
		},
		Machines: []Machine{linux("m1")},
	}

	res, err := e.Run(context.Background(), in)
	require.NoError(t, err)

	starts := map[string]string{}
	for _, s := range res.Scheduled {
		starts[s.Session.ID] = s.Assignment.SlotIDs[0]
		assert.Equal(t, StatusScheduled, s.Session.Status)
		assert.Equal(t, "m1", s.Session.MachineID)
	}
	want := map[string]string{"urgent": "d0-0900", "normal-1": "d0-1000", "normal-2": "d0-1100"}
	if diff := cmp.Diff(want, starts); diff != "" {
		t.Errorf("placement mismatch (-want +got):\n%s", diff)
	}
	assert.Zero(t, res.Moves)
	assert.Empty(t, res.Overallocations)
	assert.Equal(t, Summary{TotalSessions: 3, Scheduled: 3, SchedulingRate: 100, TotalEstimatedTime: 3}, res.Summary)
	assert.Equal(t, PhaseDone, e.Phase())

	require.Len(t, res.Machines, 1)
	assert.Equal(t, MachineBusy, res.Machines[0].Status)
	assert.Equal(t, "urgent", res.Machines[0].CurrentSessionID)

	cell := res.Timeline["2026-10-19"]["09:00"]
	assert.Equal(t, []string{"urgent"}, cell.Sessions)
	assert.Equal(t, []string{"m1"}, cell.MachinesUsed)
	assert.False(t, cell.Available)
	assert.True(t, res.Timeline["2026-10-19"]["12:00"].Available)
	assert.Len(t, res.Timeline, 7)
}

func TestEngine_Run_SharedHardware(t *testing.T) {
	c := combo("board", "p", "d")
	c.Windows = []AvailabilityWindow{mondayWindow(9, 10, 0)}
	e := newTestEngine(t, Options{})
	in := Input{
		Sessions: []Session{
			withHardware(session("first", PriorityNormal, 1), "p", "d"),
			withHardware(session("second", PriorityNormal, 1), "p", "d"),
		},
		Machines:     []Machine{linux("m1"), linux("m2")},
		Combinations: []HardwareCombination{c},
		Inventories:  []Inventory{{CombinationID: "board", Total: 1, Available: 1}},
	}

	res, err := e.Run(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, res.Scheduled, 1)
	assert.Equal(t, "first", res.Scheduled[0].Session.ID)
	assert.Equal(t, "board", res.Scheduled[0].Assignment.CombinationID)
	require.Len(t, res.Queued, 1)
	assert.Equal(t, "second", res.Queued[0].Session.ID)
	assert.Equal(t, ReasonHardwareConflict, res.Queued[0].Reason)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, map[string]map[string]int{"board": {"2026-10-19T09:00": 1}}, res.HardwareUsage)
	assert.Equal(t, 50.0, res.Summary.SchedulingRate)

	statuses := map[string]SessionStatus{}
	for _, s := range res.Sessions {
		statuses[s.ID] = s.Status
	}
	assert.Equal(t, map[string]SessionStatus{"first": StatusScheduled, "second": StatusQueued}, statuses)
}

func TestEngine_Run_StructuralGaps(t *testing.T) {
	e := newTestEngine(t, Options{})
	mac := session("mac", PriorityHigh, 1)
	mac.RequiredOS = "macos"
	in := Input{
		Sessions: []Session{
			mac,
			withHardware(session("exotic", PriorityNormal, 1), "fpga", "jtag"),
			session("plain", PriorityNormal, 1),
		},
		Machines: []Machine{linux("m1")},
	}

	res, err := e.Run(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, res.Conflicts, 2)
	assert.Equal(t, "mac", res.Conflicts[0].Session.ID)
	assert.Equal(t, ReasonNoMachineAvailable, res.Conflicts[0].Reason)
	assert.Equal(t, "exotic", res.Conflicts[1].Session.ID)
	assert.Equal(t, ReasonNoCompatibleHardware, res.Conflicts[1].Reason)
	assert.Empty(t, res.Queued)
	require.Len(t, res.Scheduled, 1)
	assert.Equal(t, "plain", res.Scheduled[0].Session.ID)
}

func TestEngine_Run_SlotCountAndInvariants(t *testing.T) {
	e := newTestEngine(t, Options{SlotDurationHours: 0.5})
	c := combo("c1", "p", "d")
	in := Input{
		Sessions: []Session{
			session("s1", PriorityNormal, 1.2),
			withHardware(session("s2", PriorityHigh, 0.4), "p", "d"),
			withHardware(session("s3", PriorityUrgent, 2), "p", "d"),
			session("s4", PriorityNormal, 3),
			session("s5", PriorityHigh, 0.5),
		},
		Machines:     []Machine{linux("m1"), linux("m2")},
		Combinations: []HardwareCombination{c},
		Inventories:  []Inventory{{CombinationID: "c1", Total: 1, Available: 1}},
	}

	res, err := e.Run(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, res.Scheduled, 5)

	machineSlots := map[string]bool{}
	hardwareSlots := map[string]int{}
	for _, s := range res.Scheduled {
		assert.Len(t, s.Assignment.SlotIDs, RequiredSlots(s.Session.EstimatedHours, 0.5), s.Session.ID)
		for _, id := range s.Assignment.SlotIDs {
			key := s.Assignment.MachineID + "/" + id
			assert.False(t, machineSlots[key], "machine slot %s used twice", key)
			machineSlots[key] = true
			if s.Assignment.CombinationID != "" {
				hardwareSlots[id]++
				assert.LessOrEqual(t, hardwareSlots[id], 1, "hardware slot %s over inventory", id)
			}
		}
	}
	assert.Empty(t, res.Overallocations)
}

func TestEngine_Run_Idempotent(t *testing.T) {
	e := newTestEngine(t, Options{})
	in := Input{
		Sessions: []Session{
			withHardware(session("s1", PriorityNormal, 2), "p", "d"),
			session("s2", PriorityUrgent, 1),
			session("s3", PriorityHigh, 3),
		},
		Machines:     []Machine{linux("m1"), linux("m2")},
		Combinations: []HardwareCombination{combo("c1", "p", "d")},
	}

	first, err := e.Run(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, first.Scheduled, 3)

	again := Input{
		Sessions:     first.Sessions,
		Machines:     first.Machines,
		Combinations: in.Combinations,
		Existing:     first.Assignments,
	}
	second, err := e.Run(context.Background(), again)
	require.NoError(t, err)

	assert.Empty(t, second.Scheduled)
	assert.Zero(t, second.Summary.TotalSessions)
	assert.Equal(t, first.HardwareUsage, second.HardwareUsage)
	assert.Len(t, second.Assignments, len(first.Assignments))
	for i := range first.Assignments {
		assert.Equal(t, first.Assignments[i].ID, second.Assignments[i].ID)
		assert.True(t, first.Assignments[i].StartsAt.Equal(second.Assignments[i].StartsAt))
	}
}

func TestEngine_Run_KeepsAssignmentsOutsideHorizon(t *testing.T) {
	e := newTestEngine(t, Options{})
	done := session("s0", PriorityNormal, 2)
	done.Status = StatusScheduled
	done.MachineID = "m1"
	old := existing("old", "s0", "m1", "c1", at(-1, 9), 2)

	res, err := e.Run(context.Background(), Input{
		Sessions:     []Session{done, session("s1", PriorityNormal, 1)},
		Machines:     []Machine{linux("m1")},
		Combinations: []HardwareCombination{combo("c1", "p", "d")},
		Existing:     []Assignment{old},
	})
	require.NoError(t, err)
	require.Len(t, res.Scheduled, 1)

	require.Len(t, res.Assignments, 2)
	assert.Equal(t, "a1", res.Assignments[0].ID)
	assert.Equal(t, old, res.Assignments[1], "yesterday's assignment is carried through unchanged")
	assert.Equal(t, map[string]int{"2026-10-18T09:00": 1, "2026-10-18T10:00": 1}, res.HardwareUsage["c1"])
	assert.Equal(t, "s1", res.Machines[0].CurrentSessionID)

	// Rescheduling the session by hand replaces its old assignment.
	moved, err := e.Manual(Input{
		Sessions:     res.Sessions,
		Machines:     res.Machines,
		Combinations: []HardwareCombination{combo("c1", "p", "d")},
		Existing:     res.Assignments,
	}, ManualRequest{SessionID: "s0", MachineID: "m1", Date: "2026-10-20", StartHour: 9})
	require.NoError(t, err)
	for _, a := range moved.Assignments {
		assert.NotEqual(t, "old", a.ID)
	}
	assert.Len(t, moved.Assignments, 2)
}

func TestEngine_Run_UnboundedDuration(t *testing.T) {
	e := newTestEngine(t, Options{})
	res, err := e.Run(context.Background(), Input{
		Sessions: []Session{session("forever", PriorityUrgent, math.Inf(1)), session("s1", PriorityNormal, 1)},
		Machines: []Machine{linux("m1")},
	})
	require.NoError(t, err)

	require.Len(t, res.Scheduled, 1)
	assert.Equal(t, "s1", res.Scheduled[0].Session.ID)
	require.Len(t, res.Queued, 1)
	assert.Equal(t, "forever", res.Queued[0].Session.ID)
	assert.Equal(t, 1.0, res.Summary.TotalEstimatedTime)

	_, err = json.Marshal(res.Summary)
	assert.NoError(t, err)
}

func TestEngine_Run_Cancelled(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.Run(ctx, Input{
		Sessions: []Session{session("s1", PriorityNormal, 1), session("s2", PriorityNormal, 1)},
		Machines: []Machine{linux("m1")},
	})
	require.NoError(t, err)

	assert.True(t, res.Cancelled)
	assert.Empty(t, res.Scheduled)
	require.Len(t, res.Queued, 2)
	for _, q := range res.Queued {
		assert.Equal(t, ReasonPassCancelled, q.Reason)
	}
	assert.Empty(t, res.Assignments)
}

func TestEngine_Run_Serialized(t *testing.T) {
	e := newTestEngine(t, Options{})
	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := e.Run(context.Background(), Input{})
	assert.ErrorIs(t, err, ErrPassInProgress)
	_, err = e.Clear(Input{})
	assert.ErrorIs(t, err, ErrPassInProgress)
	_, err = e.Manual(Input{}, ManualRequest{})
	assert.ErrorIs(t, err, ErrPassInProgress)
}

func TestEngine_Run_EmptyUniverse(t *testing.T) {
	e := newTestEngine(t, Options{SlotDurationHours: 24})
	_, err := e.Run(context.Background(), Input{Sessions: []Session{session("s1", PriorityNormal, 1)}})
	assert.ErrorIs(t, err, ErrEmptySlotUniverse)
	assert.Equal(t, PhaseDone, e.Phase())
}

func TestEngine_Clear(t *testing.T) {
	e := newTestEngine(t, Options{})
	mac := session("mac", PriorityNormal, 1)
	mac.RequiredOS = "macos"
	done := session("done", PriorityNormal, 1)
	done.Status = StatusCompleted
	maint := linux("m2")
	maint.Status = MachineMaintenance
	in := Input{
		Sessions:     []Session{session("s1", PriorityNormal, 1), withHardware(session("s2", PriorityNormal, 1), "p", "d"), mac, done},
		Machines:     []Machine{linux("m1"), maint},
		Combinations: []HardwareCombination{combo("c1", "p", "d")},
	}
	res, err := e.Run(context.Background(), in)
	require.NoError(t, err)
	require.NotEmpty(t, res.HardwareUsage)

	cleared, err := e.Clear(Input{Sessions: res.Sessions, Machines: res.Machines, Existing: res.Assignments})
	require.NoError(t, err)

	for _, s := range cleared.Sessions {
		if s.ID == "done" {
			assert.Equal(t, StatusCompleted, s.Status)
			continue
		}
		assert.Equal(t, StatusPending, s.Status, s.ID)
		assert.Empty(t, s.MachineID)
		assert.Empty(t, s.SlotIDs)
	}
	assert.Equal(t, MachineAvailable, cleared.Machines[0].Status)
	assert.Empty(t, cleared.Machines[0].CurrentSessionID)
	assert.Equal(t, MachineMaintenance, cleared.Machines[1].Status)
	assert.Empty(t, cleared.Assignments)
	assert.Empty(t, cleared.HardwareUsage)

	// A fresh pass over the cleared state reproduces the first one.
	rerun, err := e.Run(context.Background(), Input{
		Sessions: cleared.Sessions, Machines: cleared.Machines, Combinations: in.Combinations,
	})
	require.NoError(t, err)
	assert.Equal(t, res.HardwareUsage, rerun.HardwareUsage)
	assert.Equal(t, res.Summary, rerun.Summary)
}

func TestEngine_Inspect(t *testing.T) {
	e := newTestEngine(t, Options{})
	insp, err := e.Inspect(Input{
		Machines: []Machine{linux("m1")},
		Existing: []Assignment{
			existing("a1", "s1", "m1", "", at(0, 9), 2),
			existing("a2", "s2", "m1", "", at(0, 10), 1),
			existing("old", "s0", "m1", "", at(-3, 9), 1),
		},
	})
	require.NoError(t, err)

	require.Len(t, insp.Overallocations, 1)
	assert.Equal(t, MachineOverallocation, insp.Overallocations[0].Type)
	assert.Equal(t, "2026-10-19T10:00", insp.Overallocations[0].SlotRef)
	assert.Equal(t, []string{"s1", "s2"}, insp.Timeline["2026-10-19"]["10:00"].Sessions)
	assert.Equal(t, map[string]int{"2026-10-19T09:00": 1, "2026-10-19T10:00": 2}, insp.MachineUsage["m1"])
	assert.Len(t, insp.Slots, 7*12)
	assert.True(t, insp.Slots[0].Start.Equal(time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)))
}
