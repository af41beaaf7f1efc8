package engine

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ManualRequest pins a session to a machine at a given date and hour.
type ManualRequest struct {
	SessionID string `json:"sessionId"`
	MachineID string `json:"machineId"`
	Date      string `json:"date"`
	StartHour int    `json:"startHour"`
}

// ManualResult is the state after a manual assignment, or the conflicts it
// would create when only checked.
type ManualResult struct {
	Outcome
	Assignment Assignment       `json:"assignment"`
	Conflicts  []Overallocation `json:"conflicts"`
}

// OccupiedError is returned when a manual assignment would double-book a
// machine or exceed hardware capacity.
type OccupiedError struct {
	Conflicts []Overallocation
}

func (e *OccupiedError) Error() string {
	return fmt.Sprintf("%s: %d overallocation(s)", ErrSlotOccupied, len(e.Conflicts))
}

func (e *OccupiedError) Unwrap() error { return ErrSlotOccupied }

// CheckManual reports the overallocations the request would create against
// the committed assignments, without changing anything.
func (e *Engine) CheckManual(in Input, req ManualRequest) (*ManualResult, error) {
	if !e.mu.TryLock() {
		return nil, ErrPassInProgress
	}
	defer e.mu.Unlock()

	l, _, asg, err := e.stage(in, req)
	if err != nil {
		return nil, err
	}
	trial := l.Clone()
	trial.apply(asg)
	return &ManualResult{Assignment: asg, Conflicts: conflictsOf(trial, asg.ID)}, nil
}

// Manual commits the request after re-checking occupancy. An earlier
// assignment of the same session is released first. When the target window
// is not free an *OccupiedError listing the conflicts is returned.
func (e *Engine) Manual(in Input, req ManualRequest) (*ManualResult, error) {
	if !e.mu.TryLock() {
		return nil, ErrPassInProgress
	}
	defer e.mu.Unlock()

	l, s, asg, err := e.stage(in, req)
	if err != nil {
		return nil, err
	}
	if err := l.Commit(asg); err != nil {
		if !errors.Is(err, ErrSlotOccupied) {
			return nil, err
		}
		trial := l.Clone()
		trial.apply(asg)
		return nil, &OccupiedError{Conflicts: conflictsOf(trial, asg.ID)}
	}
	e.logger.Info().Str("session", s.ID).Str("machine", asg.MachineID).Time("starts_at", asg.StartsAt).Msg("manual assignment")

	placed := withAssignment(s, asg)
	sessions := make([]Session, 0, len(in.Sessions))
	for _, cur := range in.Sessions {
		if cur.ID == s.ID {
			cur = placed
		}
		sessions = append(sessions, cur)
	}
	return &ManualResult{
		Outcome: Outcome{
			Sessions:      sessions,
			Machines:      machineStates(in.Machines, l.Assignments(), s.ID),
			Assignments:   l.Persisted(),
			HardwareUsage: l.PersistedHardwareUsage(),
		},
		Assignment: asg,
	}, nil
}

// stage validates the request and returns a ledger holding every committed
// assignment except the session's own, plus the candidate assignment.
func (e *Engine) stage(in Input, req ManualRequest) (*Ledger, Session, Assignment, error) {
	idx := slices.IndexFunc(in.Sessions, func(s Session) bool { return s.ID == req.SessionID })
	if idx < 0 {
		return nil, Session{}, Assignment{}, fmt.Errorf("%w: %s", ErrUnknownSession, req.SessionID)
	}
	s := in.Sessions[idx]
	if s.Status == StatusCompleted {
		return nil, s, Assignment{}, fmt.Errorf("%w: session %s is completed", ErrInvalidTransition, s.ID)
	}

	now := e.opts.Now()
	l, err := e.prepare(in, now)
	if err != nil {
		return nil, s, Assignment{}, err
	}
	m, ok := l.Machine(req.MachineID)
	if !ok {
		return nil, s, Assignment{}, fmt.Errorf("%w: %s", ErrUnknownMachine, req.MachineID)
	}
	if !m.schedulable() || !m.runs(s) {
		return nil, s, Assignment{}, fmt.Errorf("%w: machine %s (%s, %s) for session %s (%s)",
			ErrIncompatibleMachine, m.ID, m.OSType, m.Status, s.ID, s.RequiredOS)
	}

	day, err := time.ParseInLocation(dateKeyLayout, req.Date, e.opts.Location)
	if err != nil {
		return nil, s, Assignment{}, fmt.Errorf("%w: date %q: %v", ErrOutsideHorizon, req.Date, err)
	}
	startsAt := time.Date(day.Year(), day.Month(), day.Day(), req.StartHour, 0, 0, 0, e.opts.Location)
	start, ok := l.universe.IndexAt(startsAt)
	if !ok {
		return nil, s, Assignment{}, fmt.Errorf("%w: %s", ErrOutsideHorizon, startsAt.Format(refLayout))
	}
	if !startsAt.After(now) {
		return nil, s, Assignment{}, fmt.Errorf("%w: %s", ErrPastSlot, startsAt.Format(refLayout))
	}
	count := RequiredSlots(s.EstimatedHours, e.opts.SlotDurationHours)
	if !l.universe.contiguous(start, count) {
		return nil, s, Assignment{}, fmt.Errorf("%w: %d slot(s) from %s", ErrOutsideHorizon, count, startsAt.Format(refLayout))
	}

	for _, a := range l.Assignments() {
		if a.SessionID == s.ID {
			l.Release(a)
		}
	}
	l.dropOutside(s.ID)

	combo := ""
	if s.Hardware != nil {
		combos := l.CombinationsFor(s.Hardware)
		if len(combos) == 0 {
			return nil, s, Assignment{}, &AllocationError{
				Kind:   NoCompatibleHardware,
				Reason: ReasonNoCompatibleHardware,
				Detail: describeRequirement(s.Hardware),
			}
		}
		combo = combos[0].ID
		for _, c := range combos {
			if l.hardwareFreeFor(c.ID, start, count) {
				combo = c.ID
				break
			}
		}
	}

	asg := e.allocator(l, now).build(s.ID, placement{start: start, machine: m.ID, combo: combo}, count)
	asg.Manual = true
	return l, s, asg, nil
}

// conflictsOf keeps the overallocations that involve the given assignment.
func conflictsOf(l *Ledger, id string) []Overallocation {
	var out []Overallocation
	for _, o := range DetectConflicts(l, l.Assignments()) {
		if slices.Contains(o.AssignmentIDs, id) {
			out = append(out, o)
		}
	}
	return out
}
