// Package engine assigns pending sessions to machine time slots and
// hardware combinations: priority ordering, earliest-fit allocation,
// overallocation detection and compaction.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Phase is the orchestrator state of a pass.
type Phase string

const (
	PhaseInit             Phase = "INIT"
	PhaseSorted           Phase = "SORTED"
	PhaseAllocating       Phase = "ALLOCATING"
	PhaseConflictsChecked Phase = "CONFLICTS-CHECKED"
	PhaseOptimized        Phase = "OPTIMIZED"
	PhaseDone             Phase = "DONE"
)

// Input is the snapshot a pass works on. Existing holds assignments that
// were committed by earlier passes or by hand.
type Input struct {
	Sessions     []Session
	Machines     []Machine
	Combinations []HardwareCombination
	Inventories  []Inventory
	Existing     []Assignment
}

// Outcome is the full updated state a caller persists after an operation.
type Outcome struct {
	Sessions      []Session                 `json:"sessions"`
	Machines      []Machine                 `json:"machines"`
	Assignments   []Assignment              `json:"assignments"`
	HardwareUsage map[string]map[string]int `json:"hardwareUsage"`
}

// ScheduledSession pairs a placed session with its assignment.
type ScheduledSession struct {
	Session    Session    `json:"session"`
	Assignment Assignment `json:"assignment"`
}

// UnplacedSession is a queued or conflicted session with the reason.
type UnplacedSession struct {
	Session Session `json:"session"`
	Reason  string  `json:"reason"`
	Detail  string  `json:"detail"`
}

// Summary aggregates one pass.
type Summary struct {
	TotalSessions      int     `json:"totalSessions"`
	Scheduled          int     `json:"scheduled"`
	Queued             int     `json:"queued"`
	Conflicts          int     `json:"conflicts"`
	SchedulingRate     float64 `json:"schedulingRate"`
	TotalEstimatedTime float64 `json:"totalEstimatedTime"`
}

// Result is the partition and bookkeeping produced by a pass.
type Result struct {
	Outcome
	Scheduled       []ScheduledSession `json:"scheduled"`
	Queued          []UnplacedSession  `json:"queued"`
	Conflicts       []UnplacedSession  `json:"conflicts"`
	Overallocations []Overallocation   `json:"overallocations"`
	Summary         Summary            `json:"summary"`
	Timeline        Timeline           `json:"timeline"`
	Moves           int                `json:"moves"`
	Cancelled       bool               `json:"cancelled"`
}

// Engine drives scheduling passes. Passes on one engine never overlap: a
// call made while another pass runs fails with ErrPassInProgress.
type Engine struct {
	opts   Options
	logger zerolog.Logger
	newID  func() string

	mu    sync.Mutex
	state sync.Mutex
	phase Phase
}

// New validates opts once and returns an engine.
func New(opts Options, logger zerolog.Logger) (*Engine, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		opts:   opts,
		logger: logger.With().Str("component", "engine").Logger(),
		phase:  PhaseDone,
	}, nil
}

// Options returns the validated options of the engine.
func (e *Engine) Options() Options { return e.opts }

// Phase returns the current orchestrator state.
func (e *Engine) Phase() Phase {
	e.state.Lock()
	defer e.state.Unlock()
	return e.phase
}

func (e *Engine) enter(p Phase) {
	e.state.Lock()
	e.phase = p
	e.state.Unlock()
	e.logger.Debug().Str("phase", string(p)).Msg("pass phase")
}

func (e *Engine) allocator(l *Ledger, now time.Time) *Allocator {
	a := NewAllocator(l, now)
	if e.newID != nil {
		a.newID = e.newID
	}
	return a
}

// prepare builds the slot universe and a ledger holding every existing
// assignment.
func (e *Engine) prepare(in Input, now time.Time) (*Ledger, error) {
	u, err := GenerateSlots(e.opts, now)
	if err != nil {
		return nil, fmt.Errorf("generate slots: %w", err)
	}
	l := NewLedger(u, e.opts, in.Machines, in.Combinations, in.Inventories)
	for _, a := range in.Existing {
		l.Preload(a)
	}
	return l, nil
}

// Run executes one pass: sort, allocate, check conflicts, optimize and
// summarize. Per-session failures are classified, never returned. When ctx
// ends mid-pass the sessions not yet attempted are queued and the partial
// result is returned without optimization.
func (e *Engine) Run(ctx context.Context, in Input) (*Result, error) {
	if !e.mu.TryLock() {
		return nil, ErrPassInProgress
	}
	defer e.mu.Unlock()
	defer e.enter(PhaseDone)

	e.enter(PhaseInit)
	now := e.opts.Now()
	ledger, err := e.prepare(in, now)
	if err != nil {
		return nil, err
	}

	var pending []Session
	for _, s := range in.Sessions {
		if s.isPending() {
			pending = append(pending, s)
		}
	}
	ordered := SortByPriority(pending)
	e.enter(PhaseSorted)

	e.enter(PhaseAllocating)
	alloc := e.allocator(ledger, now)
	res := &Result{}
	placed := make(map[string]Assignment)
	var fresh []Assignment
	for i, s := range ordered {
		if ctx.Err() != nil {
			res.Cancelled = true
			for _, rest := range ordered[i:] {
				res.Queued = append(res.Queued, UnplacedSession{Session: rest, Reason: ReasonPassCancelled, Detail: ctx.Err().Error()})
			}
			break
		}
		asg, err := alloc.Allocate(s)
		if err == nil {
			placed[s.ID] = asg
			fresh = append(fresh, asg)
			e.logger.Debug().Str("session", s.ID).Str("machine", asg.MachineID).Time("starts_at", asg.StartsAt).Msg("session placed")
			continue
		}
		var ae *AllocationError
		if !errors.As(err, &ae) {
			return nil, fmt.Errorf("allocate session %s: %w", s.ID, err)
		}
		entry := UnplacedSession{Session: s, Reason: ae.Reason, Detail: ae.Detail}
		if ae.Structural() {
			res.Conflicts = append(res.Conflicts, entry)
		} else {
			res.Queued = append(res.Queued, entry)
		}
		e.logger.Debug().Str("session", s.ID).Str("reason", ae.Reason).Msg("session not placed")
	}

	res.Overallocations = DetectConflicts(ledger, ledger.Assignments())
	e.enter(PhaseConflictsChecked)

	if !res.Cancelled && len(fresh) > 0 {
		byID := make(map[string]Session, len(pending))
		for _, s := range pending {
			byID[s.ID] = s
		}
		compacted, moves := NewOptimizer(alloc).Compact(fresh, byID)
		for _, a := range compacted {
			placed[a.SessionID] = a
		}
		res.Moves = moves
	}
	e.enter(PhaseOptimized)

	for _, s := range ordered {
		if a, ok := placed[s.ID]; ok {
			res.Scheduled = append(res.Scheduled, ScheduledSession{Session: withAssignment(s, a), Assignment: a})
		}
	}
	res.Outcome = e.outcome(in, ledger, res)
	res.Summary = summarize(pending, res)
	res.Timeline = BuildTimeline(ledger)
	return res, nil
}

// outcome folds the classification back into full copies of the input
// collections.
func (e *Engine) outcome(in Input, l *Ledger, res *Result) Outcome {
	updated := make(map[string]Session)
	for _, s := range res.Scheduled {
		updated[s.Session.ID] = s.Session
	}
	for _, q := range res.Queued {
		s := q.Session
		s.Status = StatusQueued
		updated[s.ID] = s
	}
	for _, c := range res.Conflicts {
		s := c.Session
		s.Status = StatusConflicted
		updated[s.ID] = s
	}
	sessions := make([]Session, 0, len(in.Sessions))
	for _, s := range in.Sessions {
		if u, ok := updated[s.ID]; ok {
			s = u
		}
		sessions = append(sessions, s)
	}

	return Outcome{
		Sessions:      sessions,
		Machines:      machineStates(in.Machines, l.Assignments()),
		Assignments:   l.Persisted(),
		HardwareUsage: l.PersistedHardwareUsage(),
	}
}

func withAssignment(s Session, a Assignment) Session {
	s.Status = StatusScheduled
	s.MachineID = a.MachineID
	s.CombinationID = a.CombinationID
	s.SlotIDs = append([]string(nil), a.SlotIDs...)
	return s
}

// machineStates marks machines holding assignments busy with their
// earliest session as the current one. A busy machine left without
// assignments is freed when its current session was released.
func machineStates(machines []Machine, assignments []Assignment, released ...string) []Machine {
	earliest := make(map[string]Assignment)
	for _, a := range assignments {
		if cur, ok := earliest[a.MachineID]; !ok || a.StartsAt.Before(cur.StartsAt) {
			earliest[a.MachineID] = a
		}
	}
	out := make([]Machine, 0, len(machines))
	for _, m := range machines {
		a, ok := earliest[m.ID]
		switch {
		case ok && m.schedulable():
			m.Status = MachineBusy
			m.CurrentSessionID = a.SessionID
		case !ok && m.Status == MachineBusy && slices.Contains(released, m.CurrentSessionID):
			m.Status = MachineAvailable
			m.CurrentSessionID = ""
		}
		out = append(out, m)
	}
	return out
}

func summarize(pending []Session, res *Result) Summary {
	sum := Summary{
		TotalSessions: len(pending),
		Scheduled:     len(res.Scheduled),
		Queued:        len(res.Queued),
		Conflicts:     len(res.Conflicts),
	}
	for _, s := range pending {
		if !math.IsInf(s.EstimatedHours, 0) && !math.IsNaN(s.EstimatedHours) {
			sum.TotalEstimatedTime += s.EstimatedHours
		}
	}
	if sum.TotalSessions > 0 {
		rate := float64(sum.Scheduled) / float64(sum.TotalSessions) * 100
		sum.SchedulingRate = math.Round(rate*100) / 100
	}
	return sum
}
