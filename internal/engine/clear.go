package engine

// Inspection is the read-only view of persisted assignments within the
// current horizon.
type Inspection struct {
	Slots           []TimeSlot                `json:"slots"`
	Timeline        Timeline                  `json:"timeline"`
	HardwareUsage   map[string]map[string]int `json:"hardwareUsage"`
	MachineUsage    map[string]map[string]int `json:"machineUsage"`
	Overallocations []Overallocation          `json:"overallocations"`
}

// Inspect loads the existing assignments into a fresh ledger and reports
// the resulting timeline, usage and overallocations.
func (e *Engine) Inspect(in Input) (*Inspection, error) {
	l, err := e.prepare(in, e.opts.Now())
	if err != nil {
		return nil, err
	}
	return &Inspection{
		Slots:           append([]TimeSlot(nil), l.slots...),
		Timeline:        BuildTimeline(l),
		HardwareUsage:   l.HardwareUsage(),
		MachineUsage:    l.MachineUsage(),
		Overallocations: DetectConflicts(l, l.Assignments()),
	}, nil
}

// Clear returns the state with every assignment dropped: scheduled, queued
// and conflicted sessions go back to pending and busy machines become
// available. Completed sessions and machines under maintenance or offline
// are left as they are.
func (e *Engine) Clear(in Input) (Outcome, error) {
	if !e.mu.TryLock() {
		return Outcome{}, ErrPassInProgress
	}
	defer e.mu.Unlock()

	out := Outcome{
		Sessions:      make([]Session, 0, len(in.Sessions)),
		Machines:      make([]Machine, 0, len(in.Machines)),
		Assignments:   []Assignment{},
		HardwareUsage: map[string]map[string]int{},
	}
	for _, s := range in.Sessions {
		switch s.Status {
		case StatusScheduled, StatusQueued, StatusConflicted:
			s.Status = StatusPending
			s.MachineID = ""
			s.CombinationID = ""
			s.SlotIDs = nil
		}
		out.Sessions = append(out.Sessions, s)
	}
	for _, m := range in.Machines {
		if m.Status == MachineBusy {
			m.Status = MachineAvailable
		}
		m.CurrentSessionID = ""
		out.Machines = append(out.Machines, m)
	}
	e.logger.Info().Int("sessions", len(out.Sessions)).Int("released", len(in.Existing)).Msg("schedule cleared")
	return out, nil
}
