package engine

import "slices"

// TimelineCell is what one slot of the timeline holds.
type TimelineCell struct {
	SlotID       string   `json:"slotId"`
	Part         DayPart  `json:"part"`
	Sessions     []string `json:"sessions"`
	HardwareUsed []string `json:"hardwareUsed"`
	MachinesUsed []string `json:"machinesUsed"`
	Available    bool     `json:"available"`
}

// Timeline maps date key, then slot key, to the cell of that slot.
type Timeline map[string]map[string]TimelineCell

// BuildTimeline lays every slot of the ledger's universe out by date and
// start time, listing the sessions, machines and combinations holding it.
func BuildTimeline(l *Ledger) Timeline {
	tl := make(Timeline)
	cells := make([]TimelineCell, len(l.slots))
	for i, ts := range l.slots {
		cells[i] = TimelineCell{
			SlotID:       ts.ID,
			Part:         ts.Part,
			Sessions:     []string{},
			HardwareUsed: []string{},
			MachinesUsed: []string{},
			Available:    ts.Available,
		}
	}
	for _, a := range l.Assignments() {
		for i := a.start; i < a.start+a.count; i++ {
			c := &cells[i]
			c.Sessions = append(c.Sessions, a.SessionID)
			if !slices.Contains(c.MachinesUsed, a.MachineID) {
				c.MachinesUsed = append(c.MachinesUsed, a.MachineID)
			}
			if a.CombinationID != "" && !slices.Contains(c.HardwareUsed, a.CombinationID) {
				c.HardwareUsed = append(c.HardwareUsed, a.CombinationID)
			}
		}
	}
	for i, ts := range l.slots {
		day := tl[ts.DateKey()]
		if day == nil {
			day = make(map[string]TimelineCell)
			tl[ts.DateKey()] = day
		}
		day[ts.SlotKey()] = cells[i]
	}
	return tl
}
