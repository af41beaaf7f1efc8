package engine

import (
	"strings"
	"time"
)

// Priority is the urgency tier of a session.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusScheduled  SessionStatus = "scheduled"
	StatusQueued     SessionStatus = "queued"
	StatusConflicted SessionStatus = "conflicted"
	StatusCompleted  SessionStatus = "completed"
)

// MachineStatus is the operational state of a machine.
type MachineStatus string

const (
	MachineAvailable   MachineStatus = "available"
	MachineBusy        MachineStatus = "busy"
	MachineMaintenance MachineStatus = "maintenance"
	MachineOffline     MachineStatus = "offline"
)

// HardwareRequirement names the platform/debugger pairing a session needs.
// Empty ids match any combination on that axis.
type HardwareRequirement struct {
	PlatformID   string `json:"platformId,omitempty"`
	PlatformName string `json:"platformName,omitempty"`
	DebuggerID   string `json:"debuggerId,omitempty"`
	DebuggerName string `json:"debuggerName,omitempty"`
	Mode         string `json:"mode,omitempty"`
}

// Session is one schedulable unit of test work.
type Session struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	Priority       Priority             `json:"priority"`
	EstimatedHours float64              `json:"estimatedTime"`
	RequiredOS     string               `json:"requiredOS"`
	Hardware       *HardwareRequirement `json:"hardwareRequirements,omitempty"`
	Status         SessionStatus        `json:"status"`
	MachineID      string               `json:"machineId,omitempty"`
	CombinationID  string               `json:"hardwareCombinationId,omitempty"`
	SlotIDs        []string             `json:"slotIds,omitempty"`
}

// isPending reports whether the session should be attempted by a pass.
func (s Session) isPending() bool {
	return s.Status == StatusPending || s.Status == ""
}

// Machine is an execution resource. Registration order is the slice order
// handed to the engine.
type Machine struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	OSType           string        `json:"osType"`
	Status           MachineStatus `json:"status"`
	Capabilities     []string      `json:"capabilities,omitempty"`
	CurrentSessionID string        `json:"currentSessionId,omitempty"`
}

// schedulable reports whether the machine may receive new work.
func (m Machine) schedulable() bool {
	return m.Status != MachineMaintenance && m.Status != MachineOffline
}

func (m Machine) supports(capability string) bool {
	for _, c := range m.Capabilities {
		if strings.EqualFold(c, capability) {
			return true
		}
	}
	return false
}

// runs reports whether the machine satisfies the session's OS and
// hardware capability needs.
func (m Machine) runs(s Session) bool {
	if !strings.EqualFold(strings.TrimSpace(m.OSType), strings.TrimSpace(s.RequiredOS)) {
		return false
	}
	if s.Hardware == nil || len(m.Capabilities) == 0 {
		return true
	}
	if p := firstNonEmpty(s.Hardware.PlatformID, s.Hardware.PlatformName); p != "" && !m.supports(p) {
		return false
	}
	if d := firstNonEmpty(s.Hardware.DebuggerID, s.Hardware.DebuggerName); d != "" && !m.supports(d) {
		return false
	}
	return true
}

// AvailabilityWindow is a weekly window during which a hardware combination
// may be reserved. EndHour is exclusive and may be 24.
type AvailabilityWindow struct {
	DayOfWeek          time.Weekday `json:"dayOfWeek"`
	StartHour          int          `json:"startHour"`
	EndHour            int          `json:"endHour"`
	Enabled            bool         `json:"enabled"`
	MaxConcurrentUsage int          `json:"maxConcurrentUsage"`
}

// HardwareCombination is a reservable platform + debugger pairing.
type HardwareCombination struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	PlatformID          string               `json:"platformId"`
	PlatformName        string               `json:"platformName,omitempty"`
	DebuggerID          string               `json:"debuggerId"`
	DebuggerName        string               `json:"debuggerName,omitempty"`
	Enabled             bool                 `json:"enabled"`
	Priority            string               `json:"priority"`
	TotalAvailableHours float64              `json:"totalAvailableHours"`
	HourlyAvailability  []bool               `json:"hourlyAvailability,omitempty"`
	Windows             []AvailabilityWindow `json:"windows,omitempty"`
}

// matches checks each part of req by id when one is given, otherwise by
// case-insensitive name. A requirement naming nothing matches nothing.
func (c HardwareCombination) matches(req *HardwareRequirement) bool {
	if req == nil {
		return false
	}
	platform, okP := part(req.PlatformID, req.PlatformName, c.PlatformID, c.PlatformName)
	debugger, okD := part(req.DebuggerID, req.DebuggerName, c.DebuggerID, c.DebuggerName)
	return (okP || okD) && platform && debugger
}

// part reports whether one side of a requirement is satisfied and whether
// the requirement named that side at all.
func part(wantID, wantName, id, name string) (bool, bool) {
	switch {
	case wantID != "":
		return wantID == id, true
	case strings.TrimSpace(wantName) != "":
		return name != "" && strings.EqualFold(strings.TrimSpace(wantName), strings.TrimSpace(name)), true
	default:
		return true, false
	}
}

// priorityRank orders combinations: high before normal before low.
func (c HardwareCombination) priorityRank() int {
	switch strings.ToLower(strings.TrimSpace(c.Priority)) {
	case "high":
		return 0
	case "low":
		return 2
	default:
		return 1
	}
}

// Inventory tracks the quantities of one hardware combination.
// Available + Allocated + Reserved must not exceed Total.
type Inventory struct {
	CombinationID string `json:"combinationId"`
	Total         int    `json:"total"`
	Available     int    `json:"available"`
	Allocated     int    `json:"allocated"`
	Reserved      int    `json:"reserved"`
}

// Capacity is the number of concurrent reservations the inventory allows.
func (i Inventory) Capacity() int {
	c := i.Available
	if rest := i.Total - i.Allocated - i.Reserved; rest < c {
		c = rest
	}
	if c < 0 {
		return 0
	}
	return c
}

// Assignment binds a session to a contiguous run of slots on one machine
// and, optionally, one hardware combination.
type Assignment struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"sessionId"`
	MachineID     string    `json:"machineId"`
	CombinationID string    `json:"hardwareCombinationId,omitempty"`
	StartsAt      time.Time `json:"startsAt"`
	EndsAt        time.Time `json:"endsAt"`
	SlotIDs       []string  `json:"slotIds"`
	Manual        bool      `json:"manual"`

	start int
	count int
}

// Hours is the reserved time expressed in hours.
func (a Assignment) Hours() float64 {
	return a.EndsAt.Sub(a.StartsAt).Hours()
}
