package model

import (
	"time"

	"session-scheduler-backend/internal/engine"
)

// Machine represents an execution resource. Seq keeps the registration
// order, which the allocator relies on for tie-breaking.
type Machine struct {
	ID               string   `gorm:"primaryKey;size:64"`
	Name             string   `gorm:"size:256;not null"`
	OSType           string   `gorm:"column:os_type;size:64;not null"`
	Status           string   `gorm:"size:16;not null;default:available"`
	Capabilities     []string `gorm:"serializer:json"`
	CurrentSessionID string   `gorm:"size:64"`
	Seq              int      `gorm:"index;not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (m Machine) ToEngine() engine.Machine {
	return engine.Machine{
		ID:               m.ID,
		Name:             m.Name,
		OSType:           m.OSType,
		Status:           engine.MachineStatus(m.Status),
		Capabilities:     m.Capabilities,
		CurrentSessionID: m.CurrentSessionID,
	}
}

func MachineFromEngine(m engine.Machine, seq int) Machine {
	return Machine{
		ID:               m.ID,
		Name:             m.Name,
		OSType:           m.OSType,
		Status:           string(m.Status),
		Capabilities:     m.Capabilities,
		CurrentSessionID: m.CurrentSessionID,
		Seq:              seq,
	}
}
