package model

import (
	"time"

	"session-scheduler-backend/internal/engine"
)

// Session is a unit of test work waiting for, or holding, a schedule. Seq
// keeps the intake order, which breaks ties between equal priorities.
type Session struct {
	ID             string                      `gorm:"primaryKey;size:64"`
	Name           string                      `gorm:"size:256;not null"`
	Priority       string                      `gorm:"size:16;not null;default:normal"`
	EstimatedHours float64                     `gorm:"not null"`
	RequiredOS     string                      `gorm:"column:required_os;size:64;not null"`
	Hardware       *engine.HardwareRequirement `gorm:"serializer:json"`
	Status         string                      `gorm:"size:16;index;not null;default:pending"`
	MachineID      string                      `gorm:"size:64"`
	CombinationID  string                      `gorm:"size:64"`
	SlotIDs        []string                    `gorm:"serializer:json"`
	Seq            int                         `gorm:"index;not null;default:0"`
	CreatedAt      time.Time                   `gorm:"not null"`
	UpdatedAt      time.Time                   `gorm:"not null"`
}

func (s Session) ToEngine() engine.Session {
	return engine.Session{
		ID:             s.ID,
		Name:           s.Name,
		Priority:       engine.Priority(s.Priority),
		EstimatedHours: s.EstimatedHours,
		RequiredOS:     s.RequiredOS,
		Hardware:       s.Hardware,
		Status:         engine.SessionStatus(s.Status),
		MachineID:      s.MachineID,
		CombinationID:  s.CombinationID,
		SlotIDs:        s.SlotIDs,
	}
}

func SessionFromEngine(s engine.Session) Session {
	return Session{
		ID:             s.ID,
		Name:           s.Name,
		Priority:       string(s.Priority),
		EstimatedHours: s.EstimatedHours,
		RequiredOS:     s.RequiredOS,
		Hardware:       s.Hardware,
		Status:         string(s.Status),
		MachineID:      s.MachineID,
		CombinationID:  s.CombinationID,
		SlotIDs:        s.SlotIDs,
	}
}
