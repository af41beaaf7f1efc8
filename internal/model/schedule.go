package model

import (
	"time"

	"session-scheduler-backend/internal/engine"
)

// ScheduleEntry is one committed assignment.
type ScheduleEntry struct {
	ID            string    `gorm:"primaryKey;size:64"`
	SessionID     string    `gorm:"size:64;index;not null"`
	MachineID     string    `gorm:"size:64;index;not null"`
	CombinationID string    `gorm:"size:64;index"`
	StartsAt      time.Time `gorm:"not null;index"`
	EndsAt        time.Time `gorm:"not null"`
	SlotIDs       []string  `gorm:"serializer:json"`
	Manual        bool      `gorm:"not null;default:false"`
	CreatedAt     time.Time `gorm:"not null"`
}

// HardwareUsage is the number of reservations of a combination in one slot.
type HardwareUsage struct {
	CombinationID string `gorm:"primaryKey;size:64"`
	SlotRef       string `gorm:"primaryKey;size:32"`
	Count         int    `gorm:"not null"`
}

func (e ScheduleEntry) ToEngine() engine.Assignment {
	return engine.Assignment{
		ID:            e.ID,
		SessionID:     e.SessionID,
		MachineID:     e.MachineID,
		CombinationID: e.CombinationID,
		StartsAt:      e.StartsAt,
		EndsAt:        e.EndsAt,
		SlotIDs:       e.SlotIDs,
		Manual:        e.Manual,
	}
}

func ScheduleEntryFromEngine(a engine.Assignment) ScheduleEntry {
	return ScheduleEntry{
		ID:            a.ID,
		SessionID:     a.SessionID,
		MachineID:     a.MachineID,
		CombinationID: a.CombinationID,
		StartsAt:      a.StartsAt.UTC(),
		EndsAt:        a.EndsAt.UTC(),
		SlotIDs:       a.SlotIDs,
		Manual:        a.Manual,
	}
}
