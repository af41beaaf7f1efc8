package model

import (
	"time"

	"session-scheduler-backend/internal/engine"
)

// HardwareCombination is a reservable platform and debugger pairing.
type HardwareCombination struct {
	ID                  string  `gorm:"primaryKey;size:64"`
	Name                string  `gorm:"size:256"`
	PlatformID          string  `gorm:"size:64;not null"`
	PlatformName        string  `gorm:"size:128"`
	DebuggerID          string  `gorm:"size:64;not null"`
	DebuggerName        string  `gorm:"size:128"`
	Enabled             bool    `gorm:"not null"`
	Priority            string  `gorm:"size:16;not null;default:normal"`
	TotalAvailableHours float64 `gorm:"not null;default:0"`
	HourlyAvailability  []bool  `gorm:"serializer:json"`
	Seq                 int     `gorm:"index;not null"`
	CreatedAt           time.Time
	UpdatedAt           time.Time

	// Associations
	Windows []HardwareAvailability `gorm:"foreignKey:CombinationID;constraint:OnDelete:CASCADE"`
}

// HardwareAvailability is one weekly window of a combination.
type HardwareAvailability struct {
	ID                 int64  `gorm:"primaryKey"`
	CombinationID      string `gorm:"size:64;index;not null"`
	DayOfWeek          int    `gorm:"not null"`
	StartHour          int    `gorm:"not null"`
	EndHour            int    `gorm:"not null"`
	Enabled            bool   `gorm:"not null"`
	MaxConcurrentUsage int    `gorm:"not null;default:0"`
}

// HardwareInventory holds the unit counts of a combination.
type HardwareInventory struct {
	CombinationID string `gorm:"primaryKey;size:64"`
	Total         int    `gorm:"not null"`
	Available     int    `gorm:"not null"`
	Allocated     int    `gorm:"not null;default:0"`
	Reserved      int    `gorm:"not null;default:0"`
	UpdatedAt     time.Time
}

func (c HardwareCombination) ToEngine() engine.HardwareCombination {
	out := engine.HardwareCombination{
		ID:                  c.ID,
		Name:                c.Name,
		PlatformID:          c.PlatformID,
		PlatformName:        c.PlatformName,
		DebuggerID:          c.DebuggerID,
		DebuggerName:        c.DebuggerName,
		Enabled:             c.Enabled,
		Priority:            c.Priority,
		TotalAvailableHours: c.TotalAvailableHours,
		HourlyAvailability:  c.HourlyAvailability,
	}
	for _, w := range c.Windows {
		out.Windows = append(out.Windows, engine.AvailabilityWindow{
			DayOfWeek:          time.Weekday(w.DayOfWeek),
			StartHour:          w.StartHour,
			EndHour:            w.EndHour,
			Enabled:            w.Enabled,
			MaxConcurrentUsage: w.MaxConcurrentUsage,
		})
	}
	return out
}

func (i HardwareInventory) ToEngine() engine.Inventory {
	return engine.Inventory{
		CombinationID: i.CombinationID,
		Total:         i.Total,
		Available:     i.Available,
		Allocated:     i.Allocated,
		Reserved:      i.Reserved,
	}
}
