package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"session-scheduler-backend/internal/engine"
	"session-scheduler-backend/internal/model"
	"session-scheduler-backend/internal/parse"
)

// Catalog is an intake file describing sessions and resources. Durations
// and priorities are free-form operator input.
type Catalog struct {
	Sessions     []CatalogSession     `yaml:"sessions" json:"sessions"`
	Machines     []CatalogMachine     `yaml:"machines" json:"machines"`
	Combinations []CatalogCombination `yaml:"hardware" json:"hardware"`
}

type CatalogSession struct {
	ID            string `yaml:"id" json:"id"`
	Name          string `yaml:"name" json:"name"`
	Priority      string `yaml:"priority" json:"priority"`
	EstimatedTime string `yaml:"estimated_time" json:"estimatedTime"`
	RequiredOS    string `yaml:"required_os" json:"requiredOS"`
	Platform      string `yaml:"platform" json:"platform"`
	PlatformName  string `yaml:"platform_name" json:"platformName"`
	Debugger      string `yaml:"debugger" json:"debugger"`
	DebuggerName  string `yaml:"debugger_name" json:"debuggerName"`
	Mode          string `yaml:"mode" json:"mode"`
}

type CatalogMachine struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	OSType       string   `yaml:"os_type" json:"osType"`
	Status       string   `yaml:"status" json:"status"`
	Capabilities []string `yaml:"capabilities" json:"capabilities"`
}

type CatalogWindow struct {
	DayOfWeek          int   `yaml:"day_of_week" json:"dayOfWeek"`
	StartHour          int   `yaml:"start_hour" json:"startHour"`
	EndHour            int   `yaml:"end_hour" json:"endHour"`
	Enabled            *bool `yaml:"enabled" json:"enabled"`
	MaxConcurrentUsage int   `yaml:"max_concurrent_usage" json:"maxConcurrentUsage"`
}

// enabled treats an omitted flag as on; listing a window disabled takes an
// explicit enabled: false.
func (w CatalogWindow) enabled() bool {
	return w.Enabled == nil || *w.Enabled
}

type CatalogCombination struct {
	ID                  string          `yaml:"id" json:"id"`
	Name                string          `yaml:"name" json:"name"`
	PlatformID          string          `yaml:"platform_id" json:"platformId"`
	PlatformName        string          `yaml:"platform_name" json:"platformName"`
	DebuggerID          string          `yaml:"debugger_id" json:"debuggerId"`
	DebuggerName        string          `yaml:"debugger_name" json:"debuggerName"`
	Disabled            bool            `yaml:"disabled" json:"disabled"`
	Priority            string          `yaml:"priority" json:"priority"`
	TotalAvailableHours float64         `yaml:"total_available_hours" json:"totalAvailableHours"`
	HourlyAvailability  []bool          `yaml:"hourly_availability" json:"hourlyAvailability"`
	Windows             []CatalogWindow `yaml:"windows" json:"windows"`
	Inventory           *CatalogStock   `yaml:"inventory" json:"inventory"`
}

type CatalogStock struct {
	Total     int `yaml:"total" json:"total"`
	Available int `yaml:"available" json:"available"`
	Allocated int `yaml:"allocated" json:"allocated"`
	Reserved  int `yaml:"reserved" json:"reserved"`
}

// ImportCatalog upserts the catalog. New sessions start pending; the
// scheduling state of existing sessions and machines is kept. Entries that
// fail to parse are skipped with a warning.
func (s *gormStore) ImportCatalog(ctx context.Context, c Catalog) error {
	db := s.db.WithContext(ctx)
	sessionSeq, err := nextSeq(db, &model.Session{})
	if err != nil {
		return fmt.Errorf("failed to read session order: %w", err)
	}
	var sessions []model.Session
	for _, cs := range c.Sessions {
		row, err := sessionRow(cs)
		if err != nil {
			log.Warn().Err(err).Str("session", cs.ID).Msg("skipping catalog session")
			continue
		}
		row.Seq = sessionSeq + len(sessions)
		sessions = append(sessions, row)
	}

	seq, err := nextSeq(db, &model.Machine{})
	if err != nil {
		return fmt.Errorf("failed to read machine order: %w", err)
	}
	comboSeq, err := nextSeq(db, &model.HardwareCombination{})
	if err != nil {
		return fmt.Errorf("failed to read hardware order: %w", err)
	}
	var machines []model.Machine
	for _, cm := range c.Machines {
		if cm.ID == "" || cm.OSType == "" {
			log.Warn().Str("machine", cm.ID).Msg("skipping catalog machine without id or os")
			continue
		}
		status := cm.Status
		if status == "" {
			status = string(engine.MachineAvailable)
		}
		machines = append(machines, model.Machine{
			ID:           cm.ID,
			Name:         cm.Name,
			OSType:       cm.OSType,
			Status:       status,
			Capabilities: cm.Capabilities,
			Seq:          seq + len(machines),
		})
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if len(sessions) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "priority", "estimated_hours", "required_os", "hardware", "updated_at"}),
			}).Create(&sessions).Error; err != nil {
				return fmt.Errorf("batch upsert sessions failed: %w", err)
			}
		}
		if len(machines) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "os_type", "capabilities", "updated_at"}),
			}).Create(&machines).Error; err != nil {
				return fmt.Errorf("batch upsert machines failed: %w", err)
			}
		}
		for i, cc := range c.Combinations {
			if err := upsertCombination(tx, cc, comboSeq+i); err != nil {
				return err
			}
		}
		return nil
	})
}

// nextSeq is the first registration index not yet used in table. Existing
// rows keep theirs on upsert, so re-imports append.
func nextSeq(db *gorm.DB, table any) (int, error) {
	var seq int
	err := db.Model(table).Select("COALESCE(MAX(seq) + 1, 0)").Scan(&seq).Error
	return seq, err
}

func sessionRow(cs CatalogSession) (model.Session, error) {
	if cs.ID == "" || cs.RequiredOS == "" {
		return model.Session{}, fmt.Errorf("session needs an id and a required os")
	}
	priority, err := parse.ParsePriority(cs.Priority)
	if err != nil {
		return model.Session{}, err
	}
	hours, err := parse.ParseHours(cs.EstimatedTime)
	if err != nil {
		return model.Session{}, err
	}
	row := model.Session{
		ID:             cs.ID,
		Name:           cs.Name,
		Priority:       string(priority),
		EstimatedHours: hours,
		RequiredOS:     cs.RequiredOS,
		Status:         string(engine.StatusPending),
	}
	if cs.Platform != "" || cs.Debugger != "" || cs.PlatformName != "" || cs.DebuggerName != "" {
		row.Hardware = &engine.HardwareRequirement{
			PlatformID:   cs.Platform,
			PlatformName: cs.PlatformName,
			DebuggerID:   cs.Debugger,
			DebuggerName: cs.DebuggerName,
			Mode:         cs.Mode,
		}
	}
	return row, nil
}

func upsertCombination(tx *gorm.DB, cc CatalogCombination, seq int) error {
	combo := model.HardwareCombination{
		ID:                  cc.ID,
		Name:                cc.Name,
		PlatformID:          cc.PlatformID,
		PlatformName:        cc.PlatformName,
		DebuggerID:          cc.DebuggerID,
		DebuggerName:        cc.DebuggerName,
		Enabled:             !cc.Disabled,
		Priority:            cc.Priority,
		TotalAvailableHours: cc.TotalAvailableHours,
		HourlyAvailability:  cc.HourlyAvailability,
		Seq:                 seq,
	}
	if combo.Priority == "" {
		combo.Priority = "normal"
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "platform_id", "platform_name", "debugger_id", "debugger_name", "enabled", "priority",
			"total_available_hours", "hourly_availability", "updated_at"}),
	}).Omit("Windows").Create(&combo).Error; err != nil {
		return fmt.Errorf("failed to upsert combination %s: %w", cc.ID, err)
	}

	if err := tx.Where("combination_id = ?", cc.ID).Delete(&model.HardwareAvailability{}).Error; err != nil {
		return fmt.Errorf("failed to replace windows of %s: %w", cc.ID, err)
	}
	if len(cc.Windows) > 0 {
		windows := make([]model.HardwareAvailability, 0, len(cc.Windows))
		for _, w := range cc.Windows {
			windows = append(windows, model.HardwareAvailability{
				CombinationID:      cc.ID,
				DayOfWeek:          w.DayOfWeek,
				StartHour:          w.StartHour,
				EndHour:            w.EndHour,
				Enabled:            w.enabled(),
				MaxConcurrentUsage: w.MaxConcurrentUsage,
			})
		}
		if err := tx.Create(&windows).Error; err != nil {
			return fmt.Errorf("failed to write windows of %s: %w", cc.ID, err)
		}
	}

	if cc.Inventory != nil {
		inv := model.HardwareInventory{
			CombinationID: cc.ID,
			Total:         cc.Inventory.Total,
			Available:     cc.Inventory.Available,
			Allocated:     cc.Inventory.Allocated,
			Reserved:      cc.Inventory.Reserved,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "combination_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"total", "available", "allocated", "reserved", "updated_at"}),
		}).Create(&inv).Error; err != nil {
			return fmt.Errorf("failed to upsert inventory of %s: %w", cc.ID, err)
		}
	}
	return nil
}
