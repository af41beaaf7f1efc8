package store

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"session-scheduler-backend/internal/engine"
	"session-scheduler-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	LoadSnapshot(ctx context.Context) (engine.Input, error)
	SaveOutcome(ctx context.Context, out engine.Outcome) error
	ImportCatalog(ctx context.Context, c Catalog) error
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// LoadSnapshot reads every collection a pass works on. Sessions, machines
// and combinations come back in registration order.
func (s *gormStore) LoadSnapshot(ctx context.Context) (engine.Input, error) {
	db := s.db.WithContext(ctx)
	var in engine.Input

	var sessions []model.Session
	if err := db.Order("seq, created_at, id").Find(&sessions).Error; err != nil {
		return in, fmt.Errorf("failed to load sessions: %w", err)
	}
	var machines []model.Machine
	if err := db.Order("seq, id").Find(&machines).Error; err != nil {
		return in, fmt.Errorf("failed to load machines: %w", err)
	}
	var combos []model.HardwareCombination
	if err := db.Preload("Windows", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("day_of_week, start_hour, id")
	}).Order("seq, id").Find(&combos).Error; err != nil {
		return in, fmt.Errorf("failed to load hardware combinations: %w", err)
	}
	var inventories []model.HardwareInventory
	if err := db.Order("combination_id").Find(&inventories).Error; err != nil {
		return in, fmt.Errorf("failed to load hardware inventory: %w", err)
	}
	var entries []model.ScheduleEntry
	if err := db.Order("starts_at, id").Find(&entries).Error; err != nil {
		return in, fmt.Errorf("failed to load schedule: %w", err)
	}

	for _, r := range sessions {
		in.Sessions = append(in.Sessions, r.ToEngine())
	}
	for _, r := range machines {
		in.Machines = append(in.Machines, r.ToEngine())
	}
	for _, r := range combos {
		in.Combinations = append(in.Combinations, r.ToEngine())
	}
	for _, r := range inventories {
		in.Inventories = append(in.Inventories, r.ToEngine())
	}
	for _, r := range entries {
		in.Existing = append(in.Existing, r.ToEngine())
	}
	return in, nil
}

// SaveOutcome writes back the full updated state in one transaction.
// Session and machine rows are updated in place; the schedule and the
// hardware usage tables are replaced.
func (s *gormStore) SaveOutcome(ctx context.Context, out engine.Outcome) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := saveSessions(tx, out.Sessions); err != nil {
			return err
		}
		if err := saveMachineStates(tx, out.Machines); err != nil {
			return err
		}
		if err := replaceSchedule(tx, out.Assignments); err != nil {
			return err
		}
		return replaceHardwareUsage(tx, out.HardwareUsage)
	})
}

func saveSessions(tx *gorm.DB, sessions []engine.Session) error {
	if len(sessions) == 0 {
		return nil
	}
	rows := make([]model.Session, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, model.SessionFromEngine(s))
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "machine_id", "combination_id", "slot_ids", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to save sessions: %w", err)
	}
	return nil
}

func saveMachineStates(tx *gorm.DB, machines []engine.Machine) error {
	if len(machines) == 0 {
		return nil
	}
	rows := make([]model.Machine, 0, len(machines))
	for i, m := range machines {
		rows = append(rows, model.MachineFromEngine(m, i))
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "current_session_id", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to save machine states: %w", err)
	}
	return nil
}

func replaceSchedule(tx *gorm.DB, assignments []engine.Assignment) error {
	if err := tx.Where("1 = 1").Delete(&model.ScheduleEntry{}).Error; err != nil {
		return fmt.Errorf("failed to clear schedule: %w", err)
	}
	if len(assignments) == 0 {
		return nil
	}
	rows := make([]model.ScheduleEntry, 0, len(assignments))
	for _, a := range assignments {
		rows = append(rows, model.ScheduleEntryFromEngine(a))
	}
	if err := tx.CreateInBatches(&rows, 100).Error; err != nil {
		return fmt.Errorf("failed to write schedule: %w", err)
	}
	return nil
}

func replaceHardwareUsage(tx *gorm.DB, usage map[string]map[string]int) error {
	if err := tx.Where("1 = 1").Delete(&model.HardwareUsage{}).Error; err != nil {
		return fmt.Errorf("failed to clear hardware usage: %w", err)
	}
	var rows []model.HardwareUsage
	for combo, slots := range usage {
		for ref, n := range slots {
			if n > 0 {
				rows = append(rows, model.HardwareUsage{CombinationID: combo, SlotRef: ref, Count: n})
			}
		}
	}
	if len(rows) == 0 {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CombinationID != rows[j].CombinationID {
			return rows[i].CombinationID < rows[j].CombinationID
		}
		return rows[i].SlotRef < rows[j].SlotRef
	})
	if err := tx.CreateInBatches(&rows, 200).Error; err != nil {
		return fmt.Errorf("failed to write hardware usage: %w", err)
	}
	return nil
}
