package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"session-scheduler-backend/internal/db"
	"session-scheduler-backend/internal/engine"
	"session-scheduler-backend/internal/model"
)

// A helper function to create a mock database connection.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: conn,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// newSQLiteDB returns a migrated in-memory database private to the test.
func newSQLiteDB(t *testing.T) *gorm.DB {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gormDB, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gormDB
}

func testCatalog() Catalog {
	return Catalog{
		Sessions: []CatalogSession{
			{ID: "s1", Name: "boot test", Priority: "High", EstimatedTime: "90m", RequiredOS: "linux"},
			{ID: "s2", Name: "flash test", EstimatedTime: "2", RequiredOS: "linux", Platform: "p1", Debugger: "d1"},
			{ID: "bad", Name: "broken", EstimatedTime: "soon", RequiredOS: "linux"},
		},
		Machines: []CatalogMachine{
			{ID: "m2", Name: "second", OSType: "linux"},
			{ID: "m1", Name: "first", OSType: "linux", Capabilities: []string{"p1", "d1"}},
		},
		Combinations: []CatalogCombination{
			{
				ID: "c1", PlatformID: "p1", DebuggerID: "d1", Priority: "high",
				Windows:   []CatalogWindow{{DayOfWeek: 1, StartHour: 9, EndHour: 17, MaxConcurrentUsage: 1}},
				Inventory: &CatalogStock{Total: 2, Available: 2},
			},
			{ID: "c2", PlatformID: "p2", DebuggerID: "d2", Disabled: true},
		},
	}
}

func TestGormStore_ImportCatalog(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newSQLiteDB(t))

	require.NoError(t, s.ImportCatalog(ctx, testCatalog()))

	in, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)

	require.Len(t, in.Sessions, 2, "unparseable sessions are skipped")
	byID := map[string]engine.Session{}
	for _, sess := range in.Sessions {
		byID[sess.ID] = sess
	}
	assert.Equal(t, engine.PriorityHigh, byID["s1"].Priority)
	assert.Equal(t, 1.5, byID["s1"].EstimatedHours)
	assert.Equal(t, engine.StatusPending, byID["s1"].Status)
	assert.Nil(t, byID["s1"].Hardware)
	require.NotNil(t, byID["s2"].Hardware)
	assert.Equal(t, "p1", byID["s2"].Hardware.PlatformID)
	assert.Equal(t, engine.PriorityNormal, byID["s2"].Priority)

	require.Len(t, in.Machines, 2)
	assert.Equal(t, "m2", in.Machines[0].ID, "registration order is kept")
	assert.Equal(t, engine.MachineAvailable, in.Machines[1].Status)
	assert.Equal(t, []string{"p1", "d1"}, in.Machines[1].Capabilities)

	require.Len(t, in.Combinations, 2)
	c1 := in.Combinations[0]
	assert.True(t, c1.Enabled)
	require.Len(t, c1.Windows, 1)
	assert.Equal(t, time.Monday, c1.Windows[0].DayOfWeek)
	assert.False(t, in.Combinations[1].Enabled)

	require.Len(t, in.Inventories, 1)
	assert.Equal(t, 2, in.Inventories[0].Capacity())

	// Importing again keeps scheduling state and does not duplicate windows.
	require.NoError(t, s.DB().Model(&model.Session{}).Where("id = ?", "s1").Update("status", "scheduled").Error)
	require.NoError(t, s.ImportCatalog(ctx, testCatalog()))
	in, err = s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, in.Combinations[0].Windows, 1)
	for _, sess := range in.Sessions {
		if sess.ID == "s1" {
			assert.Equal(t, engine.StatusScheduled, sess.Status)
		}
	}
	assert.Equal(t, "m2", in.Machines[0].ID)
}

func TestGormStore_ImportCatalog_KeepsIntakeOrder(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newSQLiteDB(t))

	require.NoError(t, s.ImportCatalog(ctx, Catalog{
		Sessions: []CatalogSession{
			{ID: "zeta", Name: "first", EstimatedTime: "1", RequiredOS: "linux"},
			{ID: "alpha", Name: "second", EstimatedTime: "1", RequiredOS: "linux"},
		},
		Combinations: []CatalogCombination{{ID: "zz", PlatformID: "p1", DebuggerID: "d1"}},
	}))
	// A later import appends after everything already registered.
	require.NoError(t, s.ImportCatalog(ctx, Catalog{
		Sessions: []CatalogSession{
			{ID: "beta", Name: "third", EstimatedTime: "1", RequiredOS: "linux"},
			{ID: "zeta", Name: "first again", EstimatedTime: "2", RequiredOS: "linux"},
		},
		Combinations: []CatalogCombination{{ID: "aa", PlatformID: "p1", DebuggerID: "d1"}},
	}))

	in, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)

	var ids []string
	for _, sess := range in.Sessions {
		ids = append(ids, sess.ID)
	}
	assert.Equal(t, []string{"zeta", "alpha", "beta"}, ids)
	assert.Equal(t, "first again", in.Sessions[0].Name, "re-import updates in place")

	require.Len(t, in.Combinations, 2)
	assert.Equal(t, "zz", in.Combinations[0].ID)
	assert.Equal(t, "aa", in.Combinations[1].ID)
}

func TestGormStore_ImportCatalog_WindowFlags(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newSQLiteDB(t))
	off := false

	require.NoError(t, s.ImportCatalog(ctx, Catalog{
		Combinations: []CatalogCombination{{
			ID: "c1", PlatformID: "p1", DebuggerID: "d1",
			Windows: []CatalogWindow{
				{DayOfWeek: 1, StartHour: 9, EndHour: 12},
				{DayOfWeek: 2, StartHour: 9, EndHour: 12, Enabled: &off},
			},
		}},
	}))

	in, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, in.Combinations, 1)
	require.Len(t, in.Combinations[0].Windows, 2)
	assert.True(t, in.Combinations[0].Windows[0].Enabled, "an omitted flag means enabled")
	assert.False(t, in.Combinations[0].Windows[1].Enabled)
}

func TestGormStore_ImportCatalog_HardwareNames(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newSQLiteDB(t))

	require.NoError(t, s.ImportCatalog(ctx, Catalog{
		Sessions: []CatalogSession{{ID: "s1", EstimatedTime: "1", RequiredOS: "linux", PlatformName: "Orin AGX", DebuggerName: "J-Link"}},
		Combinations: []CatalogCombination{{
			ID: "c1", PlatformID: "p1", PlatformName: "Orin AGX", DebuggerID: "d1", DebuggerName: "J-Link",
		}},
	}))

	in, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, in.Sessions, 1)
	require.NotNil(t, in.Sessions[0].Hardware)
	assert.Equal(t, "Orin AGX", in.Sessions[0].Hardware.PlatformName)
	assert.Empty(t, in.Sessions[0].Hardware.PlatformID)
	require.Len(t, in.Combinations, 1)
	assert.Equal(t, "J-Link", in.Combinations[0].DebuggerName)
}

func TestGormStore_SaveOutcome(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(newSQLiteDB(t))
	require.NoError(t, s.ImportCatalog(ctx, testCatalog()))

	in, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)

	start := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	asg := engine.Assignment{
		ID: "a1", SessionID: "s2", MachineID: "m1", CombinationID: "c1",
		StartsAt: start, EndsAt: start.Add(2 * time.Hour),
		SlotIDs: []string{"d1-0900", "d1-1000"},
	}
	out := engine.Outcome{
		Sessions:      in.Sessions,
		Machines:      in.Machines,
		Assignments:   []engine.Assignment{asg},
		HardwareUsage: map[string]map[string]int{"c1": {"2026-10-20T09:00": 1, "2026-10-20T10:00": 1}},
	}
	for i := range out.Sessions {
		if out.Sessions[i].ID == "s2" {
			out.Sessions[i].Status = engine.StatusScheduled
			out.Sessions[i].MachineID = "m1"
			out.Sessions[i].SlotIDs = asg.SlotIDs
		}
	}
	out.Machines[1].Status = engine.MachineBusy
	out.Machines[1].CurrentSessionID = "s2"

	require.NoError(t, s.SaveOutcome(ctx, out))

	got, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got.Existing, 1)
	assert.Equal(t, "a1", got.Existing[0].ID)
	assert.True(t, got.Existing[0].StartsAt.Equal(start))
	assert.Equal(t, asg.SlotIDs, got.Existing[0].SlotIDs)
	assert.Equal(t, engine.MachineBusy, got.Machines[1].Status)
	assert.Equal(t, "s2", got.Machines[1].CurrentSessionID)

	var usage []model.HardwareUsage
	require.NoError(t, s.DB().Order("slot_ref").Find(&usage).Error)
	assert.Len(t, usage, 2)

	// A second save replaces the schedule entirely.
	out.Assignments = nil
	out.HardwareUsage = nil
	require.NoError(t, s.SaveOutcome(ctx, out))
	got, err = s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.Existing)
	var remaining int64
	require.NoError(t, s.DB().Model(&model.HardwareUsage{}).Count(&remaining).Error)
	assert.Zero(t, remaining)
}

func TestGormStore_SaveOutcome_RollsBack(t *testing.T) {
	gormDB, mock := newMockDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "schedule_entries"`)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := s.SaveOutcome(context.Background(), engine.Outcome{})
	assert.ErrorContains(t, err, "failed to clear schedule")
	assert.NoError(t, mock.ExpectationsWereMet())
}
