// Package testfixtures provides database fixtures shared by package tests.
package testfixtures

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"maintenance-scheduler/internal/db"
	"maintenance-scheduler/internal/model"
)

// NewSQLiteDB opens a migrated in-memory database private to t. A single
// connection is used so concurrent callers queue on it the way they would on
// row locks in postgres.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	return openSQLite(t, "")
}

// NewSQLiteDBInLocation is NewSQLiteDB with timestamps scanned back in the
// named zone, the way pgx returns timestamptz values in time.Local.
func NewSQLiteDBInLocation(t *testing.T, loc string) *gorm.DB {
	t.Helper()
	return openSQLite(t, "&_loc="+loc)
}

func openSQLite(t *testing.T, params string) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared%s", name, time.Now().UnixNano(), params)
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.Migrate(gormDB); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	return gormDB
}

// Date returns midnight UTC of the given day.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SeedEquipment inserts an equipment record.
func SeedEquipment(t *testing.T, gormDB *gorm.DB, id string) model.Equipment {
	t.Helper()
	eq := model.Equipment{ID: id, Name: "Equipment " + id}
	if err := gormDB.Create(&eq).Error; err != nil {
		t.Fatalf("failed to seed equipment %s: %v", id, err)
	}
	return eq
}

// SeedPlan inserts a plan, creating its equipment when missing.
func SeedPlan(t *testing.T, gormDB *gorm.DB, plan model.MaintenancePlan) model.MaintenancePlan {
	t.Helper()
	var count int64
	gormDB.Model(&model.Equipment{}).Where("id = ?", plan.EquipmentID).Count(&count)
	if count == 0 {
		SeedEquipment(t, gormDB, plan.EquipmentID)
	}
	if err := gormDB.Create(&plan).Error; err != nil {
		t.Fatalf("failed to seed plan %s: %v", plan.ID, err)
	}
	return plan
}
