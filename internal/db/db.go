package db

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"maintenance-scheduler/config"
	"maintenance-scheduler/internal/logger"
	"maintenance-scheduler/internal/model"
)

// Models lists every table the engine migrates.
var Models = []interface{}{
	&model.Company{},
	&model.Equipment{},
	&model.MaintenancePlan{},
	&model.ScheduleOccurrence{},
	&model.SequenceCounter{},
	&model.PushSubscription{},
}

// Init opens the database named by cfg.DSN and runs migrations. postgres://
// DSNs use the postgres driver; anything else is treated as a SQLite file.
func Init(cfg *config.DatabaseConfig, log logger.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(parseLogLevel(cfg.LogLevel)),
	}

	var dialector gorm.Dialector
	if isPostgres(cfg.DSN) {
		log.Info("connecting to PostgreSQL")
		dialector = postgres.Open(cfg.DSN)
	} else {
		log.Info("using SQLite database", "dsn", cfg.DSN)
		dialector = sqlite.Open(cfg.DSN)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Info("running database migrations")
	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info("database initialization complete")
	return db, nil
}

// Migrate creates or updates the engine tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func parseLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
