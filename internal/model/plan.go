package model

import "time"

// DurationType selects how a plan's recurrence chain terminates.
type DurationType string

const (
	DurationIndefinite  DurationType = "indefinite"
	DurationMonths      DurationType = "months"
	DurationWeeks       DurationType = "weeks"
	DurationOccurrences DurationType = "occurrences"
	DurationEndDate     DurationType = "end_date"
)

// Bounded reports whether the policy relies on DurationValue.
func (d DurationType) Bounded() bool {
	return d == DurationMonths || d == DurationWeeks || d == DurationOccurrences
}

// MaintenancePlan is owned by the plan administration surface; the engine only reads it.
type MaintenancePlan struct {
	ID                string       `gorm:"primaryKey;size:64"`
	EquipmentID       string       `gorm:"index;size:64;not null"`
	CompanyID         *string      `gorm:"size:64"`
	AssignedUserID    *string      `gorm:"size:64"`
	FrequencyDays     int          `gorm:"not null"`
	StartDate         time.Time    `gorm:"not null"`
	DurationType      DurationType `gorm:"size:32;not null"`
	DurationValue     int          `gorm:"not null;default:0"`
	RecurrenceEndDate *time.Time
	DefaultPriority   Priority `gorm:"size:16"`
	EstimatedCost     float64
	Active            bool `gorm:"not null;default:true"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
