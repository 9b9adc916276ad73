package model

import "time"

// ScheduleOccurrence is one dated maintenance visit. Occurrences of the same
// plan form a singly-linked chain through ParentOccurrenceID.
type ScheduleOccurrence struct {
	ID                 string    `gorm:"primaryKey;size:64"`
	PlanID             *string   `gorm:"index;size:64"`
	ParentOccurrenceID *string   `gorm:"index;size:64"`
	EquipmentID        string    `gorm:"index;size:64;not null"`
	AssignedUserID     *string   `gorm:"size:64"`
	CompanyID          *string   `gorm:"size:64"`
	ScheduledDate      time.Time `gorm:"index;not null"`
	Status             Status    `gorm:"index;size:16;not null"`
	Priority           Priority  `gorm:"size:16;not null"`
	EstimatedCost      float64
	ActualCost         *float64
	Observations       string  `gorm:"type:text"`
	CancelReason       string  `gorm:"type:text"`
	SequenceCode       *string `gorm:"uniqueIndex;size:32"`
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
