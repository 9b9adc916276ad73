package events

import (
	"context"
	"time"

	"maintenance-scheduler/internal/logger"
	"maintenance-scheduler/internal/model"
)

// Type names an occurrence lifecycle event.
type Type string

const (
	OccurrenceCreated   Type = "OccurrenceCreated"
	OccurrenceCompleted Type = "OccurrenceCompleted"
	OccurrenceCancelled Type = "OccurrenceCancelled"
	OccurrenceOverdue   Type = "OccurrenceOverdue"
)

// Event is handed to alerting collaborators after the change it describes
// has been committed.
type Event struct {
	Type         Type         `json:"type"`
	OccurrenceID string       `json:"occurrence_id"`
	PlanID       *string      `json:"plan_id,omitempty"`
	EquipmentID  string       `json:"equipment_id"`
	Status       model.Status `json:"status"`
	OccurredAt   time.Time    `json:"occurred_at"`
}

// New builds an event describing occ's current status.
func New(t Type, occ *model.ScheduleOccurrence, at time.Time) Event {
	return Event{
		Type:         t,
		OccurrenceID: occ.ID,
		PlanID:       occ.PlanID,
		EquipmentID:  occ.EquipmentID,
		Status:       occ.Status,
		OccurredAt:   at,
	}
}

// Publisher delivers events to whatever alerting subsystem is configured.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// LogPublisher writes events to the log. It is the fallback when no push
// delivery is configured.
type LogPublisher struct {
	Log logger.Logger
}

func (p LogPublisher) Publish(_ context.Context, ev Event) error {
	p.Log.Info("occurrence event",
		"type", ev.Type,
		"occurrence_id", ev.OccurrenceID,
		"plan_id", ev.PlanID,
		"equipment_id", ev.EquipmentID,
		"status", ev.Status,
	)
	return nil
}
