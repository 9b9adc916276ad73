package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maintenance-scheduler/internal/logger"
	"maintenance-scheduler/internal/model"
)

func TestNew_CarriesOccurrenceIdentity(t *testing.T) {
	planID := "plan-1"
	at := time.Date(2025, 1, 31, 8, 0, 0, 0, time.UTC)
	occ := &model.ScheduleOccurrence{ID: "occ-1", PlanID: &planID, EquipmentID: "eq-1", Status: model.StatusOverdue}

	ev := New(OccurrenceOverdue, occ, at)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "OccurrenceOverdue",
		"occurrence_id": "occ-1",
		"plan_id": "plan-1",
		"equipment_id": "eq-1",
		"status": "OVERDUE",
		"occurred_at": "2025-01-31T08:00:00Z"
	}`, string(raw))
}

func TestLogPublisher_NeverFails(t *testing.T) {
	p := LogPublisher{Log: logger.Nop()}
	assert.NoError(t, p.Publish(context.Background(), Event{Type: OccurrenceCreated, OccurrenceID: "occ-1"}))
}
