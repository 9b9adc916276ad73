package internal

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maintenance-scheduler/config"
	"maintenance-scheduler/internal/directory"
	"maintenance-scheduler/internal/events"
	"maintenance-scheduler/internal/logger"
	"maintenance-scheduler/internal/metrics"
	"maintenance-scheduler/internal/model"
	"maintenance-scheduler/internal/schedule"
	"maintenance-scheduler/internal/scheduling"
	"maintenance-scheduler/internal/sequence"
	"maintenance-scheduler/internal/store"
	"maintenance-scheduler/internal/sweeper"
	"maintenance-scheduler/internal/testfixtures"
)

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Publish(_ context.Context, ev events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) summary() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, ev := range l.events {
		out[i] = fmt.Sprintf("%s:%s", ev.Type, ev.Status)
	}
	return out
}

// TestMaintenanceLifecycle drives a plan through creation, overdue detection,
// recovery, completion and cancellation, checking the stored chain and the
// emitted events at each step.
func TestMaintenanceLifecycle(t *testing.T) {
	ctx := context.Background()
	gormDB := testfixtures.NewSQLiteDB(t)
	st := store.NewGormStore(gormDB)
	m := metrics.NewNoop()
	log := &eventLog{}

	orch := scheduling.New(st, sequence.NewAllocator(gormDB, m), directory.New(st, time.Minute), log, logger.Nop(), m)
	sweep, err := sweeper.NewService(config.SweeperConfig{Enabled: true, BatchSize: 50, Timezone: "UTC"}, st, log, logger.Nop(), m)
	require.NoError(t, err)

	today := schedule.Day(time.Now().UTC())
	start := today.AddDate(0, 0, -60)
	testfixtures.SeedPlan(t, gormDB, model.MaintenancePlan{
		ID:              "plan-hvac",
		EquipmentID:     "hvac-1",
		FrequencyDays:   30,
		StartDate:       start,
		DurationType:    model.DurationOccurrences,
		DurationValue:   3,
		DefaultPriority: model.PriorityHigh,
		EstimatedCost:   250,
		Active:          true,
	})

	// 1. First occurrence lands 60 days in the past.
	a, err := orch.CreateOccurrence(ctx, "plan-hvac")
	require.NoError(t, err)
	assert.True(t, a.ScheduledDate.Equal(start))
	assert.Equal(t, model.PriorityHigh, a.Priority)

	// 2. The sweeper flags it, once.
	res := sweep.SweepOnce(ctx)
	assert.Equal(t, 1, res.Transitioned)
	res = sweep.SweepOnce(ctx)
	assert.Zero(t, res.Transitioned)

	// 3. Recovery: OVERDUE -> IN_PROGRESS -> COMPLETED, chain continues.
	started, err := orch.StartOccurrence(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, started.Status)

	cost := 310.0
	done, err := orch.CompleteOccurrence(ctx, a.ID, &cost, "compressor serviced")
	require.NoError(t, err)
	require.NotNil(t, done.Next)
	b := done.Next
	assert.True(t, b.ScheduledDate.Equal(today.AddDate(0, 0, -30)))

	code, err := orch.AllocateWorkOrderCode(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("OS-001-%d", start.Year()), code)

	// 4. B is overdue too; completing it straight from OVERDUE yields C, due today.
	res = sweep.SweepOnce(ctx)
	assert.Equal(t, 1, res.Transitioned)
	done, err = orch.CompleteOccurrence(ctx, b.ID, nil, "")
	require.NoError(t, err)
	require.NotNil(t, done.Next)
	c := done.Next
	assert.True(t, c.ScheduledDate.Equal(today))

	res = sweep.SweepOnce(ctx)
	assert.Zero(t, res.Transitioned, "an occurrence due today is not overdue")

	// 5. Cancelling the last link ends the chain; the policy is used up.
	_, err = orch.CancelOccurrence(ctx, c.ID, "unit replaced")
	require.NoError(t, err)
	_, err = orch.CreateOccurrence(ctx, "plan-hvac")
	assert.ErrorIs(t, err, schedule.ErrChainExhausted)

	chain, err := orch.ListOccurrences(ctx, scheduling.ListFilter{PlanID: "plan-hvac"})
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Nil(t, chain[0].ParentOccurrenceID)
	assert.Equal(t, chain[0].ID, *chain[1].ParentOccurrenceID)
	assert.Equal(t, chain[1].ID, *chain[2].ParentOccurrenceID)
	assert.Equal(t, []model.Status{model.StatusCompleted, model.StatusCompleted, model.StatusCancelled},
		[]model.Status{chain[0].Status, chain[1].Status, chain[2].Status})

	assert.Equal(t, []string{
		"OccurrenceCreated:SCHEDULED",
		"OccurrenceOverdue:OVERDUE",
		"OccurrenceCompleted:COMPLETED",
		"OccurrenceCreated:SCHEDULED",
		"OccurrenceOverdue:OVERDUE",
		"OccurrenceCompleted:COMPLETED",
		"OccurrenceCreated:SCHEDULED",
		"OccurrenceCancelled:CANCELLED",
	}, log.summary())
}
