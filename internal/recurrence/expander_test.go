package recurrence

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maintenance-scheduler/internal/model"
	"maintenance-scheduler/internal/schedule"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestExpander() *Expander {
	n := 0
	return &Expander{
		newID: func() string {
			n++
			return fmt.Sprintf("occ-%d", n)
		},
		now: func() time.Time { return date(2025, 1, 1) },
	}
}

func basePlan(durationType model.DurationType, value int) *model.MaintenancePlan {
	return &model.MaintenancePlan{
		ID:            "plan-1",
		EquipmentID:   "eq-1",
		FrequencyDays: 30,
		StartDate:     date(2025, 1, 1),
		DurationType:  durationType,
		DurationValue: value,
		Active:        true,
	}
}

// runChain expands until the policy reports done, treating every created
// occurrence as the new tail.
func runChain(t *testing.T, e *Expander, plan *model.MaintenancePlan, max int) []*model.ScheduleOccurrence {
	t.Helper()
	var chain []*model.ScheduleOccurrence
	var last *model.ScheduleOccurrence
	for i := 0; i < max; i++ {
		occ, done, err := e.ExpandNext(plan, last, len(chain))
		require.NoError(t, err)
		if done {
			require.Nil(t, occ)
			return chain
		}
		chain = append(chain, occ)
		last = occ
	}
	return chain
}

func TestExpandNext_FirstOccurrence(t *testing.T) {
	e := newTestExpander()
	assigned := "user-7"
	plan := basePlan(model.DurationIndefinite, 0)
	plan.AssignedUserID = &assigned
	plan.DefaultPriority = model.PriorityHigh
	plan.EstimatedCost = 300

	occ, done, err := e.ExpandNext(plan, nil, 0)
	require.NoError(t, err)
	require.False(t, done)

	assert.Equal(t, "occ-1", occ.ID)
	assert.Equal(t, date(2025, 1, 1), occ.ScheduledDate)
	assert.Equal(t, model.StatusScheduled, occ.Status)
	assert.Nil(t, occ.ParentOccurrenceID)
	require.NotNil(t, occ.PlanID)
	assert.Equal(t, "plan-1", *occ.PlanID)
	assert.Equal(t, "eq-1", occ.EquipmentID)
	assert.Equal(t, model.PriorityHigh, occ.Priority)
	assert.Equal(t, 300.0, occ.EstimatedCost)
	require.NotNil(t, occ.AssignedUserID)
	assert.Equal(t, "user-7", *occ.AssignedUserID)
	assert.NotSame(t, plan.AssignedUserID, occ.AssignedUserID)
	assert.Nil(t, occ.SequenceCode)
}

func TestExpandNext_ChainsFromLast(t *testing.T) {
	e := newTestExpander()
	plan := basePlan(model.DurationIndefinite, 0)

	first, _, err := e.ExpandNext(plan, nil, 0)
	require.NoError(t, err)
	second, done, err := e.ExpandNext(plan, first, 1)
	require.NoError(t, err)
	require.False(t, done)

	assert.Equal(t, date(2025, 1, 31), second.ScheduledDate)
	require.NotNil(t, second.ParentOccurrenceID)
	assert.Equal(t, first.ID, *second.ParentOccurrenceID)
	assert.Equal(t, model.PriorityMedium, second.Priority, "priority defaults to MEDIUM")
}

func TestExpandNext_OccurrencesPolicy(t *testing.T) {
	e := newTestExpander()
	plan := basePlan(model.DurationOccurrences, 3)

	chain := runChain(t, e, plan, 10)
	require.Len(t, chain, 3)
	assert.Equal(t, date(2025, 3, 2), chain[2].ScheduledDate)

	occ, done, err := e.ExpandNext(plan, chain[2], 3)
	assert.NoError(t, err)
	assert.True(t, done, "the 4th expansion must report done")
	assert.Nil(t, occ)
}

func TestExpandNext_EndDatePolicy(t *testing.T) {
	e := newTestExpander()
	plan := basePlan(model.DurationEndDate, 0)
	end := date(2025, 4, 1)
	plan.RecurrenceEndDate = &end

	chain := runChain(t, e, plan, 50)
	require.NotEmpty(t, chain)
	for _, occ := range chain {
		assert.False(t, occ.ScheduledDate.After(end), "%s is after the end date", occ.ScheduledDate)
	}
	// 01-01, 01-31, 03-02, 04-01 (inclusive), next would be 05-01
	assert.Len(t, chain, 4)
	assert.Equal(t, end, chain[len(chain)-1].ScheduledDate)
}

func TestExpandNext_MonthsAndWeeksPolicies(t *testing.T) {
	t.Run("months", func(t *testing.T) {
		plan := basePlan(model.DurationMonths, 3) // window ends 2025-04-01
		chain := runChain(t, newTestExpander(), plan, 50)
		require.Len(t, chain, 4)
		assert.Equal(t, date(2025, 4, 1), chain[3].ScheduledDate)
	})

	t.Run("weeks", func(t *testing.T) {
		plan := basePlan(model.DurationWeeks, 6) // window ends 2025-02-12
		plan.FrequencyDays = 7
		chain := runChain(t, newTestExpander(), plan, 50)
		require.Len(t, chain, 7)
		assert.Equal(t, date(2025, 2, 12), chain[6].ScheduledDate)
	})

	t.Run("months from a month end", func(t *testing.T) {
		plan := basePlan(model.DurationMonths, 1) // window ends 2025-02-28
		plan.StartDate = date(2025, 1, 31)

		plan.FrequencyDays = 28
		chain := runChain(t, newTestExpander(), plan, 50)
		require.Len(t, chain, 2)
		assert.Equal(t, date(2025, 2, 28), chain[1].ScheduledDate)

		plan.FrequencyDays = 31
		chain = runChain(t, newTestExpander(), plan, 50)
		require.Len(t, chain, 1, "2025-03-03 falls after the clamped window")
	})
}

func TestAddMonths_ClampsToMonthEnd(t *testing.T) {
	tests := []struct {
		in   time.Time
		n    int
		want time.Time
	}{
		{date(2025, 1, 15), 1, date(2025, 2, 15)},
		{date(2025, 1, 31), 1, date(2025, 2, 28)},
		{date(2024, 1, 31), 1, date(2024, 2, 29)},
		{date(2025, 3, 31), 1, date(2025, 4, 30)},
		{date(2024, 12, 31), 2, date(2025, 2, 28)},
		{date(2025, 1, 31), 12, date(2026, 1, 31)},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, addMonths(tc.in, tc.n), "%s + %d months", tc.in.Format(time.DateOnly), tc.n)
	}
}

func TestExpandNext_IndefiniteNeverStops(t *testing.T) {
	chain := runChain(t, newTestExpander(), basePlan(model.DurationIndefinite, 0), 120)
	assert.Len(t, chain, 120)
}

func TestExpandNext_NonPositiveBoundedValueIsExhausted(t *testing.T) {
	for _, dt := range []model.DurationType{model.DurationMonths, model.DurationWeeks, model.DurationOccurrences} {
		occ, done, err := newTestExpander().ExpandNext(basePlan(dt, 0), nil, 0)
		assert.NoError(t, err, dt)
		assert.True(t, done, dt)
		assert.Nil(t, occ, dt)
	}
}

func TestExpandNext_RejectsForeignParent(t *testing.T) {
	other := "plan-2"
	last := &model.ScheduleOccurrence{ID: "x", PlanID: &other, ScheduledDate: date(2025, 1, 1)}
	_, _, err := newTestExpander().ExpandNext(basePlan(model.DurationIndefinite, 0), last, 1)
	assert.ErrorIs(t, err, schedule.ErrInvalidPlanConfig)
}

func TestValidatePlan(t *testing.T) {
	end := date(2025, 6, 1)
	testCases := []struct {
		name    string
		mutate  func(p *model.MaintenancePlan)
		wantErr bool
	}{
		{name: "valid indefinite", mutate: func(p *model.MaintenancePlan) {}},
		{name: "zero frequency", mutate: func(p *model.MaintenancePlan) { p.FrequencyDays = 0 }, wantErr: true},
		{name: "negative frequency", mutate: func(p *model.MaintenancePlan) { p.FrequencyDays = -5 }, wantErr: true},
		{name: "missing start date", mutate: func(p *model.MaintenancePlan) { p.StartDate = time.Time{} }, wantErr: true},
		{name: "unknown duration type", mutate: func(p *model.MaintenancePlan) { p.DurationType = "forever" }, wantErr: true},
		{name: "occurrences without value", mutate: func(p *model.MaintenancePlan) {
			p.DurationType = model.DurationOccurrences
		}, wantErr: true},
		{name: "months with value", mutate: func(p *model.MaintenancePlan) {
			p.DurationType = model.DurationMonths
			p.DurationValue = 2
		}},
		{name: "end date missing", mutate: func(p *model.MaintenancePlan) { p.DurationType = model.DurationEndDate }, wantErr: true},
		{name: "end date present", mutate: func(p *model.MaintenancePlan) {
			p.DurationType = model.DurationEndDate
			p.RecurrenceEndDate = &end
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			plan := basePlan(model.DurationIndefinite, 0)
			tc.mutate(plan)
			err := ValidatePlan(plan)
			if tc.wantErr {
				assert.ErrorIs(t, err, schedule.ErrInvalidPlanConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	plan := basePlan(model.DurationOccurrences, 4)
	last := &model.ScheduleOccurrence{ScheduledDate: date(2025, 1, 31)}

	dates, err := Preview(plan, last, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2025, 3, 2), date(2025, 4, 1)}, dates)

	dates, err = Preview(basePlan(model.DurationIndefinite, 0), nil, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2025, 1, 1), date(2025, 1, 31), date(2025, 3, 2)}, dates)
}
