package recurrence

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"maintenance-scheduler/internal/model"
	"maintenance-scheduler/internal/schedule"
)

// MaxPreviewIterations caps how far Preview walks a chain.
const MaxPreviewIterations = 1000

// Expander computes the next link of a plan's occurrence chain.
type Expander struct {
	newID func() string
	now   func() time.Time
}

// NewExpander returns an Expander that stamps new occurrences with random UUIDs.
func NewExpander() *Expander {
	return &Expander{
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// ValidatePlan rejects plans the expander cannot work with.
func ValidatePlan(plan *model.MaintenancePlan) error {
	if plan == nil {
		return fmt.Errorf("%w: plan is nil", schedule.ErrInvalidPlanConfig)
	}
	if plan.FrequencyDays <= 0 {
		return fmt.Errorf("%w: frequency must be positive, got %d days", schedule.ErrInvalidPlanConfig, plan.FrequencyDays)
	}
	if plan.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", schedule.ErrInvalidPlanConfig)
	}
	switch plan.DurationType {
	case model.DurationIndefinite:
	case model.DurationMonths, model.DurationWeeks, model.DurationOccurrences:
		if plan.DurationValue <= 0 {
			return fmt.Errorf("%w: %s policy needs a positive duration value, got %d",
				schedule.ErrInvalidPlanConfig, plan.DurationType, plan.DurationValue)
		}
	case model.DurationEndDate:
		if plan.RecurrenceEndDate == nil {
			return fmt.Errorf("%w: end_date policy needs a recurrence end date", schedule.ErrInvalidPlanConfig)
		}
	default:
		return fmt.Errorf("%w: unknown duration type %q", schedule.ErrInvalidPlanConfig, plan.DurationType)
	}
	return nil
}

// NextDate returns the date the occurrence following last is due.
func NextDate(plan *model.MaintenancePlan, last *model.ScheduleOccurrence) time.Time {
	if last == nil {
		return schedule.Day(plan.StartDate)
	}
	return schedule.Day(last.ScheduledDate).AddDate(0, 0, plan.FrequencyDays)
}

// Exhausted reports whether the plan's policy forbids an occurrence on next,
// given that generated occurrences already exist in the chain.
func Exhausted(plan *model.MaintenancePlan, next time.Time, generated int) bool {
	if plan.DurationType.Bounded() && plan.DurationValue <= 0 {
		return true
	}

	start := schedule.Day(plan.StartDate)
	switch plan.DurationType {
	case model.DurationIndefinite:
		return false
	case model.DurationEndDate:
		if plan.RecurrenceEndDate == nil {
			return true
		}
		return next.After(schedule.Day(*plan.RecurrenceEndDate))
	case model.DurationMonths:
		return next.After(addMonths(start, plan.DurationValue))
	case model.DurationWeeks:
		return next.After(start.AddDate(0, 0, 7*plan.DurationValue))
	case model.DurationOccurrences:
		return generated+1 > plan.DurationValue
	default:
		return true
	}
}

// ExpandNext builds the occurrence that follows last in the plan's chain.
// When the recurrence policy is exhausted it returns done=true and no
// occurrence. last is nil for the first link of a chain.
func (e *Expander) ExpandNext(plan *model.MaintenancePlan, last *model.ScheduleOccurrence, generated int) (*model.ScheduleOccurrence, bool, error) {
	if plan == nil {
		return nil, false, fmt.Errorf("%w: plan is nil", schedule.ErrInvalidPlanConfig)
	}
	if plan.FrequencyDays <= 0 {
		return nil, false, fmt.Errorf("%w: frequency must be positive, got %d days", schedule.ErrInvalidPlanConfig, plan.FrequencyDays)
	}
	if last != nil && (last.PlanID == nil || *last.PlanID != plan.ID) {
		return nil, false, fmt.Errorf("%w: occurrence %s does not belong to plan %s", schedule.ErrInvalidPlanConfig, last.ID, plan.ID)
	}

	next := NextDate(plan, last)
	if Exhausted(plan, next, generated) {
		return nil, true, nil
	}

	now := e.now().UTC()
	planID := plan.ID
	occ := &model.ScheduleOccurrence{
		ID:             e.newID(),
		PlanID:         &planID,
		EquipmentID:    plan.EquipmentID,
		AssignedUserID: copyString(plan.AssignedUserID),
		CompanyID:      copyString(plan.CompanyID),
		ScheduledDate:  next,
		Status:         schedule.InitialStatus,
		Priority:       plan.DefaultPriority.OrDefault(),
		EstimatedCost:  plan.EstimatedCost,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if last != nil {
		parentID := last.ID
		occ.ParentOccurrenceID = &parentID
	}
	return occ, false, nil
}

// Preview projects up to limit upcoming dates without creating anything.
func Preview(plan *model.MaintenancePlan, last *model.ScheduleOccurrence, generated, limit int) ([]time.Time, error) {
	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}
	if limit > MaxPreviewIterations {
		limit = MaxPreviewIterations
	}

	dates := make([]time.Time, 0, limit)
	var cursor *model.ScheduleOccurrence
	if last != nil {
		cursor = &model.ScheduleOccurrence{ScheduledDate: last.ScheduledDate}
	}
	for len(dates) < limit {
		next := NextDate(plan, cursor)
		if Exhausted(plan, next, generated) {
			break
		}
		dates = append(dates, next)
		generated++
		cursor = &model.ScheduleOccurrence{ScheduledDate: next}
	}
	return dates, nil
}

// addMonths moves t forward n calendar months, clamping the day to the end
// of the target month: 31 Jan plus one month is 28 Feb, not 3 Mar.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
