// Package scheduling is the entry point of the engine. Each operation runs as
// one database transaction and publishes its events only after commit.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"maintenance-scheduler/internal/events"
	"maintenance-scheduler/internal/logger"
	"maintenance-scheduler/internal/metrics"
	"maintenance-scheduler/internal/model"
	"maintenance-scheduler/internal/recurrence"
	"maintenance-scheduler/internal/schedule"
	"maintenance-scheduler/internal/sequence"
	"maintenance-scheduler/internal/store"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// Directory answers existence questions about referenced records.
type Directory interface {
	EquipmentExists(ctx context.Context, id string) (bool, error)
	CompanyExists(ctx context.Context, id string) (bool, error)
}

// AdHocSpec describes a one-off occurrence that belongs to no plan.
type AdHocSpec struct {
	EquipmentID    string
	CompanyID      *string
	AssignedUserID *string
	ScheduledDate  time.Time
	Priority       model.Priority
	EstimatedCost  float64
	Observations   string
}

// ListFilter selects occurrences for ListOccurrences.
type ListFilter struct {
	PlanID       string
	EquipmentID  string
	SequenceCode string
	Status       model.Status
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// Completion is the outcome of CompleteOccurrence. Next is nil when the
// chain did not continue.
type Completion struct {
	Occurrence *model.ScheduleOccurrence
	Next       *model.ScheduleOccurrence
	ChainEnded bool
}

// Orchestrator coordinates the expander, the state machine and the sequence
// allocator on top of the store.
type Orchestrator struct {
	store     store.Store
	expander  *recurrence.Expander
	allocator *sequence.Allocator
	directory Directory
	publisher events.Publisher
	log       logger.Logger
	metrics   *metrics.Metrics
	planLocks *keyedMutex
	newID     func() string
	now       func() time.Time
}

// New creates an Orchestrator. dir may be the store itself when no cache is
// wanted; pub may be nil to drop events.
func New(st store.Store, alloc *sequence.Allocator, dir Directory, pub events.Publisher, log logger.Logger, m *metrics.Metrics) *Orchestrator {
	if dir == nil {
		dir = st
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Orchestrator{
		store:     st,
		expander:  recurrence.NewExpander(),
		allocator: alloc,
		directory: dir,
		publisher: pub,
		log:       log,
		metrics:   m,
		planLocks: newKeyedMutex(),
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// CreateOccurrence starts or resumes the chain of a plan. It fails with
// ErrChainConflict while the plan still has a pending occurrence and with
// ErrChainExhausted once the recurrence policy is used up.
func (o *Orchestrator) CreateOccurrence(ctx context.Context, planID string) (*model.ScheduleOccurrence, error) {
	const op = "create_occurrence"

	plan, err := o.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, o.fail(op, err)
	}
	if !plan.Active {
		return nil, o.fail(op, fmt.Errorf("%w: plan %s is inactive", schedule.ErrInvalidPlanConfig, planID))
	}
	if err := recurrence.ValidatePlan(plan); err != nil {
		return nil, o.fail(op, err)
	}
	if err := o.requireEquipment(ctx, plan.EquipmentID); err != nil {
		return nil, o.fail(op, err)
	}

	unlock := o.planLocks.Lock(planID)
	defer unlock()

	var created *model.ScheduleOccurrence
	err = o.store.Transaction(ctx, func(tx store.Store) error {
		locked, err := tx.LockPlan(ctx, planID)
		if err != nil {
			return err
		}
		pending, err := tx.PendingOccurrence(ctx, planID)
		if err != nil {
			return err
		}
		if pending != nil {
			return fmt.Errorf("%w: plan %s has %s occurrence %s",
				schedule.ErrChainConflict, planID, pending.Status, pending.ID)
		}

		next, done, err := o.expand(ctx, tx, locked)
		if err != nil {
			return err
		}
		if done {
			return fmt.Errorf("%w: plan %s", schedule.ErrChainExhausted, planID)
		}
		created = next
		return nil
	})
	if err != nil {
		if errors.Is(err, schedule.ErrChainExhausted) {
			o.metrics.ChainsExhausted.Inc()
		}
		return nil, o.fail(op, err)
	}

	o.metrics.OccurrencesCreated.Inc()
	o.log.Info("Occurrence created", "plan_id", planID, "occurrence_id", created.ID, "scheduled_date", created.ScheduledDate)
	o.publish(ctx, events.New(events.OccurrenceCreated, created, o.clock()))
	return created, nil
}

// CreateAdHocOccurrence schedules a parentless occurrence outside any plan.
func (o *Orchestrator) CreateAdHocOccurrence(ctx context.Context, spec AdHocSpec) (*model.ScheduleOccurrence, error) {
	const op = "create_adhoc_occurrence"

	spec.EquipmentID = strings.TrimSpace(spec.EquipmentID)
	if spec.EquipmentID == "" {
		return nil, o.fail(op, fmt.Errorf("%w: equipment id is required", schedule.ErrValidation))
	}
	if spec.ScheduledDate.IsZero() {
		return nil, o.fail(op, fmt.Errorf("%w: scheduled date is required", schedule.ErrValidation))
	}
	if spec.Priority != "" && !spec.Priority.Valid() {
		return nil, o.fail(op, fmt.Errorf("%w: unknown priority %q", schedule.ErrValidation, spec.Priority))
	}
	if spec.EstimatedCost < 0 {
		return nil, o.fail(op, fmt.Errorf("%w: estimated cost cannot be negative", schedule.ErrValidation))
	}
	if err := o.requireEquipment(ctx, spec.EquipmentID); err != nil {
		return nil, o.fail(op, err)
	}
	if spec.CompanyID != nil {
		ok, err := o.directory.CompanyExists(ctx, *spec.CompanyID)
		if err != nil {
			return nil, o.fail(op, err)
		}
		if !ok {
			return nil, o.fail(op, fmt.Errorf("%w: company %s", schedule.ErrNotFound, *spec.CompanyID))
		}
	}

	now := o.clock()
	occ := &model.ScheduleOccurrence{
		ID:             o.newID(),
		EquipmentID:    spec.EquipmentID,
		CompanyID:      spec.CompanyID,
		AssignedUserID: spec.AssignedUserID,
		ScheduledDate:  schedule.Day(spec.ScheduledDate),
		Status:         schedule.InitialStatus,
		Priority:       spec.Priority.OrDefault(),
		EstimatedCost:  spec.EstimatedCost,
		Observations:   spec.Observations,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.store.CreateOccurrence(ctx, occ); err != nil {
		return nil, o.fail(op, err)
	}

	o.metrics.OccurrencesCreated.Inc()
	o.log.Info("Ad-hoc occurrence created", "occurrence_id", occ.ID, "equipment_id", occ.EquipmentID)
	o.publish(ctx, events.New(events.OccurrenceCreated, occ, now))
	return occ, nil
}

// StartOccurrence moves a SCHEDULED or OVERDUE occurrence into IN_PROGRESS.
func (o *Orchestrator) StartOccurrence(ctx context.Context, id string) (*model.ScheduleOccurrence, error) {
	const op = "start_occurrence"

	var started *model.ScheduleOccurrence
	err := o.store.Transaction(ctx, func(tx store.Store) error {
		occ, err := tx.LockOccurrence(ctx, id)
		if err != nil {
			return err
		}
		if err := schedule.Start(occ, o.clock()); err != nil {
			return err
		}
		if err := tx.SaveTransition(ctx, occ); err != nil {
			return err
		}
		started = occ
		return nil
	})
	if err != nil {
		return nil, o.fail(op, err)
	}
	o.log.Info("Occurrence started", "occurrence_id", id)
	return started, nil
}

// CompleteOccurrence closes an occurrence and, for planned ones, continues
// the chain in the same transaction. An exhausted, inactive or invalid plan
// ends the chain without failing the completion.
func (o *Orchestrator) CompleteOccurrence(ctx context.Context, id string, actualCost *float64, observations string) (*Completion, error) {
	const op = "complete_occurrence"

	if actualCost != nil && *actualCost < 0 {
		return nil, o.fail(op, fmt.Errorf("%w: actual cost cannot be negative", schedule.ErrValidation))
	}

	current, err := o.store.GetOccurrence(ctx, id)
	if err != nil {
		return nil, o.fail(op, err)
	}
	if current.PlanID != nil {
		unlock := o.planLocks.Lock(*current.PlanID)
		defer unlock()
	}

	result := &Completion{}
	err = o.store.Transaction(ctx, func(tx store.Store) error {
		var plan *model.MaintenancePlan
		if current.PlanID != nil {
			p, err := tx.LockPlan(ctx, *current.PlanID)
			if err != nil && !errors.Is(err, schedule.ErrNotFound) {
				return err
			}
			plan = p
		}

		occ, err := tx.LockOccurrence(ctx, id)
		if err != nil {
			return err
		}
		if err := schedule.Complete(occ, actualCost, observations, o.clock()); err != nil {
			return err
		}
		if err := tx.SaveTransition(ctx, occ); err != nil {
			return err
		}
		result.Occurrence = occ

		if occ.PlanID == nil {
			return nil
		}
		next, ended, err := o.continueChain(ctx, tx, *occ.PlanID, plan)
		if err != nil {
			return err
		}
		result.Next = next
		result.ChainEnded = ended
		return nil
	})
	if err != nil {
		return nil, o.fail(op, err)
	}

	o.metrics.OccurrencesCompleted.Inc()
	o.log.Info("Occurrence completed", "occurrence_id", id, "chain_ended", result.ChainEnded)
	now := o.clock()
	o.publish(ctx, events.New(events.OccurrenceCompleted, result.Occurrence, now))
	if result.Next != nil {
		o.metrics.OccurrencesCreated.Inc()
		o.publish(ctx, events.New(events.OccurrenceCreated, result.Next, now))
	}
	return result, nil
}

// continueChain expands the plan after a completion. ended reports that the
// chain stopped for good; a pending occurrence left in place is neither.
func (o *Orchestrator) continueChain(ctx context.Context, tx store.Store, planID string, plan *model.MaintenancePlan) (*model.ScheduleOccurrence, bool, error) {
	if plan == nil {
		o.log.Warn("Plan of completed occurrence no longer exists", "plan_id", planID)
		return nil, true, nil
	}
	if !plan.Active {
		o.log.Info("Plan is inactive, chain ends", "plan_id", planID)
		return nil, true, nil
	}
	if err := recurrence.ValidatePlan(plan); err != nil {
		o.log.Warn("Plan configuration is invalid, chain ends", "plan_id", planID, "error", err)
		return nil, true, nil
	}

	pending, err := tx.PendingOccurrence(ctx, planID)
	if err != nil {
		return nil, false, err
	}
	if pending != nil {
		o.log.Debug("Plan already has a pending occurrence, skipping expansion", "plan_id", planID, "pending_id", pending.ID)
		return nil, false, nil
	}

	next, done, err := o.expand(ctx, tx, plan)
	if err != nil {
		return nil, false, err
	}
	if done {
		o.metrics.ChainsExhausted.Inc()
		o.log.Info("Plan recurrence exhausted", "plan_id", planID)
		return nil, true, nil
	}
	return next, false, nil
}

// expand creates the successor of the plan's chain tail. Callers hold the
// plan lock.
func (o *Orchestrator) expand(ctx context.Context, tx store.Store, plan *model.MaintenancePlan) (*model.ScheduleOccurrence, bool, error) {
	tail, err := tx.ChainTail(ctx, plan.ID)
	if err != nil {
		return nil, false, err
	}
	generated, err := tx.CountForPlan(ctx, plan.ID)
	if err != nil {
		return nil, false, err
	}
	next, done, err := o.expander.ExpandNext(plan, tail, int(generated))
	if err != nil || done {
		return nil, done, err
	}
	if err := tx.CreateOccurrence(ctx, next); err != nil {
		return nil, false, err
	}
	return next, false, nil
}

// CancelOccurrence cancels an occurrence together with every pending
// descendant. Cancelled occurrences are returned root first. The chain is not
// continued; CreateOccurrence resumes it.
func (o *Orchestrator) CancelOccurrence(ctx context.Context, id, reason string) ([]*model.ScheduleOccurrence, error) {
	const op = "cancel_occurrence"

	var cancelled []*model.ScheduleOccurrence
	err := o.store.Transaction(ctx, func(tx store.Store) error {
		root, err := tx.LockOccurrence(ctx, id)
		if err != nil {
			return err
		}
		now := o.clock()
		if err := schedule.Cancel(root, reason, now); err != nil {
			return err
		}
		if err := tx.SaveTransition(ctx, root); err != nil {
			return err
		}
		cancelled = append(cancelled, root)

		queue := []string{root.ID}
		for len(queue) > 0 {
			parentID := queue[0]
			queue = queue[1:]
			children, err := tx.PendingChildren(ctx, parentID)
			if err != nil {
				return err
			}
			for i := range children {
				child := &children[i]
				if err := schedule.Cancel(child, reason, now); err != nil {
					return err
				}
				if err := tx.SaveTransition(ctx, child); err != nil {
					return err
				}
				cancelled = append(cancelled, child)
				queue = append(queue, child.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, o.fail(op, err)
	}

	o.metrics.OccurrencesCancelled.Add(float64(len(cancelled)))
	o.log.Info("Occurrence cancelled", "occurrence_id", id, "cascade", len(cancelled)-1)
	now := o.clock()
	for _, occ := range cancelled {
		o.publish(ctx, events.New(events.OccurrenceCancelled, occ, now))
	}
	return cancelled, nil
}

// AllocateWorkOrderCode stamps the occurrence with a service-order code for
// the year of its scheduled date. A code, once set, never changes.
func (o *Orchestrator) AllocateWorkOrderCode(ctx context.Context, id string) (string, error) {
	const op = "allocate_work_order_code"

	occ, err := o.store.GetOccurrence(ctx, id)
	if err != nil {
		return "", o.fail(op, err)
	}
	if occ.SequenceCode != nil {
		return "", o.fail(op, fmt.Errorf("%w: occurrence %s has %s", schedule.ErrSequenceCodeAssigned, id, *occ.SequenceCode))
	}

	code, err := o.allocator.Allocate(ctx, sequence.EntityServiceOrder, schedule.Day(occ.ScheduledDate).Year())
	if err != nil {
		return "", o.fail(op, err)
	}
	ok, err := o.store.AssignSequenceCode(ctx, id, code)
	if err != nil {
		return "", o.fail(op, err)
	}
	if !ok {
		// Lost the race to another caller; the allocated value becomes a gap.
		o.log.Warn("Sequence code discarded", "occurrence_id", id, "code", code)
		return "", o.fail(op, fmt.Errorf("%w: occurrence %s", schedule.ErrSequenceCodeAssigned, id))
	}
	o.log.Info("Work order code allocated", "occurrence_id", id, "code", code)
	return code, nil
}

func (o *Orchestrator) GetOccurrence(ctx context.Context, id string) (*model.ScheduleOccurrence, error) {
	occ, err := o.store.GetOccurrence(ctx, id)
	if err != nil {
		return nil, o.fail("get_occurrence", err)
	}
	return occ, nil
}

func (o *Orchestrator) ListOccurrences(ctx context.Context, f ListFilter) ([]model.ScheduleOccurrence, error) {
	const op = "list_occurrences"

	if f.Status != "" && !f.Status.Valid() {
		return nil, o.fail(op, fmt.Errorf("%w: unknown status %q", schedule.ErrValidation, f.Status))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	sf := store.OccurrenceFilter{
		PlanID:       f.PlanID,
		EquipmentID:  f.EquipmentID,
		SequenceCode: f.SequenceCode,
		From:         f.From,
		To:           f.To,
		Limit:        limit,
		Offset:       f.Offset,
	}
	if f.Status != "" {
		sf.Statuses = []model.Status{f.Status}
	}
	out, err := o.store.ListOccurrences(ctx, sf)
	if err != nil {
		return nil, o.fail(op, err)
	}
	return out, nil
}

// PreviewPlan forecasts the next n dates of a plan without persisting.
func (o *Orchestrator) PreviewPlan(ctx context.Context, planID string, n int) ([]time.Time, error) {
	const op = "preview_plan"

	if n <= 0 {
		return nil, o.fail(op, fmt.Errorf("%w: preview size must be positive", schedule.ErrValidation))
	}
	plan, err := o.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, o.fail(op, err)
	}
	tail, err := o.store.ChainTail(ctx, planID)
	if err != nil {
		return nil, o.fail(op, err)
	}
	generated, err := o.store.CountForPlan(ctx, planID)
	if err != nil {
		return nil, o.fail(op, err)
	}
	dates, err := recurrence.Preview(plan, tail, int(generated), n)
	if err != nil {
		return nil, o.fail(op, err)
	}
	return dates, nil
}

func (o *Orchestrator) requireEquipment(ctx context.Context, id string) error {
	ok, err := o.directory.EquipmentExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: equipment %s", schedule.ErrNotFound, id)
	}
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, ev events.Event) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, ev); err != nil {
		o.log.Warn("Failed to publish event", "type", ev.Type, "occurrence_id", ev.OccurrenceID, "error", err)
	}
}

// fail counts the error and wraps anything that is not already a domain
// error as a persistence failure.
func (o *Orchestrator) fail(op string, err error) error {
	o.metrics.ErrorsCount.WithLabelValues(op).Inc()
	if schedule.IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", schedule.ErrPersistenceFailure, op, err)
}

func (o *Orchestrator) clock() time.Time {
	return o.now().UTC()
}
