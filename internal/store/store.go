package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"maintenance-scheduler/internal/model"
	"maintenance-scheduler/internal/schedule"
)

// OccurrenceFilter narrows ListOccurrences. Zero fields are ignored.
type OccurrenceFilter struct {
	PlanID       string
	EquipmentID  string
	SequenceCode string
	Statuses     []model.Status
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// Store defines the persistence operations of the scheduling engine.
type Store interface {
	// Transaction runs fn against a Store bound to one database transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error
	DB() *gorm.DB

	GetPlan(ctx context.Context, id string) (*model.MaintenancePlan, error)
	// LockPlan reads the plan row with an exclusive row lock held until the
	// surrounding transaction ends.
	LockPlan(ctx context.Context, id string) (*model.MaintenancePlan, error)

	GetOccurrence(ctx context.Context, id string) (*model.ScheduleOccurrence, error)
	LockOccurrence(ctx context.Context, id string) (*model.ScheduleOccurrence, error)
	CreateOccurrence(ctx context.Context, occ *model.ScheduleOccurrence) error
	// SaveTransition persists the lifecycle columns of occ. The sequence code
	// is never written here.
	SaveTransition(ctx context.Context, occ *model.ScheduleOccurrence) error
	ListOccurrences(ctx context.Context, f OccurrenceFilter) ([]model.ScheduleOccurrence, error)

	// PendingOccurrence returns the plan's non-terminal occurrence, or nil.
	PendingOccurrence(ctx context.Context, planID string) (*model.ScheduleOccurrence, error)
	// ChainTail returns the most recent occurrence of the plan, or nil.
	ChainTail(ctx context.Context, planID string) (*model.ScheduleOccurrence, error)
	CountForPlan(ctx context.Context, planID string) (int64, error)
	PendingChildren(ctx context.Context, parentID string) ([]model.ScheduleOccurrence, error)

	// ListOverdueCandidates pages through occurrences in one of the given
	// states whose scheduled date is before the cutoff, ordered by id.
	ListOverdueCandidates(ctx context.Context, before time.Time, from []model.Status, afterID string, limit int) ([]model.ScheduleOccurrence, error)
	// MarkOverdue flips occ to OVERDUE only if it is still in one of the from
	// states. It reports whether this call performed the transition.
	MarkOverdue(ctx context.Context, id string, from []model.Status, now time.Time) (bool, error)
	// AssignSequenceCode stores code only if the occurrence has none yet.
	AssignSequenceCode(ctx context.Context, id, code string) (bool, error)

	EquipmentExists(ctx context.Context, id string) (bool, error)
	CompanyExists(ctx context.Context, id string) (bool, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func (s *gormStore) GetPlan(ctx context.Context, id string) (*model.MaintenancePlan, error) {
	var plan model.MaintenancePlan
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&plan).Error; err != nil {
		return nil, notFound(err, "plan", id)
	}
	return &plan, nil
}

func (s *gormStore) LockPlan(ctx context.Context, id string) (*model.MaintenancePlan, error) {
	var plan model.MaintenancePlan
	if err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&plan).Error; err != nil {
		return nil, notFound(err, "plan", id)
	}
	return &plan, nil
}

func (s *gormStore) GetOccurrence(ctx context.Context, id string) (*model.ScheduleOccurrence, error) {
	var occ model.ScheduleOccurrence
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&occ).Error; err != nil {
		return nil, notFound(err, "occurrence", id)
	}
	return &occ, nil
}

func (s *gormStore) LockOccurrence(ctx context.Context, id string) (*model.ScheduleOccurrence, error) {
	var occ model.ScheduleOccurrence
	if err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&occ).Error; err != nil {
		return nil, notFound(err, "occurrence", id)
	}
	return &occ, nil
}

func (s *gormStore) CreateOccurrence(ctx context.Context, occ *model.ScheduleOccurrence) error {
	if !occ.Status.Valid() {
		return fmt.Errorf("refusing to persist occurrence %s with status %q", occ.ID, occ.Status)
	}
	if err := s.db.WithContext(ctx).Create(occ).Error; err != nil {
		return fmt.Errorf("failed to create occurrence %s: %w", occ.ID, err)
	}
	return nil
}

func (s *gormStore) SaveTransition(ctx context.Context, occ *model.ScheduleOccurrence) error {
	res := s.db.WithContext(ctx).
		Model(&model.ScheduleOccurrence{}).
		Where("id = ?", occ.ID).
		Updates(map[string]interface{}{
			"status":        occ.Status,
			"actual_cost":   occ.ActualCost,
			"observations":  occ.Observations,
			"cancel_reason": occ.CancelReason,
			"completed_at":  occ.CompletedAt,
			"cancelled_at":  occ.CancelledAt,
			"updated_at":    occ.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update occurrence %s: %w", occ.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: occurrence %s", schedule.ErrNotFound, occ.ID)
	}
	return nil
}

func (s *gormStore) ListOccurrences(ctx context.Context, f OccurrenceFilter) ([]model.ScheduleOccurrence, error) {
	q := s.db.WithContext(ctx).Model(&model.ScheduleOccurrence{})
	if f.PlanID != "" {
		q = q.Where("plan_id = ?", f.PlanID)
	}
	if f.EquipmentID != "" {
		q = q.Where("equipment_id = ?", f.EquipmentID)
	}
	if f.SequenceCode != "" {
		q = q.Where("sequence_code = ?", f.SequenceCode)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.From != nil {
		q = q.Where("scheduled_date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("scheduled_date <= ?", *f.To)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var out []model.ScheduleOccurrence
	if err := q.Order("scheduled_date ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list occurrences: %w", err)
	}
	return out, nil
}

func (s *gormStore) PendingOccurrence(ctx context.Context, planID string) (*model.ScheduleOccurrence, error) {
	var occ model.ScheduleOccurrence
	err := s.db.WithContext(ctx).
		Where("plan_id = ? AND status IN ?", planID, model.PendingStatuses).
		Order("scheduled_date DESC").
		Take(&occ).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up pending occurrence for plan %s: %w", planID, err)
	}
	return &occ, nil
}

func (s *gormStore) ChainTail(ctx context.Context, planID string) (*model.ScheduleOccurrence, error) {
	var occ model.ScheduleOccurrence
	err := s.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("scheduled_date DESC").
		Order("created_at DESC").
		Order("id DESC").
		Take(&occ).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up chain tail for plan %s: %w", planID, err)
	}
	return &occ, nil
}

func (s *gormStore) CountForPlan(ctx context.Context, planID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&model.ScheduleOccurrence{}).
		Where("plan_id = ?", planID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count occurrences for plan %s: %w", planID, err)
	}
	return count, nil
}

func (s *gormStore) PendingChildren(ctx context.Context, parentID string) ([]model.ScheduleOccurrence, error) {
	var children []model.ScheduleOccurrence
	if err := s.db.WithContext(ctx).
		Where("parent_occurrence_id = ? AND status IN ?", parentID, model.PendingStatuses).
		Order("id ASC").
		Find(&children).Error; err != nil {
		return nil, fmt.Errorf("failed to list children of occurrence %s: %w", parentID, err)
	}
	return children, nil
}

func (s *gormStore) ListOverdueCandidates(ctx context.Context, before time.Time, from []model.Status, afterID string, limit int) ([]model.ScheduleOccurrence, error) {
	q := s.db.WithContext(ctx).
		Where("status IN ? AND scheduled_date < ?", from, before)
	if afterID != "" {
		q = q.Where("id > ?", afterID)
	}
	var out []model.ScheduleOccurrence
	if err := q.Order("id ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list overdue candidates: %w", err)
	}
	return out, nil
}

func (s *gormStore) MarkOverdue(ctx context.Context, id string, from []model.Status, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.ScheduleOccurrence{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]interface{}{
			"status":     model.StatusOverdue,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark occurrence %s overdue: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *gormStore) AssignSequenceCode(ctx context.Context, id, code string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.ScheduleOccurrence{}).
		Where("id = ? AND sequence_code IS NULL", id).
		Updates(map[string]interface{}{
			"sequence_code": code,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to assign sequence code to occurrence %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *gormStore) EquipmentExists(ctx context.Context, id string) (bool, error) {
	return s.exists(ctx, &model.Equipment{}, id)
}

func (s *gormStore) CompanyExists(ctx context.Context, id string) (bool, error) {
	return s.exists(ctx, &model.Company{}, id)
}

func (s *gormStore) exists(ctx context.Context, m interface{}, id string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(m).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", schedule.ErrNotFound, kind, id)
	}
	return fmt.Errorf("failed to load %s %s: %w", kind, id, err)
}
