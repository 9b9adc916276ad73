package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"maintenance-scheduler/internal/metrics"
	"maintenance-scheduler/internal/model"
)

const EntityServiceOrder = "service_order"

var (
	ErrAllocationFailure = errors.New("sequence allocation failed")
	ErrInvalidEntity     = errors.New("invalid sequence partition")
)

var prefixes = map[string]string{
	EntityServiceOrder: "OS",
	"maintenance_plan": "PM",
	"purchase_order":   "OC",
}

// Allocator hands out year-scoped, zero-padded identifiers backed by the
// sequence_counters table.
type Allocator struct {
	db      *gorm.DB
	metrics *metrics.Metrics
}

// NewAllocator creates an allocator on top of db.
func NewAllocator(db *gorm.DB, m *metrics.Metrics) *Allocator {
	return &Allocator{db: db, metrics: m}
}

// Prefix returns the code prefix for an entity type. Unregistered types use
// the upper-cased initials of their underscore-separated words.
func Prefix(entityType string) string {
	if p, ok := prefixes[entityType]; ok {
		return p
	}
	var b strings.Builder
	for _, word := range strings.Split(entityType, "_") {
		if word != "" {
			b.WriteString(strings.ToUpper(word[:1]))
		}
	}
	return b.String()
}

// Format renders a code such as OS-003-2025.
func Format(entityType string, value int64, year int) string {
	return fmt.Sprintf("%s-%03d-%d", Prefix(entityType), value, year)
}

// Allocate increments the (entityType, year) counter and returns the code for
// the new value. The increment and the read happen in one transaction, so a
// failure leaves the counter untouched.
func (a *Allocator) Allocate(ctx context.Context, entityType string, year int) (string, error) {
	entityType = strings.TrimSpace(entityType)
	if entityType == "" || year <= 0 {
		return "", fmt.Errorf("%w: entity %q year %d", ErrInvalidEntity, entityType, year)
	}

	var counter model.SequenceCounter
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := model.SequenceCounter{EntityType: entityType, Year: year, LastValue: 1}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "entity_type"}, {Name: "year"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"last_value": gorm.Expr("sequence_counters.last_value + 1"),
			}),
		}).Create(&seed).Error; err != nil {
			return err
		}
		return tx.Where("entity_type = ? AND year = ?", entityType, year).Take(&counter).Error
	})
	if err != nil {
		if a.metrics != nil {
			a.metrics.ErrorsCount.WithLabelValues("sequence_allocate").Inc()
		}
		return "", fmt.Errorf("%w: %s/%d: %w", ErrAllocationFailure, entityType, year, err)
	}

	if a.metrics != nil {
		a.metrics.CodesAllocated.WithLabelValues(entityType).Inc()
	}
	return Format(entityType, counter.LastValue, year), nil
}
