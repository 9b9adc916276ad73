package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"maintenance-scheduler/internal/model"
)

// BackfillResult reports how many legacy rows a backfill touched.
type BackfillResult struct {
	Statuses   int64
	Priorities int64
}

// BackfillLegacyDefaults fills empty status and priority columns left by
// imported legacy rows with SCHEDULED and MEDIUM. It is an explicit migration
// step; the engine itself never substitutes defaults for missing values.
func BackfillLegacyDefaults(ctx context.Context, db *gorm.DB) (BackfillResult, error) {
	var res BackfillResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st := tx.Model(&model.ScheduleOccurrence{}).
			Where("status IS NULL OR status = ''").
			Update("status", model.StatusScheduled)
		if st.Error != nil {
			return fmt.Errorf("backfill status: %w", st.Error)
		}
		res.Statuses = st.RowsAffected

		pr := tx.Model(&model.ScheduleOccurrence{}).
			Where("priority IS NULL OR priority = ''").
			Update("priority", model.PriorityMedium)
		if pr.Error != nil {
			return fmt.Errorf("backfill priority: %w", pr.Error)
		}
		res.Priorities = pr.RowsAffected
		return nil
	})
	return res, err
}
