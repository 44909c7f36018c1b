package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/wedding-automations/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AutomationRepositoryImpl implements the AutomationRepository interface
type AutomationRepositoryImpl struct {
	*BaseRepository[models.Automation, models.AutomationFilter]
}

// NewAutomationRepository creates a new automation repository
func NewAutomationRepository(db *gorm.DB) AutomationRepository {
	return &AutomationRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Automation, models.AutomationFilter](db),
	}
}

func (r *AutomationRepositoryImpl) applyFilter(db *gorm.DB, f models.AutomationFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.TenantID != nil {
		db = db.Where("tenant_id = ?", *f.TenantID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.IsActive != nil {
		db = db.Where("is_active = ?", *f.IsActive)
	}
	if f.Type != nil {
		db = db.Where("type = ?", *f.Type)
	}
	if f.ScheduledBefore != nil {
		db = db.Where("scheduled_at <= ?", *f.ScheduledBefore)
	}
	if f.ScheduledAfter != nil {
		db = db.Where("scheduled_at >= ?", *f.ScheduledAfter)
	}
	if f.StartedBefore != nil {
		db = db.Where("started_at < ?", *f.StartedBefore)
	}
	return db
}

// ByFilter retrieves automations based on filter criteria
func (r *AutomationRepositoryImpl) ByFilter(ctx context.Context, filter models.AutomationFilter, orderBy string, limit, offset int) ([]*models.Automation, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db.Model(&models.Automation{}), filter), orderBy, limit, offset)

	var rows []*models.Automation
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find automations by filter: %w", err)
	}
	return rows, nil
}

// Count returns the number of automations matching the filter
func (r *AutomationRepositoryImpl) Count(ctx context.Context, filter models.AutomationFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.Automation{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count automations: %w", err)
	}
	return count, nil
}

// Exists reports whether any automation matches the filter
func (r *AutomationRepositoryImpl) Exists(ctx context.Context, filter models.AutomationFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ClaimForDispatch is the pending -> in_progress compare-and-set. Exactly one concurrent caller
// observes a row affected.
func (r *AutomationRepositoryImpl) ClaimForDispatch(ctx context.Context, id uint, now time.Time) (bool, error) {
	db := r.getDB(ctx)

	res := db.Model(&models.Automation{}).
		Where("id = ? AND status = ? AND is_active = ? AND scheduled_at <= ?",
			id, models.AutomationStatusPending, true, now).
		Updates(map[string]any{
			"status":     models.AutomationStatusInProgress,
			"started_at": now,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim automation %d: %w", id, res.Error)
	}

	return res.RowsAffected == 1, nil
}

// ClaimResume refreshes started_at of a stale in_progress automation so a single resumer takes over
func (r *AutomationRepositoryImpl) ClaimResume(ctx context.Context, id uint, staleBefore, now time.Time) (bool, error) {
	db := r.getDB(ctx)

	res := db.Model(&models.Automation{}).
		Where("id = ? AND status = ? AND completion_completed_at IS NULL AND started_at < ?",
			id, models.AutomationStatusInProgress, staleBefore).
		Updates(map[string]any{
			"started_at": now,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim resume of automation %d: %w", id, res.Error)
	}

	return res.RowsAffected == 1, nil
}

// SetAudienceSize records the resolved audience size, only the first write sticks
func (r *AutomationRepositoryImpl) SetAudienceSize(ctx context.Context, id uint, size int) error {
	db := r.getDB(ctx)

	err := db.Model(&models.Automation{}).
		Where("id = ? AND audience_size IS NULL", id).
		Updates(map[string]any{
			"audience_size": size,
			"updated_at":    time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to set audience size of automation %d: %w", id, err)
	}

	return nil
}

// AppendSendRecordID appends the id with array_append; a repeated id is a no-op
func (r *AutomationRepositoryImpl) AppendSendRecordID(ctx context.Context, id uint, sendRecordID uint) error {
	db := r.getDB(ctx)

	err := db.Model(&models.Automation{}).
		Where("id = ? AND NOT (? = ANY(send_record_ids))", id, int64(sendRecordID)).
		Updates(map[string]any{
			"send_record_ids": gorm.Expr("array_append(send_record_ids, ?::bigint)", int64(sendRecordID)),
			"updated_at":      time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to append send record %d to automation %d: %w", sendRecordID, id, err)
	}

	return nil
}

// Finalize sets the terminal status with its stats and stores failure details in one transaction.
// It returns false when the automation was already finalized or is not in progress.
func (r *AutomationRepositoryImpl) Finalize(
	ctx context.Context,
	id uint,
	status models.AutomationStatus,
	stats models.CompletionStats,
	failures []*models.FailureDetail,
) (won bool, err error) {
	if !models.AutomationStatusInProgress.CanTransitionTo(status) {
		return false, fmt.Errorf("invalid final status %q", status)
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return false, err
	}

	if shouldCommit {
		defer func() {
			if err != nil || !won {
				db.Rollback()
			} else {
				err = db.Commit().Error
			}
		}()
	}

	completedAt := time.Now().UTC()
	if stats.CompletedAt != nil {
		completedAt = *stats.CompletedAt
	}

	res := db.Model(&models.Automation{}).
		Where("id = ? AND status = ? AND completion_completed_at IS NULL", id, models.AutomationStatusInProgress).
		Updates(map[string]any{
			"status":                         status,
			"completion_successful_messages": stats.SuccessfulMessages,
			"completion_failed_messages":     stats.FailedMessages,
			"completion_completed_at":        completedAt,
			"updated_at":                     completedAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to finalize automation %d: %w", id, res.Error)
	}
	if res.RowsAffected != 1 {
		return false, nil
	}

	if len(failures) > 0 {
		for _, f := range failures {
			f.AutomationID = id
		}
		err = db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(failures, 100).Error
		if err != nil {
			return false, fmt.Errorf("failed to store failure details of automation %d: %w", id, err)
		}
	}

	return true, nil
}

// SetActive toggles is_active on a pending automation
func (r *AutomationRepositoryImpl) SetActive(ctx context.Context, id uint, active bool) (bool, error) {
	db := r.getDB(ctx)

	res := db.Model(&models.Automation{}).
		Where("id = ? AND status = ?", id, models.AutomationStatusPending).
		Updates(map[string]any{
			"is_active":  active,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to set is_active of automation %d: %w", id, res.Error)
	}

	return res.RowsAffected == 1, nil
}

// ListDue returns active pending automations scheduled at or before now, oldest first
func (r *AutomationRepositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Automation, error) {
	status := models.AutomationStatusPending
	active := true
	filter := models.AutomationFilter{
		Status:          &status,
		IsActive:        &active,
		ScheduledBefore: &now,
	}
	return r.ByFilter(ctx, filter, "scheduled_at ASC, id ASC", limit, 0)
}

// ListInProgress pages through in_progress automations by id
func (r *AutomationRepositoryImpl) ListInProgress(ctx context.Context, afterID uint, limit int) ([]*models.Automation, error) {
	db := r.getDB(ctx)

	var rows []*models.Automation
	err := paginate(
		db.Model(&models.Automation{}).
			Where("status = ? AND completion_completed_at IS NULL AND id > ?", models.AutomationStatusInProgress, afterID),
		"id ASC", limit, 0,
	).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list in-progress automations: %w", err)
	}

	return rows, nil
}

// ListFailureDetails returns the failure entries of one automation ordered by recipient
func (r *AutomationRepositoryImpl) ListFailureDetails(ctx context.Context, automationID uint) ([]*models.FailureDetail, error) {
	db := r.getDB(ctx)

	var rows []*models.FailureDetail
	err := db.Where("automation_id = ?", automationID).Order("recipient_id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list failure details of automation %d: %w", automationID, err)
	}

	return rows, nil
}
