package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/wedding-automations/models"
	"gorm.io/gorm"
)

// SendRecordRepositoryImpl implements the SendRecordRepository interface
type SendRecordRepositoryImpl struct {
	*BaseRepository[models.SendRecord, models.SendRecordFilter]
}

// NewSendRecordRepository creates a new send record repository
func NewSendRecordRepository(db *gorm.DB) SendRecordRepository {
	return &SendRecordRepositoryImpl{
		BaseRepository: NewBaseRepository[models.SendRecord, models.SendRecordFilter](db),
	}
}

func (r *SendRecordRepositoryImpl) applyFilter(db *gorm.DB, f models.SendRecordFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if len(f.IDs) > 0 {
		db = db.Where("id IN ?", f.IDs)
	}
	if f.TenantID != nil {
		db = db.Where("tenant_id = ?", *f.TenantID)
	}
	if f.AutomationID != nil {
		db = db.Where("automation_id = ?", *f.AutomationID)
	}
	if f.RecipientID != nil {
		db = db.Where("recipient_id = ?", *f.RecipientID)
	}
	if f.ProviderMessageID != nil {
		db = db.Where("provider_message_id = ?", *f.ProviderMessageID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

// ByFilter retrieves send records based on filter criteria
func (r *SendRecordRepositoryImpl) ByFilter(ctx context.Context, filter models.SendRecordFilter, orderBy string, limit, offset int) ([]*models.SendRecord, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db.Model(&models.SendRecord{}), filter), orderBy, limit, offset)

	var rows []*models.SendRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find send records by filter: %w", err)
	}
	return rows, nil
}

// Count returns the number of send records matching the filter
func (r *SendRecordRepositoryImpl) Count(ctx context.Context, filter models.SendRecordFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.SendRecord{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count send records: %w", err)
	}
	return count, nil
}

// Exists reports whether any send record matches the filter
func (r *SendRecordRepositoryImpl) Exists(ctx context.Context, filter models.SendRecordFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkAccepted stores the provider message id and the status returned by the provider
func (r *SendRecordRepositoryImpl) MarkAccepted(ctx context.Context, id uint, providerMessageID string, status models.DeliveryStatus) error {
	db := r.getDB(ctx)

	err := db.Model(&models.SendRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"provider_message_id": providerMessageID,
			"status":              status,
			"updated_at":          time.Now().UTC(),
		}).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("provider message id %s already stored: %w", providerMessageID, ErrDuplicate)
		}
		return fmt.Errorf("failed to mark send record %d accepted: %w", id, err)
	}

	return nil
}

// MarkRejected records a provider rejection as a terminal failed status
func (r *SendRecordRepositoryImpl) MarkRejected(ctx context.Context, id uint, errorCode, errorMessage string) error {
	db := r.getDB(ctx)

	err := db.Model(&models.SendRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        models.DeliveryStatusFailed,
			"error_code":    errorCode,
			"error_message": errorMessage,
			"updated_at":    time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark send record %d rejected: %w", id, err)
	}

	return nil
}

// ByTenantAndProviderMessageID looks a provider message id up within one tenant partition
func (r *SendRecordRepositoryImpl) ByTenantAndProviderMessageID(ctx context.Context, tenantID uint, providerMessageID string) (*models.SendRecord, error) {
	rows, err := r.ByFilter(ctx, models.SendRecordFilter{
		TenantID:          &tenantID,
		ProviderMessageID: &providerMessageID,
	}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ByAutomationAndRecipient returns the record a previous dispatch attempt wrote for the recipient
func (r *SendRecordRepositoryImpl) ByAutomationAndRecipient(ctx context.Context, automationID, recipientID uint) (*models.SendRecord, error) {
	rows, err := r.ByFilter(ctx, models.SendRecordFilter{
		AutomationID: &automationID,
		RecipientID:  &recipientID,
	}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ListByIDs returns the send records with the given ids ordered by id
func (r *SendRecordRepositoryImpl) ListByIDs(ctx context.Context, ids []uint) ([]*models.SendRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.ByFilter(ctx, models.SendRecordFilter{IDs: ids}, "id ASC", 0, 0)
}

// CompareAndSetStatus writes next only while the stored status equals expected
func (r *SendRecordRepositoryImpl) CompareAndSetStatus(
	ctx context.Context,
	id uint,
	expected, next models.DeliveryStatus,
	errorCode, errorMessage *string,
	now time.Time,
) (bool, error) {
	db := r.getDB(ctx)

	updates := map[string]any{
		"status":     next,
		"updated_at": now,
	}
	if errorCode != nil {
		updates["error_code"] = *errorCode
	}
	if errorMessage != nil {
		updates["error_message"] = *errorMessage
	}

	res := db.Model(&models.SendRecord{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update status of send record %d: %w", id, res.Error)
	}

	return res.RowsAffected == 1, nil
}
