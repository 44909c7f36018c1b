package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/wedding-automations/models"
	"gorm.io/gorm"
)

// TenantRepositoryImpl implements the TenantRepository interface
type TenantRepositoryImpl struct {
	*BaseRepository[models.Tenant, struct{}]
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &TenantRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Tenant, struct{}](db),
	}
}

// ListIDsAfter returns at most limit tenant ids greater than afterID
func (r *TenantRepositoryImpl) ListIDsAfter(ctx context.Context, afterID uint, limit int) ([]uint, error) {
	db := r.getDB(ctx)

	var ids []uint
	err := paginate(db.Model(&models.Tenant{}).Where("id > ?", afterID), "id ASC", limit, 0).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant ids: %w", err)
	}

	return ids, nil
}

// ByProviderAccountRef finds the tenant owning a provider sub-account
func (r *TenantRepositoryImpl) ByProviderAccountRef(ctx context.Context, accountRef string) (*models.Tenant, error) {
	db := r.getDB(ctx)

	var tenant models.Tenant
	err := db.Where("provider_account_ref = ?", accountRef).Order("id ASC").First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find tenant by account ref: %w", err)
	}

	return &tenant, nil
}

// RecipientRepositoryImpl implements the RecipientRepository interface
type RecipientRepositoryImpl struct {
	*BaseRepository[models.Recipient, struct{}]
}

// NewRecipientRepository creates a new recipient repository
func NewRecipientRepository(db *gorm.DB) RecipientRepository {
	return &RecipientRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Recipient, struct{}](db),
	}
}

// ListByTenant returns the full roster of a tenant ordered by id
func (r *RecipientRepositoryImpl) ListByTenant(ctx context.Context, tenantID uint) ([]*models.Recipient, error) {
	db := r.getDB(ctx)

	var rows []*models.Recipient
	if err := db.Where("tenant_id = ?", tenantID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list recipients of tenant %d: %w", tenantID, err)
	}

	return rows, nil
}
