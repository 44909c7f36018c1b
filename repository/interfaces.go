// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/wedding-automations/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// TenantRepository defines operations for tenant partitions
type TenantRepository interface {
	ByID(ctx context.Context, id uint) (*models.Tenant, error)
	Save(ctx context.Context, tenant *models.Tenant) error
	// ListIDsAfter pages through tenant ids in ascending order, starting after afterID
	ListIDsAfter(ctx context.Context, afterID uint, limit int) ([]uint, error)
	ByProviderAccountRef(ctx context.Context, accountRef string) (*models.Tenant, error)
}

// RecipientRepository gives read access to a tenant roster
type RecipientRepository interface {
	ByID(ctx context.Context, id uint) (*models.Recipient, error)
	Save(ctx context.Context, recipient *models.Recipient) error
	SaveBatch(ctx context.Context, recipients []*models.Recipient) error
	ListByTenant(ctx context.Context, tenantID uint) ([]*models.Recipient, error)
}

// AutomationRepository defines operations for automations.
// Every state mutation is a conditional write scoped to one automation id; the bool result
// reports whether this caller's write won.
type AutomationRepository interface {
	Repository[models.Automation, models.AutomationFilter]
	// ClaimForDispatch moves a due, active, pending automation to in_progress
	ClaimForDispatch(ctx context.Context, id uint, now time.Time) (bool, error)
	// ClaimResume re-claims an in_progress automation whose dispatch started before staleBefore
	ClaimResume(ctx context.Context, id uint, staleBefore, now time.Time) (bool, error)
	SetAudienceSize(ctx context.Context, id uint, size int) error
	// AppendSendRecordID appends to the send-record list unless the id is already present
	AppendSendRecordID(ctx context.Context, id uint, sendRecordID uint) error
	// Finalize writes completion stats, the terminal status and failure details once
	Finalize(ctx context.Context, id uint, status models.AutomationStatus, stats models.CompletionStats, failures []*models.FailureDetail) (bool, error)
	// SetActive toggles isActive; only pending automations are affected
	SetActive(ctx context.Context, id uint, active bool) (bool, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Automation, error)
	ListInProgress(ctx context.Context, afterID uint, limit int) ([]*models.Automation, error)
	ListFailureDetails(ctx context.Context, automationID uint) ([]*models.FailureDetail, error)
}

// SendRecordRepository defines operations for send records
type SendRecordRepository interface {
	Repository[models.SendRecord, models.SendRecordFilter]
	MarkAccepted(ctx context.Context, id uint, providerMessageID string, status models.DeliveryStatus) error
	MarkRejected(ctx context.Context, id uint, errorCode, errorMessage string) error
	ByTenantAndProviderMessageID(ctx context.Context, tenantID uint, providerMessageID string) (*models.SendRecord, error)
	ByAutomationAndRecipient(ctx context.Context, automationID, recipientID uint) (*models.SendRecord, error)
	ListByIDs(ctx context.Context, ids []uint) ([]*models.SendRecord, error)
	// CompareAndSetStatus updates status only if the stored status still equals expected
	CompareAndSetStatus(ctx context.Context, id uint, expected, next models.DeliveryStatus, errorCode, errorMessage *string, now time.Time) (bool, error)
}

// ProviderMessageRef locates a send record inside its tenant partition
type ProviderMessageRef struct {
	TenantID     uint
	SendRecordID uint
}

// ProviderMessageIndex is the secondary index keyed by provider message id
type ProviderMessageIndex interface {
	Put(ctx context.Context, providerMessageID string, ref ProviderMessageRef) error
	// Get returns nil, nil when the id is not indexed
	Get(ctx context.Context, providerMessageID string) (*ProviderMessageRef, error)
}
