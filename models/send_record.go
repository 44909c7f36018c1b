package models

import (
	"time"

	"github.com/google/uuid"
)

// SendRecord is the durable trace of one outbound message to one recipient.
// It is written before the provider is called; the provider message id is filled in on acceptance.
type SendRecord struct {
	ID                uint              `gorm:"primaryKey" json:"id"`
	CorrelationID     uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:uk_send_records_correlation_id" json:"correlation_id"`
	TenantID          uint              `gorm:"not null;index:idx_send_records_tenant_provider_id,priority:1" json:"tenant_id"`
	AutomationID      *uint             `gorm:"uniqueIndex:uk_send_records_automation_recipient,priority:1" json:"automation_id,omitempty"`
	RecipientID       uint              `gorm:"not null;uniqueIndex:uk_send_records_automation_recipient,priority:2" json:"recipient_id"`
	ProviderMessageID *string           `gorm:"size:64;uniqueIndex:uk_send_records_provider_message_id;index:idx_send_records_tenant_provider_id,priority:2" json:"provider_message_id,omitempty"`
	Status            DeliveryStatus    `gorm:"size:32;not null;default:'queued';index:idx_send_records_status" json:"status"`
	Address           string            `gorm:"size:64;not null" json:"address"`
	TemplateRef       string            `gorm:"size:128;not null" json:"template_ref"`
	Variables         TemplateVariables `gorm:"type:jsonb;not null" json:"variables"`
	ErrorCode         *string           `gorm:"size:32" json:"error_code,omitempty"`
	ErrorMessage      *string           `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_send_records_created_at" json:"date_created"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"date_updated"`
}

func (SendRecord) TableName() string { return "send_records" }

// SendRecordFilter provides filter fields for repository queries
type SendRecordFilter struct {
	ID                *uint
	IDs               []uint
	TenantID          *uint
	AutomationID      *uint
	RecipientID       *uint
	ProviderMessageID *string
	Status            *DeliveryStatus
	CreatedAfter      *time.Time
	CreatedBefore     *time.Time
}
