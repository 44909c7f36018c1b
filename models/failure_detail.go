package models

import "time"

// FailureReason classifies how a recipient ended up failed
type FailureReason string

const (
	FailureReasonProviderRejected FailureReason = "provider_rejected"
	FailureReasonDeliveryFailed   FailureReason = "delivery_failed"
	FailureReasonDeliveryTimeout  FailureReason = "delivery_timeout"
)

// DeliveryTimeoutCode is the synthetic error code recorded for records that never reached a terminal status
const DeliveryTimeoutCode = "delivery-timeout"

// FailureDetail is one append-only per-recipient failure entry of an automation.
// (automation_id, recipient_id) is unique so finalization retries never duplicate entries.
type FailureDetail struct {
	ID                uint          `gorm:"primaryKey" json:"id"`
	AutomationID      uint          `gorm:"not null;uniqueIndex:uk_failure_details_automation_recipient,priority:1" json:"automation_id"`
	RecipientID       uint          `gorm:"not null;uniqueIndex:uk_failure_details_automation_recipient,priority:2" json:"recipient_id"`
	SendRecordID      *uint         `json:"send_record_id,omitempty"`
	Address           string        `gorm:"size:64" json:"address"`
	ProviderMessageID *string       `gorm:"size:64" json:"provider_message_id,omitempty"`
	Reason            FailureReason `gorm:"size:32;not null" json:"reason"`
	ErrorCode         *string       `gorm:"size:32" json:"error_code,omitempty"`
	ErrorMessage      *string       `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt         time.Time     `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

func (FailureDetail) TableName() string { return "failure_details" }
