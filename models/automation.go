package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// AutomationStatus represents the lifecycle state of an automation
type AutomationStatus string

const (
	AutomationStatusPending    AutomationStatus = "pending"
	AutomationStatusInProgress AutomationStatus = "in_progress"
	AutomationStatusCompleted  AutomationStatus = "completed"
	AutomationStatusFailed     AutomationStatus = "failed"
)

// String returns the string representation of the status
func (s AutomationStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s AutomationStatus) Valid() bool {
	switch s {
	case AutomationStatusPending, AutomationStatusInProgress,
		AutomationStatusCompleted, AutomationStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is allowed out of s
func (s AutomationStatus) IsTerminal() bool {
	return s == AutomationStatusCompleted || s == AutomationStatusFailed
}

// CanTransitionTo encodes the automation state machine
func (s AutomationStatus) CanTransitionTo(next AutomationStatus) bool {
	switch s {
	case AutomationStatusPending:
		return next == AutomationStatusInProgress
	case AutomationStatusInProgress:
		return next == AutomationStatusCompleted || next == AutomationStatusFailed
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for AutomationStatus
func (s *AutomationStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = AutomationStatus(v)
	case []byte:
		*s = AutomationStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into AutomationStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for AutomationStatus
func (s AutomationStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid AutomationStatus: %s", s)
	}
	return string(s), nil
}

// AutomationType distinguishes invitation campaigns from reminders
type AutomationType string

const (
	AutomationTypeRSVP     AutomationType = "rsvp"
	AutomationTypeReminder AutomationType = "reminder"
)

func (t AutomationType) Valid() bool {
	return t == AutomationTypeRSVP || t == AutomationTypeReminder
}

// TemplateVariables are the variable bindings handed to the provider alongside the template reference
type TemplateVariables map[string]string

// Value implements the driver.Valuer interface for TemplateVariables
func (v TemplateVariables) Value() (driver.Value, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// Scan implements the sql.Scanner interface for TemplateVariables
func (v *TemplateVariables) Scan(value any) error {
	if value == nil {
		*v = TemplateVariables{}
		return nil
	}

	var bytes []byte
	switch val := value.(type) {
	case []byte:
		bytes = val
	case string:
		bytes = []byte(val)
	default:
		return fmt.Errorf("cannot scan %T into TemplateVariables", value)
	}

	return json.Unmarshal(bytes, v)
}

// TargetAudienceFilter narrows the tenant roster down to the automation audience.
// A nil Attendance selects the whole roster.
type TargetAudienceFilter struct {
	Attendance *bool `gorm:"column:attendance" json:"attendance,omitempty"`
}

// CompletionStats is written exactly once, when the automation is finalized
type CompletionStats struct {
	SuccessfulMessages int        `gorm:"not null;default:0" json:"successful_messages"`
	FailedMessages     int        `gorm:"not null;default:0" json:"failed_messages"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// Automation is a scheduled bulk-messaging campaign targeting a filtered audience of one tenant
type Automation struct {
	ID             uint                 `gorm:"primaryKey" json:"id"`
	UUID           uuid.UUID            `gorm:"type:uuid;not null;uniqueIndex:uk_automations_uuid" json:"uuid"`
	TenantID       uint                 `gorm:"not null;index:idx_automations_tenant_id" json:"tenant_id"`
	Name           string               `gorm:"size:255;not null" json:"name"`
	IsActive       *bool                `gorm:"not null;default:true" json:"is_active"`
	Status         AutomationStatus     `gorm:"size:20;not null;default:'pending';index:idx_automations_status_scheduled_at,priority:1" json:"status"`
	Type           AutomationType       `gorm:"size:20;not null" json:"automation_type"`
	ScheduledAt    time.Time            `gorm:"not null;index:idx_automations_status_scheduled_at,priority:2" json:"scheduled_at"`
	TimeZone       string               `gorm:"size:64;not null;default:'UTC'" json:"time_zone"`
	TemplateRef    string               `gorm:"size:128;not null" json:"template_ref"`
	Variables      TemplateVariables    `gorm:"type:jsonb;not null" json:"variables"`
	AudienceFilter TargetAudienceFilter `gorm:"embedded;embeddedPrefix:audience_" json:"target_audience_filter"`
	AudienceSize   *int                 `json:"audience_size,omitempty"`
	SendRecordIDs  pq.Int64Array        `gorm:"type:bigint[];not null;default:'{}'" json:"send_record_ids"`
	Stats          CompletionStats      `gorm:"embedded;embeddedPrefix:completion_" json:"completion_stats"`
	StartedAt      *time.Time           `json:"started_at,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (Automation) TableName() string { return "automations" }

// IsFinalized reports whether completion stats were already written
func (a *Automation) IsFinalized() bool {
	return a.Stats.CompletedAt != nil
}

// DueAt reports whether the trigger condition holds at now.
// Only the absolute instant is compared; TimeZone is kept for display.
func (a *Automation) DueAt(now time.Time) bool {
	return a.IsActive != nil && *a.IsActive &&
		a.Status == AutomationStatusPending &&
		!now.Before(a.ScheduledAt)
}

// HasSendRecord reports whether id is already attached to the automation
func (a *Automation) HasSendRecord(id uint) bool {
	for _, existing := range a.SendRecordIDs {
		if existing == int64(id) {
			return true
		}
	}
	return false
}

// AutomationFilter provides filter fields for repository queries
type AutomationFilter struct {
	ID              *uint
	TenantID        *uint
	Status          *AutomationStatus
	IsActive        *bool
	Type            *AutomationType
	ScheduledBefore *time.Time
	ScheduledAfter  *time.Time
	StartedBefore   *time.Time
}
