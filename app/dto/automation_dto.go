package dto

import "time"

// CreateAutomationRequest represents the operator request to schedule an automation
type CreateAutomationRequest struct {
	TenantID    uint              `json:"tenant_id" validate:"required,gt=0"`
	Name        string            `json:"name" validate:"required,max=255"`
	Type        string            `json:"automation_type" validate:"required,oneof=rsvp reminder"`
	ScheduledAt time.Time         `json:"scheduled_at" validate:"required"`
	TimeZone    string            `json:"time_zone" validate:"required,max=64"`
	TemplateRef string            `json:"template_ref" validate:"required,max=128"`
	Variables   map[string]string `json:"variables,omitempty"`
	Attendance  *bool             `json:"attendance,omitempty"`
	IsActive    *bool             `json:"is_active,omitempty"`
}

// GenerateAutomationsRequest asks for the default rsvp and reminder automations of an event
type GenerateAutomationsRequest struct {
	TenantID            uint              `json:"tenant_id" validate:"required,gt=0"`
	EventAt             time.Time         `json:"event_at" validate:"required"`
	TimeZone            string            `json:"time_zone" validate:"required,max=64"`
	RSVPTemplateRef     string            `json:"rsvp_template_ref" validate:"required,max=128"`
	ReminderTemplateRef string            `json:"reminder_template_ref" validate:"required,max=128"`
	Variables           map[string]string `json:"variables,omitempty"`
}

// SetAutomationActiveRequest toggles isActive of a pending automation
type SetAutomationActiveRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

type CompletionStatsDTO struct {
	SuccessfulMessages int    `json:"successful_messages"`
	FailedMessages     int    `json:"failed_messages"`
	CompletedAt        string `json:"completed_at"`
}

type FailureDetailDTO struct {
	RecipientID       uint    `json:"recipient_id"`
	SendRecordID      *uint   `json:"send_record_id,omitempty"`
	Address           string  `json:"address"`
	ProviderMessageID *string `json:"provider_message_id,omitempty"`
	Reason            string  `json:"reason"`
	ErrorCode         *string `json:"error_code,omitempty"`
	ErrorMessage      *string `json:"error_message,omitempty"`
}

// AutomationResponse is the operator view of an automation
type AutomationResponse struct {
	ID               uint                `json:"id"`
	UUID             string              `json:"uuid"`
	TenantID         uint                `json:"tenant_id"`
	Name             string              `json:"name"`
	IsActive         bool                `json:"is_active"`
	Status           string              `json:"status"`
	Type             string              `json:"automation_type"`
	ScheduledAt      string              `json:"scheduled_at"`
	ScheduledAtLocal string              `json:"scheduled_at_local"`
	TimeZone         string              `json:"time_zone"`
	TemplateRef      string              `json:"template_ref"`
	Variables        map[string]string   `json:"variables,omitempty"`
	Attendance       *bool               `json:"attendance,omitempty"`
	AudienceSize     *int                `json:"audience_size,omitempty"`
	SendRecordIDs    []int64             `json:"send_record_ids"`
	StartedAt        *string             `json:"started_at,omitempty"`
	CompletionStats  *CompletionStatsDTO `json:"completion_stats,omitempty"`
	FailureDetails   []FailureDetailDTO  `json:"failure_details,omitempty"`
	CreatedAt        string              `json:"created_at"`
}

type GenerateAutomationsResponse struct {
	Message     string               `json:"message"`
	Automations []AutomationResponse `json:"automations"`
}

// TriggerAutomationResponse reports what a trigger or resume did
type TriggerAutomationResponse struct {
	ID         uint   `json:"id"`
	Outcome    string `json:"outcome"` // dispatched, skipped, conflict
	Reason     string `json:"reason,omitempty"`
	Status     string `json:"status"`
	Audience   int    `json:"audience"`
	Accepted   int    `json:"accepted"`
	Rejected   int    `json:"rejected"`
	Duplicates int    `json:"duplicates"`
	Deferred   int    `json:"deferred"`
}

// RefreshAutomationResponse reports the outcome of a finalize attempt
type RefreshAutomationResponse struct {
	ID              uint                `json:"id"`
	Finalized       bool                `json:"finalized"`
	Status          string              `json:"status"`
	Reason          string              `json:"reason,omitempty"`
	CompletionStats *CompletionStatsDTO `json:"completion_stats,omitempty"`
}
