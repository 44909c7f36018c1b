package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is one wedding. Recipients, automations and send records are partitioned by tenant.
type Tenant struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UUID               uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_tenants_uuid" json:"uuid"`
	Name               string    `gorm:"size:255;not null" json:"name"`
	ProviderAccountRef string    `gorm:"size:64;index:idx_tenants_provider_account_ref" json:"provider_account_ref"`
	TimeZone           string    `gorm:"size:64;not null;default:'UTC'" json:"time_zone"`
	CreatedAt          time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt          time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }

// Recipient is a roster entry of a tenant. Attendance is tri-state: nil means no answer yet.
type Recipient struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TenantID   uint      `gorm:"not null;index:idx_recipients_tenant_id" json:"tenant_id"`
	Name       string    `gorm:"size:255" json:"name"`
	Address    string    `gorm:"size:64;not null" json:"address"`
	Attendance *bool     `json:"attendance,omitempty"`
	CreatedAt  time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt  time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (Recipient) TableName() string { return "recipients" }
