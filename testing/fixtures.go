package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/amirphl/wedding-automations/models"
	"github.com/amirphl/wedding-automations/utils"
	"github.com/google/uuid"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestTenant creates a wedding tenant with a random provider account reference
func (tf *TestFixtures) CreateTestTenant(name string) (*models.Tenant, error) {
	tenant := &models.Tenant{
		UUID:               uuid.New(),
		Name:               name,
		ProviderAccountRef: fmt.Sprintf("AC%032x", rand.Int63()),
		TimeZone:           "UTC",
	}
	if err := tf.DB.DB.Create(tenant).Error; err != nil {
		return nil, fmt.Errorf("failed to create test tenant: %w", err)
	}
	return tenant, nil
}

// CreateTestRecipients creates one recipient per attendance value
func (tf *TestFixtures) CreateTestRecipients(tenantID uint, attendance ...*bool) ([]*models.Recipient, error) {
	out := make([]*models.Recipient, 0, len(attendance))
	for i, a := range attendance {
		r := &models.Recipient{
			TenantID:   tenantID,
			Name:       fmt.Sprintf("Guest %d", i+1),
			Address:    fmt.Sprintf("+1555%07d", rand.Intn(10000000)),
			Attendance: a,
		}
		if err := tf.DB.DB.Create(r).Error; err != nil {
			return nil, fmt.Errorf("failed to create test recipient: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// CreateTestAutomation creates a pending, active rsvp automation scheduled at scheduledAt
func (tf *TestFixtures) CreateTestAutomation(tenantID uint, scheduledAt time.Time) (*models.Automation, error) {
	a := &models.Automation{
		UUID:        uuid.New(),
		TenantID:    tenantID,
		Name:        "Test RSVP",
		IsActive:    utils.ToPtr(true),
		Status:      models.AutomationStatusPending,
		Type:        models.AutomationTypeRSVP,
		ScheduledAt: scheduledAt.UTC(),
		TimeZone:    "UTC",
		TemplateRef: "HXrsvp",
		Variables:   models.TemplateVariables{"couple": "Ana & Ben"},
	}
	if err := tf.DB.DB.Create(a).Error; err != nil {
		return nil, fmt.Errorf("failed to create test automation: %w", err)
	}
	return a, nil
}

// CreateTestSendRecord creates a queued send record for a recipient of an automation
func (tf *TestFixtures) CreateTestSendRecord(tenantID uint, automationID *uint, recipient *models.Recipient) (*models.SendRecord, error) {
	r := &models.SendRecord{
		CorrelationID: uuid.New(),
		TenantID:      tenantID,
		AutomationID:  automationID,
		RecipientID:   recipient.ID,
		Status:        models.DeliveryStatusQueued,
		Address:       recipient.Address,
		TemplateRef:   "HXrsvp",
		Variables:     models.TemplateVariables{},
	}
	if err := tf.DB.DB.Create(r).Error; err != nil {
		return nil, fmt.Errorf("failed to create test send record: %w", err)
	}
	return r, nil
}
