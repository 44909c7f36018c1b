package businessflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/wedding-automations/app/dto"
	"github.com/amirphl/wedding-automations/app/services"
	"github.com/amirphl/wedding-automations/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	store      *memStore
	index      *memIndex
	provider   *services.MockMessageProvider
	clock      *fakeClock
	dispatcher Dispatcher
	completion *CompletionFlowImpl
	runner     *AutomationFlowImpl
	reconciler *ReconcileFlowImpl
	tenant     *models.Tenant
}

var testEpoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := newMemStore()
	index := newMemIndex()
	logger := zerolog.Nop()
	provider := services.NewMockMessageProvider(logger)
	clock := &fakeClock{t: testEpoch}

	automationRepo := memAutomationRepo{store}
	sendRecordRepo := memSendRecordRepo{store}
	tenantRepo := memTenantRepo{store}

	dispatcher := NewDispatcher(sendRecordRepo, index, provider, nil, "https://hooks.example.com/status", logger)

	completion, ok := NewCompletionFlow(automationRepo, sendRecordRepo, 24*time.Hour, logger).(*CompletionFlowImpl)
	require.True(t, ok)
	completion.now = clock.Now

	runner, ok := NewAutomationFlow(
		automationRepo,
		sendRecordRepo,
		tenantRepo,
		memRecipientRepo{store},
		dispatcher,
		completion,
		RunnerConfig{Concurrency: 4, ResumeStaleAfter: 10 * time.Minute, BatchSize: 2},
		logger,
	).(*AutomationFlowImpl)
	require.True(t, ok)
	runner.now = clock.Now

	reconciler, ok := NewReconcileFlow(sendRecordRepo, tenantRepo, index, completion, 2, logger).(*ReconcileFlowImpl)
	require.True(t, ok)
	reconciler.now = clock.Now

	return &harness{
		store:      store,
		index:      index,
		provider:   provider,
		clock:      clock,
		dispatcher: dispatcher,
		completion: completion,
		runner:     runner,
		reconciler: reconciler,
		tenant:     store.addTenant("Ana & Ben", "AC-ana-ben"),
	}
}

// roster adds one recipient per attendance value to the harness tenant
func (h *harness) roster(attendance ...*bool) []*models.Recipient {
	out := make([]*models.Recipient, 0, len(attendance))
	for _, a := range attendance {
		out = append(out, h.store.addRecipient(h.tenant.ID, "guest", a))
	}
	return out
}

// dueAutomation adds an automation scheduled one minute before the current clock
func (h *harness) dueAutomation(filter models.TargetAudienceFilter) *models.Automation {
	return h.store.addAutomation(h.tenant.ID, h.clock.Now().Add(-time.Minute), filter)
}

func (h *harness) callback(record *models.SendRecord, status, errorCode string) *dto.DeliveryStatusCallbackRequest {
	return &dto.DeliveryStatusCallbackRequest{
		ProviderMessageID: *record.ProviderMessageID,
		Status:            status,
		AccountRef:        h.tenant.ProviderAccountRef,
		ErrorCode:         errorCode,
	}
}

func bptr(b bool) *bool { return &b }

var testCtx = context.Background()
