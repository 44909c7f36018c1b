package businessflow

import (
	"testing"

	"github.com/amirphl/wedding-automations/app/dto"
	"github.com/amirphl/wedding-automations/models"
	"github.com/amirphl/wedding-automations/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dispatched triggers a due automation over the given roster and returns its send records
func (h *harness) dispatched(t *testing.T, filter models.TargetAudienceFilter, attendance ...*bool) (*models.Automation, []*models.SendRecord) {
	t.Helper()
	h.roster(attendance...)
	a := h.dueAutomation(filter)
	resp, err := h.runner.Trigger(testCtx, a.ID)
	require.NoError(t, err)
	require.Equal(t, TriggerOutcomeDispatched, resp.Outcome)
	return a, h.store.recordsOf(a.ID)
}

func TestReconcileConfirmedGuestsWithOneUndeliverable(t *testing.T) {
	h := newHarness(t)
	a, records := h.dispatched(t,
		models.TargetAudienceFilter{Attendance: utils.ToPtr(true)},
		bptr(true), nil, bptr(false), bptr(true), nil,
	)
	require.Len(t, records, 2)
	assert.EqualValues(t, 2, h.provider.Calls())

	resp, err := h.reconciler.Reconcile(testCtx, h.callback(records[0], "delivered", ""))
	require.NoError(t, err)
	assert.True(t, resp.Matched)
	assert.True(t, resp.Applied)
	assert.False(t, resp.AutomationFinalized)
	assert.Equal(t, models.AutomationStatusInProgress, h.store.automation(a.ID).Status)

	cb := h.callback(records[1], "failed", "30007")
	cb.ErrorMessage = "Message filtered"
	resp, err = h.reconciler.Reconcile(testCtx, cb)
	require.NoError(t, err)
	assert.True(t, resp.Applied)
	assert.True(t, resp.AutomationFinalized)

	stored := h.store.automation(a.ID)
	assert.Equal(t, models.AutomationStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.Stats.SuccessfulMessages)
	assert.Equal(t, 1, stored.Stats.FailedMessages)
	require.NotNil(t, stored.Stats.CompletedAt)
	assert.Equal(t, h.clock.Now(), *stored.Stats.CompletedAt)

	failures := h.store.failuresOf(a.ID)
	require.Len(t, failures, 1)
	assert.Equal(t, records[1].RecipientID, failures[0].RecipientID)
	assert.Equal(t, models.FailureReasonDeliveryFailed, failures[0].Reason)
	assert.Equal(t, "30007", utils.Deref(failures[0].ErrorCode))
	assert.Equal(t, "Message filtered", utils.Deref(failures[0].ErrorMessage))
	assert.Equal(t, records[1].ProviderMessageID, failures[0].ProviderMessageID)
}

func TestReconcileUnknownProviderMessageID(t *testing.T) {
	h := newHarness(t)
	h.dispatched(t, models.TargetAudienceFilter{}, nil, nil)
	writes := h.store.writeCount()

	_, err := h.reconciler.Reconcile(testCtx, &dto.DeliveryStatusCallbackRequest{
		ProviderMessageID: "SMdoesnotexist",
		Status:            "delivered",
		AccountRef:        h.tenant.ProviderAccountRef,
	})
	require.Error(t, err)
	assert.True(t, IsSendRecordNotFound(err))
	assert.Equal(t, writes, h.store.writeCount())
}

func TestReconcileDuplicateTerminalCallbackIsNoop(t *testing.T) {
	h := newHarness(t)
	_, records := h.dispatched(t, models.TargetAudienceFilter{}, nil, nil)

	_, err := h.reconciler.Reconcile(testCtx, h.callback(records[0], "delivered", ""))
	require.NoError(t, err)
	writes := h.store.writeCount()

	resp, err := h.reconciler.Reconcile(testCtx, h.callback(records[0], "delivered", ""))
	require.NoError(t, err)
	assert.True(t, resp.Matched)
	assert.False(t, resp.Applied)
	assert.Equal(t, "delivered", resp.Status)
	assert.Equal(t, writes, h.store.writeCount())
}

func TestReconcileTerminalStatusIsNeverRegressed(t *testing.T) {
	h := newHarness(t)
	_, records := h.dispatched(t, models.TargetAudienceFilter{}, nil, nil)

	_, err := h.reconciler.Reconcile(testCtx, h.callback(records[0], "delivered", ""))
	require.NoError(t, err)

	for _, late := range []string{"sent", "queued", "failed"} {
		resp, err := h.reconciler.Reconcile(testCtx, h.callback(records[0], late, ""))
		require.NoError(t, err)
		if late == "failed" {
			// terminal to terminal is allowed
			assert.True(t, resp.Applied)
			continue
		}
		assert.False(t, resp.Applied, late)
		assert.Equal(t, "delivered", resp.Status)
	}
}

func TestReconcileOutOfOrderPendingStatuses(t *testing.T) {
	h := newHarness(t)
	_, records := h.dispatched(t, models.TargetAudienceFilter{}, nil)

	resp, err := h.reconciler.Reconcile(testCtx, h.callback(records[0], "sent", ""))
	require.NoError(t, err)
	assert.True(t, resp.Applied)

	resp, err = h.reconciler.Reconcile(testCtx, h.callback(records[0], "sending", ""))
	require.NoError(t, err)
	assert.False(t, resp.Applied)
	assert.Equal(t, "sent", resp.Status)
}

func TestReconcileValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		req  *dto.DeliveryStatusCallbackRequest
		want error
	}{
		{
			name: "missing provider message id",
			req:  &dto.DeliveryStatusCallbackRequest{Status: "delivered"},
			want: ErrProviderMessageIDRequired,
		},
		{
			name: "blank provider message id",
			req:  &dto.DeliveryStatusCallbackRequest{ProviderMessageID: "   ", Status: "delivered"},
			want: ErrProviderMessageIDRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.reconciler.Reconcile(testCtx, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestReconcileBlankStatusIsAcknowledged(t *testing.T) {
	h := newHarness(t)
	a, records := h.dispatched(t, models.TargetAudienceFilter{}, nil)
	writes := h.store.writeCount()

	for _, status := range []string{"", "   "} {
		resp, err := h.reconciler.Reconcile(testCtx, h.callback(records[0], status, ""))
		require.NoError(t, err)
		assert.True(t, resp.Matched)
		assert.False(t, resp.Applied)
		assert.False(t, resp.KnownStatus)
		assert.Equal(t, "queued", resp.Status)
	}

	assert.Equal(t, writes, h.store.writeCount())
	assert.Equal(t, models.DeliveryStatusQueued, h.store.recordsOf(a.ID)[0].Status)
	assert.Equal(t, models.AutomationStatusInProgress, h.store.automation(a.ID).Status)
}

func TestReconcileScatterLookupBackfillsIndex(t *testing.T) {
	h := newHarness(t)
	// Extra tenants so the scatter walks more than one page
	for i := 0; i < 4; i++ {
		h.store.addTenant("other couple", "")
	}
	_, records := h.dispatched(t, models.TargetAudienceFilter{}, nil)
	pmid := *records[0].ProviderMessageID
	h.index.forget(pmid)

	tests := []struct {
		name       string
		accountRef string
	}{
		{name: "without account ref", accountRef: ""},
		{name: "with account ref", accountRef: h.tenant.ProviderAccountRef},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.index.forget(pmid)
			resp, err := h.reconciler.Reconcile(testCtx, &dto.DeliveryStatusCallbackRequest{
				ProviderMessageID: pmid,
				Status:            "sending",
				AccountRef:        tt.accountRef,
			})
			require.NoError(t, err)
			assert.True(t, resp.Matched)
			assert.Equal(t, records[0].ID, utils.Deref(resp.SendRecordID))

			ref, err := h.index.Get(testCtx, pmid)
			require.NoError(t, err)
			require.NotNil(t, ref)
			assert.Equal(t, h.tenant.ID, ref.TenantID)
			assert.Equal(t, records[0].ID, ref.SendRecordID)
		})
	}
}

func TestReconcileUnknownStatusIsStoredButNotTerminal(t *testing.T) {
	h := newHarness(t)
	a, records := h.dispatched(t, models.TargetAudienceFilter{}, nil)

	resp, err := h.reconciler.Reconcile(testCtx, h.callback(records[0], "partially_delivered", ""))
	require.NoError(t, err)
	assert.True(t, resp.Applied)
	assert.False(t, resp.KnownStatus)
	assert.False(t, resp.AutomationFinalized)

	stored := h.store.recordsOf(a.ID)
	assert.Equal(t, models.DeliveryStatus("partially_delivered"), stored[0].Status)
	assert.Equal(t, models.AutomationStatusInProgress, h.store.automation(a.ID).Status)
}

func TestReconcileStatusIsCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	a, records := h.dispatched(t, models.TargetAudienceFilter{}, nil)

	resp, err := h.reconciler.Reconcile(testCtx, h.callback(records[0], "  DELIVERED ", ""))
	require.NoError(t, err)
	assert.True(t, resp.KnownStatus)
	assert.Equal(t, "delivered", resp.Status)
	assert.True(t, resp.AutomationFinalized)

	stored := h.store.automation(a.ID)
	assert.Equal(t, models.AutomationStatusCompleted, stored.Status)
	assert.Equal(t, 1, stored.Stats.SuccessfulMessages)
	assert.Empty(t, h.store.failuresOf(a.ID))
}

func TestReconcileFinalizeErrorIsSwallowed(t *testing.T) {
	h := newHarness(t)
	a, records := h.dispatched(t, models.TargetAudienceFilter{}, nil)
	h.store.mu.Lock()
	h.store.failFinalize = assert.AnError
	h.store.mu.Unlock()

	resp, err := h.reconciler.Reconcile(testCtx, h.callback(records[0], "delivered", ""))
	require.NoError(t, err)
	assert.True(t, resp.Applied)
	assert.False(t, resp.AutomationFinalized)

	h.store.mu.Lock()
	h.store.failFinalize = nil
	h.store.mu.Unlock()

	finalized, err := h.runner.Sweep(testCtx)
	require.NoError(t, err)
	assert.Equal(t, 1, finalized)
	assert.Equal(t, models.AutomationStatusCompleted, h.store.automation(a.ID).Status)
}
