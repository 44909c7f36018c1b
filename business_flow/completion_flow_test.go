package businessflow

import (
	"testing"
	"time"

	"github.com/amirphl/wedding-automations/models"
	"github.com/amirphl/wedding-automations/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepForceFinalizesAfterDeliveryTimeout(t *testing.T) {
	h := newHarness(t)
	a, records := h.dispatched(t, models.TargetAudienceFilter{}, nil, nil)
	require.Len(t, records, 2)

	_, err := h.reconciler.Reconcile(testCtx, h.callback(records[0], "delivered", ""))
	require.NoError(t, err)
	_, err = h.reconciler.Reconcile(testCtx, h.callback(records[1], "sent", ""))
	require.NoError(t, err)

	h.clock.Advance(23 * time.Hour)
	finalized, err := h.runner.Sweep(testCtx)
	require.NoError(t, err)
	assert.Zero(t, finalized)
	assert.Equal(t, models.AutomationStatusInProgress, h.store.automation(a.ID).Status)

	h.clock.Advance(2 * time.Hour)
	finalized, err = h.runner.Sweep(testCtx)
	require.NoError(t, err)
	assert.Equal(t, 1, finalized)

	stored := h.store.automation(a.ID)
	assert.Equal(t, models.AutomationStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.Stats.SuccessfulMessages)
	assert.Equal(t, 1, stored.Stats.FailedMessages)

	failures := h.store.failuresOf(a.ID)
	require.Len(t, failures, 1)
	assert.Equal(t, records[1].RecipientID, failures[0].RecipientID)
	assert.Equal(t, models.FailureReasonDeliveryTimeout, failures[0].Reason)
	assert.Equal(t, models.DeliveryTimeoutCode, utils.Deref(failures[0].ErrorCode))
	assert.Contains(t, utils.Deref(failures[0].ErrorMessage), "last status sent")

	// The record itself keeps its provider status
	assert.Equal(t, models.DeliveryStatusSent, h.store.recordsOf(a.ID)[1].Status)
}

func TestTryFinalizeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	a, records := h.dispatched(t, models.TargetAudienceFilter{}, nil, nil)
	_, err := h.reconciler.Reconcile(testCtx, h.callback(records[0], "undelivered", "30003"))
	require.NoError(t, err)
	_, err = h.reconciler.Reconcile(testCtx, h.callback(records[1], "read", ""))
	require.NoError(t, err)

	first := h.store.automation(a.ID)
	require.True(t, first.IsFinalized())
	writes := h.store.writeCount()

	h.clock.Advance(time.Hour)
	res, err := h.completion.TryFinalize(testCtx, a.ID)
	require.NoError(t, err)
	assert.False(t, res.Finalized)
	assert.Equal(t, "already_finalized", res.Reason)
	assert.Equal(t, first.Stats, res.Stats)

	second := h.store.automation(a.ID)
	assert.Equal(t, first.Stats, second.Stats)
	assert.Equal(t, first.Status, second.Status)
	assert.Len(t, h.store.failuresOf(a.ID), 1)
	assert.Equal(t, writes, h.store.writeCount())
}

func TestTryFinalizeWaitsForPendingRecords(t *testing.T) {
	h := newHarness(t)
	a, records := h.dispatched(t, models.TargetAudienceFilter{}, nil, nil)
	_, err := h.reconciler.Reconcile(testCtx, h.callback(records[0], "delivered", ""))
	require.NoError(t, err)

	res, err := h.completion.TryFinalize(testCtx, a.ID)
	require.NoError(t, err)
	assert.False(t, res.Finalized)
	assert.Equal(t, "delivery_pending", res.Reason)
	assert.Equal(t, models.AutomationStatusInProgress, res.Status)
}

func TestTryFinalizeStates(t *testing.T) {
	h := newHarness(t)
	h.roster(nil)

	pending := h.dueAutomation(models.TargetAudienceFilter{})
	res, err := h.completion.TryFinalize(testCtx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, "not_in_progress", res.Reason)

	claimed := h.dueAutomation(models.TargetAudienceFilter{})
	won, err := memAutomationRepo{h.store}.ClaimForDispatch(testCtx, claimed.ID, h.clock.Now())
	require.NoError(t, err)
	require.True(t, won)
	res, err = h.completion.TryFinalize(testCtx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, "dispatch_incomplete", res.Reason)

	_, err = h.completion.TryFinalize(testCtx, 4242)
	assert.True(t, IsAutomationNotFound(err))
}

func TestAggregateClassifiesRecords(t *testing.T) {
	automationID := uint(7)
	records := []*models.SendRecord{
		{ID: 1, AutomationID: &automationID, RecipientID: 11, Status: models.DeliveryStatusDelivered, ProviderMessageID: utils.ToPtr("SM1")},
		{ID: 2, AutomationID: &automationID, RecipientID: 12, Status: models.DeliveryStatusRead, ProviderMessageID: utils.ToPtr("SM2")},
		{ID: 3, AutomationID: &automationID, RecipientID: 13, Status: models.DeliveryStatusFailed, ErrorCode: utils.ToPtr("21211")},
		{ID: 4, AutomationID: &automationID, RecipientID: 14, Status: models.DeliveryStatusUndelivered, ProviderMessageID: utils.ToPtr("SM4"), ErrorCode: utils.ToPtr("30005")},
		{ID: 5, AutomationID: &automationID, RecipientID: 15, Status: models.DeliveryStatusQueued, ProviderMessageID: utils.ToPtr("SM5")},
	}

	stats, failures := aggregate(records)
	assert.Equal(t, 2, stats.SuccessfulMessages)
	assert.Equal(t, 3, stats.FailedMessages)
	require.Len(t, failures, 3)

	want := map[uint]models.FailureReason{
		13: models.FailureReasonProviderRejected,
		14: models.FailureReasonDeliveryFailed,
		15: models.FailureReasonDeliveryTimeout,
	}
	for _, f := range failures {
		assert.Equal(t, want[f.RecipientID], f.Reason, "recipient %d", f.RecipientID)
		assert.Equal(t, automationID, f.AutomationID)
	}
	assert.Equal(t, "30005", utils.Deref(failures[1].ErrorCode))
	assert.Equal(t, models.DeliveryTimeoutCode, utils.Deref(failures[2].ErrorCode))
}

func TestRefreshReportsFinalizeOutcome(t *testing.T) {
	h := newHarness(t)
	a, records := h.dispatched(t, models.TargetAudienceFilter{}, nil)

	resp, err := h.completion.Refresh(testCtx, a.ID)
	require.NoError(t, err)
	assert.False(t, resp.Finalized)
	assert.Equal(t, "delivery_pending", resp.Reason)
	assert.Nil(t, resp.CompletionStats)

	// Land the status without going through the reconciler so Refresh does the finalizing
	ok, err := memSendRecordRepo{h.store}.CompareAndSetStatus(testCtx, records[0].ID,
		models.DeliveryStatusQueued, models.DeliveryStatusDelivered, nil, nil, h.clock.Now())
	require.NoError(t, err)
	require.True(t, ok)

	resp, err = h.completion.Refresh(testCtx, a.ID)
	require.NoError(t, err)
	assert.True(t, resp.Finalized)
	assert.Equal(t, models.AutomationStatusCompleted.String(), resp.Status)
	require.NotNil(t, resp.CompletionStats)
	assert.Equal(t, 1, resp.CompletionStats.SuccessfulMessages)
	assert.Equal(t, testEpoch.Format(time.RFC3339), resp.CompletionStats.CompletedAt)
}
