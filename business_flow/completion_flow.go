package businessflow

import (
	"context"
	"time"

	"github.com/amirphl/wedding-automations/app/dto"
	"github.com/amirphl/wedding-automations/models"
	"github.com/amirphl/wedding-automations/repository"
	"github.com/amirphl/wedding-automations/utils"
	"github.com/rs/zerolog"
)

// Reasons a finalize attempt did not finalize
const (
	finalizeReasonAlreadyFinalized = "already_finalized"
	finalizeReasonNotInProgress    = "not_in_progress"
	finalizeReasonDispatchPending  = "dispatch_incomplete"
	finalizeReasonDeliveryPending  = "delivery_pending"
	finalizeReasonLostRace         = "finalized_concurrently"
)

// FinalizeResult is the outcome of one finalize attempt
type FinalizeResult struct {
	Finalized bool
	Status    models.AutomationStatus
	Stats     models.CompletionStats
	Reason    string
}

// CompletionFlow aggregates delivery results into completion stats
type CompletionFlow interface {
	// TryFinalize finalizes the automation when every associated record is terminal
	// or the delivery timeout has elapsed. Safe to call any number of times.
	TryFinalize(ctx context.Context, automationID uint) (*FinalizeResult, error)
	// Refresh is the operator status-refresh command
	Refresh(ctx context.Context, automationID uint) (*dto.RefreshAutomationResponse, error)
}

// CompletionFlowImpl implements CompletionFlow
type CompletionFlowImpl struct {
	automationRepo  repository.AutomationRepository
	sendRecordRepo  repository.SendRecordRepository
	deliveryTimeout time.Duration
	logger          zerolog.Logger
	now             func() time.Time
}

// NewCompletionFlow creates a new completion flow
func NewCompletionFlow(
	automationRepo repository.AutomationRepository,
	sendRecordRepo repository.SendRecordRepository,
	deliveryTimeout time.Duration,
	logger zerolog.Logger,
) CompletionFlow {
	return &CompletionFlowImpl{
		automationRepo:  automationRepo,
		sendRecordRepo:  sendRecordRepo,
		deliveryTimeout: deliveryTimeout,
		logger:          logger.With().Str("component", "aggregator").Logger(),
		now:             utils.UTCNow,
	}
}

func (f *CompletionFlowImpl) TryFinalize(ctx context.Context, automationID uint) (*FinalizeResult, error) {
	automation, err := f.automationRepo.ByID(ctx, automationID)
	if err != nil {
		return nil, NewBusinessError("AUTOMATION_LOOKUP_FAILED", "Failed to lookup automation", err)
	}
	if automation == nil {
		return nil, NewBusinessError("AUTOMATION_NOT_FOUND", "Automation not found", ErrAutomationNotFound)
	}

	if automation.IsFinalized() {
		return &FinalizeResult{Status: automation.Status, Stats: automation.Stats, Reason: finalizeReasonAlreadyFinalized}, nil
	}
	if automation.Status != models.AutomationStatusInProgress {
		return &FinalizeResult{Status: automation.Status, Reason: finalizeReasonNotInProgress}, nil
	}

	now := f.now()
	timedOut := !now.Before(automation.ScheduledAt.Add(f.deliveryTimeout))
	dispatched := automation.AudienceSize != nil && len(automation.SendRecordIDs) >= *automation.AudienceSize

	if !timedOut && !dispatched {
		return &FinalizeResult{Status: automation.Status, Reason: finalizeReasonDispatchPending}, nil
	}

	ids := make([]uint, 0, len(automation.SendRecordIDs))
	for _, id := range automation.SendRecordIDs {
		ids = append(ids, uint(id))
	}
	records, err := f.sendRecordRepo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, NewBusinessError("SEND_RECORDS_LOOKUP_FAILED", "Failed to load send records", err)
	}

	if !timedOut {
		for _, r := range records {
			if !r.Status.IsTerminal() {
				return &FinalizeResult{Status: automation.Status, Reason: finalizeReasonDeliveryPending}, nil
			}
		}
	}

	stats, failures := aggregate(records)
	stats.CompletedAt = utils.ToPtr(now)

	status := models.AutomationStatusCompleted
	if stats.FailedMessages > 0 {
		status = models.AutomationStatusFailed
	}

	won, err := f.automationRepo.Finalize(ctx, automation.ID, status, stats, failures)
	if err != nil {
		return nil, NewBusinessError("AUTOMATION_FINALIZE_FAILED", "Failed to finalize automation", err)
	}
	if !won {
		return &FinalizeResult{Status: automation.Status, Reason: finalizeReasonLostRace}, nil
	}

	cause := "complete"
	if timedOut {
		cause = "timeout"
	}
	finalizeTotal.WithLabelValues(status.String(), cause).Inc()

	f.logger.Info().
		Uint("automation_id", automation.ID).
		Str("status", status.String()).
		Str("cause", cause).
		Int("successful", stats.SuccessfulMessages).
		Int("failed", stats.FailedMessages).
		Msg("automation finalized")

	return &FinalizeResult{Finalized: true, Status: status, Stats: stats}, nil
}

func (f *CompletionFlowImpl) Refresh(ctx context.Context, automationID uint) (*dto.RefreshAutomationResponse, error) {
	res, err := f.TryFinalize(ctx, automationID)
	if err != nil {
		return nil, err
	}

	resp := &dto.RefreshAutomationResponse{
		ID:        automationID,
		Finalized: res.Finalized,
		Status:    res.Status.String(),
		Reason:    res.Reason,
	}
	if res.Stats.CompletedAt != nil {
		resp.CompletionStats = toCompletionStatsDTO(res.Stats)
	}
	return resp, nil
}

// aggregate counts terminal outcomes. Anything not a terminal success is a failure:
// a rejected send, a failed delivery, or a record still pending when the timeout hit.
func aggregate(records []*models.SendRecord) (models.CompletionStats, []*models.FailureDetail) {
	var stats models.CompletionStats
	failures := make([]*models.FailureDetail, 0)

	for _, r := range records {
		if r.Status.IsSuccess() {
			stats.SuccessfulMessages++
			continue
		}
		stats.FailedMessages++

		detail := &models.FailureDetail{
			AutomationID:      utils.Deref(r.AutomationID),
			RecipientID:       r.RecipientID,
			SendRecordID:      utils.ToPtr(r.ID),
			Address:           r.Address,
			ProviderMessageID: r.ProviderMessageID,
			ErrorCode:         r.ErrorCode,
			ErrorMessage:      r.ErrorMessage,
		}
		switch {
		case r.Status.IsFailure() && r.ProviderMessageID == nil:
			detail.Reason = models.FailureReasonProviderRejected
		case r.Status.IsFailure():
			detail.Reason = models.FailureReasonDeliveryFailed
		default:
			detail.Reason = models.FailureReasonDeliveryTimeout
			detail.ErrorCode = utils.ToPtr(models.DeliveryTimeoutCode)
			detail.ErrorMessage = utils.ToPtr(ErrDeliveryTimeout.Error() + ": last status " + r.Status.String())
		}
		failures = append(failures, detail)
	}

	return stats, failures
}

func toCompletionStatsDTO(s models.CompletionStats) *dto.CompletionStatsDTO {
	out := &dto.CompletionStatsDTO{
		SuccessfulMessages: s.SuccessfulMessages,
		FailedMessages:     s.FailedMessages,
	}
	if s.CompletedAt != nil {
		out.CompletedAt = s.CompletedAt.UTC().Format(time.RFC3339)
	}
	return out
}
