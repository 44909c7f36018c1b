package businessflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/wedding-automations/app/services"
	"github.com/amirphl/wedding-automations/models"
	"github.com/amirphl/wedding-automations/repository"
	"github.com/amirphl/wedding-automations/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrorCodeProviderUnreachable is recorded when the provider call fails without a provider code
const ErrorCodeProviderUnreachable = "provider-unreachable"

// DispatchInput is one recipient's message
type DispatchInput struct {
	TenantID     uint
	AccountRef   string
	AutomationID *uint
	Recipient    *models.Recipient
	TemplateRef  string
	Variables    models.TemplateVariables
}

// Dispatcher sends one message and keeps its durable send record.
// The returned record is non-nil whenever a record was written, even on failure.
// A caller cancelled before the provider call gets ErrDispatchDeferred and no record.
type Dispatcher interface {
	Dispatch(ctx context.Context, in DispatchInput) (*models.SendRecord, error)
}

// DispatcherImpl implements Dispatcher
type DispatcherImpl struct {
	sendRecordRepo repository.SendRecordRepository
	index          repository.ProviderMessageIndex
	provider       services.MessageProvider
	limiter        *rate.Limiter
	callbackURL    string
	logger         zerolog.Logger
}

// NewDispatcher creates a new dispatcher. index and limiter may be nil.
func NewDispatcher(
	sendRecordRepo repository.SendRecordRepository,
	index repository.ProviderMessageIndex,
	provider services.MessageProvider,
	limiter *rate.Limiter,
	callbackURL string,
	logger zerolog.Logger,
) Dispatcher {
	return &DispatcherImpl{
		sendRecordRepo: sendRecordRepo,
		index:          index,
		provider:       provider,
		limiter:        limiter,
		callbackURL:    callbackURL,
		logger:         logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch waits for the provider rate limit, writes a queued send record, calls the
// provider and records the outcome. A recipient that already has a record in the
// automation yields ErrSendRecordExists and no provider call.
func (d *DispatcherImpl) Dispatch(ctx context.Context, in DispatchInput) (*models.SendRecord, error) {
	if in.Recipient == nil {
		return nil, NewBusinessError("RECIPIENT_REQUIRED", "Recipient is required", ErrValidation)
	}
	if in.TemplateRef == "" {
		return nil, NewBusinessError("TEMPLATE_REF_REQUIRED", "Template reference is required", ErrTemplateRefRequired)
	}

	record := &models.SendRecord{
		CorrelationID: uuid.New(),
		TenantID:      in.TenantID,
		AutomationID:  in.AutomationID,
		RecipientID:   in.Recipient.ID,
		Status:        models.DeliveryStatusQueued,
		Address:       in.Recipient.Address,
		TemplateRef:   in.TemplateRef,
		Variables:     recipientVariables(in.Variables, in.Recipient),
	}

	if err := d.wait(ctx); err != nil {
		return nil, err
	}

	if err := d.sendRecordRepo.Save(ctx, record); err != nil {
		if ctx.Err() != nil {
			return nil, deferredError(ctx.Err())
		}
		if errors.Is(err, repository.ErrDuplicate) {
			dispatchTotal.WithLabelValues("duplicate").Inc()
			return nil, ErrSendRecordExists
		}
		dispatchTotal.WithLabelValues("error").Inc()
		return nil, NewBusinessError("SEND_RECORD_CREATE_FAILED", "Failed to create send record", err)
	}

	// The record is durable now; outcome writes must survive a cancelled caller
	writeCtx := context.WithoutCancel(ctx)

	start := time.Now()
	result, err := d.provider.Send(ctx, services.SendRequest{
		To:             record.Address,
		TemplateRef:    record.TemplateRef,
		Variables:      record.Variables,
		StatusCallback: d.callbackURL,
		AccountRef:     in.AccountRef,
	})
	dispatchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		var perr *services.ProviderError
		if errors.As(err, &perr) {
			return record, d.fail(writeCtx, record, perr.Code, perr.Message, err)
		}
		return record, d.fail(writeCtx, record, ErrorCodeProviderUnreachable, err.Error(), err)
	}

	status := result.Status
	if status == "" || status.IsTerminal() {
		status = models.DeliveryStatusQueued
	}
	if err := d.sendRecordRepo.MarkAccepted(writeCtx, record.ID, result.MessageID, status); err != nil {
		dispatchTotal.WithLabelValues("error").Inc()
		d.logger.Error().Err(err).
			Uint("send_record_id", record.ID).
			Str("provider_message_id", result.MessageID).
			Msg("provider accepted message but the send record update failed")
		return record, NewBusinessError("SEND_RECORD_UPDATE_FAILED", "Failed to store provider acceptance", err)
	}
	record.ProviderMessageID = utils.ToPtr(result.MessageID)
	record.Status = status

	if d.index != nil {
		ref := repository.ProviderMessageRef{TenantID: record.TenantID, SendRecordID: record.ID}
		if err := d.index.Put(writeCtx, result.MessageID, ref); err != nil {
			d.logger.Warn().Err(err).Str("provider_message_id", result.MessageID).Msg("failed to index provider message id")
		}
	}

	dispatchTotal.WithLabelValues("accepted").Inc()
	return record, nil
}

// wait holds the caller until the provider rate limit admits one more send
func (d *DispatcherImpl) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return deferredError(err)
	}
	if d.limiter == nil {
		return nil
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return deferredError(err)
	}
	return nil
}

func deferredError(cause error) error {
	dispatchTotal.WithLabelValues("deferred").Inc()
	return NewBusinessError("DISPATCH_DEFERRED", "Dispatch deferred before reaching the provider",
		fmt.Errorf("%w: %w", ErrDispatchDeferred, cause))
}

func (d *DispatcherImpl) fail(ctx context.Context, record *models.SendRecord, code, message string, cause error) error {
	dispatchTotal.WithLabelValues("rejected").Inc()

	if err := d.sendRecordRepo.MarkRejected(ctx, record.ID, code, message); err != nil {
		d.logger.Error().Err(err).Uint("send_record_id", record.ID).Msg("failed to mark send record rejected")
	} else {
		record.Status = models.DeliveryStatusFailed
		record.ErrorCode = utils.ToPtr(code)
		record.ErrorMessage = utils.ToPtr(message)
	}

	d.logger.Info().
		Uint("send_record_id", record.ID).
		Uint("recipient_id", record.RecipientID).
		Str("error_code", code).
		Msg("dispatch rejected")

	return &DispatchError{
		RecipientID:  record.RecipientID,
		Address:      record.Address,
		SendRecordID: utils.ToPtr(record.ID),
		Code:         code,
		Message:      message,
		Err:          cause,
	}
}

// recipientVariables binds the recipient name unless the automation already sets it
func recipientVariables(base models.TemplateVariables, r *models.Recipient) models.TemplateVariables {
	out := make(models.TemplateVariables, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	if _, ok := out["name"]; !ok && r.Name != "" {
		out["name"] = r.Name
	}
	return out
}
