package businessflow

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/amirphl/wedding-automations/app/dto"
	"github.com/amirphl/wedding-automations/models"
	"github.com/amirphl/wedding-automations/repository"
	"github.com/amirphl/wedding-automations/utils"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	scatterConcurrency = 8
	maxStatusCASRetry  = 3
)

var errFound = errors.New("found")

// ReconcileFlow applies provider delivery-status callbacks to send records
type ReconcileFlow interface {
	Reconcile(ctx context.Context, req *dto.DeliveryStatusCallbackRequest) (*dto.DeliveryStatusCallbackResponse, error)
}

// ReconcileFlowImpl implements ReconcileFlow
type ReconcileFlowImpl struct {
	sendRecordRepo repository.SendRecordRepository
	tenantRepo     repository.TenantRepository
	index          repository.ProviderMessageIndex
	completion     CompletionFlow
	pageSize       int
	logger         zerolog.Logger
	now            func() time.Time
}

// NewReconcileFlow creates a new reconcile flow. index may be nil.
func NewReconcileFlow(
	sendRecordRepo repository.SendRecordRepository,
	tenantRepo repository.TenantRepository,
	index repository.ProviderMessageIndex,
	completion CompletionFlow,
	pageSize int,
	logger zerolog.Logger,
) ReconcileFlow {
	if pageSize < 1 {
		pageSize = 100
	}
	return &ReconcileFlowImpl{
		sendRecordRepo: sendRecordRepo,
		tenantRepo:     tenantRepo,
		index:          index,
		completion:     completion,
		pageSize:       pageSize,
		logger:         logger.With().Str("component", "reconciler").Logger(),
		now:            utils.UTCNow,
	}
}

// Reconcile locates the send record by provider message id and moves its status forward.
// Stale, duplicate and blank-status callbacks succeed without writing.
func (f *ReconcileFlowImpl) Reconcile(ctx context.Context, req *dto.DeliveryStatusCallbackRequest) (*dto.DeliveryStatusCallbackResponse, error) {
	providerMessageID := strings.TrimSpace(req.ProviderMessageID)
	if providerMessageID == "" {
		reconcileTotal.WithLabelValues("invalid").Inc()
		return nil, NewBusinessError("PROVIDER_MESSAGE_ID_REQUIRED", "Provider message id is required", ErrProviderMessageIDRequired)
	}
	log := f.logger.With().Str("provider_message_id", providerMessageID).Logger()

	status, known := models.CanonicalDeliveryStatus(req.Status)
	if !known && status != "" {
		unknownStatusTotal.WithLabelValues(status.String()).Inc()
		log.Warn().Str("status", status.String()).Msg("unknown delivery status")
	}

	record, err := f.locate(ctx, providerMessageID, strings.TrimSpace(req.AccountRef))
	if err != nil {
		return nil, NewBusinessError("SEND_RECORD_LOOKUP_FAILED", "Failed to lookup send record", err)
	}
	if record == nil {
		reconcileTotal.WithLabelValues("not_found").Inc()
		log.Info().Str("account_ref", req.AccountRef).Msg("no send record matches provider message id")
		return nil, NewBusinessError("SEND_RECORD_NOT_FOUND", "Send record not found", ErrSendRecordNotFound)
	}

	resp := &dto.DeliveryStatusCallbackResponse{
		Matched:      true,
		SendRecordID: utils.ToPtr(record.ID),
		KnownStatus:  known,
	}

	var errorCode, errorMessage *string
	if status.IsFailure() {
		if c := strings.TrimSpace(req.ErrorCode); c != "" {
			errorCode = utils.ToPtr(c)
		}
		if m := strings.TrimSpace(req.ErrorMessage); m != "" {
			errorMessage = utils.ToPtr(m)
		}
	}

	result := "stale"
	if status == "" {
		// Nothing to store; the callback is acknowledged so the provider stops retrying
		result = "blank"
	}
	for attempt := 0; status != "" && attempt < maxStatusCASRetry; attempt++ {
		if record.Status == status {
			result = "duplicate"
			break
		}
		if !status.Supersedes(record.Status) {
			result = "stale"
			break
		}

		ok, err := f.sendRecordRepo.CompareAndSetStatus(ctx, record.ID, record.Status, status, errorCode, errorMessage, f.now())
		if err != nil {
			return nil, NewBusinessError("SEND_RECORD_UPDATE_FAILED", "Failed to update send record", err)
		}
		if ok {
			result = "applied"
			resp.Applied = true
			record.Status = status
			break
		}

		// Another callback changed the record in between; re-evaluate against the fresh status
		record, err = f.sendRecordRepo.ByID(ctx, record.ID)
		if err != nil {
			return nil, NewBusinessError("SEND_RECORD_LOOKUP_FAILED", "Failed to reload send record", err)
		}
		if record == nil {
			return nil, NewBusinessError("SEND_RECORD_NOT_FOUND", "Send record not found", ErrSendRecordNotFound)
		}
		result = "conflict"
	}

	reconcileTotal.WithLabelValues(result).Inc()
	resp.Status = record.Status.String()

	log.Debug().
		Uint("send_record_id", record.ID).
		Str("status", status.String()).
		Str("result", result).
		Msg("delivery status reconciled")

	if record.Status.IsTerminal() && record.AutomationID != nil && result != "stale" && result != "blank" {
		res, err := f.completion.TryFinalize(ctx, *record.AutomationID)
		if err != nil {
			// The sweep retries finalization
			log.Error().Err(err).Uint("automation_id", *record.AutomationID).Msg("finalize after reconciliation failed")
		} else {
			resp.AutomationFinalized = res.Finalized
		}
	}

	return resp, nil
}

// locate tries the provider message index first and falls back to a scatter lookup
func (f *ReconcileFlowImpl) locate(ctx context.Context, providerMessageID, accountRef string) (*models.SendRecord, error) {
	if f.index != nil {
		ref, err := f.index.Get(ctx, providerMessageID)
		if err != nil {
			f.logger.Warn().Err(err).Msg("provider message index unavailable")
		} else if ref != nil {
			record, err := f.sendRecordRepo.ByTenantAndProviderMessageID(ctx, ref.TenantID, providerMessageID)
			if err != nil {
				return nil, err
			}
			if record != nil {
				lookupTotal.WithLabelValues("index").Inc()
				return record, nil
			}
		}
	}

	record, err := f.scatterLookup(ctx, providerMessageID, accountRef)
	if err != nil {
		return nil, err
	}
	if record == nil {
		lookupTotal.WithLabelValues("miss").Inc()
		return nil, nil
	}

	lookupTotal.WithLabelValues("scatter").Inc()
	if f.index != nil {
		ref := repository.ProviderMessageRef{TenantID: record.TenantID, SendRecordID: record.ID}
		if err := f.index.Put(ctx, providerMessageID, ref); err != nil {
			f.logger.Warn().Err(err).Msg("failed to backfill provider message index")
		}
	}
	return record, nil
}

// scatterLookup probes tenant partitions page by page and stops at the first match.
// The tenant owning accountRef is probed before the others.
func (f *ReconcileFlowImpl) scatterLookup(ctx context.Context, providerMessageID, accountRef string) (*models.SendRecord, error) {
	var probes int64
	defer func() { scatterProbes.Observe(float64(atomic.LoadInt64(&probes))) }()

	var preferred uint
	if accountRef != "" {
		tenant, err := f.tenantRepo.ByProviderAccountRef(ctx, accountRef)
		if err != nil {
			return nil, err
		}
		if tenant != nil {
			preferred = tenant.ID
			probes++
			record, err := f.sendRecordRepo.ByTenantAndProviderMessageID(ctx, tenant.ID, providerMessageID)
			if err != nil || record != nil {
				return record, err
			}
		}
	}

	var afterID uint
	for {
		ids, err := f.tenantRepo.ListIDsAfter(ctx, afterID, f.pageSize)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, nil
		}
		afterID = ids[len(ids)-1]

		var match atomic.Pointer[models.SendRecord]
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(scatterConcurrency)
		for _, tenantID := range ids {
			if tenantID == preferred {
				continue
			}
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				atomic.AddInt64(&probes, 1)
				record, err := f.sendRecordRepo.ByTenantAndProviderMessageID(gctx, tenantID, providerMessageID)
				if err != nil {
					return err
				}
				if record != nil {
					match.CompareAndSwap(nil, record)
					return errFound
				}
				return nil
			})
		}

		err = g.Wait()
		if record := match.Load(); record != nil {
			return record, nil
		}
		if err != nil && !errors.Is(err, errFound) {
			return nil, err
		}

		if len(ids) < f.pageSize {
			return nil, nil
		}
	}
}
