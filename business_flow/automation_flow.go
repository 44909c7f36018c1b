package businessflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/amirphl/wedding-automations/app/dto"
	"github.com/amirphl/wedding-automations/models"
	"github.com/amirphl/wedding-automations/repository"
	"github.com/amirphl/wedding-automations/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Trigger outcomes
const (
	TriggerOutcomeDispatched = "dispatched"
	TriggerOutcomeSkipped    = "skipped"
	TriggerOutcomeConflict   = "conflict"
)

// AutomationFlow owns the automation lifecycle: creation, the exactly-once
// pending -> in_progress transition, dispatch fan-out and resume.
type AutomationFlow interface {
	CreateAutomation(ctx context.Context, req *dto.CreateAutomationRequest) (*dto.AutomationResponse, error)
	GenerateForEvent(ctx context.Context, req *dto.GenerateAutomationsRequest) (*dto.GenerateAutomationsResponse, error)
	GetAutomation(ctx context.Context, id uint) (*dto.AutomationResponse, error)
	SetActive(ctx context.Context, id uint, active bool) (*dto.AutomationResponse, error)
	Trigger(ctx context.Context, id uint) (*dto.TriggerAutomationResponse, error)
	Resume(ctx context.Context, id uint) (*dto.TriggerAutomationResponse, error)
	// TriggerDue triggers every due automation and returns how many were dispatched by this call
	TriggerDue(ctx context.Context) (int, error)
	// Sweep resumes stale dispatches and finalizes in-progress automations that are done or timed out
	Sweep(ctx context.Context) (int, error)
}

// RunnerConfig tunes dispatch fan-out and the sweep
type RunnerConfig struct {
	Concurrency      int
	ResumeStaleAfter time.Duration
	BatchSize        int
}

// AutomationFlowImpl implements AutomationFlow
type AutomationFlowImpl struct {
	automationRepo repository.AutomationRepository
	sendRecordRepo repository.SendRecordRepository
	tenantRepo     repository.TenantRepository
	recipientRepo  repository.RecipientRepository
	dispatcher     Dispatcher
	completion     CompletionFlow
	cfg            RunnerConfig
	logger         zerolog.Logger
	now            func() time.Time
}

// NewAutomationFlow creates a new automation flow
func NewAutomationFlow(
	automationRepo repository.AutomationRepository,
	sendRecordRepo repository.SendRecordRepository,
	tenantRepo repository.TenantRepository,
	recipientRepo repository.RecipientRepository,
	dispatcher Dispatcher,
	completion CompletionFlow,
	cfg RunnerConfig,
	logger zerolog.Logger,
) AutomationFlow {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	return &AutomationFlowImpl{
		automationRepo: automationRepo,
		sendRecordRepo: sendRecordRepo,
		tenantRepo:     tenantRepo,
		recipientRepo:  recipientRepo,
		dispatcher:     dispatcher,
		completion:     completion,
		cfg:            cfg,
		logger:         logger.With().Str("component", "runner").Logger(),
		now:            utils.UTCNow,
	}
}

// CreateAutomation validates and stores a pending automation
func (s *AutomationFlowImpl) CreateAutomation(ctx context.Context, req *dto.CreateAutomationRequest) (*dto.AutomationResponse, error) {
	if err := s.validateCreateRequest(req); err != nil {
		return nil, NewBusinessError("AUTOMATION_VALIDATION_FAILED", "Automation validation failed", err)
	}

	if _, err := s.getTenant(ctx, req.TenantID); err != nil {
		return nil, err
	}

	automation := &models.Automation{
		UUID:           uuid.New(),
		TenantID:       req.TenantID,
		Name:           strings.TrimSpace(req.Name),
		IsActive:       utils.ToPtr(req.IsActive == nil || *req.IsActive),
		Status:         models.AutomationStatusPending,
		Type:           models.AutomationType(req.Type),
		ScheduledAt:    req.ScheduledAt.UTC(),
		TimeZone:       req.TimeZone,
		TemplateRef:    req.TemplateRef,
		Variables:      models.TemplateVariables(req.Variables),
		AudienceFilter: models.TargetAudienceFilter{Attendance: req.Attendance},
	}
	if automation.Variables == nil {
		automation.Variables = models.TemplateVariables{}
	}

	if err := s.automationRepo.Save(ctx, automation); err != nil {
		return nil, NewBusinessError("AUTOMATION_CREATE_FAILED", "Failed to create automation", err)
	}

	s.logger.Info().
		Uint("automation_id", automation.ID).
		Uint("tenant_id", automation.TenantID).
		Time("scheduled_at", automation.ScheduledAt).
		Msg("automation created")

	return ToAutomationDTO(automation, nil), nil
}

// GenerateForEvent creates the rsvp automation for the whole roster 30 days before the
// event and the reminder for confirmed guests one day before it
func (s *AutomationFlowImpl) GenerateForEvent(ctx context.Context, req *dto.GenerateAutomationsRequest) (*dto.GenerateAutomationsResponse, error) {
	if req.TenantID == 0 {
		return nil, NewBusinessError("AUTOMATION_VALIDATION_FAILED", "Automation validation failed", ErrTenantIDRequired)
	}
	if !utils.ValidTimeZone(req.TimeZone) {
		return nil, NewBusinessError("AUTOMATION_VALIDATION_FAILED", "Automation validation failed", ErrInvalidTimeZone)
	}
	if req.EventAt.IsZero() {
		return nil, NewBusinessError("AUTOMATION_VALIDATION_FAILED", "Automation validation failed", ErrScheduledAtRequired)
	}
	if req.RSVPTemplateRef == "" || req.ReminderTemplateRef == "" {
		return nil, NewBusinessError("AUTOMATION_VALIDATION_FAILED", "Automation validation failed", ErrTemplateRefRequired)
	}

	tenant, err := s.getTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	eventAt := req.EventAt.UTC()
	rows := []*models.Automation{
		{
			UUID:        uuid.New(),
			TenantID:    tenant.ID,
			Name:        fmt.Sprintf("%s RSVP", tenant.Name),
			IsActive:    utils.ToPtr(true),
			Status:      models.AutomationStatusPending,
			Type:        models.AutomationTypeRSVP,
			ScheduledAt: eventAt.Add(-utils.RSVPLeadTime),
			TimeZone:    req.TimeZone,
			TemplateRef: req.RSVPTemplateRef,
			Variables:   copyVariables(req.Variables),
		},
		{
			UUID:           uuid.New(),
			TenantID:       tenant.ID,
			Name:           fmt.Sprintf("%s reminder", tenant.Name),
			IsActive:       utils.ToPtr(true),
			Status:         models.AutomationStatusPending,
			Type:           models.AutomationTypeReminder,
			ScheduledAt:    eventAt.Add(-utils.ReminderLeadTime),
			TimeZone:       req.TimeZone,
			TemplateRef:    req.ReminderTemplateRef,
			Variables:      copyVariables(req.Variables),
			AudienceFilter: models.TargetAudienceFilter{Attendance: utils.ToPtr(true)},
		},
	}

	if err := s.automationRepo.SaveBatch(ctx, rows); err != nil {
		return nil, NewBusinessError("AUTOMATION_CREATE_FAILED", "Failed to create automations", err)
	}

	resp := &dto.GenerateAutomationsResponse{
		Message:     "Automations generated successfully",
		Automations: make([]dto.AutomationResponse, 0, len(rows)),
	}
	for _, a := range rows {
		resp.Automations = append(resp.Automations, *ToAutomationDTO(a, nil))
	}
	return resp, nil
}

func (s *AutomationFlowImpl) GetAutomation(ctx context.Context, id uint) (*dto.AutomationResponse, error) {
	automation, err := s.getAutomation(ctx, id)
	if err != nil {
		return nil, err
	}

	failures, err := s.automationRepo.ListFailureDetails(ctx, id)
	if err != nil {
		return nil, NewBusinessError("FAILURE_DETAILS_LOOKUP_FAILED", "Failed to load failure details", err)
	}

	return ToAutomationDTO(automation, failures), nil
}

// SetActive toggles isActive. Once dispatch has started the flag no longer matters.
func (s *AutomationFlowImpl) SetActive(ctx context.Context, id uint, active bool) (*dto.AutomationResponse, error) {
	changed, err := s.automationRepo.SetActive(ctx, id, active)
	if err != nil {
		return nil, NewBusinessError("AUTOMATION_UPDATE_FAILED", "Failed to update automation", err)
	}

	automation, err := s.getAutomation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, NewBusinessError("AUTOMATION_NOT_PENDING", "Only pending automations can be activated or deactivated", ErrAutomationNotPending)
	}

	return ToAutomationDTO(automation, nil), nil
}

// Trigger runs the trigger path for one automation. Losing the claim is a silent no-op.
func (s *AutomationFlowImpl) Trigger(ctx context.Context, id uint) (*dto.TriggerAutomationResponse, error) {
	automation, err := s.getAutomation(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !automation.DueAt(now) {
		automationTriggersTotal.WithLabelValues(TriggerOutcomeSkipped).Inc()
		return &dto.TriggerAutomationResponse{
			ID:      id,
			Outcome: TriggerOutcomeSkipped,
			Reason:  notDueReason(automation, now),
			Status:  automation.Status.String(),
		}, nil
	}

	won, err := s.automationRepo.ClaimForDispatch(ctx, id, now)
	if err != nil {
		return nil, NewBusinessError("AUTOMATION_CLAIM_FAILED", "Failed to claim automation", err)
	}
	if !won {
		automationTriggersTotal.WithLabelValues(TriggerOutcomeConflict).Inc()
		s.logger.Debug().Uint("automation_id", id).Msg("trigger lost the claim")
		return &dto.TriggerAutomationResponse{
			ID:      id,
			Outcome: TriggerOutcomeConflict,
			Reason:  ErrConflict.Error(),
			Status:  models.AutomationStatusInProgress.String(),
		}, nil
	}

	automationTriggersTotal.WithLabelValues(TriggerOutcomeDispatched).Inc()
	automation.Status = models.AutomationStatusInProgress
	automation.StartedAt = utils.ToPtr(now)

	return s.dispatchAll(ctx, automation)
}

// Resume continues a stale in-progress dispatch for recipients that have no send record yet
func (s *AutomationFlowImpl) Resume(ctx context.Context, id uint) (*dto.TriggerAutomationResponse, error) {
	automation, err := s.getAutomation(ctx, id)
	if err != nil {
		return nil, err
	}

	if automation.Status != models.AutomationStatusInProgress || automation.IsFinalized() {
		return &dto.TriggerAutomationResponse{
			ID:      id,
			Outcome: TriggerOutcomeSkipped,
			Reason:  "automation is not in progress",
			Status:  automation.Status.String(),
		}, nil
	}

	now := s.now()
	won, err := s.automationRepo.ClaimResume(ctx, id, now.Add(-s.cfg.ResumeStaleAfter), now)
	if err != nil {
		return nil, NewBusinessError("AUTOMATION_CLAIM_FAILED", "Failed to claim automation", err)
	}
	if !won {
		return &dto.TriggerAutomationResponse{
			ID:      id,
			Outcome: TriggerOutcomeConflict,
			Reason:  "dispatch is not stale",
			Status:  automation.Status.String(),
		}, nil
	}

	s.logger.Info().Uint("automation_id", id).Msg("resuming dispatch")
	return s.dispatchAll(ctx, automation)
}

type dispatchOutcome struct {
	record *models.SendRecord
	err    error
}

// dispatchAll sends to every audience member that has no send record in this automation yet
func (s *AutomationFlowImpl) dispatchAll(ctx context.Context, automation *models.Automation) (*dto.TriggerAutomationResponse, error) {
	log := s.logger.With().Uint("automation_id", automation.ID).Logger()

	roster, err := s.recipientRepo.ListByTenant(ctx, automation.TenantID)
	if err != nil {
		return nil, NewBusinessError("ROSTER_LOOKUP_FAILED", "Failed to load recipients", err)
	}
	audience := ResolveAudience(roster, automation.AudienceFilter)
	sort.Slice(audience, func(i, j int) bool { return audience[i].ID < audience[j].ID })

	if err := s.automationRepo.SetAudienceSize(ctx, automation.ID, len(audience)); err != nil {
		return nil, NewBusinessError("AUTOMATION_UPDATE_FAILED", "Failed to store audience size", err)
	}

	resp := &dto.TriggerAutomationResponse{
		ID:       automation.ID,
		Outcome:  TriggerOutcomeDispatched,
		Status:   models.AutomationStatusInProgress.String(),
		Audience: len(audience),
	}

	if len(audience) == 0 {
		won, err := s.automationRepo.Finalize(ctx, automation.ID, models.AutomationStatusCompleted,
			models.CompletionStats{CompletedAt: utils.ToPtr(s.now())}, nil)
		if err != nil {
			return nil, NewBusinessError("AUTOMATION_FINALIZE_FAILED", "Failed to finalize automation", err)
		}
		if won {
			finalizeTotal.WithLabelValues(models.AutomationStatusCompleted.String(), "empty").Inc()
			resp.Status = models.AutomationStatusCompleted.String()
			log.Info().Msg("automation has an empty audience")
		}
		return resp, nil
	}

	existing, err := s.sendRecordRepo.ByFilter(ctx, models.SendRecordFilter{AutomationID: &automation.ID}, "id ASC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("SEND_RECORDS_LOOKUP_FAILED", "Failed to load send records", err)
	}
	represented := make(map[uint]*models.SendRecord, len(existing))
	for _, r := range existing {
		represented[r.RecipientID] = r
	}

	var accountRef string
	if tenant, err := s.tenantRepo.ByID(ctx, automation.TenantID); err == nil && tenant != nil {
		accountRef = tenant.ProviderAccountRef
	}

	todo := make([]*models.Recipient, 0, len(audience))
	for _, r := range audience {
		if rec, ok := represented[r.ID]; ok {
			// Re-attach in case a crash happened between record creation and append
			if !automation.HasSendRecord(rec.ID) {
				if err := s.automationRepo.AppendSendRecordID(ctx, automation.ID, rec.ID); err != nil {
					log.Error().Err(err).Uint("send_record_id", rec.ID).Msg("failed to attach send record")
				}
			}
			continue
		}
		todo = append(todo, r)
	}

	outcomes := make([]dispatchOutcome, len(todo))
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, recipient := range todo {
		g.Go(func() error {
			outcomes[i] = s.dispatchOne(ctx, automation, recipient, accountRef)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		switch {
		case o.err == nil:
			resp.Accepted++
		case errors.Is(o.err, ErrSendRecordExists):
			resp.Duplicates++
		case errors.Is(o.err, ErrDispatchDeferred):
			resp.Deferred++
		default:
			resp.Rejected++
		}
	}

	log.Info().
		Int("audience", len(audience)).
		Int("already_dispatched", len(audience)-len(todo)).
		Int("accepted", resp.Accepted).
		Int("rejected", resp.Rejected).
		Int("duplicates", resp.Duplicates).
		Int("deferred", resp.Deferred).
		Msg("dispatch finished")

	status, err := s.finishDispatch(ctx, automation.ID, len(audience))
	if err != nil {
		return nil, err
	}
	resp.Status = status.String()
	return resp, nil
}

func (s *AutomationFlowImpl) dispatchOne(ctx context.Context, automation *models.Automation, recipient *models.Recipient, accountRef string) dispatchOutcome {
	record, err := s.dispatcher.Dispatch(ctx, DispatchInput{
		TenantID:     automation.TenantID,
		AccountRef:   accountRef,
		AutomationID: utils.ToPtr(automation.ID),
		Recipient:    recipient,
		TemplateRef:  automation.TemplateRef,
		Variables:    automation.Variables,
	})

	if errors.Is(err, ErrSendRecordExists) {
		// A concurrent resume won this recipient; make sure its record is attached
		existing, lookupErr := s.sendRecordRepo.ByAutomationAndRecipient(ctx, automation.ID, recipient.ID)
		if lookupErr != nil || existing == nil {
			return dispatchOutcome{err: err}
		}
		record = existing
	}

	if record != nil {
		if appendErr := s.automationRepo.AppendSendRecordID(context.WithoutCancel(ctx), automation.ID, record.ID); appendErr != nil {
			s.logger.Error().Err(appendErr).
				Uint("automation_id", automation.ID).
				Uint("send_record_id", record.ID).
				Msg("failed to append send record")
		}
	}

	return dispatchOutcome{record: record, err: err}
}

// finishDispatch fails the automation outright when every recipient was rejected
// synchronously, otherwise hands over to the aggregator
func (s *AutomationFlowImpl) finishDispatch(ctx context.Context, automationID uint, audienceSize int) (models.AutomationStatus, error) {
	records, err := s.sendRecordRepo.ByFilter(ctx, models.SendRecordFilter{AutomationID: &automationID}, "id ASC", 0, 0)
	if err != nil {
		return "", NewBusinessError("SEND_RECORDS_LOOKUP_FAILED", "Failed to load send records", err)
	}

	if len(records) < audienceSize {
		// Some recipients have no record yet; the sweep resumes them
		return models.AutomationStatusInProgress, nil
	}

	for _, r := range records {
		if r.ProviderMessageID != nil || !r.Status.IsFailure() {
			res, err := s.completion.TryFinalize(ctx, automationID)
			if err != nil {
				return "", err
			}
			return res.Status, nil
		}
	}

	stats, failures := aggregate(records)
	stats.CompletedAt = utils.ToPtr(s.now())
	won, err := s.automationRepo.Finalize(ctx, automationID, models.AutomationStatusFailed, stats, failures)
	if err != nil {
		return "", NewBusinessError("AUTOMATION_FINALIZE_FAILED", "Failed to finalize automation", err)
	}
	if won {
		finalizeTotal.WithLabelValues(models.AutomationStatusFailed.String(), "rejected").Inc()
		s.logger.Warn().Uint("automation_id", automationID).Int("recipients", len(records)).Msg("every dispatch was rejected")
	}
	return models.AutomationStatusFailed, nil
}

// TriggerDue enumerates due automations page by page and triggers each
func (s *AutomationFlowImpl) TriggerDue(ctx context.Context) (int, error) {
	dispatched := 0
	seen := make(map[uint]bool)

	for {
		due, err := s.automationRepo.ListDue(ctx, s.now(), s.cfg.BatchSize)
		if err != nil {
			return dispatched, NewBusinessError("AUTOMATION_LIST_FAILED", "Failed to list due automations", err)
		}

		progressed := false
		for _, a := range due {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			progressed = true

			resp, err := s.Trigger(ctx, a.ID)
			if err != nil {
				s.logger.Error().Err(err).Uint("automation_id", a.ID).Msg("trigger failed")
				continue
			}
			if resp.Outcome == TriggerOutcomeDispatched {
				dispatched++
			}
		}

		if !progressed || len(due) < s.cfg.BatchSize {
			return dispatched, nil
		}
	}
}

// Sweep walks in-progress automations. Stale partial dispatches are resumed; everything
// else goes through the aggregator, which force-finalizes after the delivery timeout.
func (s *AutomationFlowImpl) Sweep(ctx context.Context) (int, error) {
	finalized := 0
	var afterID uint

	for {
		batch, err := s.automationRepo.ListInProgress(ctx, afterID, s.cfg.BatchSize)
		if err != nil {
			return finalized, NewBusinessError("AUTOMATION_LIST_FAILED", "Failed to list in-progress automations", err)
		}

		for _, a := range batch {
			afterID = a.ID
			if ctx.Err() != nil {
				return finalized, ctx.Err()
			}

			if s.needsResume(a) {
				if _, err := s.Resume(ctx, a.ID); err != nil {
					s.logger.Error().Err(err).Uint("automation_id", a.ID).Msg("resume failed")
				}
			}

			res, err := s.completion.TryFinalize(ctx, a.ID)
			if err != nil {
				s.logger.Error().Err(err).Uint("automation_id", a.ID).Msg("finalize failed")
				continue
			}
			if res.Finalized {
				finalized++
			}
		}

		if len(batch) < s.cfg.BatchSize {
			return finalized, nil
		}
	}
}

func (s *AutomationFlowImpl) needsResume(a *models.Automation) bool {
	if a.StartedAt == nil || a.StartedAt.After(s.now().Add(-s.cfg.ResumeStaleAfter)) {
		return false
	}
	return a.AudienceSize == nil || len(a.SendRecordIDs) < *a.AudienceSize
}

func (s *AutomationFlowImpl) validateCreateRequest(req *dto.CreateAutomationRequest) error {
	if req.TenantID == 0 {
		return ErrTenantIDRequired
	}
	if !models.AutomationType(req.Type).Valid() {
		return ErrInvalidAutomationType
	}
	if req.ScheduledAt.IsZero() {
		return ErrScheduledAtRequired
	}
	if !utils.ValidTimeZone(req.TimeZone) {
		return ErrInvalidTimeZone
	}
	if strings.TrimSpace(req.TemplateRef) == "" {
		return ErrTemplateRefRequired
	}
	return nil
}

func (s *AutomationFlowImpl) getAutomation(ctx context.Context, id uint) (*models.Automation, error) {
	automation, err := s.automationRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("AUTOMATION_LOOKUP_FAILED", "Failed to lookup automation", err)
	}
	if automation == nil {
		return nil, NewBusinessError("AUTOMATION_NOT_FOUND", "Automation not found", ErrAutomationNotFound)
	}
	return automation, nil
}

func (s *AutomationFlowImpl) getTenant(ctx context.Context, id uint) (*models.Tenant, error) {
	tenant, err := s.tenantRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("TENANT_LOOKUP_FAILED", "Failed to lookup tenant", err)
	}
	if tenant == nil {
		return nil, NewBusinessError("TENANT_NOT_FOUND", "Tenant not found", ErrTenantNotFound)
	}
	return tenant, nil
}

func notDueReason(a *models.Automation, now time.Time) string {
	switch {
	case a.Status != models.AutomationStatusPending:
		return "automation is " + a.Status.String()
	case !utils.IsTrue(a.IsActive):
		return "automation is inactive"
	case now.Before(a.ScheduledAt):
		return "scheduled time has not elapsed"
	default:
		return ""
	}
}

func copyVariables(in map[string]string) models.TemplateVariables {
	out := make(models.TemplateVariables, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ToAutomationDTO converts an automation model to its operator view
func ToAutomationDTO(a *models.Automation, failures []*models.FailureDetail) *dto.AutomationResponse {
	resp := &dto.AutomationResponse{
		ID:               a.ID,
		UUID:             a.UUID.String(),
		TenantID:         a.TenantID,
		Name:             a.Name,
		IsActive:         utils.IsTrue(a.IsActive),
		Status:           a.Status.String(),
		Type:             string(a.Type),
		ScheduledAt:      a.ScheduledAt.UTC().Format(time.RFC3339),
		ScheduledAtLocal: utils.InZone(a.ScheduledAt, a.TimeZone).Format(time.RFC3339),
		TimeZone:         a.TimeZone,
		TemplateRef:      a.TemplateRef,
		Variables:        a.Variables,
		Attendance:       a.AudienceFilter.Attendance,
		AudienceSize:     a.AudienceSize,
		SendRecordIDs:    []int64(a.SendRecordIDs),
		CreatedAt:        a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if resp.SendRecordIDs == nil {
		resp.SendRecordIDs = []int64{}
	}
	if a.StartedAt != nil {
		resp.StartedAt = utils.ToPtr(a.StartedAt.UTC().Format(time.RFC3339))
	}
	if a.IsFinalized() {
		resp.CompletionStats = toCompletionStatsDTO(a.Stats)
	}
	for _, f := range failures {
		resp.FailureDetails = append(resp.FailureDetails, dto.FailureDetailDTO{
			RecipientID:       f.RecipientID,
			SendRecordID:      f.SendRecordID,
			Address:           f.Address,
			ProviderMessageID: f.ProviderMessageID,
			Reason:            string(f.Reason),
			ErrorCode:         f.ErrorCode,
			ErrorMessage:      f.ErrorMessage,
		})
	}
	return resp
}
