package handlers

import (
	"github.com/amirphl/wedding-automations/app/dto"
	businessflow "github.com/amirphl/wedding-automations/business_flow"
	"github.com/amirphl/wedding-automations/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

// AutomationHandlerInterface defines the contract for operator automation handlers
type AutomationHandlerInterface interface {
	Create(c fiber.Ctx) error
	Generate(c fiber.Ctx) error
	Get(c fiber.Ctx) error
	SetActive(c fiber.Ctx) error
	Trigger(c fiber.Ctx) error
	Resume(c fiber.Ctx) error
	Refresh(c fiber.Ctx) error
	FailureReport(c fiber.Ctx) error
}

// AutomationHandler handles operator automation requests
type AutomationHandler struct {
	flow       businessflow.AutomationFlow
	completion businessflow.CompletionFlow
	report     businessflow.ReportFlow
	validator  *validator.Validate
	logger     zerolog.Logger
}

// NewAutomationHandler creates a new automation handler
func NewAutomationHandler(
	flow businessflow.AutomationFlow,
	completion businessflow.CompletionFlow,
	report businessflow.ReportFlow,
	logger zerolog.Logger,
) *AutomationHandler {
	return &AutomationHandler{
		flow:       flow,
		completion: completion,
		report:     report,
		validator:  validator.New(),
		logger:     logger.With().Str("component", "operator_api").Logger(),
	}
}

func (h *AutomationHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *AutomationHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// flowError maps business errors onto HTTP responses
func (h *AutomationHandler) flowError(c fiber.Ctx, err error, fallbackMessage, fallbackCode string) error {
	switch {
	case businessflow.IsAutomationNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Automation not found", "AUTOMATION_NOT_FOUND", nil)
	case businessflow.IsTenantNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Tenant not found", "TENANT_NOT_FOUND", nil)
	case businessflow.IsAutomationNotPending(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Only pending automations can be changed", "AUTOMATION_NOT_PENDING", nil)
	case businessflow.IsValidation(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err.Error())
	}
	h.logger.Error().Err(err).Str("path", c.Path()).Msg(fallbackMessage)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallbackMessage, fallbackCode, nil)
}

// Create Automation
// @Description Schedule a new automation for a tenant
// @Tags Automations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreateAutomationRequest true "Automation"
// @Success 201 {object} dto.APIResponse{data=dto.AutomationResponse} "Automation created successfully"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Tenant not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/operator/automations [post]
func (h *AutomationHandler) Create(c fiber.Ctx) error {
	var req dto.CreateAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationDetails(err))
	}

	ctx, cancel := createRequestContext(c, "/api/v1/operator/automations")
	defer cancel()

	result, err := h.flow.CreateAutomation(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Failed to create automation", "AUTOMATION_CREATE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Automation created successfully", result)
}

// Generate Automations
// @Description Create the rsvp and reminder automations for a wedding event
// @Tags Automations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.GenerateAutomationsRequest true "Event"
// @Success 201 {object} dto.APIResponse{data=dto.GenerateAutomationsResponse} "Automations generated successfully"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Tenant not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/operator/automations/generate [post]
func (h *AutomationHandler) Generate(c fiber.Ctx) error {
	var req dto.GenerateAutomationsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationDetails(err))
	}

	ctx, cancel := createRequestContext(c, "/api/v1/operator/automations/generate")
	defer cancel()

	result, err := h.flow.GenerateForEvent(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Failed to generate automations", "AUTOMATION_CREATE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, result.Message, result)
}

// Get Automation
// @Description Get an automation with its completion stats and failure details
// @Tags Automations
// @Produce json
// @Security BearerAuth
// @Param id path integer true "Automation ID"
// @Success 200 {object} dto.APIResponse{data=dto.AutomationResponse} "Automation retrieved successfully"
// @Failure 400 {object} dto.APIResponse "Invalid id"
// @Failure 404 {object} dto.APIResponse "Automation not found"
// @Router /api/v1/operator/automations/{id} [get]
func (h *AutomationHandler) Get(c fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid automation id", "INVALID_ID", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/operator/automations/:id")
	defer cancel()

	result, err := h.flow.GetAutomation(ctx, id)
	if err != nil {
		return h.flowError(c, err, "Failed to get automation", "AUTOMATION_LOOKUP_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Automation retrieved successfully", result)
}

// SetActive Automation
// @Description Activate or deactivate a pending automation
// @Tags Automations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path integer true "Automation ID"
// @Param request body dto.SetAutomationActiveRequest true "Active flag"
// @Success 200 {object} dto.APIResponse{data=dto.AutomationResponse} "Automation updated successfully"
// @Failure 404 {object} dto.APIResponse "Automation not found"
// @Failure 409 {object} dto.APIResponse "Automation is not pending"
// @Router /api/v1/operator/automations/{id}/active [put]
func (h *AutomationHandler) SetActive(c fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid automation id", "INVALID_ID", nil)
	}

	var req dto.SetAutomationActiveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationDetails(err))
	}

	ctx, cancel := createRequestContext(c, "/api/v1/operator/automations/:id/active")
	defer cancel()

	result, err := h.flow.SetActive(ctx, id, *req.IsActive)
	if err != nil {
		return h.flowError(c, err, "Failed to update automation", "AUTOMATION_UPDATE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Automation updated successfully", result)
}

// Trigger Automation
// @Description Run the trigger path now. Not-yet-due automations are skipped; losing the claim reports a conflict outcome.
// @Tags Automations
// @Produce json
// @Security BearerAuth
// @Param id path integer true "Automation ID"
// @Success 200 {object} dto.APIResponse{data=dto.TriggerAutomationResponse} "Trigger processed"
// @Failure 404 {object} dto.APIResponse "Automation not found"
// @Router /api/v1/operator/automations/{id}/trigger [post]
func (h *AutomationHandler) Trigger(c fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid automation id", "INVALID_ID", nil)
	}

	// Dispatch of a large audience outlives the default request timeout
	ctx, cancel := createRequestContextWithTimeout(c, "/api/v1/operator/automations/:id/trigger", utils.DispatchRequestTimeout)
	defer cancel()

	result, err := h.flow.Trigger(ctx, id)
	if err != nil {
		return h.flowError(c, err, "Failed to trigger automation", "AUTOMATION_TRIGGER_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Trigger processed", result)
}

// Resume Automation
// @Description Resume a stale in-progress dispatch for recipients without a send record
// @Tags Automations
// @Produce json
// @Security BearerAuth
// @Param id path integer true "Automation ID"
// @Success 200 {object} dto.APIResponse{data=dto.TriggerAutomationResponse} "Resume processed"
// @Failure 404 {object} dto.APIResponse "Automation not found"
// @Router /api/v1/operator/automations/{id}/resume [post]
func (h *AutomationHandler) Resume(c fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid automation id", "INVALID_ID", nil)
	}

	ctx, cancel := createRequestContextWithTimeout(c, "/api/v1/operator/automations/:id/resume", utils.DispatchRequestTimeout)
	defer cancel()

	result, err := h.flow.Resume(ctx, id)
	if err != nil {
		return h.flowError(c, err, "Failed to resume automation", "AUTOMATION_RESUME_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Resume processed", result)
}

// Refresh Automation
// @Description Attempt to finalize the automation from its send records
// @Tags Automations
// @Produce json
// @Security BearerAuth
// @Param id path integer true "Automation ID"
// @Success 200 {object} dto.APIResponse{data=dto.RefreshAutomationResponse} "Refresh processed"
// @Failure 404 {object} dto.APIResponse "Automation not found"
// @Router /api/v1/operator/automations/{id}/refresh [post]
func (h *AutomationHandler) Refresh(c fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid automation id", "INVALID_ID", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/operator/automations/:id/refresh")
	defer cancel()

	result, err := h.completion.Refresh(ctx, id)
	if err != nil {
		return h.flowError(c, err, "Failed to refresh automation", "AUTOMATION_REFRESH_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Refresh processed", result)
}

// FailureReport Automation
// @Description Download the automation summary and failure details as an Excel workbook
// @Tags Automations
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param id path integer true "Automation ID"
// @Success 200 {file} file "Excel workbook"
// @Failure 404 {object} dto.APIResponse "Automation not found"
// @Router /api/v1/operator/automations/{id}/report.xlsx [get]
func (h *AutomationHandler) FailureReport(c fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid automation id", "INVALID_ID", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/operator/automations/:id/report.xlsx")
	defer cancel()

	filename, data, err := h.report.FailureReport(ctx, id)
	if err != nil {
		return h.flowError(c, err, "Failed to export report", "EXCEL_WRITE_ERROR")
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return c.Status(fiber.StatusOK).Send(data)
}
