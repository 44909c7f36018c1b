package handlers

import (
	"github.com/amirphl/wedding-automations/app/dto"
	businessflow "github.com/amirphl/wedding-automations/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

// WebhookHandlerInterface defines the contract for provider callback handlers
type WebhookHandlerInterface interface {
	DeliveryStatus(c fiber.Ctx) error
}

// WebhookHandler receives delivery-status callbacks from the messaging provider
type WebhookHandler struct {
	flow   businessflow.ReconcileFlow
	logger zerolog.Logger
}

func NewWebhookHandler(flow businessflow.ReconcileFlow, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		flow:   flow,
		logger: logger.With().Str("component", "webhook").Logger(),
	}
}

func (h *WebhookHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *WebhookHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// DeliveryStatus Callback
// @Description Apply a provider delivery-status callback. Accepts JSON or form-encoded bodies. Unknown message ids are acknowledged with matched=false.
// @Tags Webhooks
// @Accept json
// @Accept x-www-form-urlencoded
// @Produce json
// @Param request body dto.DeliveryStatusCallbackRequest true "Delivery status callback"
// @Success 200 {object} dto.APIResponse{data=dto.DeliveryStatusCallbackResponse} "Callback processed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/webhooks/delivery-status [post]
func (h *WebhookHandler) DeliveryStatus(c fiber.Ctx) error {
	var req dto.DeliveryStatusCallbackRequest
	if err := c.Bind().Body(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	ctx, cancel := createRequestContext(c, "/api/v1/webhooks/delivery-status")
	defer cancel()

	result, err := h.flow.Reconcile(ctx, &req)
	if err != nil {
		switch {
		case businessflow.IsSendRecordNotFound(err):
			// Acknowledge so the provider stops retrying a message we never sent
			return h.SuccessResponse(c, fiber.StatusOK, "No send record matches the message id", dto.DeliveryStatusCallbackResponse{
				Matched: false,
			})
		case businessflow.IsValidation(err):
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err.Error())
		}
		h.logger.Error().Err(err).Str("provider_message_id", req.ProviderMessageID).Msg("reconcile failed")
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to process delivery status", "RECONCILE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Delivery status processed", result)
}
