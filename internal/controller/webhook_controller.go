package controller

import (
	"errors"
	"time"

	"memberpass-be/internal/dto"
	"memberpass-be/internal/pkg/logger"
	"memberpass-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

const signatureHeader = "X-Signature"

type IWebhookController interface {
	RegisterRoutes(r fiber.Router)
	Notification(ctx *fiber.Ctx) error
}

type webhookController struct {
	service service.IWebhookService
	logger  logger.ILogger
}

func NewWebhookController(service service.IWebhookService, log logger.ILogger) IWebhookController {
	return &webhookController{service: service, logger: log}
}

func (c *webhookController) RegisterRoutes(r fiber.Router) {
	r.Post("/webhooks/:gateway", c.Notification)
}

// Notification answers the payment gateway. Anything the gateway should not
// retry gets 200, storage failures get 500 so it does.
// @Summary Payment gateway notification
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} dto.WebhookAckResponse
// @Failure 400 {object} dto.WebhookErrorResponse
// @Failure 401 {object} dto.WebhookErrorResponse
// @Router /api/webhooks/{gateway} [post]
func (c *webhookController) Notification(ctx *fiber.Ctx) error {
	gateway := ctx.Params("gateway")
	receivedAt := time.Now().UTC()

	// fasthttp reuses the request buffer once the handler returns
	body := append([]byte(nil), ctx.Body()...)

	outcome, err := c.service.HandleNotification(ctx.UserContext(), gateway, body, ctx.Get(signatureHeader), receivedAt)
	if err != nil {
		return c.reject(ctx, gateway, err)
	}

	c.logger.Info("WEBHOOK", "Notification accepted", map[string]interface{}{
		"gateway":  gateway,
		"outcome":  string(outcome.Kind),
		"commands": outcome.Commands,
	})
	return ctx.JSON(dto.WebhookAckResponse{Status: "ok"})
}

func (c *webhookController) reject(ctx *fiber.Ctx, gateway string, err error) error {
	details := map[string]interface{}{
		"gateway": gateway,
		"ip":      ctx.IP(),
		"error":   err.Error(),
	}

	switch {
	case errors.Is(err, service.ErrUnknownGateway):
		return ctx.Status(fiber.StatusNotFound).JSON(dto.WebhookErrorResponse{Error: "UNKNOWN_GATEWAY"})
	case errors.Is(err, service.ErrInvalidSignature):
		c.logger.Warn("WEBHOOK", "Rejected notification with invalid signature", details)
		return ctx.Status(fiber.StatusUnauthorized).JSON(dto.WebhookErrorResponse{Error: "INVALID_SIGNATURE"})
	case errors.Is(err, service.ErrStaleWebhook):
		c.logger.Warn("WEBHOOK", "Rejected stale notification", details)
		return ctx.Status(fiber.StatusBadRequest).JSON(dto.WebhookErrorResponse{Error: "OLD_WEBHOOK"})
	case errors.Is(err, service.ErrInvalidPayload):
		c.logger.Warn("WEBHOOK", "Rejected malformed notification", details)
		return ctx.Status(fiber.StatusBadRequest).JSON(dto.WebhookErrorResponse{Error: "INVALID_PAYLOAD"})
	}

	c.logger.Error("WEBHOOK", "Notification processing failed", details)
	return ctx.Status(fiber.StatusInternalServerError).JSON(dto.WebhookErrorResponse{Error: "INTERNAL_ERROR"})
}
