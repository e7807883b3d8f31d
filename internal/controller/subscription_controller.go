package controller

import (
	"errors"

	"memberpass-be/internal/dto"
	"memberpass-be/internal/entity"
	"memberpass-be/internal/pkg/serverutils"
	"memberpass-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ISubscriptionController interface {
	RegisterRoutes(r fiber.Router, jwtMiddleware fiber.Handler)
	Purchase(ctx *fiber.Ctx) error
	QuoteUpgrade(ctx *fiber.Ctx) error
	Upgrade(ctx *fiber.Ctx) error
	Cancel(ctx *fiber.Ctx) error
	ReapplyRole(ctx *fiber.Ctx) error
	Activity(ctx *fiber.Ctx) error
}

type subscriptionController struct {
	service  service.ISubscriptionService
	activity service.IActivityService
}

func NewSubscriptionController(service service.ISubscriptionService, activity service.IActivityService) ISubscriptionController {
	return &subscriptionController{service: service, activity: activity}
}

func (c *subscriptionController) RegisterRoutes(r fiber.Router, jwtMiddleware fiber.Handler) {
	member := r.Group("/subscriptions", jwtMiddleware)
	member.Post("/", c.Purchase)
	member.Post("/upgrade/quote", c.QuoteUpgrade)
	member.Post("/upgrade", c.Upgrade)

	owner := r.Group("/owner/subscriptions", jwtMiddleware, serverutils.RequireRole(serverutils.RoleServerOwner))
	owner.Post("/:id/cancel", c.Cancel)
	owner.Post("/:id/reapply-role", c.ReapplyRole)
	owner.Get("/:id/activity", c.Activity)
}

// @Summary Purchase, renew or retry a tier
// @Tags Subscriptions
// @Security BearerAuth
// @Router /api/subscriptions [post]
func (c *subscriptionController) Purchase(ctx *fiber.Ctx) error {
	var req dto.PurchaseRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Purchase(ctx.UserContext(), userId(ctx), &req)
	if err != nil {
		return mapServiceError(err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Checkout created", res))
}

func (c *subscriptionController) QuoteUpgrade(ctx *fiber.Ctx) error {
	var req dto.UpgradeRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.QuoteUpgrade(ctx.UserContext(), userId(ctx), &req)
	if err != nil {
		return mapServiceError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Upgrade quote", res))
}

func (c *subscriptionController) Upgrade(ctx *fiber.Ctx) error {
	var req dto.UpgradeRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Upgrade(ctx.UserContext(), userId(ctx), &req)
	if err != nil {
		return mapServiceError(err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Upgrade checkout created", res))
}

// @Summary Cancel a subscription as server owner
// @Tags Owner
// @Security BearerAuth
// @Router /api/owner/subscriptions/{id}/cancel [post]
func (c *subscriptionController) Cancel(ctx *fiber.Ctx) error {
	subId, req, err := ownerAction(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.Cancel(ctx.UserContext(), userId(ctx), subId, req)
	if err != nil {
		return mapServiceError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Subscription cancelled", res))
}

func (c *subscriptionController) ReapplyRole(ctx *fiber.Ctx) error {
	subId, req, err := ownerAction(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.ReapplyRole(ctx.UserContext(), userId(ctx), subId, req)
	if err != nil {
		return mapServiceError(err)
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Role command queued", res))
}

func (c *subscriptionController) Activity(ctx *fiber.Ctx) error {
	subId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid subscription id")
	}

	rows, err := c.activity.ListForSubscription(ctx.UserContext(), subId)
	if err != nil {
		return err
	}
	res := make([]dto.ActivityResponse, 0, len(rows))
	for _, row := range rows {
		res = append(res, toActivityResponse(row))
	}
	return ctx.JSON(serverutils.SuccessResponse("Activity retrieved", res))
}

func ownerAction(ctx *fiber.Ctx) (uuid.UUID, *dto.OwnerActionRequest, error) {
	subId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, nil, fiber.NewError(fiber.StatusBadRequest, "invalid subscription id")
	}

	req := &dto.OwnerActionRequest{}
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(req); err != nil {
			return uuid.Nil, nil, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return uuid.Nil, nil, err
	}
	return subId, req, nil
}

// userId reads the subject the JWT middleware stored. The middleware rejects
// tokens without one, so a parse failure only yields uuid.Nil.
func userId(ctx *fiber.Ctx) uuid.UUID {
	raw, _ := ctx.Locals("user_id").(string)
	id, _ := uuid.Parse(raw)
	return id
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, service.ErrTierNotFound),
		errors.Is(err, service.ErrMemberNotFound),
		errors.Is(err, service.ErrSubscriptionNotFound),
		errors.Is(err, service.ErrNoActiveSubscription):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrOpenSubscriptionExists),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrStaleStatus):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNotAnUpgrade),
		errors.Is(err, service.ErrZeroCharge),
		errors.Is(err, service.ErrNothingToReapply):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	return err
}

func toActivityResponse(a *entity.ActivityLog) dto.ActivityResponse {
	return dto.ActivityResponse{
		Id:        a.Id,
		ActorType: string(a.ActorType),
		ActorId:   a.ActorId,
		Action:    a.Action,
		Details:   a.Details,
		CreatedAt: a.CreatedAt,
	}
}
