package controller

import (
	"errors"

	"procsight/internal/dto"
	"procsight/internal/pkg/serverutils"
	"procsight/internal/service"
	"procsight/pkg/chat"

	"github.com/gofiber/fiber/v2"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Send(ctx *fiber.Ctx) error
	History(ctx *fiber.Ctx) error
	Preview(ctx *fiber.Ctx) error
}

type chatController struct {
	service service.IChatService
}

func NewChatController(service service.IChatService) IChatController {
	return &chatController{service: service}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat")
	h.Post("", c.Send)
	h.Get("/history", c.History)
	h.Get("/preview", c.Preview)
}

func (c *chatController) Send(ctx *fiber.Ctx) error {
	var req dto.SendChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Send(ctx.UserContext(), &req)
	switch {
	case errors.Is(err, chat.ErrTurnInProgress):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, chat.ErrEmptyInput):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case err != nil:
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success send chat", res))
}

func (c *chatController) History(ctx *fiber.Ctx) error {
	res := c.service.History(ctx.UserContext())
	return ctx.JSON(serverutils.SuccessResponse("Success get chat history", res))
}

func (c *chatController) Preview(ctx *fiber.Ctx) error {
	q := ctx.Query("q", "")
	if q == "" {
		return fiber.NewError(fiber.StatusBadRequest, "q parameter is required")
	}
	res := c.service.Preview(ctx.UserContext(), q)
	return ctx.JSON(serverutils.SuccessResponse("Success preview prompt", res))
}
