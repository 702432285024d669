package controller

import (
	"errors"

	"procsight/internal/pkg/serverutils"
	"procsight/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ISessionController interface {
	RegisterRoutes(r fiber.Router)
	GetState(ctx *fiber.Ctx) error
	Restart(ctx *fiber.Ctx) error
}

type sessionController struct {
	service service.ISessionService
}

func NewSessionController(service service.ISessionService) ISessionController {
	return &sessionController{service: service}
}

func (c *sessionController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/session")
	h.Get("", c.GetState)
	h.Post("/restart", c.Restart)
}

func (c *sessionController) GetState(ctx *fiber.Ctx) error {
	res := c.service.GetState(ctx.UserContext())
	return ctx.JSON(serverutils.SuccessResponse("Success get session", res))
}

func (c *sessionController) Restart(ctx *fiber.Ctx) error {
	res, err := c.service.Restart(ctx.UserContext())
	if errors.Is(err, service.ErrNoLocalSession) {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session restarted", res))
}
