package controller

import (
	"procsight/internal/dto"
	"procsight/internal/pkg/serverutils"
	"procsight/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ILogController interface {
	RegisterRoutes(r fiber.Router)
	List(ctx *fiber.Ctx) error
}

type logController struct {
	service service.ILogService
}

func NewLogController(service service.ILogService) ILogController {
	return &logController{service: service}
}

func (c *logController) RegisterRoutes(r fiber.Router) {
	r.Get("/logs", c.List)
}

func (c *logController) List(ctx *fiber.Ctx) error {
	var req dto.LogListRequest
	if err := ctx.QueryParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid query")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.List(&req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get logs", res))
}
