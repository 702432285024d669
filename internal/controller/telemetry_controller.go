package controller

import (
	"procsight/internal/pkg/serverutils"
	"procsight/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ITelemetryController interface {
	RegisterRoutes(r fiber.Router)
	GetRollingLog(ctx *fiber.Ctx) error
	Compact(ctx *fiber.Ctx) error
	ListProcesses(ctx *fiber.Ctx) error
	TerminateProcess(ctx *fiber.Ctx) error
}

type telemetryController struct {
	service service.ITelemetryService
}

func NewTelemetryController(service service.ITelemetryService) ITelemetryController {
	return &telemetryController{service: service}
}

func (c *telemetryController) RegisterRoutes(r fiber.Router) {
	t := r.Group("/telemetry")
	t.Get("", c.GetRollingLog)
	t.Post("/compact", c.Compact)

	p := r.Group("/processes")
	p.Get("", c.ListProcesses)
	p.Post("/:id/terminate", c.TerminateProcess)
}

func (c *telemetryController) GetRollingLog(ctx *fiber.Ctx) error {
	res := c.service.GetRollingLog(ctx.UserContext())
	return ctx.JSON(serverutils.SuccessResponse("Success get telemetry", res))
}

func (c *telemetryController) Compact(ctx *fiber.Ctx) error {
	res, err := c.service.Compact(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success compact telemetry", res))
}

func (c *telemetryController) ListProcesses(ctx *fiber.Ctx) error {
	res := c.service.ListProcesses(ctx.UserContext())
	return ctx.JSON(serverutils.SuccessResponse("Success get processes", res))
}

func (c *telemetryController) TerminateProcess(ctx *fiber.Ctx) error {
	id, err := ctx.ParamsInt("id")
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid process id")
	}

	res, err := c.service.TerminateProcess(ctx.UserContext(), id)
	if err != nil {
		return err
	}
	if !res.Terminated {
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(fiber.StatusNotFound, "process not found"))
	}
	return ctx.JSON(serverutils.SuccessResponse("Success terminate process", res))
}
