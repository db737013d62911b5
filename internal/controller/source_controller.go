// FILE: internal/controller/source_controller.go
package controller

import (
	"github.com/lrfluobida/agent-job-coach/internal/dto"
	"github.com/lrfluobida/agent-job-coach/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ISourceController interface {
	RegisterRoutes(r fiber.Router)
	List(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
}

type sourceController struct {
	sourceService service.ISourceService
}

func NewSourceController(sourceService service.ISourceService) ISourceController {
	return &sourceController{sourceService: sourceService}
}

func (c *sourceController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/sources")
	h.Get("", c.List)
	h.Delete(":id", c.Delete)
}

func (c *sourceController) List(ctx *fiber.Ctx) error {
	items, err := c.sourceService.ListSources(ctx.Context())
	if err != nil {
		return err
	}
	if items == nil {
		items = []dto.SourceSummaryDTO{}
	}
	return ctx.JSON(dto.ListSourcesResponse{Ok: true, Items: items})
}

func (c *sourceController) Delete(ctx *fiber.Ctx) error {
	sourceID := ctx.Params("id")
	if err := c.sourceService.DeleteSource(ctx.Context(), sourceID); err != nil {
		return err
	}
	return ctx.JSON(dto.DeleteSourceResponse{Ok: true, SourceId: sourceID})
}
