// FILE: internal/controller/ingest_controller.go
package controller

import (
	"github.com/lrfluobida/agent-job-coach/internal/dto"
	"github.com/lrfluobida/agent-job-coach/internal/pkg/serverutils"
	"github.com/lrfluobida/agent-job-coach/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IIngestController interface {
	RegisterRoutes(r fiber.Router)
	IngestText(ctx *fiber.Ctx) error
}

type ingestController struct {
	ingestService service.IIngestService
}

func NewIngestController(ingestService service.IIngestService) IIngestController {
	return &ingestController{ingestService: ingestService}
}

func (c *ingestController) RegisterRoutes(r fiber.Router) {
	r.Post("/ingest", c.IngestText)
}

func (c *ingestController) IngestText(ctx *fiber.Ctx) error {
	var req dto.IngestTextRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	chunks, err := c.ingestService.IngestText(ctx.Context(), req.Text, req.SourceType, req.SourceId)
	if err != nil {
		return err
	}
	return ctx.JSON(dto.IngestResponse{
		Ok:         true,
		SourceId:   req.SourceId,
		SourceType: req.SourceType,
		Chunks:     chunks,
	})
}
