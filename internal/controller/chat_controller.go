// FILE: internal/controller/chat_controller.go
package controller

import (
	"bufio"
	"context"

	"github.com/lrfluobida/agent-job-coach/internal/dto"
	"github.com/lrfluobida/agent-job-coach/internal/pkg/logger"
	"github.com/lrfluobida/agent-job-coach/internal/pkg/serverutils"
	"github.com/lrfluobida/agent-job-coach/internal/service"
	"github.com/lrfluobida/agent-job-coach/pkg/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Ping(ctx *fiber.Ctx) error
	Chat(ctx *fiber.Ctx) error
	ChatStream(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService     service.IChatService
	streamBufferLen int
	logger          logger.ILogger
}

func NewChatController(chatService service.IChatService, streamBufferLen int, log logger.ILogger) IChatController {
	if streamBufferLen <= 0 {
		streamBufferLen = 64
	}
	return &chatController{
		chatService:     chatService,
		streamBufferLen: streamBufferLen,
		logger:          log,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat")
	h.Get("ping", c.Ping)
	h.Post("", c.Chat)
	h.Post("stream", c.ChatStream)
}

func (c *chatController) Ping(ctx *fiber.Ctx) error {
	return ctx.JSON(fiber.Map{"ok": true})
}

func (c *chatController) Chat(ctx *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.Chat(ctx.Context(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(res)
}

// ChatStream answers over SSE: status events, then token chunks, then the
// context payload and exactly one terminal done/error event.
func (c *chatController) ChatStream(ctx *fiber.Ctx) error {
	var req dto.ChatStreamRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/event-stream; charset=utf-8")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		streamCtx, cancel := context.WithCancel(context.Background())
		defer cancel()

		emitter := stream.NewEmitter(streamCtx, c.streamBufferLen)
		go c.produceTurn(streamCtx, emitter, &req)

		for ev := range emitter.Events() {
			if err := ev.WriteTo(w); err != nil {
				cancel()
				return
			}
			if err := w.Flush(); err != nil {
				// Client went away; stop the producer.
				cancel()
				return
			}
		}
	}))
	return nil
}

func (c *chatController) produceTurn(ctx context.Context, emitter *stream.Emitter, req *dto.ChatStreamRequest) {
	defer emitter.Close()

	emitter.Emit(stream.Status("retrieve", "检索中..."))
	emitter.Emit(stream.Status("generate", "生成回答..."))

	res, err := c.chatService.StreamTurn(ctx, req)
	if err != nil {
		c.logger.Error("chat_controller", "stream turn failed", map[string]interface{}{
			"error": err.Error(),
		})
		emitter.Emit(stream.Error(err))
		return
	}

	if !emitter.EmitAnswer(res.Answer) {
		return
	}
	emitter.Emit(stream.Status("finalize", "整理引用..."))
	emitter.Emit(stream.Context(res.Citations, res.UsedContext, res.ConversationId, res.RequestId))
	emitter.Emit(stream.Done(res.ConversationId, res.RequestId))
}
