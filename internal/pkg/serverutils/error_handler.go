// FILE: internal/pkg/serverutils/error_handler.go
package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/lrfluobida/agent-job-coach/pkg/session"
)

// ErrorHandlerMiddleware converts errors bubbling out of handlers into a
// structured JSON body. Conversation-lock contention maps to 409 and a
// degraded session store maps to 503 so clients can retry.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		code := fiber.StatusInternalServerError
		message := err.Error()

		var fiberErr *fiber.Error
		switch {
		case errors.Is(err, session.ErrConversationBusy):
			code = fiber.StatusConflict
			message = "conversation is busy, please retry shortly"
		case errors.Is(err, session.ErrUnavailable):
			code = fiber.StatusServiceUnavailable
			message = "session store unavailable"
		case errors.As(err, &fiberErr):
			code = fiberErr.Code
			message = fiberErr.Message
		}

		return ctx.Status(code).JSON(ErrorResponse(code, message))
	}
}
