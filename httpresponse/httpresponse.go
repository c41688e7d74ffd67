package httpresponse

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

type SuccessResponse struct {
	Data any `json:"data"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func ApplySuccessToResponse(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusOK).JSON(SuccessResponse{Data: data})
}

// ApplyErrorToResponse answers 400 when there is no underlying error (the
// request itself was wrong) and 500 otherwise. The underlying error is logged,
// only message reaches the client.
func ApplyErrorToResponse(c *fiber.Ctx, message string, err error) error {
	if err == nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: message})
	}
	log.Errorf("%s %s: %s: %v", c.Method(), c.Path(), message, err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: message})
}

// ApplyStatusToResponse sends message with an explicit status.
func ApplyStatusToResponse(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(ErrorResponse{Error: message})
}
