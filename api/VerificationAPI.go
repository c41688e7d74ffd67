package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sam-berry/ecfr-lake/httpresponse"
	"github.com/sam-berry/ecfr-lake/service"
)

type VerificationAPI struct {
	Router              fiber.Router
	VerificationService *service.VerificationService
}

func (api *VerificationAPI) Register() {
	// The sweep is diagnostic: mismatches are part of a 200 response.
	api.Router.Post(
		"/verify", func(c *fiber.Ctx) error {
			report, err := api.VerificationService.Verify(c.UserContext())
			if err != nil {
				return httpresponse.ApplyErrorToResponse(c, "Unexpected error", err)
			}
			return httpresponse.ApplySuccessToResponse(c, report)
		},
	)
}
