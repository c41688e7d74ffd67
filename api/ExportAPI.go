package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sam-berry/ecfr-lake/httpresponse"
	"github.com/sam-berry/ecfr-lake/service"
)

type ExportAPI struct {
	Router        fiber.Router
	ExportService *service.ExportService
	ExportDir     string
}

func (api *ExportAPI) Register() {
	api.Router.Post(
		"/export", func(c *fiber.Ctx) error {
			files, err := api.ExportService.ExportAll(c.UserContext(), api.ExportDir)
			if err != nil {
				return httpresponse.ApplyErrorToResponse(c, "Unexpected error", err)
			}
			return httpresponse.ApplySuccessToResponse(c, files)
		},
	)

	api.Router.Get(
		"/summary", func(c *fiber.Ctx) error {
			if c.Query("format") == "text" {
				report, err := api.ExportService.GenerateSummaryReport(c.UserContext())
				if err != nil {
					return httpresponse.ApplyErrorToResponse(c, "Unexpected error", err)
				}
				c.Set("Content-Type", "text/plain")
				return c.SendString(report)
			}

			summary, err := api.ExportService.Summary(c.UserContext())
			if err != nil {
				return httpresponse.ApplyErrorToResponse(c, "Unexpected error", err)
			}
			return httpresponse.ApplySuccessToResponse(c, summary)
		},
	)
}
