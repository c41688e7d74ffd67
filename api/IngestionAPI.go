package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sam-berry/ecfr-lake/data"
	"github.com/sam-berry/ecfr-lake/httpresponse"
	"github.com/sam-berry/ecfr-lake/service"
	"github.com/sam-berry/ecfr-lake/transform"
)

// IngestionAPI loads the configured source files; clients cannot name
// arbitrary paths.
type IngestionAPI struct {
	Router           fiber.Router
	IngestionService *service.IngestionService
	AgenciesFile     string
	CorrectionsFile  string
}

func (api *IngestionAPI) Register() {
	// Admin endpoint to (re)load one or both source files
	api.Router.Post(
		"/ingest", func(c *fiber.Ctx) error {
			ctx := c.UserContext()

			var (
				results []*data.LoadResult
				err     error
			)
			switch entity := c.Query("entity", "all"); entity {
			case "all":
				results, err = api.IngestionService.LoadAll(ctx, api.AgenciesFile, api.CorrectionsFile)
			case data.EntityAgencies:
				var r *data.LoadResult
				if r, err = api.IngestionService.LoadAgencies(ctx, api.AgenciesFile); err == nil {
					results = []*data.LoadResult{r}
				}
			case data.EntityCorrections:
				var r *data.LoadResult
				if r, err = api.IngestionService.LoadCorrections(ctx, api.CorrectionsFile); err == nil {
					results = []*data.LoadResult{r}
				}
			default:
				return httpresponse.ApplyErrorToResponse(c, "entity must be all, agencies or corrections", nil)
			}

			if err != nil {
				var recErr *transform.RecordError
				var capErr *transform.CapacityError
				if errors.As(err, &recErr) || errors.As(err, &capErr) {
					return httpresponse.ApplyStatusToResponse(c, fiber.StatusUnprocessableEntity, err.Error())
				}
				return httpresponse.ApplyErrorToResponse(c, "Load failed", err)
			}

			return httpresponse.ApplySuccessToResponse(c, results)
		},
	)

	api.Router.Get(
		"/ingest/log", func(c *fiber.Ctx) error {
			entries, err := api.IngestionService.RecentLoads(c.UserContext(), c.QueryInt("limit", 10))
			if err != nil {
				return httpresponse.ApplyErrorToResponse(c, "Unexpected error", err)
			}
			return httpresponse.ApplySuccessToResponse(c, entries)
		},
	)
}
