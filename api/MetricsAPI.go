package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sam-berry/ecfr-lake/httpresponse"
	"github.com/sam-berry/ecfr-lake/service"
)

type MetricsAPI struct {
	Router         fiber.Router
	MetricsService *service.MetricsService
}

func (api *MetricsAPI) Register() {
	// Admin endpoint to recompute the materialized metrics
	api.Router.Post(
		"/compute/metrics", func(c *fiber.Ctx) error {
			result, err := api.MetricsService.Refresh(c.UserContext())
			if err != nil {
				return httpresponse.ApplyErrorToResponse(c, "Unexpected error", err)
			}
			return httpresponse.ApplySuccessToResponse(c, result)
		},
	)

	api.Router.Get(
		"/metrics/agencies", func(c *fiber.Ctx) error {
			if slug := c.Query("slug"); slug != "" {
				m, err := api.MetricsService.GetAgencyMetric(c.UserContext(), slug)
				switch {
				case errors.Is(err, service.ErrUnknownAgency):
					return httpresponse.ApplyStatusToResponse(c, fiber.StatusNotFound, "Unknown agency "+slug)
				case errors.Is(err, service.ErrMetricsNotComputed):
					return httpresponse.ApplyStatusToResponse(c, fiber.StatusNotFound, "No metrics for agency "+slug)
				case err != nil:
					return httpresponse.ApplyErrorToResponse(c, "Unexpected error", err)
				}
				return httpresponse.ApplySuccessToResponse(c, m)
			}

			metrics, err := api.MetricsService.GetAgencyMetrics(c.UserContext())
			if err != nil {
				return httpresponse.ApplyErrorToResponse(c, "Unexpected error", err)
			}
			return httpresponse.ApplySuccessToResponse(c, metrics)
		},
	)

	api.Router.Get(
		"/metrics/yearly", func(c *fiber.Ctx) error {
			trends, err := api.MetricsService.GetYearlyTrends(c.UserContext())
			if err != nil {
				return httpresponse.ApplyErrorToResponse(c, "Unexpected error", err)
			}
			return httpresponse.ApplySuccessToResponse(c, trends)
		},
	)
}
