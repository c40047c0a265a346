package commission

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macina-app/macina/internal/presentation/http/response"
	service "github.com/macina-app/macina/internal/service/commission"
	"github.com/macina-app/macina/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/macina-app/macina/transport/http/commission")

// Handler exposes commission reporting over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a commission Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.GET("/commissions/quarter", h.quarterReport)
}

func (h *Handler) quarterReport(c echo.Context) error {
	b := response.New(c)

	year, err := strconv.Atoi(c.QueryParam("year"))
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid year", errorbank.WithCause(err))).Build()
	}
	quarter, err := strconv.Atoi(c.QueryParam("quarter"))
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid quarter", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "commissions.quarterReport", trace.WithAttributes(
		attribute.Int("report.year", year),
		attribute.Int("report.quarter", quarter),
	))
	defer span.End()

	report, err := h.svc.QuarterReport(ctx, year, quarter)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(report).Build()
}
