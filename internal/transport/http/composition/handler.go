package composition

import (
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"

	"github.com/macina-app/macina/internal/presentation/http/response"
	service "github.com/macina-app/macina/internal/service/composer"
)

var httpTracer = otel.Tracer("github.com/macina-app/macina/transport/http/composition")

// Handler exposes the dispatcher's composition board over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a composition Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.GET("/composition", h.compose)
}

func (h *Handler) compose(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "composition.compose")
	defer span.End()

	view, err := h.svc.Compose(ctx, c.QueryParam("type"))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(view).Build()
}
