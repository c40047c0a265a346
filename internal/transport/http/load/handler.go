package load

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macina-app/macina/internal/dto"
	"github.com/macina-app/macina/internal/entity"
	"github.com/macina-app/macina/internal/presentation/http/response"
	loadrepo "github.com/macina-app/macina/internal/repository/load"
	service "github.com/macina-app/macina/internal/service/load"
	"github.com/macina-app/macina/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/macina-app/macina/transport/http/load")

const dateLayout = "2006-01-02"

// Handler exposes load composition and lifecycle endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a load Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/loads")
	g.GET("", h.list)
	g.GET("/available-orders", h.availableOrders)
	g.POST("/validate", h.validate)
	g.POST("", h.createDraft)
	g.POST("/from-order", h.createFromOrder)
	g.GET("/:id", h.getByID)
	g.POST("/:id/assign", h.assignTransport)
	g.POST("/:id/orders", h.addOrder)
	g.DELETE("/orders/:orderID", h.removeOrder)
	g.POST("/:id/pickup", h.markPickedUp)
	g.POST("/:id/deliver", h.markDelivered)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	filter := loadrepo.Filter{
		State:    c.QueryParam("state"),
		Type:     c.QueryParam("type"),
		OpenOnly: c.QueryParam("open") == "true",
	}
	if raw := c.QueryParam("mill_id"); raw != "" {
		millID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return b.WithError(errorbank.BadRequest("invalid mill_id", errorbank.WithCause(err))).Build()
		}
		filter.MillID = &millID
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "loads.list")
	defer span.End()

	loads, err := h.svc.List(ctx, filter)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromLoads(loads)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := pathID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "loads.getByID", trace.WithAttributes(attribute.Int64("load.id", id)))
	defer span.End()

	load, orders, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromLoad(load, orders)).Build()
}

func (h *Handler) availableOrders(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "loads.availableOrders")
	defer span.End()

	orders, err := h.svc.AvailableOrders(ctx, c.QueryParam("type"))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrders(orders)).Build()
}

func (h *Handler) validate(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		OrderIDs        []int64 `json:"order_ids"`
		ExcludingLoadID *int64  `json:"excluding_load_id"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "loads.validate", trace.WithAttributes(attribute.Int("order.count", len(payload.OrderIDs))))
	defer span.End()

	validation, err := h.svc.Validate(ctx, payload.OrderIDs, payload.ExcludingLoadID)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(validation).Build()
}

func (h *Handler) createDraft(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		OrderIDs []int64 `json:"order_ids"`
		Notes    string  `json:"notes"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if len(payload.OrderIDs) == 0 {
		return b.WithError(errorbank.BadRequest("order_ids is required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "loads.createDraft", trace.WithAttributes(attribute.Int("order.count", len(payload.OrderIDs))))
	defer span.End()

	load, err := h.svc.CreateDraft(ctx, payload.OrderIDs, payload.Notes)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromLoad(load, nil)).Build()
}

func (h *Handler) createFromOrder(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		OrderID    int64  `json:"order_id"`
		CarrierID  int64  `json:"carrier_id"`
		PickupDate string `json:"pickup_date"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	pickupDate, err := parseDate(payload.PickupDate)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "loads.createFromOrder", trace.WithAttributes(attribute.Int64("order.id", payload.OrderID)))
	defer span.End()

	load, err := h.svc.CreateFromLargeOrder(ctx, payload.OrderID, payload.CarrierID, pickupDate)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromLoad(load, nil)).Build()
}

func (h *Handler) assignTransport(c echo.Context) error {
	b := response.New(c)

	id, err := pathID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload struct {
		CarrierID  int64  `json:"carrier_id"`
		PickupDate string `json:"pickup_date"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	pickupDate, err := parseDate(payload.PickupDate)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "loads.assignTransport", trace.WithAttributes(attribute.Int64("load.id", id)))
	defer span.End()

	load, err := h.svc.AssignTransport(ctx, id, payload.CarrierID, pickupDate)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromLoad(load, nil)).Build()
}

func (h *Handler) addOrder(c echo.Context) error {
	b := response.New(c)

	id, err := pathID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload struct {
		OrderID int64 `json:"order_id"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "loads.addOrder", trace.WithAttributes(
		attribute.Int64("load.id", id),
		attribute.Int64("order.id", payload.OrderID),
	))
	defer span.End()

	load, err := h.svc.AddOrder(ctx, id, payload.OrderID)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromLoad(load, nil)).Build()
}

func (h *Handler) removeOrder(c echo.Context) error {
	b := response.New(c)

	orderID, err := pathID(c, "orderID")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "loads.removeOrder", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	load, err := h.svc.RemoveOrder(ctx, orderID)
	if err != nil {
		return b.WithError(err).Build()
	}
	if load == nil {
		// Removing the order dissolved the load.
		return b.WithMeta("load_deleted", true).Build()
	}
	return b.WithData(dto.FromLoad(load, nil)).Build()
}

func (h *Handler) markPickedUp(c echo.Context) error {
	return h.transition(c, "loads.markPickedUp", h.svc.MarkPickedUp)
}

func (h *Handler) markDelivered(c echo.Context) error {
	return h.transition(c, "loads.markDelivered", h.svc.MarkDelivered)
}

func (h *Handler) transition(c echo.Context, spanName string, op func(ctx context.Context, id int64) (*entity.Load, error)) error {
	b := response.New(c)

	id, err := pathID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), spanName, trace.WithAttributes(attribute.Int64("load.id", id)))
	defer span.End()

	load, err := op(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromLoad(load, nil)).Build()
}

func (h *Handler) delete(c echo.Context) error {
	b := response.New(c)

	id, err := pathID(c, "id")
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "loads.delete", trace.WithAttributes(attribute.Int64("load.id", id)))
	defer span.End()

	if err := h.svc.Delete(ctx, id); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusNoContent).Build()
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, errorbank.BadRequest("invalid "+name, errorbank.WithCause(err))
	}
	return id, nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errorbank.BadRequest("pickup_date is required")
	}
	date, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, errorbank.BadRequest("pickup_date must be YYYY-MM-DD", errorbank.WithCause(err))
	}
	return date, nil
}
