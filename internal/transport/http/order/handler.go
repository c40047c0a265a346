package order

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macina-app/macina/internal/dto"
	"github.com/macina-app/macina/internal/presentation/http/response"
	orderrepo "github.com/macina-app/macina/internal/repository/order"
	service "github.com/macina-app/macina/internal/service/order"
	"github.com/macina-app/macina/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/macina-app/macina/transport/http/order")

const dateLayout = "2006-01-02"

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/last-price", h.lastPrice)
	g.GET("/:id", h.getByID)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/send-email", h.sendEmail)
}

type linePayload struct {
	ProductID int64            `json:"product_id"`
	Pallets   *decimal.Decimal `json:"pallets"`
	Weight    decimal.Decimal  `json:"weight"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
}

type orderPayload struct {
	ClientID   int64         `json:"client_id"`
	OrderDate  string        `json:"order_date"`
	PickupDate string        `json:"pickup_date"`
	Type       string        `json:"type"`
	Notes      string        `json:"notes"`
	Lines      []linePayload `json:"lines"`
}

func (p orderPayload) toInput() (service.Input, error) {
	orderDate, err := time.Parse(dateLayout, p.OrderDate)
	if err != nil {
		return service.Input{}, errorbank.BadRequest("order_date must be YYYY-MM-DD", errorbank.WithCause(err))
	}
	input := service.Input{
		ClientID:  p.ClientID,
		OrderDate: orderDate,
		Type:      p.Type,
		Notes:     p.Notes,
	}
	if p.PickupDate != "" {
		pickupDate, err := time.Parse(dateLayout, p.PickupDate)
		if err != nil {
			return service.Input{}, errorbank.BadRequest("pickup_date must be YYYY-MM-DD", errorbank.WithCause(err))
		}
		input.PickupDate = &pickupDate
	}
	for _, line := range p.Lines {
		input.Lines = append(input.Lines, service.LineInput{
			ProductID: line.ProductID,
			Pallets:   line.Pallets,
			Weight:    line.Weight,
			UnitPrice: line.UnitPrice,
		})
	}
	return input, nil
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	filter := orderrepo.Filter{Status: c.QueryParam("status")}
	if raw := c.QueryParam("client_id"); raw != "" {
		clientID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return b.WithError(errorbank.BadRequest("invalid client_id", errorbank.WithCause(err))).Build()
		}
		filter.ClientID = &clientID
	}
	if raw := c.QueryParam("from"); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			return b.WithError(errorbank.BadRequest("from must be YYYY-MM-DD", errorbank.WithCause(err))).Build()
		}
		filter.DateFrom = &from
	}
	if raw := c.QueryParam("to"); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			return b.WithError(errorbank.BadRequest("to must be YYYY-MM-DD", errorbank.WithCause(err))).Build()
		}
		filter.DateTo = &to
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.list")
	defer span.End()

	orders, err := h.svc.List(ctx, filter)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrders(orders)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload orderPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	input, err := payload.toInput()
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create", trace.WithAttributes(attribute.Int64("order.client_id", input.ClientID)))
	defer span.End()

	order, err := h.svc.Create(ctx, input)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) update(c echo.Context) error {
	b := response.New(c)

	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload orderPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	input, err := payload.toInput()
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.update", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Update(ctx, id, input)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) delete(c echo.Context) error {
	b := response.New(c)

	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.delete", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if err := h.svc.Delete(ctx, id); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusNoContent).Build()
}

func (h *Handler) lastPrice(c echo.Context) error {
	b := response.New(c)

	clientID, err := strconv.ParseInt(c.QueryParam("client_id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid client_id", errorbank.WithCause(err))).Build()
	}
	productID, err := strconv.ParseInt(c.QueryParam("product_id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid product_id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.lastPrice", trace.WithAttributes(
		attribute.Int64("client.id", clientID),
		attribute.Int64("product.id", productID),
	))
	defer span.End()

	price, found, err := h.svc.LastPrice(ctx, clientID, productID)
	if err != nil {
		return b.WithError(err).Build()
	}

	payload := struct {
		Found     bool            `json:"found"`
		UnitPrice decimal.Decimal `json:"unit_price"`
	}{Found: found, UnitPrice: price}
	return b.WithData(payload).Build()
}

func (h *Handler) sendEmail(c echo.Context) error {
	b := response.New(c)

	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.sendEmail", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if err := h.svc.SendEmail(ctx, id); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithMeta("email_sent", true).Build()
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errorbank.BadRequest("invalid id", errorbank.WithCause(err))
	}
	return id, nil
}
