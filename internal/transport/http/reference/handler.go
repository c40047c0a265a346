package reference

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"github.com/macina-app/macina/internal/dto"
	"github.com/macina-app/macina/internal/entity"
	"github.com/macina-app/macina/internal/presentation/http/response"
	service "github.com/macina-app/macina/internal/service/reference"
	"github.com/macina-app/macina/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/macina-app/macina/transport/http/reference")

// Handler exposes reference-data CRUD over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a reference Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	clients := e.Group("/clients")
	clients.GET("", h.listClients)
	clients.GET("/:id", h.getClient)
	clients.POST("", h.createClient)
	clients.PUT("/:id", h.updateClient)

	mills := e.Group("/mills")
	mills.GET("", h.listMills)
	mills.GET("/:id", h.getMill)
	mills.POST("", h.createMill)

	products := e.Group("/products")
	products.GET("", h.listProducts)
	products.GET("/:id", h.getProduct)
	products.POST("", h.createProduct)

	carriers := e.Group("/carriers")
	carriers.GET("", h.listCarriers)
	carriers.GET("/:id", h.getCarrier)
	carriers.POST("", h.createCarrier)
}

func (h *Handler) listClients(c echo.Context) error {
	b := response.New(c)
	ctx, span := httpTracer.Start(c.Request().Context(), "clients.list")
	defer span.End()

	clients, err := h.svc.ListClients(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}
	out := make([]dto.ClientResponse, 0, len(clients))
	for _, client := range clients {
		out = append(out, dto.FromClient(client))
	}
	return b.WithData(out).Build()
}

func (h *Handler) getClient(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "clients.get")
	defer span.End()

	client, err := h.svc.GetClient(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromClient(client)).Build()
}

type clientPayload struct {
	Name            string `json:"name"`
	VATNumber       string `json:"vat_number"`
	DeliveryAddress string `json:"delivery_address"`
	Phone           string `json:"phone"`
	Mobile          string `json:"mobile"`
	Email           string `json:"email"`
	ContactPerson   string `json:"contact_person"`
	StandardPallet  string `json:"standard_pallet"`
	DeferredPayment bool   `json:"deferred_payment"`
	Notes           string `json:"notes"`
}

func (p clientPayload) toEntity() entity.Client {
	return entity.Client{
		Name:            p.Name,
		VATNumber:       p.VATNumber,
		DeliveryAddress: p.DeliveryAddress,
		Phone:           p.Phone,
		Mobile:          p.Mobile,
		Email:           p.Email,
		ContactPerson:   p.ContactPerson,
		StandardPallet:  p.StandardPallet,
		DeferredPayment: p.DeferredPayment,
		Notes:           p.Notes,
	}
}

func (h *Handler) createClient(c echo.Context) error {
	b := response.New(c)
	var payload clientPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	client := payload.toEntity()
	ctx, span := httpTracer.Start(c.Request().Context(), "clients.create")
	defer span.End()

	if err := h.svc.CreateClient(ctx, &client); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromClient(&client)).Build()
}

func (h *Handler) updateClient(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	var payload clientPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	client := payload.toEntity()
	client.ID = id
	ctx, span := httpTracer.Start(c.Request().Context(), "clients.update")
	defer span.End()

	if err := h.svc.UpdateClient(ctx, &client); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromClient(&client)).Build()
}

func (h *Handler) listMills(c echo.Context) error {
	b := response.New(c)
	ctx, span := httpTracer.Start(c.Request().Context(), "mills.list")
	defer span.End()

	mills, err := h.svc.ListMills(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}
	out := make([]dto.MillResponse, 0, len(mills))
	for _, mill := range mills {
		out = append(out, dto.FromMill(mill))
	}
	return b.WithData(out).Build()
}

func (h *Handler) getMill(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "mills.get")
	defer span.End()

	mill, err := h.svc.GetMill(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromMill(mill)).Build()
}

func (h *Handler) createMill(c echo.Context) error {
	b := response.New(c)
	var payload struct {
		Name          string `json:"name"`
		PickupAddress string `json:"pickup_address"`
		Phone         string `json:"phone"`
		Email         string `json:"email"`
		Notes         string `json:"notes"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	mill := entity.Mill{
		Name:          payload.Name,
		PickupAddress: payload.PickupAddress,
		Phone:         payload.Phone,
		Email:         payload.Email,
		Notes:         payload.Notes,
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "mills.create")
	defer span.End()

	if err := h.svc.CreateMill(ctx, &mill); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromMill(&mill)).Build()
}

func (h *Handler) listProducts(c echo.Context) error {
	b := response.New(c)
	ctx, span := httpTracer.Start(c.Request().Context(), "products.list")
	defer span.End()

	products, err := h.svc.ListProducts(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}
	out := make([]dto.ProductResponse, 0, len(products))
	for _, product := range products {
		out = append(out, dto.FromProduct(product))
	}
	return b.WithData(out).Build()
}

func (h *Handler) getProduct(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "products.get")
	defer span.End()

	product, err := h.svc.GetProduct(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromProduct(product)).Build()
}

func (h *Handler) createProduct(c echo.Context) error {
	b := response.New(c)
	var payload struct {
		Name            string          `json:"name"`
		MillID          int64           `json:"mill_id"`
		Category        string          `json:"category"`
		CommissionType  string          `json:"commission_type"`
		CommissionValue decimal.Decimal `json:"commission_value"`
		Notes           string          `json:"notes"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	product := entity.Product{
		Name:            payload.Name,
		MillID:          payload.MillID,
		Category:        payload.Category,
		CommissionType:  payload.CommissionType,
		CommissionValue: payload.CommissionValue,
		Notes:           payload.Notes,
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "products.create")
	defer span.End()

	if err := h.svc.CreateProduct(ctx, &product); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromProduct(&product)).Build()
}

func (h *Handler) listCarriers(c echo.Context) error {
	b := response.New(c)
	ctx, span := httpTracer.Start(c.Request().Context(), "carriers.list")
	defer span.End()

	carriers, err := h.svc.ListCarriers(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}
	out := make([]dto.CarrierResponse, 0, len(carriers))
	for _, carrier := range carriers {
		out = append(out, dto.FromCarrier(carrier))
	}
	return b.WithData(out).Build()
}

func (h *Handler) getCarrier(c echo.Context) error {
	b := response.New(c)
	id, err := pathID(c)
	if err != nil {
		return b.WithError(err).Build()
	}
	ctx, span := httpTracer.Start(c.Request().Context(), "carriers.get")
	defer span.End()

	carrier, err := h.svc.GetCarrier(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromCarrier(carrier)).Build()
}

func (h *Handler) createCarrier(c echo.Context) error {
	b := response.New(c)
	var payload struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
		Notes string `json:"notes"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	carrier := entity.Carrier{Name: payload.Name, Phone: payload.Phone, Notes: payload.Notes}
	ctx, span := httpTracer.Start(c.Request().Context(), "carriers.create")
	defer span.End()

	if err := h.svc.CreateCarrier(ctx, &carrier); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromCarrier(&carrier)).Build()
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errorbank.BadRequest("invalid id", errorbank.WithCause(err))
	}
	return id, nil
}
