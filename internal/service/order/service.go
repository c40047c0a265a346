package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/macina-app/macina/internal/cache"
	"github.com/macina-app/macina/internal/config"
	"github.com/macina-app/macina/internal/database"
	"github.com/macina-app/macina/internal/entity"
	"github.com/macina-app/macina/internal/mailer"
	orderrepo "github.com/macina-app/macina/internal/repository/order"
	refrepo "github.com/macina-app/macina/internal/repository/reference"
	"github.com/macina-app/macina/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/macina-app/macina/service/order")

// collectionTermDays is the deferred-payment term: collection falls due this
// many days after the end of the pickup month.
const collectionTermDays = 60

// Orders is the persistence the order service needs.
type Orders interface {
	Get(ctx context.Context, id int64) (*entity.Order, error)
	List(ctx context.Context, filter orderrepo.Filter) ([]*entity.Order, error)
	Create(ctx context.Context, order *entity.Order) error
	Update(ctx context.Context, order *entity.Order) error
	ReplaceLines(ctx context.Context, orderID int64, lines []*entity.OrderLine) error
	Delete(ctx context.Context, id int64) error
	SetEmailSent(ctx context.Context, orderID int64, at time.Time) error
}

// References resolves clients, products and mills and records prices.
type References interface {
	GetClient(ctx context.Context, id int64) (*entity.Client, error)
	GetProduct(ctx context.Context, id int64) (*entity.Product, error)
	GetMill(ctx context.Context, id int64) (*entity.Mill, error)
	AppendPrice(ctx context.Context, entry *entity.PriceEntry) error
	LastPrice(ctx context.Context, clientID, productID int64) (decimal.Decimal, error)
}

// TxRunner executes a function inside one storage transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// LineInput is one requested order line. The mill and the line total are
// derived from the product.
type LineInput struct {
	ProductID int64
	Pallets   *decimal.Decimal
	Weight    decimal.Decimal
	UnitPrice decimal.Decimal
}

// Input is a create or update request for an order.
type Input struct {
	ClientID   int64
	OrderDate  time.Time
	PickupDate *time.Time
	Type       string
	Notes      string
	Lines      []LineInput
}

// Service owns order entry: line derivation, deferred-payment collection
// dates, price history and the order email to the mills.
type Service struct {
	repo       Orders
	references References
	tx         TxRunner
	mail       mailer.Mailer
	cache      cache.Store
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Orders      *orderrepo.Repository
	Reference   *refrepo.Repository
	Connections *database.Connections
	Mailer      mailer.Mailer
	Cache       cache.Store
	Config      config.Config
	Logger      *zap.Logger
}

// NewService wires a new Service instance for Fx.
func NewService(p Params) *Service {
	return New(p.Orders, p.Reference, p.Connections, p.Mailer, p.Cache, p.Config.Cache.DefaultTTL, p.Logger)
}

// New builds a Service from its collaborators.
func New(repo Orders, references References, tx TxRunner, mail mailer.Mailer, store cache.Store, cacheTTL time.Duration, logger *zap.Logger) *Service {
	return &Service{
		repo:       repo,
		references: references,
		tx:         tx,
		mail:       mail,
		cache:      store,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
}

// Get retrieves an order with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := s.repo.Get(ctx, id)
	if errors.Is(err, orderrepo.ErrNotFound) {
		return nil, errorbank.NotFound("order not found")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	return order, nil
}

// List retrieves orders matching the filter.
func (s *Service) List(ctx context.Context, filter orderrepo.Filter) ([]*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.List")
	defer span.End()

	orders, err := s.repo.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, errorbank.Internal("failed to list orders", errorbank.WithCause(err))
	}
	return orders, nil
}

// Create enters a new order: derives each line's mill and total from its
// product, computes the deferred-payment collection date when the client
// pays by bank collection, and records every unit price in the history.
func (s *Service) Create(ctx context.Context, input Input) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create", trace.WithAttributes(attribute.Int64("order.client_id", input.ClientID)))
	defer span.End()

	var created *entity.Order
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		client, lines, err := s.prepare(ctx, input)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		order := &entity.Order{
			ClientID:        input.ClientID,
			OrderDate:       input.OrderDate,
			PickupDate:      input.PickupDate,
			CollectionDate:  deferredCollectionDate(client, input.PickupDate),
			Type:            input.Type,
			Status:          entity.LegacyStatusEntered,
			LogisticsStatus: entity.LogisticsOpen,
			Notes:           input.Notes,
			CreatedAt:       now,
			UpdatedAt:       now,
			Lines:           lines,
		}
		if err := s.repo.Create(ctx, order); err != nil {
			return errorbank.Internal("failed to create order", errorbank.WithCause(err))
		}
		if err := s.recordPrices(ctx, input.ClientID, lines); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, err
	}
	return created, nil
}

// Update rewrites an order and replaces its lines. Orders already on a load
// are frozen; membership and totals belong to the load engine then.
func (s *Service) Update(ctx context.Context, id int64, input Input) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Update", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	var updated *entity.Order
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if order.Attached() {
			return errorbank.ConstraintViolation(fmt.Sprintf("order %d is on load %d and cannot be edited", id, *order.LoadID))
		}

		client, lines, err := s.prepare(ctx, input)
		if err != nil {
			return err
		}

		order.ClientID = input.ClientID
		order.OrderDate = input.OrderDate
		order.PickupDate = input.PickupDate
		order.CollectionDate = deferredCollectionDate(client, input.PickupDate)
		order.Type = input.Type
		order.Notes = input.Notes
		if err := s.repo.Update(ctx, order); err != nil {
			return errorbank.Internal("failed to update order", errorbank.WithCause(err))
		}
		if err := s.repo.ReplaceLines(ctx, id, lines); err != nil {
			return errorbank.Internal("failed to replace lines", errorbank.WithCause(err))
		}
		if err := s.recordPrices(ctx, input.ClientID, lines); err != nil {
			return err
		}
		order.Lines = lines
		updated = order
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, err
	}
	return updated, nil
}

// Delete removes an order and its lines. Orders on a load must be removed
// from the load first.
func (s *Service) Delete(ctx context.Context, id int64) error {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Delete", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if order.Attached() {
			return errorbank.ConstraintViolation(fmt.Sprintf("order %d is on load %d and cannot be deleted", id, *order.LoadID))
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return errorbank.Internal("failed to delete order", errorbank.WithCause(err))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
	}
	return err
}

// LastPrice returns the last unit price this client paid for this product,
// consulting the cache first. Zero with no error when no history exists.
func (s *Service) LastPrice(ctx context.Context, clientID, productID int64) (decimal.Decimal, bool, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.LastPrice", trace.WithAttributes(
		attribute.Int64("client.id", clientID),
		attribute.Int64("product.id", productID),
	))
	defer span.End()

	key := fmt.Sprintf("prices:last:%d:%d", clientID, productID)
	if s.cache != nil {
		if bytes, err := s.cache.Get(ctx, key); err == nil {
			var price decimal.Decimal
			if err := json.Unmarshal(bytes, &price); err == nil {
				return price, true, nil
			}
		}
	}

	price, err := s.references.LastPrice(ctx, clientID, productID)
	if errors.Is(err, refrepo.ErrNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return decimal.Zero, false, errorbank.Internal("failed to look up price history", errorbank.WithCause(err))
	}

	if s.cache != nil {
		if bytes, err := json.Marshal(price); err == nil {
			if err := s.cache.Set(ctx, key, bytes, s.cacheTTL); err != nil && s.logger != nil {
				s.logger.Warn("price cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return price, true, nil
}

// SendEmail dispatches the order to its mills, one message per mill with
// that mill's lines. A sent order is never mailed twice.
func (s *Service) SendEmail(ctx context.Context, orderID int64) error {
	ctx, span := serviceTracer.Start(ctx, "OrderService.SendEmail", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	order, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.EmailSentAt != nil {
		return errorbank.Conflict(fmt.Sprintf("order %d was already mailed at %s", orderID, order.EmailSentAt.Format(time.RFC3339)))
	}
	if len(order.Lines) == 0 {
		return errorbank.ConstraintViolation(fmt.Sprintf("order %d has no lines to mail", orderID))
	}

	client, err := s.getClient(ctx, order.ClientID)
	if err != nil {
		return err
	}

	byMill := make(map[int64][]*entity.OrderLine)
	for _, line := range order.Lines {
		byMill[line.MillID] = append(byMill[line.MillID], line)
	}
	millIDs := make([]int64, 0, len(byMill))
	for millID := range byMill {
		millIDs = append(millIDs, millID)
	}
	sort.Slice(millIDs, func(i, j int) bool { return millIDs[i] < millIDs[j] })

	for _, millID := range millIDs {
		mill, err := s.getMill(ctx, millID)
		if err != nil {
			return err
		}
		if mill.Email == "" {
			return errorbank.ConstraintViolation(fmt.Sprintf("mill %s has no email address", mill.Name))
		}
		msg := s.buildMillMessage(ctx, order, client, mill, byMill[millID])
		if err := s.mail.Send(ctx, msg); err != nil {
			return errorbank.Internal("failed to send order email", errorbank.WithCause(err))
		}
	}

	sentAt := time.Now().UTC()
	if err := s.repo.SetEmailSent(ctx, orderID, sentAt); err != nil {
		return errorbank.Internal("failed to record email dispatch", errorbank.WithCause(err))
	}
	s.logger.Info("order emailed",
		zap.Int64("order_id", orderID),
		zap.Int("mills", len(millIDs)),
	)
	return nil
}

func (s *Service) buildMillMessage(ctx context.Context, order *entity.Order, client *entity.Client, mill *entity.Mill, lines []*entity.OrderLine) mailer.Message {
	var body strings.Builder
	fmt.Fprintf(&body, "Order %d of %s\n", order.ID, order.OrderDate.Format("2006-01-02"))
	fmt.Fprintf(&body, "Client: %s\n", client.Name)
	if client.DeliveryAddress != "" {
		fmt.Fprintf(&body, "Delivery: %s\n", client.DeliveryAddress)
	}
	if order.PickupDate != nil {
		fmt.Fprintf(&body, "Pickup: %s\n", order.PickupDate.Format("2006-01-02"))
	}
	body.WriteString("\nLines:\n")
	for _, line := range lines {
		name := fmt.Sprintf("product %d", line.ProductID)
		if product, err := s.references.GetProduct(ctx, line.ProductID); err == nil {
			name = product.Name
		}
		fmt.Fprintf(&body, "- %s: %s weight units", name, line.Weight.StringFixed(2))
		if line.Pallets != nil {
			fmt.Fprintf(&body, " (%s pallets)", line.Pallets.String())
		}
		body.WriteString("\n")
	}
	if order.Notes != "" {
		fmt.Fprintf(&body, "\nNotes: %s\n", order.Notes)
	}

	return mailer.Message{
		To:      []string{mill.Email},
		Subject: fmt.Sprintf("Order %d - %s", order.ID, client.Name),
		Body:    body.String(),
	}
}

// prepare validates the input references and derives the full lines.
func (s *Service) prepare(ctx context.Context, input Input) (*entity.Client, []*entity.OrderLine, error) {
	if input.Type != entity.OrderTypeBulk && input.Type != entity.OrderTypePallets {
		return nil, nil, errorbank.BadRequest(fmt.Sprintf("unknown order type %q", input.Type))
	}
	if len(input.Lines) == 0 {
		return nil, nil, errorbank.BadRequest("order needs at least one line")
	}

	client, err := s.getClient(ctx, input.ClientID)
	if err != nil {
		return nil, nil, err
	}

	lines := make([]*entity.OrderLine, 0, len(input.Lines))
	for _, in := range input.Lines {
		if in.Weight.LessThanOrEqual(decimal.Zero) {
			return nil, nil, errorbank.BadRequest(fmt.Sprintf("line for product %d has non-positive weight", in.ProductID))
		}
		product, err := s.getProduct(ctx, in.ProductID)
		if err != nil {
			return nil, nil, err
		}
		lines = append(lines, &entity.OrderLine{
			ProductID: in.ProductID,
			MillID:    product.MillID,
			Pallets:   in.Pallets,
			Weight:    in.Weight,
			UnitPrice: in.UnitPrice,
			LineTotal: in.Weight.Mul(in.UnitPrice).Round(2),
		})
	}
	return client, lines, nil
}

func (s *Service) recordPrices(ctx context.Context, clientID int64, lines []*entity.OrderLine) error {
	for _, line := range lines {
		entry := &entity.PriceEntry{
			ClientID:  clientID,
			ProductID: line.ProductID,
			UnitPrice: line.UnitPrice,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.references.AppendPrice(ctx, entry); err != nil {
			return errorbank.Internal("failed to record price", errorbank.WithCause(err))
		}
		if s.cache != nil {
			key := fmt.Sprintf("prices:last:%d:%d", clientID, line.ProductID)
			if err := s.cache.Delete(ctx, key); err != nil && s.logger != nil {
				s.logger.Warn("price cache invalidation failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return nil
}

func (s *Service) getClient(ctx context.Context, id int64) (*entity.Client, error) {
	client, err := s.references.GetClient(ctx, id)
	if errors.Is(err, refrepo.ErrNotFound) {
		return nil, errorbank.NotFound(fmt.Sprintf("client %d not found", id))
	}
	if err != nil {
		return nil, errorbank.Internal("failed to load client", errorbank.WithCause(err))
	}
	return client, nil
}

func (s *Service) getProduct(ctx context.Context, id int64) (*entity.Product, error) {
	product, err := s.references.GetProduct(ctx, id)
	if errors.Is(err, refrepo.ErrNotFound) {
		return nil, errorbank.NotFound(fmt.Sprintf("product %d not found", id))
	}
	if err != nil {
		return nil, errorbank.Internal("failed to load product", errorbank.WithCause(err))
	}
	return product, nil
}

func (s *Service) getMill(ctx context.Context, id int64) (*entity.Mill, error) {
	mill, err := s.references.GetMill(ctx, id)
	if errors.Is(err, refrepo.ErrNotFound) {
		return nil, errorbank.NotFound(fmt.Sprintf("mill %d not found", id))
	}
	if err != nil {
		return nil, errorbank.Internal("failed to load mill", errorbank.WithCause(err))
	}
	return mill, nil
}

// deferredCollectionDate computes when a deferred-payment client's bank
// collection falls due: end of the pickup month plus the payment term.
// Nil when the client pays directly or no pickup date is set yet.
func deferredCollectionDate(client *entity.Client, pickupDate *time.Time) *time.Time {
	if client == nil || !client.DeferredPayment || pickupDate == nil {
		return nil
	}
	due := CollectionDueDate(*pickupDate)
	return &due
}

// CollectionDueDate is the bank-collection due date for a pickup date: the
// last day of the pickup month shifted by the sixty-day payment term.
func CollectionDueDate(pickupDate time.Time) time.Time {
	endOfMonth := time.Date(pickupDate.Year(), pickupDate.Month(), 1, 0, 0, 0, 0, pickupDate.Location()).
		AddDate(0, 1, -1)
	return endOfMonth.AddDate(0, 0, collectionTermDays)
}
