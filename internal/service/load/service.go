package load

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/macina-app/macina/internal/config"
	"github.com/macina-app/macina/internal/database"
	"github.com/macina-app/macina/internal/entity"
	"github.com/macina-app/macina/internal/messaging"
	loadrepo "github.com/macina-app/macina/internal/repository/load"
	orderrepo "github.com/macina-app/macina/internal/repository/order"
	refrepo "github.com/macina-app/macina/internal/repository/reference"
)

var serviceTracer = otel.Tracer("github.com/macina-app/macina/service/load")

// Orders is the order access the load engine needs.
type Orders interface {
	Get(ctx context.Context, id int64) (*entity.Order, error)
	GetMany(ctx context.Context, ids []int64) ([]*entity.Order, error)
	ListByLoad(ctx context.Context, loadID int64) ([]*entity.Order, error)
	ListUnassigned(ctx context.Context, orderType string) ([]*entity.Order, error)
	Attach(ctx context.Context, orderIDs []int64, loadID int64, logisticsStatus string) error
	Detach(ctx context.Context, orderID int64) error
	DetachAllFromLoad(ctx context.Context, loadID int64) error
	UpdateStatusByLoad(ctx context.Context, loadID int64, logisticsStatus, legacyStatus string) error
}

// Loads is the load persistence the engine needs.
type Loads interface {
	Get(ctx context.Context, id int64) (*entity.Load, error)
	GetForUpdate(ctx context.Context, id int64) (*entity.Load, error)
	List(ctx context.Context, filter loadrepo.Filter) ([]*entity.Load, error)
	Create(ctx context.Context, load *entity.Load) error
	Update(ctx context.Context, load *entity.Load) error
	Delete(ctx context.Context, id int64) error
}

// Carriers resolves carrier existence for transport assignment.
type Carriers interface {
	GetCarrier(ctx context.Context, id int64) (*entity.Carrier, error)
}

// TxRunner executes a function inside one storage transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service owns load composition and lifecycle. Every mutating operation runs
// in a single transaction with the load row locked, so concurrent capacity
// checks against the same load serialize at the storage boundary.
type Service struct {
	orders    Orders
	loads     Loads
	carriers  Carriers
	tx        TxRunner
	logger    *zap.Logger
	publisher messaging.Client
	messaging messagingConfig
}

type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Orders      *orderrepo.Repository
	Loads       *loadrepo.Repository
	Reference   *refrepo.Repository
	Connections *database.Connections
	Config      config.Config
	Logger      *zap.Logger
	Publisher   messaging.Client
}

// NewService wires a new Service instance for Fx.
func NewService(p Params) *Service {
	return New(p.Orders, p.Loads, p.Reference, p.Connections, p.Logger, p.Publisher,
		p.Config.Messaging.Enabled, p.Config.Messaging.Kafka.Topic)
}

// New builds a Service from its collaborators.
func New(orders Orders, loads Loads, carriers Carriers, tx TxRunner, logger *zap.Logger, publisher messaging.Client, messagingEnabled bool, topic string) *Service {
	return &Service{
		orders:    orders,
		loads:     loads,
		carriers:  carriers,
		tx:        tx,
		logger:    logger,
		publisher: publisher,
		messaging: messagingConfig{enabled: messagingEnabled, topic: topic},
	}
}

// Get returns a load together with its member orders.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Load, []*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "LoadService.Get")
	defer span.End()

	load, err := s.getLoad(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	orders, err := s.orders.ListByLoad(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, nil, internalErr("failed to list load orders", err)
	}
	return load, orders, nil
}

// List returns loads filtered by state, type or mill.
func (s *Service) List(ctx context.Context, filter loadrepo.Filter) ([]*entity.Load, error) {
	ctx, span := serviceTracer.Start(ctx, "LoadService.List")
	defer span.End()

	loads, err := s.loads.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, internalErr("failed to list loads", err)
	}
	return loads, nil
}

// AvailableOrders returns unassigned open orders, optionally narrowed by
// type; the raw input for manual composition and for the suggestion engine.
func (s *Service) AvailableOrders(ctx context.Context, orderType string) ([]*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "LoadService.AvailableOrders")
	defer span.End()

	orders, err := s.orders.ListUnassigned(ctx, orderType)
	if err != nil {
		span.RecordError(err)
		return nil, internalErr("failed to list unassigned orders", err)
	}
	return orders, nil
}

func (s *Service) now() time.Time {
	return time.Now().UTC()
}
