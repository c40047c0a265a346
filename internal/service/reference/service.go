package reference

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/macina-app/macina/internal/entity"
	refrepo "github.com/macina-app/macina/internal/repository/reference"
	"github.com/macina-app/macina/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/macina-app/macina/service/reference")

// Repository is the reference-data persistence the service fronts.
type Repository interface {
	GetClient(ctx context.Context, id int64) (*entity.Client, error)
	ListClients(ctx context.Context) ([]*entity.Client, error)
	CreateClient(ctx context.Context, client *entity.Client) error
	UpdateClient(ctx context.Context, client *entity.Client) error
	GetMill(ctx context.Context, id int64) (*entity.Mill, error)
	ListMills(ctx context.Context) ([]*entity.Mill, error)
	CreateMill(ctx context.Context, mill *entity.Mill) error
	GetProduct(ctx context.Context, id int64) (*entity.Product, error)
	ListProducts(ctx context.Context) ([]*entity.Product, error)
	CreateProduct(ctx context.Context, product *entity.Product) error
	GetCarrier(ctx context.Context, id int64) (*entity.Carrier, error)
	ListCarriers(ctx context.Context) ([]*entity.Carrier, error)
	CreateCarrier(ctx context.Context, carrier *entity.Carrier) error
}

// Service fronts the reference tables with error mapping and input checks.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Reference *refrepo.Repository
	Logger    *zap.Logger
}

// NewService wires a new Service instance for Fx.
func NewService(p Params) *Service {
	return New(p.Reference, p.Logger)
}

// New builds a Service from its collaborators.
func New(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, refrepo.ErrNotFound) {
		return errorbank.NotFound(what + " not found")
	}
	return errorbank.Internal("reference data access failed", errorbank.WithCause(err))
}

// GetClient fetches one client.
func (s *Service) GetClient(ctx context.Context, id int64) (*entity.Client, error) {
	ctx, span := serviceTracer.Start(ctx, "ReferenceService.GetClient")
	defer span.End()

	client, err := s.repo.GetClient(ctx, id)
	return client, mapErr(err, "client")
}

// ListClients returns all clients.
func (s *Service) ListClients(ctx context.Context) ([]*entity.Client, error) {
	ctx, span := serviceTracer.Start(ctx, "ReferenceService.ListClients")
	defer span.End()

	clients, err := s.repo.ListClients(ctx)
	return clients, mapErr(err, "client")
}

// CreateClient stores a new client.
func (s *Service) CreateClient(ctx context.Context, client *entity.Client) error {
	ctx, span := serviceTracer.Start(ctx, "ReferenceService.CreateClient")
	defer span.End()

	if client == nil || client.Name == "" {
		return errorbank.BadRequest("client name is required")
	}
	return mapErr(s.repo.CreateClient(ctx, client), "client")
}

// UpdateClient rewrites a client record.
func (s *Service) UpdateClient(ctx context.Context, client *entity.Client) error {
	ctx, span := serviceTracer.Start(ctx, "ReferenceService.UpdateClient")
	defer span.End()

	if client == nil || client.Name == "" {
		return errorbank.BadRequest("client name is required")
	}
	return mapErr(s.repo.UpdateClient(ctx, client), "client")
}

// GetMill fetches one mill.
func (s *Service) GetMill(ctx context.Context, id int64) (*entity.Mill, error) {
	ctx, span := serviceTracer.Start(ctx, "ReferenceService.GetMill")
	defer span.End()

	mill, err := s.repo.GetMill(ctx, id)
	return mill, mapErr(err, "mill")
}

// ListMills returns all mills.
func (s *Service) ListMills(ctx context.Context) ([]*entity.Mill, error) {
	ctx, span := serviceTracer.Start(ctx, "ReferenceService.ListMills")
	defer span.End()

	mills, err := s.repo.ListMills(ctx)
	return mills, mapErr(err, "mill")
}

// CreateMill stores a new mill.
func (s *Service) CreateMill(ctx context.Context, mill *entity.Mill) error {
	ctx, span := serviceTracer.Start(ctx, "ReferenceService.CreateMill")
	defer span.End()

	if mill == nil || mill.Name == "" {
		return errorbank.BadRequest("mill name is required")
	}
	return mapErr(s.repo.CreateMill(ctx, mill), "mill")
}

// GetProduct fetches one product.
func (s *Service) GetProduct(ctx context.Context, id int64) (*entity.Product, error) {
	ctx, span := serviceTracer.Start(ctx, "ReferenceService.GetProduct")
	defer span.End()

	product, err := s.repo.GetProduct(ctx, id)
	return product, mapErr(err, "product")
}

// ListProducts returns all products.
func (s *Service) ListProducts(ctx context.Context) ([]*entity.Product, error) {
	ctx, span := serviceTracer.Start(ctx, "ReferenceService.ListProducts")
	defer span.End()

	products, err := s.repo.ListProducts(ctx)
	return products, mapErr(err, "product")
}

// CreateProduct stores a new product after checking its mill and commission
// terms.
func (s *Service) CreateProduct(ctx context.Context, product *entity.Product) error {
	ctx, span := serviceTracer.Start(ctx, "ReferenceService.CreateProduct")
	defer span.End()

	if product == nil || product.Name == "" {
		return errorbank.BadRequest("product name is required")
	}
	if product.CommissionType != entity.CommissionPercentage && product.CommissionType != entity.CommissionFixed {
		return errorbank.BadRequest("commission type must be percentage or fixed")
	}
	if _, err := s.repo.GetMill(ctx, product.MillID); err != nil {
		return mapErr(err, "mill")
	}
	return mapErr(s.repo.CreateProduct(ctx, product), "product")
}

// GetCarrier fetches one carrier.
func (s *Service) GetCarrier(ctx context.Context, id int64) (*entity.Carrier, error) {
	ctx, span := serviceTracer.Start(ctx, "ReferenceService.GetCarrier")
	defer span.End()

	carrier, err := s.repo.GetCarrier(ctx, id)
	return carrier, mapErr(err, "carrier")
}

// ListCarriers returns all carriers.
func (s *Service) ListCarriers(ctx context.Context) ([]*entity.Carrier, error) {
	ctx, span := serviceTracer.Start(ctx, "ReferenceService.ListCarriers")
	defer span.End()

	carriers, err := s.repo.ListCarriers(ctx)
	return carriers, mapErr(err, "carrier")
}

// CreateCarrier stores a new carrier.
func (s *Service) CreateCarrier(ctx context.Context, carrier *entity.Carrier) error {
	ctx, span := serviceTracer.Start(ctx, "ReferenceService.CreateCarrier")
	defer span.End()

	if carrier == nil || carrier.Name == "" {
		return errorbank.BadRequest("carrier name is required")
	}
	return mapErr(s.repo.CreateCarrier(ctx, carrier), "carrier")
}
