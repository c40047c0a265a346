package reference

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/macina-app/macina/internal/database"
	"github.com/macina-app/macina/internal/entity"
)

var repoTracer = otel.Tracer("github.com/macina-app/macina/repository/reference")

// ErrNotFound is returned when a reference record is missing.
var ErrNotFound = errors.New("reference record not found")

// Repository provides access to the reference tables: clients, mills,
// products, carriers and the per client/product price history.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

func (r *Repository) write(ctx context.Context) bun.IDB {
	return database.FromContext(ctx, r.writer)
}

func (r *Repository) read(ctx context.Context) bun.IDB {
	return database.FromContext(ctx, r.reader)
}

func (r *Repository) get(ctx context.Context, span trace.Span, model any, id int64) error {
	err := r.read(ctx).NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
	}
	return err
}

// GetClient fetches one client.
func (r *Repository) GetClient(ctx context.Context, id int64) (*entity.Client, error) {
	ctx, span := repoTracer.Start(ctx, "ReferenceRepository.GetClient", trace.WithAttributes(attribute.Int64("client.id", id)))
	defer span.End()

	client := new(entity.Client)
	if err := r.get(ctx, span, client, id); err != nil {
		return nil, err
	}
	return client, nil
}

// ListClients returns all clients ordered by name.
func (r *Repository) ListClients(ctx context.Context) ([]*entity.Client, error) {
	ctx, span := repoTracer.Start(ctx, "ReferenceRepository.ListClients")
	defer span.End()

	var clients []*entity.Client
	if err := r.read(ctx).NewSelect().Model(&clients).Order("name ASC").Scan(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return clients, nil
}

// CreateClient persists a new client.
func (r *Repository) CreateClient(ctx context.Context, client *entity.Client) error {
	ctx, span := repoTracer.Start(ctx, "ReferenceRepository.CreateClient")
	defer span.End()

	if _, err := r.write(ctx).NewInsert().Model(client).Exec(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// UpdateClient persists changed client columns.
func (r *Repository) UpdateClient(ctx context.Context, client *entity.Client) error {
	ctx, span := repoTracer.Start(ctx, "ReferenceRepository.UpdateClient", trace.WithAttributes(attribute.Int64("client.id", client.ID)))
	defer span.End()

	res, err := r.write(ctx).NewUpdate().Model(client).WherePK().Exec(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMill fetches one mill.
func (r *Repository) GetMill(ctx context.Context, id int64) (*entity.Mill, error) {
	ctx, span := repoTracer.Start(ctx, "ReferenceRepository.GetMill", trace.WithAttributes(attribute.Int64("mill.id", id)))
	defer span.End()

	mill := new(entity.Mill)
	if err := r.get(ctx, span, mill, id); err != nil {
		return nil, err
	}
	return mill, nil
}

// ListMills returns all mills ordered by name.
func (r *Repository) ListMills(ctx context.Context) ([]*entity.Mill, error) {
	ctx, span := repoTracer.Start(ctx, "ReferenceRepository.ListMills")
	defer span.End()

	var mills []*entity.Mill
	if err := r.read(ctx).NewSelect().Model(&mills).Order("name ASC").Scan(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return mills, nil
}

// CreateMill persists a new mill.
func (r *Repository) CreateMill(ctx context.Context, mill *entity.Mill) error {
	ctx, span := repoTracer.Start(ctx, "ReferenceRepository.CreateMill")
	defer span.End()

	if _, err := r.write(ctx).NewInsert().Model(mill).Exec(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// GetProduct fetches one product.
func (r *Repository) GetProduct(ctx context.Context, id int64) (*entity.Product, error) {
	ctx, span := repoTracer.Start(ctx, "ReferenceRepository.GetProduct", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	product := new(entity.Product)
	if err := r.get(ctx, span, product, id); err != nil {
		return nil, err
	}
	return product, nil
}

// ListProducts returns all products ordered by name.
func (r *Repository) ListProducts(ctx context.Context) ([]*entity.Product, error) {
	ctx, span := repoTracer.Start(ctx, "ReferenceRepository.ListProducts")
	defer span.End()

	var products []*entity.Product
	if err := r.read(ctx).NewSelect().Model(&products).Order("name ASC").Scan(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return products, nil
}

// CreateProduct persists a new product.
func (r *Repository) CreateProduct(ctx context.Context, product *entity.Product) error {
	ctx, span := repoTracer.Start(ctx, "ReferenceRepository.CreateProduct")
	defer span.End()

	if _, err := r.write(ctx).NewInsert().Model(product).Exec(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// GetCarrier fetches one carrier.
func (r *Repository) GetCarrier(ctx context.Context, id int64) (*entity.Carrier, error) {
	ctx, span := repoTracer.Start(ctx, "ReferenceRepository.GetCarrier", trace.WithAttributes(attribute.Int64("carrier.id", id)))
	defer span.End()

	carrier := new(entity.Carrier)
	if err := r.get(ctx, span, carrier, id); err != nil {
		return nil, err
	}
	return carrier, nil
}

// ListCarriers returns all carriers ordered by name.
func (r *Repository) ListCarriers(ctx context.Context) ([]*entity.Carrier, error) {
	ctx, span := repoTracer.Start(ctx, "ReferenceRepository.ListCarriers")
	defer span.End()

	var carriers []*entity.Carrier
	if err := r.read(ctx).NewSelect().Model(&carriers).Order("name ASC").Scan(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return carriers, nil
}

// CreateCarrier persists a new carrier.
func (r *Repository) CreateCarrier(ctx context.Context, carrier *entity.Carrier) error {
	ctx, span := repoTracer.Start(ctx, "ReferenceRepository.CreateCarrier")
	defer span.End()

	if _, err := r.write(ctx).NewInsert().Model(carrier).Exec(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// AppendPrice records the unit price a client paid for a product.
func (r *Repository) AppendPrice(ctx context.Context, entry *entity.PriceEntry) error {
	ctx, span := repoTracer.Start(ctx, "ReferenceRepository.AppendPrice", trace.WithAttributes(
		attribute.Int64("client.id", entry.ClientID),
		attribute.Int64("product.id", entry.ProductID),
	))
	defer span.End()

	if _, err := r.write(ctx).NewInsert().Model(entry).Exec(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// LastPrice returns the most recent unit price this client paid for this
// product. ErrNotFound when no history exists.
func (r *Repository) LastPrice(ctx context.Context, clientID, productID int64) (decimal.Decimal, error) {
	ctx, span := repoTracer.Start(ctx, "ReferenceRepository.LastPrice", trace.WithAttributes(
		attribute.Int64("client.id", clientID),
		attribute.Int64("product.id", productID),
	))
	defer span.End()

	entry := new(entity.PriceEntry)
	err := r.read(ctx).NewSelect().Model(entry).
		Where("client_id = ?", clientID).
		Where("product_id = ?", productID).
		Order("created_at DESC", "id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return decimal.Zero, err
	}
	return entry.UnitPrice, nil
}
