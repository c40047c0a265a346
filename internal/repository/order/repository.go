package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/macina-app/macina/internal/database"
	"github.com/macina-app/macina/internal/entity"
)

var repoTracer = otel.Tracer("github.com/macina-app/macina/repository/order")

// ErrNotFound is returned when an order is missing.
var ErrNotFound = errors.New("order not found")

// Filter narrows order listings.
type Filter struct {
	ClientID *int64
	Status   string
	DateFrom *time.Time
	DateTo   *time.Time
}

// Repository encapsulates read/write access for orders and their lines.
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

// write resolves the statement target: the open transaction when one is in
// flight, the writer pool otherwise.
func (r *Repository) write(ctx context.Context) bun.IDB {
	return database.FromContext(ctx, r.writer)
}

// read prefers the open transaction so reads inside a unit of work see its
// own writes; plain reads go to the replica.
func (r *Repository) read(ctx context.Context) bun.IDB {
	return database.FromContext(ctx, r.reader)
}

// Get fetches an order with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Get", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order := new(entity.Order)
	err := r.read(ctx).NewSelect().Model(order).
		Relation("Lines").
		Where("o.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// GetMany fetches the given orders with their lines. Missing ids are simply
// absent from the result; callers compare lengths.
func (r *Repository) GetMany(ctx context.Context, ids []int64) ([]*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetMany", trace.WithAttributes(attribute.Int("order.count", len(ids))))
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	var orders []*entity.Order
	err := r.read(ctx).NewSelect().Model(&orders).
		Relation("Lines").
		Where("o.id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// ListByLoad returns all orders attached to a load, with lines.
func (r *Repository) ListByLoad(ctx context.Context, loadID int64) ([]*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListByLoad", trace.WithAttributes(attribute.Int64("load.id", loadID)))
	defer span.End()

	var orders []*entity.Order
	err := r.read(ctx).NewSelect().Model(&orders).
		Relation("Lines").
		Where("o.load_id = ?", loadID).
		Order("o.id ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// CountByLoad counts the orders currently attached to a load.
func (r *Repository) CountByLoad(ctx context.Context, loadID int64) (int, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.CountByLoad", trace.WithAttributes(attribute.Int64("load.id", loadID)))
	defer span.End()

	count, err := r.read(ctx).NewSelect().Model((*entity.Order)(nil)).
		Where("load_id = ?", loadID).
		Count(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count failed")
		return 0, err
	}
	return count, nil
}

// ListUnassigned returns open orders not attached to any load, with lines.
// orderType narrows by bulk/pallets when non-empty.
func (r *Repository) ListUnassigned(ctx context.Context, orderType string) ([]*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListUnassigned")
	defer span.End()

	var orders []*entity.Order
	q := r.read(ctx).NewSelect().Model(&orders).
		Relation("Lines").
		Where("o.load_id IS NULL").
		Where("o.logistics_status = ?", entity.LogisticsOpen)
	if orderType != "" {
		q = q.Where("o.type = ?", orderType)
	}

	err := q.Order("o.order_date ASC", "o.id ASC").Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// ListByCollectionDateRange returns orders whose mill collection date falls
// inside [from, to], with lines. Used by commission reporting.
func (r *Repository) ListByCollectionDateRange(ctx context.Context, from, to time.Time) ([]*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListByCollectionDateRange")
	defer span.End()

	var orders []*entity.Order
	err := r.read(ctx).NewSelect().Model(&orders).
		Relation("Lines").
		Where("o.collection_date >= ?", from).
		Where("o.collection_date <= ?", to).
		Order("o.collection_date ASC", "o.id ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// List returns orders matching the filter, newest first, with lines.
func (r *Repository) List(ctx context.Context, filter Filter) ([]*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.List")
	defer span.End()

	var orders []*entity.Order
	q := r.read(ctx).NewSelect().Model(&orders).Relation("Lines")
	if filter.ClientID != nil {
		q = q.Where("o.client_id = ?", *filter.ClientID)
	}
	if filter.Status != "" {
		q = q.Where("o.status = ?", filter.Status)
	}
	if filter.DateFrom != nil {
		q = q.Where("o.order_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		q = q.Where("o.order_date <= ?", *filter.DateTo)
	}

	err := q.Order("o.order_date DESC", "o.id DESC").Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// Create persists a new order and its lines.
func (r *Repository) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(attribute.Int64("order.client_id", order.ClientID)))
	defer span.End()

	db := r.write(ctx)
	if _, err := db.NewInsert().Model(order).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	for _, line := range order.Lines {
		line.OrderID = order.ID
	}
	if len(order.Lines) > 0 {
		if _, err := db.NewInsert().Model(&order.Lines).Exec(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "insert lines failed")
			return err
		}
	}
	return nil
}

// Update persists changed order columns.
func (r *Repository) Update(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Update", trace.WithAttributes(attribute.Int64("order.id", order.ID)))
	defer span.End()

	order.UpdatedAt = time.Now().UTC()
	res, err := r.write(ctx).NewUpdate().Model(order).WherePK().Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceLines deletes the order's current lines and inserts the new set.
func (r *Repository) ReplaceLines(ctx context.Context, orderID int64, lines []*entity.OrderLine) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ReplaceLines", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	db := r.write(ctx)
	if _, err := db.NewDelete().Model((*entity.OrderLine)(nil)).Where("order_id = ?", orderID).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete lines failed")
		return err
	}
	for _, line := range lines {
		line.OrderID = orderID
	}
	if len(lines) > 0 {
		if _, err := db.NewInsert().Model(&lines).Exec(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "insert lines failed")
			return err
		}
	}
	return nil
}

// Delete removes the order and cascades to its lines.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Delete", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	db := r.write(ctx)
	if _, err := db.NewDelete().Model((*entity.OrderLine)(nil)).Where("order_id = ?", id).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete lines failed")
		return err
	}
	res, err := db.NewDelete().Model((*entity.Order)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Attach puts the given orders onto a load and moves their logistics status.
func (r *Repository) Attach(ctx context.Context, orderIDs []int64, loadID int64, logisticsStatus string) error {
	if len(orderIDs) == 0 {
		return nil
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Attach", trace.WithAttributes(
		attribute.Int64("load.id", loadID),
		attribute.Int("order.count", len(orderIDs)),
	))
	defer span.End()

	_, err := r.write(ctx).NewUpdate().Model((*entity.Order)(nil)).
		Set("load_id = ?", loadID).
		Set("logistics_status = ?", logisticsStatus).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id IN (?)", bun.In(orderIDs)).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

// Detach removes one order from its load, reverting it to open.
func (r *Repository) Detach(ctx context.Context, orderID int64) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Detach", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	_, err := r.write(ctx).NewUpdate().Model((*entity.Order)(nil)).
		Set("load_id = NULL").
		Set("logistics_status = ?", entity.LogisticsOpen).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", orderID).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

// DetachAllFromLoad releases every order of a load back to open.
func (r *Repository) DetachAllFromLoad(ctx context.Context, loadID int64) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.DetachAllFromLoad", trace.WithAttributes(attribute.Int64("load.id", loadID)))
	defer span.End()

	_, err := r.write(ctx).NewUpdate().Model((*entity.Order)(nil)).
		Set("load_id = NULL").
		Set("logistics_status = ?", entity.LogisticsOpen).
		Set("updated_at = ?", time.Now().UTC()).
		Where("load_id = ?", loadID).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

// UpdateStatusByLoad moves the logistics status of every order on a load.
// legacyStatus additionally mirrors the old status column when non-empty.
func (r *Repository) UpdateStatusByLoad(ctx context.Context, loadID int64, logisticsStatus, legacyStatus string) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UpdateStatusByLoad", trace.WithAttributes(
		attribute.Int64("load.id", loadID),
		attribute.String("order.logistics_status", logisticsStatus),
	))
	defer span.End()

	q := r.write(ctx).NewUpdate().Model((*entity.Order)(nil)).
		Set("logistics_status = ?", logisticsStatus).
		Set("updated_at = ?", time.Now().UTC()).
		Where("load_id = ?", loadID)
	if legacyStatus != "" {
		q = q.Set("status = ?", legacyStatus)
	}

	if _, err := q.Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	return nil
}

// SetEmailSent stamps the order as mailed to its mills.
func (r *Repository) SetEmailSent(ctx context.Context, orderID int64, at time.Time) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.SetEmailSent", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	_, err := r.write(ctx).NewUpdate().Model((*entity.Order)(nil)).
		Set("email_sent_at = ?", at).
		Where("id = ?", orderID).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}
