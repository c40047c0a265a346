package load

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

var repoTracer = otel.Tracer("github.com/macina-app/macina/repository/load")

// ErrNotFound is returned when a load is missing.
var ErrNotFound = errors.New("load not found")

// Filter narrows load listings.
type Filter struct {
	State    string
	Type     string
	MillID   *int64
	OpenOnly bool
}

// Repository encapsulates read/write access for loads.
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

// Get fetches one load.
func (r *Repository) Get(ctx context.Context, id int64) (*entity.Load, error) {
	ctx, span := repoTracer.Start(ctx, "LoadRepository.Get", trace.WithAttributes(attribute.Int64("load.id", id)))
	defer span.End()

	load := new(entity.Load)
	err := r.read(ctx).NewSelect().Model(load).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return load, nil
}

// GetForUpdate fetches one load under a row lock. Must run inside an open
// transaction; lifecycle mutations go through this so concurrent attach and
// state changes serialize on the load row.
func (r *Repository) GetForUpdate(ctx context.Context, id int64) (*entity.Load, error) {
	ctx, span := repoTracer.Start(ctx, "LoadRepository.GetForUpdate", trace.WithAttributes(attribute.Int64("load.id", id)))
	defer span.End()

	load := new(entity.Load)
	err := r.write(ctx).NewSelect().Model(load).Where("id = ?", id).For("UPDATE").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return load, nil
}

// List returns loads matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter Filter) ([]*entity.Load, error) {
	ctx, span := repoTracer.Start(ctx, "LoadRepository.List")
	defer span.End()

	var loads []*entity.Load
	q := r.read(ctx).NewSelect().Model(&loads)
	if filter.State != "" {
		q = q.Where("state = ?", filter.State)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.MillID != nil {
		q = q.Where("mill_id = ?", *filter.MillID)
	}
	if filter.OpenOnly {
		q = q.Where("state IN (?)", bun.In([]string{entity.LoadStateDraft, entity.LoadStateAssigned}))
	}

	if err := q.Order("id DESC").Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return loads, nil
}

// Create persists a new load.
func (r *Repository) Create(ctx context.Context, load *entity.Load) error {
	if load == nil {
		return errors.New("nil load")
	}
	ctx, span := repoTracer.Start(ctx, "LoadRepository.Create", trace.WithAttributes(attribute.Int64("load.mill_id", load.MillID)))
	defer span.End()

	if _, err := r.write(ctx).NewInsert().Model(load).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	return nil
}

// Update persists changed load columns.
func (r *Repository) Update(ctx context.Context, load *entity.Load) error {
	if load == nil {
		return errors.New("nil load")
	}
	ctx, span := repoTracer.Start(ctx, "LoadRepository.Update", trace.WithAttributes(attribute.Int64("load.id", load.ID)))
	defer span.End()

	load.UpdatedAt = time.Now().UTC()
	res, err := r.write(ctx).NewUpdate().Model(load).WherePK().Exec(ctx)
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

// Delete removes a load. Orders must be detached by the caller first.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "LoadRepository.Delete", trace.WithAttributes(attribute.Int64("load.id", id)))
	defer span.End()

	res, err := r.write(ctx).NewDelete().Model((*entity.Load)(nil)).Where("id = ?", id).Exec(ctx)
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
