package load

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/macina-app/macina/internal/entity"
	loadrepo "github.com/macina-app/macina/internal/repository/load"
	orderrepo "github.com/macina-app/macina/internal/repository/order"
	refrepo "github.com/macina-app/macina/internal/repository/reference"
	"github.com/macina-app/macina/pkg/errorbank"
)

// CreateDraft validates the candidate orders and, when they pass, creates a
// draft load carrying the derived mill, type and total, attaching every
// order as clustered.
func (s *Service) CreateDraft(ctx context.Context, orderIDs []int64, notes string) (*entity.Load, error) {
	ctx, span := serviceTracer.Start(ctx, "LoadService.CreateDraft", trace.WithAttributes(attribute.Int("order.count", len(orderIDs))))
	defer span.End()

	var created *entity.Load
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		validation, err := s.Validate(ctx, orderIDs, nil)
		if err != nil {
			return err
		}
		if !validation.Valid {
			return violationErr(validation.Errors)
		}

		load := &entity.Load{
			MillID:      validation.Facts.MillID,
			Type:        validation.Facts.Type,
			State:       entity.LoadStateDraft,
			TotalWeight: validation.Facts.TotalWeight,
			Notes:       notes,
			CreatedAt:   s.now(),
		}
		if err := s.loads.Create(ctx, load); err != nil {
			return internalErr("failed to create load", err)
		}
		if err := s.orders.Attach(ctx, orderIDs, load.ID, entity.LogisticsClustered); err != nil {
			return internalErr("failed to attach orders", err)
		}
		created = load
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create draft failed")
		return nil, err
	}

	s.publishStateChanged(ctx, created, "")
	return created, nil
}

// CreateFromLargeOrder turns one unattached order of at least the single-order
// threshold into a load created directly in the assigned state; a qualifying
// order already satisfies the minimum without aggregation, so the draft stage
// is skipped.
func (s *Service) CreateFromLargeOrder(ctx context.Context, orderID, carrierID int64, pickupDate time.Time) (*entity.Load, error) {
	ctx, span := serviceTracer.Start(ctx, "LoadService.CreateFromLargeOrder", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.Int64("carrier.id", carrierID),
	))
	defer span.End()

	var created *entity.Load
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.getOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Attached() {
			return errorbank.ConstraintViolation(fmt.Sprintf("order %d is already on load %d", orderID, *order.LoadID))
		}
		weight := order.TotalWeight()
		if weight.LessThan(entity.SingleOrderThreshold) {
			return errorbank.ConstraintViolation(fmt.Sprintf("order weight %s is below the single-order threshold %s",
				weight.StringFixed(2), entity.SingleOrderThreshold.StringFixed(2)))
		}
		if weight.GreaterThan(entity.MaxLoadWeight) {
			return errorbank.ConstraintViolation(fmt.Sprintf("order weight %s exceeds capacity %s",
				weight.StringFixed(2), entity.MaxLoadWeight.StringFixed(2)))
		}
		millID, ok := order.DominantMillID()
		if !ok {
			return errorbank.ConstraintViolation(fmt.Sprintf("order %d has no lines", orderID))
		}
		if _, err := s.getCarrier(ctx, carrierID); err != nil {
			return err
		}

		load := &entity.Load{
			MillID:      millID,
			Type:        order.Type,
			CarrierID:   &carrierID,
			PickupDate:  &pickupDate,
			State:       entity.LoadStateAssigned,
			TotalWeight: weight,
			CreatedAt:   s.now(),
		}
		if err := s.loads.Create(ctx, load); err != nil {
			return internalErr("failed to create load", err)
		}
		if err := s.orders.Attach(ctx, []int64{orderID}, load.ID, entity.LogisticsInLoad); err != nil {
			return internalErr("failed to attach order", err)
		}
		created = load
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create from large order failed")
		return nil, err
	}

	s.publishStateChanged(ctx, created, "")
	return created, nil
}

// AssignTransport moves a draft load to assigned, recording carrier and
// pickup date and marking every member order as in load.
func (s *Service) AssignTransport(ctx context.Context, loadID, carrierID int64, pickupDate time.Time) (*entity.Load, error) {
	ctx, span := serviceTracer.Start(ctx, "LoadService.AssignTransport", trace.WithAttributes(
		attribute.Int64("load.id", loadID),
		attribute.Int64("carrier.id", carrierID),
	))
	defer span.End()

	var updated *entity.Load
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		load, err := s.lockLoad(ctx, loadID)
		if err != nil {
			return err
		}
		if load.State != entity.LoadStateDraft {
			return transitionErr(load, entity.LoadStateAssigned)
		}
		if _, err := s.getCarrier(ctx, carrierID); err != nil {
			return err
		}

		load.CarrierID = &carrierID
		load.PickupDate = &pickupDate
		load.State = entity.LoadStateAssigned
		if err := s.loads.Update(ctx, load); err != nil {
			return internalErr("failed to update load", err)
		}
		if err := s.orders.UpdateStatusByLoad(ctx, loadID, entity.LogisticsInLoad, ""); err != nil {
			return internalErr("failed to update order statuses", err)
		}
		updated = load
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assign transport failed")
		return nil, err
	}

	s.publishStateChanged(ctx, updated, entity.LoadStateDraft)
	return updated, nil
}

// AddOrder attaches one more order to a draft load. The cached total is
// advanced by the order's exact weight; the decimal sum keeps the increment
// identical to a full recomputation.
func (s *Service) AddOrder(ctx context.Context, loadID, orderID int64) (*entity.Load, error) {
	ctx, span := serviceTracer.Start(ctx, "LoadService.AddOrder", trace.WithAttributes(
		attribute.Int64("load.id", loadID),
		attribute.Int64("order.id", orderID),
	))
	defer span.End()

	var updated *entity.Load
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		load, err := s.lockLoad(ctx, loadID)
		if err != nil {
			return err
		}
		if load.State != entity.LoadStateDraft {
			return errorbank.InvalidTransition(fmt.Sprintf("load %d is %s; orders can only be added in draft", loadID, load.State))
		}
		order, err := s.getOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Attached() {
			return errorbank.ConstraintViolation(fmt.Sprintf("order %d is already on load %d", orderID, *order.LoadID))
		}
		if order.Type != load.Type {
			return errorbank.ConstraintViolation(fmt.Sprintf("order type %s does not match load type %s", order.Type, load.Type))
		}
		millID, ok := order.DominantMillID()
		if !ok {
			return errorbank.ConstraintViolation(fmt.Sprintf("order %d has no lines", orderID))
		}
		if millID != load.MillID {
			return errorbank.ConstraintViolation(fmt.Sprintf("order mill %d does not match load mill %d", millID, load.MillID))
		}
		weight := order.TotalWeight()
		if next := load.TotalWeight.Add(weight); next.GreaterThan(entity.MaxLoadWeight) {
			return errorbank.ConstraintViolation(fmt.Sprintf("adding order would bring the load to %s, over capacity %s",
				next.StringFixed(2), entity.MaxLoadWeight.StringFixed(2)))
		}

		if err := s.orders.Attach(ctx, []int64{orderID}, loadID, entity.LogisticsClustered); err != nil {
			return internalErr("failed to attach order", err)
		}
		load.TotalWeight = load.TotalWeight.Add(weight)
		if err := s.loads.Update(ctx, load); err != nil {
			return internalErr("failed to update load", err)
		}
		updated = load
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "add order failed")
		return nil, err
	}
	return updated, nil
}

// RemoveOrder detaches an order from its load. When no orders remain, or a
// single order remains while the load is still draft, the load is deleted
// and its leftover order released; a lone draft order has no value as a
// load. Otherwise the cached total is recomputed from the remaining orders
// and the updated load returned. Returns nil when the load was deleted.
func (s *Service) RemoveOrder(ctx context.Context, orderID int64) (*entity.Load, error) {
	ctx, span := serviceTracer.Start(ctx, "LoadService.RemoveOrder", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	var updated *entity.Load
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.getOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Attached() {
			return errorbank.ConstraintViolation(fmt.Sprintf("order %d is not on any load", orderID))
		}
		load, err := s.lockLoad(ctx, *order.LoadID)
		if err != nil {
			return err
		}
		if !load.Open() {
			return errorbank.InvalidTransition(fmt.Sprintf("load %d is %s; membership is frozen", load.ID, load.State))
		}

		if err := s.orders.Detach(ctx, orderID); err != nil {
			return internalErr("failed to detach order", err)
		}
		remaining, err := s.orders.ListByLoad(ctx, load.ID)
		if err != nil {
			return internalErr("failed to list remaining orders", err)
		}

		if len(remaining) == 0 || (len(remaining) == 1 && load.State == entity.LoadStateDraft) {
			if err := s.orders.DetachAllFromLoad(ctx, load.ID); err != nil {
				return internalErr("failed to release remaining orders", err)
			}
			if err := s.loads.Delete(ctx, load.ID); err != nil {
				return internalErr("failed to delete load", err)
			}
			return nil
		}

		// Full recompute here rather than a decrement corrects any drift in
		// the denormalised total.
		total := decimal.Zero
		for _, member := range remaining {
			total = total.Add(member.TotalWeight())
		}
		load.TotalWeight = total
		if err := s.loads.Update(ctx, load); err != nil {
			return internalErr("failed to update load", err)
		}
		updated = load
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "remove order failed")
		return nil, err
	}
	return updated, nil
}

// MarkPickedUp moves an assigned load to picked up; member orders become
// shipped and the legacy status mirror is kept in step for older reports.
func (s *Service) MarkPickedUp(ctx context.Context, loadID int64) (*entity.Load, error) {
	ctx, span := serviceTracer.Start(ctx, "LoadService.MarkPickedUp", trace.WithAttributes(attribute.Int64("load.id", loadID)))
	defer span.End()

	var updated *entity.Load
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		load, err := s.lockLoad(ctx, loadID)
		if err != nil {
			return err
		}
		if load.State != entity.LoadStateAssigned {
			return transitionErr(load, entity.LoadStatePickedUp)
		}

		load.State = entity.LoadStatePickedUp
		if err := s.loads.Update(ctx, load); err != nil {
			return internalErr("failed to update load", err)
		}
		if err := s.orders.UpdateStatusByLoad(ctx, loadID, entity.LogisticsShipped, entity.LegacyStatusPickedUp); err != nil {
			return internalErr("failed to update order statuses", err)
		}
		updated = load
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark picked up failed")
		return nil, err
	}

	s.publishStateChanged(ctx, updated, entity.LoadStateAssigned)
	return updated, nil
}

// MarkDelivered moves a picked-up load to its terminal state. Orders were
// already marked shipped at pickup, so no further order changes happen.
func (s *Service) MarkDelivered(ctx context.Context, loadID int64) (*entity.Load, error) {
	ctx, span := serviceTracer.Start(ctx, "LoadService.MarkDelivered", trace.WithAttributes(attribute.Int64("load.id", loadID)))
	defer span.End()

	var updated *entity.Load
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		load, err := s.lockLoad(ctx, loadID)
		if err != nil {
			return err
		}
		if load.State != entity.LoadStatePickedUp {
			return transitionErr(load, entity.LoadStateDelivered)
		}

		load.State = entity.LoadStateDelivered
		if err := s.loads.Update(ctx, load); err != nil {
			return internalErr("failed to update load", err)
		}
		updated = load
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark delivered failed")
		return nil, err
	}

	s.publishStateChanged(ctx, updated, entity.LoadStatePickedUp)
	return updated, nil
}

// Delete dissolves a draft or assigned load, releasing every member order
// back to open. Loads past pickup are history and cannot be deleted.
func (s *Service) Delete(ctx context.Context, loadID int64) error {
	ctx, span := serviceTracer.Start(ctx, "LoadService.Delete", trace.WithAttributes(attribute.Int64("load.id", loadID)))
	defer span.End()

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		load, err := s.lockLoad(ctx, loadID)
		if err != nil {
			return err
		}
		if !load.Open() {
			return errorbank.InvalidTransition(fmt.Sprintf("load %d is %s and cannot be deleted", loadID, load.State))
		}
		if err := s.orders.DetachAllFromLoad(ctx, loadID); err != nil {
			return internalErr("failed to release orders", err)
		}
		if err := s.loads.Delete(ctx, loadID); err != nil {
			return internalErr("failed to delete load", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete load failed")
	}
	return err
}

func (s *Service) getLoad(ctx context.Context, id int64) (*entity.Load, error) {
	load, err := s.loads.Get(ctx, id)
	if errors.Is(err, loadrepo.ErrNotFound) {
		return nil, errorbank.NotFound("load not found")
	}
	if err != nil {
		return nil, internalErr("failed to load load", err)
	}
	return load, nil
}

func (s *Service) lockLoad(ctx context.Context, id int64) (*entity.Load, error) {
	load, err := s.loads.GetForUpdate(ctx, id)
	if errors.Is(err, loadrepo.ErrNotFound) {
		return nil, errorbank.NotFound("load not found")
	}
	if err != nil {
		return nil, internalErr("failed to lock load", err)
	}
	return load, nil
}

func (s *Service) getOrder(ctx context.Context, id int64) (*entity.Order, error) {
	order, err := s.orders.Get(ctx, id)
	if errors.Is(err, orderrepo.ErrNotFound) {
		return nil, errorbank.NotFound(fmt.Sprintf("order %d not found", id))
	}
	if err != nil {
		return nil, internalErr("failed to load order", err)
	}
	return order, nil
}

func (s *Service) getCarrier(ctx context.Context, id int64) (*entity.Carrier, error) {
	carrier, err := s.carriers.GetCarrier(ctx, id)
	if errors.Is(err, refrepo.ErrNotFound) {
		return nil, errorbank.NotFound(fmt.Sprintf("carrier %d not found", id))
	}
	if err != nil {
		return nil, internalErr("failed to load carrier", err)
	}
	return carrier, nil
}

func violationErr(violations []string) error {
	msg := "orders cannot share a load"
	if len(violations) > 0 {
		msg = violations[0]
	}
	return errorbank.ConstraintViolation(msg, errorbank.WithDetail("violations", violations))
}

func transitionErr(load *entity.Load, target string) error {
	return errorbank.InvalidTransition(fmt.Sprintf("load %d cannot move from %s to %s", load.ID, load.State, target))
}

func internalErr(message string, cause error) error {
	return errorbank.Internal(message, errorbank.WithCause(cause))
}
