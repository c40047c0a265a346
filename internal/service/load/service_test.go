package load

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/macina-app/macina/internal/entity"
	loadrepo "github.com/macina-app/macina/internal/repository/load"
	orderrepo "github.com/macina-app/macina/internal/repository/order"
	refrepo "github.com/macina-app/macina/internal/repository/reference"
	"github.com/macina-app/macina/pkg/errorbank"
)

// memStore is an in-memory stand-in for the order, load and carrier
// repositories plus the transaction runner.
type memStore struct {
	orders   map[int64]*entity.Order
	loads    map[int64]*entity.Load
	carriers map[int64]*entity.Carrier
	nextLoad int64
}

func newMemStore() *memStore {
	return &memStore{
		orders:   make(map[int64]*entity.Order),
		loads:    make(map[int64]*entity.Load),
		carriers: make(map[int64]*entity.Carrier),
		nextLoad: 1,
	}
}

func (m *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *memStore) Get(_ context.Context, id int64) (*entity.Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return nil, orderrepo.ErrNotFound
	}
	return order, nil
}

func (m *memStore) GetMany(_ context.Context, ids []int64) ([]*entity.Order, error) {
	var out []*entity.Order
	for _, id := range ids {
		if order, ok := m.orders[id]; ok {
			out = append(out, order)
		}
	}
	return out, nil
}

func (m *memStore) ListByLoad(_ context.Context, loadID int64) ([]*entity.Order, error) {
	var out []*entity.Order
	for _, order := range m.orders {
		if order.LoadID != nil && *order.LoadID == loadID {
			out = append(out, order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListUnassigned(_ context.Context, orderType string) ([]*entity.Order, error) {
	var out []*entity.Order
	for _, order := range m.orders {
		if order.LoadID != nil || order.LogisticsStatus != entity.LogisticsOpen {
			continue
		}
		if orderType != "" && order.Type != orderType {
			continue
		}
		out = append(out, order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) Attach(_ context.Context, orderIDs []int64, loadID int64, logisticsStatus string) error {
	for _, id := range orderIDs {
		if order, ok := m.orders[id]; ok {
			lid := loadID
			order.LoadID = &lid
			order.LogisticsStatus = logisticsStatus
		}
	}
	return nil
}

func (m *memStore) Detach(_ context.Context, orderID int64) error {
	if order, ok := m.orders[orderID]; ok {
		order.LoadID = nil
		order.LogisticsStatus = entity.LogisticsOpen
	}
	return nil
}

func (m *memStore) DetachAllFromLoad(_ context.Context, loadID int64) error {
	for _, order := range m.orders {
		if order.LoadID != nil && *order.LoadID == loadID {
			order.LoadID = nil
			order.LogisticsStatus = entity.LogisticsOpen
		}
	}
	return nil
}

func (m *memStore) UpdateStatusByLoad(_ context.Context, loadID int64, logisticsStatus, legacyStatus string) error {
	for _, order := range m.orders {
		if order.LoadID != nil && *order.LoadID == loadID {
			order.LogisticsStatus = logisticsStatus
			if legacyStatus != "" {
				order.Status = legacyStatus
			}
		}
	}
	return nil
}

func (m *memStore) GetLoad(_ context.Context, id int64) (*entity.Load, error) {
	load, ok := m.loads[id]
	if !ok {
		return nil, loadrepo.ErrNotFound
	}
	return load, nil
}

func (m *memStore) GetForUpdate(ctx context.Context, id int64) (*entity.Load, error) {
	return m.GetLoad(ctx, id)
}

func (m *memStore) List(_ context.Context, filter loadrepo.Filter) ([]*entity.Load, error) {
	var out []*entity.Load
	for _, load := range m.loads {
		if filter.State != "" && load.State != filter.State {
			continue
		}
		if filter.Type != "" && load.Type != filter.Type {
			continue
		}
		if filter.MillID != nil && load.MillID != *filter.MillID {
			continue
		}
		if filter.OpenOnly && !load.Open() {
			continue
		}
		out = append(out, load)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) Create(_ context.Context, load *entity.Load) error {
	load.ID = m.nextLoad
	m.nextLoad++
	m.loads[load.ID] = load
	return nil
}

func (m *memStore) Update(_ context.Context, load *entity.Load) error {
	if _, ok := m.loads[load.ID]; !ok {
		return loadrepo.ErrNotFound
	}
	m.loads[load.ID] = load
	return nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	if _, ok := m.loads[id]; !ok {
		return loadrepo.ErrNotFound
	}
	delete(m.loads, id)
	return nil
}

func (m *memStore) GetCarrier(_ context.Context, id int64) (*entity.Carrier, error) {
	carrier, ok := m.carriers[id]
	if !ok {
		return nil, refrepo.ErrNotFound
	}
	return carrier, nil
}

// loadsAdapter narrows memStore's load methods to the Loads interface, since
// memStore.Get already serves orders.
type loadsAdapter struct{ *memStore }

func (a loadsAdapter) Get(ctx context.Context, id int64) (*entity.Load, error) {
	return a.GetLoad(ctx, id)
}

func newTestService(store *memStore) *Service {
	return New(store, loadsAdapter{store}, store, store, zap.NewNop(), nil, false, "")
}

func (m *memStore) addOrder(id, millID int64, orderType, weight string) *entity.Order {
	w := decimal.RequireFromString(weight)
	order := &entity.Order{
		ID:              id,
		ClientID:        1,
		OrderDate:       time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		Type:            orderType,
		Status:          entity.LegacyStatusEntered,
		LogisticsStatus: entity.LogisticsOpen,
		Lines: []*entity.OrderLine{{
			OrderID:   id,
			ProductID: 1,
			MillID:    millID,
			Weight:    w,
			UnitPrice: decimal.RequireFromString("25.00"),
			LineTotal: w.Mul(decimal.RequireFromString("25.00")).Round(2),
		}},
	}
	m.orders[id] = order
	return order
}

func (m *memStore) addCarrier(id int64) {
	m.carriers[id] = &entity.Carrier{ID: id, Name: "Trasporti Sud"}
}

func kindOf(t *testing.T, err error) errorbank.Kind {
	t.Helper()
	require.Error(t, err)
	return errorbank.From(err).Kind()
}

func TestValidateCompatibleOrders(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "150.00")
	store.addOrder(2, 10, entity.OrderTypeBulk, "140.00")
	svc := newTestService(store)

	validation, err := svc.Validate(context.Background(), []int64{1, 2}, nil)
	require.NoError(t, err)
	require.True(t, validation.Valid)
	require.Empty(t, validation.Errors)
	require.NotNil(t, validation.Facts)
	require.Equal(t, int64(10), validation.Facts.MillID)
	require.Equal(t, entity.OrderTypeBulk, validation.Facts.Type)
	require.True(t, validation.Facts.TotalWeight.Equal(decimal.RequireFromString("290.00")))
}

func TestValidateMixedTypes(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "150.00")
	store.addOrder(2, 10, entity.OrderTypePallets, "100.00")
	svc := newTestService(store)

	validation, err := svc.Validate(context.Background(), []int64{1, 2}, nil)
	require.NoError(t, err)
	require.False(t, validation.Valid)
	require.Len(t, validation.Errors, 1)
	require.Contains(t, validation.Errors[0], "mix types")
}

func TestValidateEmptySet(t *testing.T) {
	svc := newTestService(newMemStore())

	validation, err := svc.Validate(context.Background(), nil, nil)
	require.NoError(t, err)
	require.False(t, validation.Valid)
	require.Contains(t, validation.Errors[0], "no orders")
}

func TestValidateMissingOrder(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "150.00")
	svc := newTestService(store)

	validation, err := svc.Validate(context.Background(), []int64{1, 99}, nil)
	require.NoError(t, err)
	require.False(t, validation.Valid)
	require.Contains(t, validation.Errors[0], "order 99 not found")
}

func TestValidateAttachedShortCircuitsJointRules(t *testing.T) {
	store := newMemStore()
	attached := store.addOrder(1, 10, entity.OrderTypeBulk, "150.00")
	loadID := int64(7)
	attached.LoadID = &loadID
	// A type mismatch that would be reported if evaluation continued.
	store.addOrder(2, 10, entity.OrderTypePallets, "100.00")
	svc := newTestService(store)

	validation, err := svc.Validate(context.Background(), []int64{1, 2}, nil)
	require.NoError(t, err)
	require.False(t, validation.Valid)
	require.Len(t, validation.Errors, 1)
	require.Contains(t, validation.Errors[0], "already on load 7")
}

func TestValidateExcludingLoadAllowsOwnMembers(t *testing.T) {
	store := newMemStore()
	member := store.addOrder(1, 10, entity.OrderTypeBulk, "150.00")
	loadID := int64(7)
	member.LoadID = &loadID
	store.addOrder(2, 10, entity.OrderTypeBulk, "140.00")
	svc := newTestService(store)

	validation, err := svc.Validate(context.Background(), []int64{1, 2}, &loadID)
	require.NoError(t, err)
	require.True(t, validation.Valid)
}

func TestValidateAccumulatesViolations(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "200.00")
	store.addOrder(2, 11, entity.OrderTypePallets, "150.00")
	svc := newTestService(store)

	validation, err := svc.Validate(context.Background(), []int64{1, 2}, nil)
	require.NoError(t, err)
	require.False(t, validation.Valid)
	require.Len(t, validation.Errors, 3)
}

func TestCreateDraft(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "150.00")
	store.addOrder(2, 10, entity.OrderTypeBulk, "140.00")
	svc := newTestService(store)

	load, err := svc.CreateDraft(context.Background(), []int64{1, 2}, "first run")
	require.NoError(t, err)
	require.Equal(t, entity.LoadStateDraft, load.State)
	require.Equal(t, int64(10), load.MillID)
	require.True(t, load.TotalWeight.Equal(decimal.RequireFromString("290.00")))

	for _, id := range []int64{1, 2} {
		order := store.orders[id]
		require.NotNil(t, order.LoadID)
		require.Equal(t, load.ID, *order.LoadID)
		require.Equal(t, entity.LogisticsClustered, order.LogisticsStatus)
	}
}

func TestCreateDraftOverCapacity(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "105.00")
	store.addOrder(2, 10, entity.OrderTypeBulk, "100.00")
	store.addOrder(3, 10, entity.OrderTypeBulk, "100.00")
	svc := newTestService(store)

	_, err := svc.CreateDraft(context.Background(), []int64{1, 2, 3}, "")
	require.Equal(t, errorbank.KindConstraintViolation, kindOf(t, err))
	require.Empty(t, store.loads)
	for _, order := range store.orders {
		require.Nil(t, order.LoadID)
		require.Equal(t, entity.LogisticsOpen, order.LogisticsStatus)
	}
}

func TestCreateFromLargeOrder(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "285.00")
	store.addCarrier(5)
	svc := newTestService(store)

	pickup := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	load, err := svc.CreateFromLargeOrder(context.Background(), 1, 5, pickup)
	require.NoError(t, err)
	require.Equal(t, entity.LoadStateAssigned, load.State)
	require.NotNil(t, load.CarrierID)
	require.Equal(t, int64(5), *load.CarrierID)
	require.True(t, load.TotalWeight.Equal(decimal.RequireFromString("285.00")))
	require.Equal(t, entity.LogisticsInLoad, store.orders[1].LogisticsStatus)
}

func TestCreateFromLargeOrderBelowThreshold(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "279.99")
	store.addCarrier(5)
	svc := newTestService(store)

	_, err := svc.CreateFromLargeOrder(context.Background(), 1, 5, time.Now())
	require.Equal(t, errorbank.KindConstraintViolation, kindOf(t, err))
}

func TestCreateFromLargeOrderMissingCarrier(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "285.00")
	svc := newTestService(store)

	_, err := svc.CreateFromLargeOrder(context.Background(), 1, 5, time.Now())
	require.Equal(t, errorbank.KindNotFound, kindOf(t, err))
}

func TestAssignTransport(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "150.00")
	store.addOrder(2, 10, entity.OrderTypeBulk, "140.00")
	store.addCarrier(5)
	svc := newTestService(store)

	draft, err := svc.CreateDraft(context.Background(), []int64{1, 2}, "")
	require.NoError(t, err)

	pickup := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	load, err := svc.AssignTransport(context.Background(), draft.ID, 5, pickup)
	require.NoError(t, err)
	require.Equal(t, entity.LoadStateAssigned, load.State)
	require.Equal(t, entity.LogisticsInLoad, store.orders[1].LogisticsStatus)
	require.Equal(t, entity.LogisticsInLoad, store.orders[2].LogisticsStatus)

	// Assigning twice is a sequencing fault, not a business-rule one.
	_, err = svc.AssignTransport(context.Background(), draft.ID, 5, pickup)
	require.Equal(t, errorbank.KindInvalidTransition, kindOf(t, err))
}

func TestAddOrderOverCapacityLeavesTotalUntouched(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "150.00")
	store.addOrder(2, 10, entity.OrderTypeBulk, "140.00")
	store.addOrder(3, 10, entity.OrderTypeBulk, "20.00")
	svc := newTestService(store)

	draft, err := svc.CreateDraft(context.Background(), []int64{1, 2}, "")
	require.NoError(t, err)

	_, err = svc.AddOrder(context.Background(), draft.ID, 3)
	require.Equal(t, errorbank.KindConstraintViolation, kindOf(t, err))
	require.True(t, store.loads[draft.ID].TotalWeight.Equal(decimal.RequireFromString("290.00")))
	require.Nil(t, store.orders[3].LoadID)
}

func TestAddOrderIncrementMatchesRecompute(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "150.00")
	store.addOrder(2, 10, entity.OrderTypeBulk, "100.00")
	store.addOrder(3, 10, entity.OrderTypeBulk, "45.50")
	svc := newTestService(store)

	draft, err := svc.CreateDraft(context.Background(), []int64{1, 2}, "")
	require.NoError(t, err)

	load, err := svc.AddOrder(context.Background(), draft.ID, 3)
	require.NoError(t, err)
	require.True(t, load.TotalWeight.Equal(decimal.RequireFromString("295.50")))

	members, err := store.ListByLoad(context.Background(), draft.ID)
	require.NoError(t, err)
	recomputed := decimal.Zero
	for _, member := range members {
		recomputed = recomputed.Add(member.TotalWeight())
	}
	require.True(t, load.TotalWeight.Equal(recomputed))
}

func TestAddOrderWrongMill(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "150.00")
	store.addOrder(2, 10, entity.OrderTypeBulk, "100.00")
	store.addOrder(3, 99, entity.OrderTypeBulk, "40.00")
	svc := newTestService(store)

	draft, err := svc.CreateDraft(context.Background(), []int64{1, 2}, "")
	require.NoError(t, err)

	_, err = svc.AddOrder(context.Background(), draft.ID, 3)
	require.Equal(t, errorbank.KindConstraintViolation, kindOf(t, err))
}

func TestAddOrderOutsideDraft(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "150.00")
	store.addOrder(2, 10, entity.OrderTypeBulk, "140.00")
	store.addOrder(3, 10, entity.OrderTypeBulk, "5.00")
	store.addCarrier(5)
	svc := newTestService(store)

	draft, err := svc.CreateDraft(context.Background(), []int64{1, 2}, "")
	require.NoError(t, err)
	_, err = svc.AssignTransport(context.Background(), draft.ID, 5, time.Now())
	require.NoError(t, err)

	_, err = svc.AddOrder(context.Background(), draft.ID, 3)
	require.Equal(t, errorbank.KindInvalidTransition, kindOf(t, err))
}

func TestRemoveOrderDissolvesTwoOrderDraft(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "150.00")
	store.addOrder(2, 10, entity.OrderTypeBulk, "140.00")
	svc := newTestService(store)

	draft, err := svc.CreateDraft(context.Background(), []int64{1, 2}, "")
	require.NoError(t, err)

	load, err := svc.RemoveOrder(context.Background(), 1)
	require.NoError(t, err)
	require.Nil(t, load)
	require.NotContains(t, store.loads, draft.ID)
	for _, id := range []int64{1, 2} {
		require.Nil(t, store.orders[id].LoadID)
		require.Equal(t, entity.LogisticsOpen, store.orders[id].LogisticsStatus)
	}
}

func TestRemoveOrderRecomputesTotal(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "100.00")
	store.addOrder(2, 10, entity.OrderTypeBulk, "100.00")
	store.addOrder(3, 10, entity.OrderTypeBulk, "90.00")
	svc := newTestService(store)

	draft, err := svc.CreateDraft(context.Background(), []int64{1, 2, 3}, "")
	require.NoError(t, err)

	load, err := svc.RemoveOrder(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, load)
	require.True(t, load.TotalWeight.Equal(decimal.RequireFromString("200.00")))
	require.Equal(t, draft.ID, load.ID)
}

func TestRemoveOrderKeepsSingleOrderAssignedLoad(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "150.00")
	store.addOrder(2, 10, entity.OrderTypeBulk, "140.00")
	store.addCarrier(5)
	svc := newTestService(store)

	draft, err := svc.CreateDraft(context.Background(), []int64{1, 2}, "")
	require.NoError(t, err)
	_, err = svc.AssignTransport(context.Background(), draft.ID, 5, time.Now())
	require.NoError(t, err)

	load, err := svc.RemoveOrder(context.Background(), 2)
	require.NoError(t, err)
	require.NotNil(t, load)
	require.True(t, load.TotalWeight.Equal(decimal.RequireFromString("150.00")))
}

func TestRemoveOrderFromFrozenLoad(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "150.00")
	store.addOrder(2, 10, entity.OrderTypeBulk, "140.00")
	store.addCarrier(5)
	svc := newTestService(store)

	draft, err := svc.CreateDraft(context.Background(), []int64{1, 2}, "")
	require.NoError(t, err)
	_, err = svc.AssignTransport(context.Background(), draft.ID, 5, time.Now())
	require.NoError(t, err)
	_, err = svc.MarkPickedUp(context.Background(), draft.ID)
	require.NoError(t, err)

	_, err = svc.RemoveOrder(context.Background(), 1)
	require.Equal(t, errorbank.KindInvalidTransition, kindOf(t, err))
}

func TestLifecycleForwardOnly(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "150.00")
	store.addOrder(2, 10, entity.OrderTypeBulk, "140.00")
	store.addCarrier(5)
	svc := newTestService(store)

	draft, err := svc.CreateDraft(context.Background(), []int64{1, 2}, "")
	require.NoError(t, err)

	// Pickup straight from draft skips a state.
	_, err = svc.MarkPickedUp(context.Background(), draft.ID)
	require.Equal(t, errorbank.KindInvalidTransition, kindOf(t, err))

	_, err = svc.AssignTransport(context.Background(), draft.ID, 5, time.Now())
	require.NoError(t, err)

	_, err = svc.MarkDelivered(context.Background(), draft.ID)
	require.Equal(t, errorbank.KindInvalidTransition, kindOf(t, err))

	load, err := svc.MarkPickedUp(context.Background(), draft.ID)
	require.NoError(t, err)
	require.Equal(t, entity.LoadStatePickedUp, load.State)
	require.Equal(t, entity.LogisticsShipped, store.orders[1].LogisticsStatus)
	require.Equal(t, entity.LegacyStatusPickedUp, store.orders[1].Status)

	load, err = svc.MarkDelivered(context.Background(), draft.ID)
	require.NoError(t, err)
	require.Equal(t, entity.LoadStateDelivered, load.State)
	// Orders stay shipped after delivery.
	require.Equal(t, entity.LogisticsShipped, store.orders[2].LogisticsStatus)
}

func TestDeleteReleasesOrders(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "150.00")
	store.addOrder(2, 10, entity.OrderTypeBulk, "140.00")
	svc := newTestService(store)

	draft, err := svc.CreateDraft(context.Background(), []int64{1, 2}, "")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), draft.ID))
	require.Empty(t, store.loads)
	require.Nil(t, store.orders[1].LoadID)
	require.Equal(t, entity.LogisticsOpen, store.orders[2].LogisticsStatus)
}

func TestDeletePickedUpLoadRefused(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "150.00")
	store.addOrder(2, 10, entity.OrderTypeBulk, "140.00")
	store.addCarrier(5)
	svc := newTestService(store)

	draft, err := svc.CreateDraft(context.Background(), []int64{1, 2}, "")
	require.NoError(t, err)
	_, err = svc.AssignTransport(context.Background(), draft.ID, 5, time.Now())
	require.NoError(t, err)
	_, err = svc.MarkPickedUp(context.Background(), draft.ID)
	require.NoError(t, err)

	err = svc.Delete(context.Background(), draft.ID)
	require.Equal(t, errorbank.KindInvalidTransition, kindOf(t, err))
}

func TestAvailableOrdersFiltersAttached(t *testing.T) {
	store := newMemStore()
	store.addOrder(1, 10, entity.OrderTypeBulk, "150.00")
	store.addOrder(2, 10, entity.OrderTypeBulk, "140.00")
	store.addOrder(3, 10, entity.OrderTypePallets, "50.00")
	svc := newTestService(store)

	_, err := svc.CreateDraft(context.Background(), []int64{1, 2}, "")
	require.NoError(t, err)

	orders, err := svc.AvailableOrders(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, int64(3), orders[0].ID)
}
