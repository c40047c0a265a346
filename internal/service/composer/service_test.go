package composer

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/macina-app/macina/internal/entity"
	loadrepo "github.com/macina-app/macina/internal/repository/load"
	refrepo "github.com/macina-app/macina/internal/repository/reference"
)

type fakeBoard struct {
	unassigned []*entity.Order
	loads      []*entity.Load
	counts     map[int64]int
	mills      map[int64]*entity.Mill
	clients    map[int64]*entity.Client
}

func (f *fakeBoard) ListUnassigned(_ context.Context, orderType string) ([]*entity.Order, error) {
	var out []*entity.Order
	for _, order := range f.unassigned {
		if orderType != "" && order.Type != orderType {
			continue
		}
		out = append(out, order)
	}
	return out, nil
}

func (f *fakeBoard) CountByLoad(_ context.Context, loadID int64) (int, error) {
	return f.counts[loadID], nil
}

func (f *fakeBoard) List(_ context.Context, filter loadrepo.Filter) ([]*entity.Load, error) {
	var out []*entity.Load
	for _, load := range f.loads {
		if filter.OpenOnly && !load.Open() {
			continue
		}
		out = append(out, load)
	}
	return out, nil
}

func (f *fakeBoard) GetMill(_ context.Context, id int64) (*entity.Mill, error) {
	mill, ok := f.mills[id]
	if !ok {
		return nil, refrepo.ErrNotFound
	}
	return mill, nil
}

func (f *fakeBoard) GetClient(_ context.Context, id int64) (*entity.Client, error) {
	client, ok := f.clients[id]
	if !ok {
		return nil, refrepo.ErrNotFound
	}
	return client, nil
}

func boardOrder(id, millID int64, orderType, weight string) *entity.Order {
	w := decimal.RequireFromString(weight)
	return &entity.Order{
		ID:        id,
		ClientID:  1,
		OrderDate: day,
		Type:      orderType,
		Lines: []*entity.OrderLine{{
			OrderID: id, ProductID: 1, MillID: millID,
			Weight: w, UnitPrice: decimal.NewFromInt(25), LineTotal: w.Mul(decimal.NewFromInt(25)),
		}},
	}
}

func TestComposeGroupsByMillAndType(t *testing.T) {
	board := &fakeBoard{
		unassigned: []*entity.Order{
			boardOrder(1, 10, entity.OrderTypeBulk, "150.00"),
			boardOrder(2, 10, entity.OrderTypeBulk, "145.00"),
			boardOrder(3, 11, entity.OrderTypeBulk, "100.00"),
			boardOrder(4, 10, entity.OrderTypePallets, "90.00"),
		},
		mills: map[int64]*entity.Mill{
			10: {ID: 10, Name: "Molino Rossi"},
			11: {ID: 11, Name: "Molino Bianchi"},
		},
		clients: map[int64]*entity.Client{1: {ID: 1, Name: "Panificio Centrale"}},
	}
	svc := New(board, board, board, nil, time.Minute, zap.NewNop())

	view, err := svc.Compose(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, view.Groups, 3)

	var bulkRossi *Group
	for i := range view.Groups {
		if view.Groups[i].MillID == 10 && view.Groups[i].Type == entity.OrderTypeBulk {
			bulkRossi = &view.Groups[i]
		}
	}
	require.NotNil(t, bulkRossi)
	require.Equal(t, "Molino Rossi", bulkRossi.MillName)
	require.Len(t, bulkRossi.Orders, 2)
	require.Equal(t, "Panificio Centrale", bulkRossi.Orders[0].ClientName)
	require.True(t, bulkRossi.TotalWeight.Equal(decimal.RequireFromString("295.00")))

	// Only the compatible pair reaches the band, so one suggestion overall.
	require.Len(t, bulkRossi.Suggestions, 1)
	require.Equal(t, []int64{1, 2}, bulkRossi.Suggestions[0].OrderIDs)
	require.Len(t, view.TopSuggestions, 1)
}

func TestComposeTypeFilter(t *testing.T) {
	board := &fakeBoard{
		unassigned: []*entity.Order{
			boardOrder(1, 10, entity.OrderTypeBulk, "150.00"),
			boardOrder(2, 10, entity.OrderTypePallets, "90.00"),
		},
		mills:   map[int64]*entity.Mill{10: {ID: 10, Name: "Molino Rossi"}},
		clients: map[int64]*entity.Client{1: {ID: 1, Name: "Panificio Centrale"}},
	}
	svc := New(board, board, board, nil, time.Minute, zap.NewNop())

	view, err := svc.Compose(context.Background(), entity.OrderTypePallets)
	require.NoError(t, err)
	require.Len(t, view.Groups, 1)
	require.Equal(t, entity.OrderTypePallets, view.Groups[0].Type)
}

func TestComposeOpenLoads(t *testing.T) {
	board := &fakeBoard{
		loads: []*entity.Load{
			{ID: 1, MillID: 10, Type: entity.OrderTypeBulk, State: entity.LoadStateDraft, TotalWeight: decimal.RequireFromString("290.00")},
			{ID: 2, MillID: 10, Type: entity.OrderTypeBulk, State: entity.LoadStateDelivered, TotalWeight: decimal.RequireFromString("300.00")},
		},
		counts:  map[int64]int{1: 2},
		mills:   map[int64]*entity.Mill{10: {ID: 10, Name: "Molino Rossi"}},
		clients: map[int64]*entity.Client{},
	}
	svc := New(board, board, board, nil, time.Minute, zap.NewNop())

	view, err := svc.Compose(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, view.OpenLoads, 1)

	open := view.OpenLoads[0]
	require.Equal(t, int64(1), open.ID)
	require.Equal(t, 2, open.OrderCount)
	require.True(t, open.Complete)
	require.True(t, open.RemainingCapacity.Equal(decimal.RequireFromString("10.00")))
}

func TestComposeSkipsLinelessOrders(t *testing.T) {
	board := &fakeBoard{
		unassigned: []*entity.Order{
			{ID: 1, ClientID: 1, OrderDate: day, Type: entity.OrderTypeBulk},
		},
		mills:   map[int64]*entity.Mill{},
		clients: map[int64]*entity.Client{},
	}
	svc := New(board, board, board, nil, time.Minute, zap.NewNop())

	view, err := svc.Compose(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, view.Groups)
}
