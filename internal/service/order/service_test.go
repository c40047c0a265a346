package order

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/macina-app/macina/internal/cache"
	"github.com/macina-app/macina/internal/entity"
	"github.com/macina-app/macina/internal/mailer"
	orderrepo "github.com/macina-app/macina/internal/repository/order"
	refrepo "github.com/macina-app/macina/internal/repository/reference"
	"github.com/macina-app/macina/pkg/errorbank"
)

type fakeStore struct {
	orders   map[int64]*entity.Order
	clients  map[int64]*entity.Client
	products map[int64]*entity.Product
	mills    map[int64]*entity.Mill
	prices   []*entity.PriceEntry
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:   make(map[int64]*entity.Order),
		clients:  make(map[int64]*entity.Client),
		products: make(map[int64]*entity.Product),
		mills:    make(map[int64]*entity.Mill),
		nextID:   1,
	}
}

func (f *fakeStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeStore) Get(_ context.Context, id int64) (*entity.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, orderrepo.ErrNotFound
	}
	return order, nil
}

func (f *fakeStore) List(_ context.Context, _ orderrepo.Filter) ([]*entity.Order, error) {
	var out []*entity.Order
	for _, order := range f.orders {
		out = append(out, order)
	}
	return out, nil
}

func (f *fakeStore) Create(_ context.Context, order *entity.Order) error {
	order.ID = f.nextID
	f.nextID++
	for _, line := range order.Lines {
		line.OrderID = order.ID
	}
	f.orders[order.ID] = order
	return nil
}

func (f *fakeStore) Update(_ context.Context, order *entity.Order) error {
	if _, ok := f.orders[order.ID]; !ok {
		return orderrepo.ErrNotFound
	}
	f.orders[order.ID] = order
	return nil
}

func (f *fakeStore) ReplaceLines(_ context.Context, orderID int64, lines []*entity.OrderLine) error {
	order, ok := f.orders[orderID]
	if !ok {
		return orderrepo.ErrNotFound
	}
	for _, line := range lines {
		line.OrderID = orderID
	}
	order.Lines = lines
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id int64) error {
	if _, ok := f.orders[id]; !ok {
		return orderrepo.ErrNotFound
	}
	delete(f.orders, id)
	return nil
}

func (f *fakeStore) SetEmailSent(_ context.Context, orderID int64, at time.Time) error {
	order, ok := f.orders[orderID]
	if !ok {
		return orderrepo.ErrNotFound
	}
	order.EmailSentAt = &at
	return nil
}

func (f *fakeStore) GetClient(_ context.Context, id int64) (*entity.Client, error) {
	client, ok := f.clients[id]
	if !ok {
		return nil, refrepo.ErrNotFound
	}
	return client, nil
}

func (f *fakeStore) GetProduct(_ context.Context, id int64) (*entity.Product, error) {
	product, ok := f.products[id]
	if !ok {
		return nil, refrepo.ErrNotFound
	}
	return product, nil
}

func (f *fakeStore) GetMill(_ context.Context, id int64) (*entity.Mill, error) {
	mill, ok := f.mills[id]
	if !ok {
		return nil, refrepo.ErrNotFound
	}
	return mill, nil
}

func (f *fakeStore) AppendPrice(_ context.Context, entry *entity.PriceEntry) error {
	f.prices = append(f.prices, entry)
	return nil
}

func (f *fakeStore) LastPrice(_ context.Context, clientID, productID int64) (decimal.Decimal, error) {
	for i := len(f.prices) - 1; i >= 0; i-- {
		if f.prices[i].ClientID == clientID && f.prices[i].ProductID == productID {
			return f.prices[i].UnitPrice, nil
		}
	}
	return decimal.Zero, refrepo.ErrNotFound
}

type fakeMailer struct {
	sent []mailer.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type memCache struct {
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := c.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return value, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	delete(c.data, key)
	return nil
}

func seedReferences(store *fakeStore) {
	store.clients[1] = &entity.Client{ID: 1, Name: "Panificio Centrale", DeferredPayment: true}
	store.clients[2] = &entity.Client{ID: 2, Name: "Forno Blu"}
	store.mills[10] = &entity.Mill{ID: 10, Name: "Molino Rossi", Email: "ordini@rossi.example"}
	store.mills[11] = &entity.Mill{ID: 11, Name: "Molino Bianchi", Email: "ordini@bianchi.example"}
	store.products[1] = &entity.Product{ID: 1, MillID: 10, Name: "Farina 00"}
	store.products[2] = &entity.Product{ID: 2, MillID: 11, Name: "Semola rimacinata"}
}

func newTestService(store *fakeStore, mail *fakeMailer, store2 cache.Store) *Service {
	return New(store, store, store, mail, store2, time.Minute, zap.NewNop())
}

func validInput() Input {
	pickup := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	return Input{
		ClientID:   1,
		OrderDate:  time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		PickupDate: &pickup,
		Type:       entity.OrderTypeBulk,
		Lines: []LineInput{
			{ProductID: 1, Weight: decimal.RequireFromString("150.00"), UnitPrice: decimal.RequireFromString("24.50")},
			{ProductID: 2, Weight: decimal.RequireFromString("140.00"), UnitPrice: decimal.RequireFromString("31.00")},
		},
	}
}

func TestCollectionDueDate(t *testing.T) {
	// Mid-March pickup: end of March plus sixty days lands on 30 May.
	pickup := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC), CollectionDueDate(pickup))

	// December rolls over the year boundary.
	pickup = time.Date(2024, 12, 2, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), CollectionDueDate(pickup))
}

func TestCreateDerivesLinesAndCollectionDate(t *testing.T) {
	store := newFakeStore()
	seedReferences(store)
	svc := newTestService(store, &fakeMailer{}, nil)

	order, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, entity.LegacyStatusEntered, order.Status)
	require.Equal(t, entity.LogisticsOpen, order.LogisticsStatus)
	require.Len(t, order.Lines, 2)

	// Mill and line total come from the product, never from the caller.
	require.Equal(t, int64(10), order.Lines[0].MillID)
	require.True(t, order.Lines[0].LineTotal.Equal(decimal.RequireFromString("3675.00")))
	require.Equal(t, int64(11), order.Lines[1].MillID)
	require.True(t, order.Lines[1].LineTotal.Equal(decimal.RequireFromString("4340.00")))

	// Deferred-payment client gets a collection date.
	require.NotNil(t, order.CollectionDate)
	require.Equal(t, time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC), *order.CollectionDate)

	// Each line's price lands in the history.
	require.Len(t, store.prices, 2)
	require.True(t, store.prices[0].UnitPrice.Equal(decimal.RequireFromString("24.50")))
}

func TestCreateDirectPayingClientHasNoCollectionDate(t *testing.T) {
	store := newFakeStore()
	seedReferences(store)
	svc := newTestService(store, &fakeMailer{}, nil)

	input := validInput()
	input.ClientID = 2
	order, err := svc.Create(context.Background(), input)
	require.NoError(t, err)
	require.Nil(t, order.CollectionDate)
}

func TestCreateNoPickupDateDefersCollectionDate(t *testing.T) {
	store := newFakeStore()
	seedReferences(store)
	svc := newTestService(store, &fakeMailer{}, nil)

	input := validInput()
	input.PickupDate = nil
	order, err := svc.Create(context.Background(), input)
	require.NoError(t, err)
	require.Nil(t, order.CollectionDate)
}

func TestCreateValidation(t *testing.T) {
	store := newFakeStore()
	seedReferences(store)
	svc := newTestService(store, &fakeMailer{}, nil)

	input := validInput()
	input.Type = "crates"
	_, err := svc.Create(context.Background(), input)
	require.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	input = validInput()
	input.Lines = nil
	_, err = svc.Create(context.Background(), input)
	require.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	input = validInput()
	input.Lines[0].Weight = decimal.Zero
	_, err = svc.Create(context.Background(), input)
	require.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	input = validInput()
	input.Lines[0].ProductID = 99
	_, err = svc.Create(context.Background(), input)
	require.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestUpdateAttachedOrderFrozen(t *testing.T) {
	store := newFakeStore()
	seedReferences(store)
	svc := newTestService(store, &fakeMailer{}, nil)

	order, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	loadID := int64(3)
	order.LoadID = &loadID

	_, err = svc.Update(context.Background(), order.ID, validInput())
	require.Equal(t, errorbank.KindConstraintViolation, errorbank.From(err).Kind())

	err = svc.Delete(context.Background(), order.ID)
	require.Equal(t, errorbank.KindConstraintViolation, errorbank.From(err).Kind())
}

func TestUpdateReplacesLines(t *testing.T) {
	store := newFakeStore()
	seedReferences(store)
	svc := newTestService(store, &fakeMailer{}, nil)

	order, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	input := validInput()
	input.Lines = []LineInput{{ProductID: 1, Weight: decimal.RequireFromString("200.00"), UnitPrice: decimal.RequireFromString("23.00")}}
	updated, err := svc.Update(context.Background(), order.ID, input)
	require.NoError(t, err)
	require.Len(t, updated.Lines, 1)
	require.True(t, updated.Lines[0].LineTotal.Equal(decimal.RequireFromString("4600.00")))
	require.Len(t, store.orders[order.ID].Lines, 1)
}

func TestLastPrice(t *testing.T) {
	store := newFakeStore()
	seedReferences(store)
	svc := newTestService(store, &fakeMailer{}, newMemCache())

	_, found, err := svc.LastPrice(context.Background(), 1, 1)
	require.NoError(t, err)
	require.False(t, found)

	_, err = svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	price, found, err := svc.LastPrice(context.Background(), 1, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, price.Equal(decimal.RequireFromString("24.50")))
}

func TestLastPriceCacheInvalidatedOnNewOrder(t *testing.T) {
	store := newFakeStore()
	seedReferences(store)
	store2 := newMemCache()
	svc := newTestService(store, &fakeMailer{}, store2)

	_, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	// First read populates the cache.
	price, found, err := svc.LastPrice(context.Background(), 1, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, price.Equal(decimal.RequireFromString("24.50")))
	require.Contains(t, store2.data, "prices:last:1:1")

	input := validInput()
	input.Lines = []LineInput{{ProductID: 1, Weight: decimal.RequireFromString("100.00"), UnitPrice: decimal.RequireFromString("26.00")}}
	_, err = svc.Create(context.Background(), input)
	require.NoError(t, err)
	require.NotContains(t, store2.data, "prices:last:1:1")

	price, found, err = svc.LastPrice(context.Background(), 1, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, price.Equal(decimal.RequireFromString("26.00")))
}

func TestSendEmailGroupsLinesByMill(t *testing.T) {
	store := newFakeStore()
	seedReferences(store)
	mail := &fakeMailer{}
	svc := newTestService(store, mail, nil)

	order, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	require.NoError(t, svc.SendEmail(context.Background(), order.ID))
	require.Len(t, mail.sent, 2)
	require.Equal(t, []string{"ordini@rossi.example"}, mail.sent[0].To)
	require.Equal(t, []string{"ordini@bianchi.example"}, mail.sent[1].To)
	require.Contains(t, mail.sent[0].Body, "Farina 00")
	require.NotContains(t, mail.sent[0].Body, "Semola rimacinata")
	require.NotNil(t, store.orders[order.ID].EmailSentAt)
}

func TestSendEmailOnlyOnce(t *testing.T) {
	store := newFakeStore()
	seedReferences(store)
	mail := &fakeMailer{}
	svc := newTestService(store, mail, nil)

	order, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	require.NoError(t, svc.SendEmail(context.Background(), order.ID))
	err = svc.SendEmail(context.Background(), order.ID)
	require.Equal(t, errorbank.KindConflict, errorbank.From(err).Kind())
	require.Len(t, mail.sent, 2)
}

func TestSendEmailMillWithoutAddress(t *testing.T) {
	store := newFakeStore()
	seedReferences(store)
	store.mills[10].Email = ""
	mail := &fakeMailer{}
	svc := newTestService(store, mail, nil)

	order, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	err = svc.SendEmail(context.Background(), order.ID)
	require.Equal(t, errorbank.KindConstraintViolation, errorbank.From(err).Kind())
	require.Nil(t, store.orders[order.ID].EmailSentAt)
}
