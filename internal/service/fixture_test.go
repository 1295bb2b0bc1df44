package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/internal/repository"
	"github.com/jafarshop/dropsync/internal/repository/memory"
	"github.com/jafarshop/dropsync/internal/supplier"
	"github.com/jafarshop/dropsync/pkg/errors"
)

// fakeAPI is a scriptable supplier. Unset hooks fail the call.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int

	createOrder  func(req supplier.CreateOrderRequest) (*supplier.CreateOrderResult, error)
	getOrder     func(id string) (*supplier.OrderDetail, error)
	findOrder    func(number string) (*supplier.OrderDetail, error)
	logistics    func(id string) (*supplier.Logistics, error)
	getProduct   func(pid string) (*supplier.ProductDetail, error)
	inventory    func(pid, vid string) (*supplier.Inventory, error)
	listProducts func(params supplier.ProductListParams) (*supplier.ProductPage, error)
	categories   func() ([]supplier.Category, error)
}

var errUnscripted = &errors.APIError{Code: 500, Message: "unscripted call"}

func (f *fakeAPI) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakeAPI) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) ListProducts(_ context.Context, params supplier.ProductListParams) (*supplier.ProductPage, error) {
	f.count("ListProducts")
	if f.listProducts == nil {
		return nil, errUnscripted
	}
	return f.listProducts(params)
}

func (f *fakeAPI) GetProduct(_ context.Context, pid string) (*supplier.ProductDetail, error) {
	f.count("GetProduct")
	if f.getProduct == nil {
		return nil, errUnscripted
	}
	return f.getProduct(pid)
}

func (f *fakeAPI) GetInventory(_ context.Context, pid, vid string) (*supplier.Inventory, error) {
	f.count("GetInventory")
	if f.inventory == nil {
		return nil, errUnscripted
	}
	return f.inventory(pid, vid)
}

func (f *fakeAPI) CreateOrder(_ context.Context, req supplier.CreateOrderRequest) (*supplier.CreateOrderResult, error) {
	f.count("CreateOrder")
	if f.createOrder == nil {
		return nil, errUnscripted
	}
	return f.createOrder(req)
}

func (f *fakeAPI) GetOrder(_ context.Context, id string) (*supplier.OrderDetail, error) {
	f.count("GetOrder")
	if f.getOrder == nil {
		return nil, errUnscripted
	}
	return f.getOrder(id)
}

func (f *fakeAPI) FindOrderByNumber(_ context.Context, number string) (*supplier.OrderDetail, error) {
	f.count("FindOrderByNumber")
	if f.findOrder == nil {
		return nil, errUnscripted
	}
	return f.findOrder(number)
}

func (f *fakeAPI) QueryLogistics(_ context.Context, id string) (*supplier.Logistics, error) {
	f.count("QueryLogistics")
	if f.logistics == nil {
		return nil, errUnscripted
	}
	return f.logistics(id)
}

func (f *fakeAPI) ListCategories(_ context.Context) ([]supplier.Category, error) {
	f.count("ListCategories")
	if f.categories == nil {
		return nil, errUnscripted
	}
	return f.categories()
}

type fakeProvider struct {
	api SupplierAPI
	err error
}

func (p fakeProvider) Client(_ context.Context, _ uuid.UUID) (SupplierAPI, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.api, nil
}

type fixture struct {
	repos    *repository.Repositories
	api      *fakeAPI
	config   *domain.SupplierConfig
	orders   *OrderSyncEngine
	catalog  *CatalogSyncEngine
	webhooks *WebhookIngestor
	clock    time.Time

	webhookIDs []uuid.UUID
}

func noWait() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith lets configure adjust the supplier config before it is
// stored
func newFixtureWith(t *testing.T, configure func(c *domain.SupplierConfig)) *fixture {
	t.Helper()

	f := &fixture{
		repos: memory.NewRepositories(),
		api:   &fakeAPI{},
		clock: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
	}
	f.config = &domain.SupplierConfig{
		Name:              "main",
		Active:            true,
		Credential:        domain.Credential{Email: "ops@example.com", Secret: "api-key"},
		Markup:            domain.DefaultMarkupRule(),
		WebhookEnabled:    true,
		SyncIntervalHours: 24,
	}
	if configure != nil {
		configure(f.config)
	}
	require.NoError(t, f.repos.SupplierConfig.Create(context.Background(), f.config))

	logger := zap.NewNop()
	provider := fakeProvider{api: f.api}
	now := func() time.Time { return f.clock }

	f.orders = NewOrderSyncEngine(f.repos, provider, NewEventActivitySink(f.repos.OrderEvent), nil, logger, 0)
	f.orders.now = now
	f.orders.retryPolicy = noWait

	f.catalog = NewCatalogSyncEngine(f.repos, provider, nil, logger)
	f.catalog.now = now
	f.catalog.retryPolicy = noWait

	f.webhooks = NewWebhookIngestor(f.repos, f.orders, f.catalog, nil, logger)
	f.webhooks.now = now

	return f
}

// seedLocalOrder stores a local order whose single line is mapped to a
// variant of supplier product P1 when mapped is true
func (f *fixture) seedLocalOrder(t *testing.T, mapped bool) *domain.LocalOrder {
	t.Helper()
	ctx := context.Background()

	product := &domain.LocalProduct{Name: "Mug", SKU: "MUG-1", SupplierFulfilled: true, ListPrice: decimal.NewFromInt(20)}
	require.NoError(t, f.repos.LocalProduct.Create(ctx, product))
	if mapped {
		require.NoError(t, f.repos.SupplierProduct.Upsert(ctx, &domain.SupplierProduct{
			ConfigID:          f.config.ID,
			SupplierProductID: "P1",
			SupplierVariantID: "V-" + product.ID.String()[:8],
			LocalProductRef:   &product.ID,
			Active:            true,
		}))
	}

	order := &domain.LocalOrder{
		Name: "SO" + uuid.NewString()[:8],
		Note: "leave at door",
		Shipping: domain.ShippingAddress{
			ContactName: "Jane Doe",
			Phone:       "555-0100",
			Country:     "US",
			State:       "TX",
			City:        "Austin",
			ZipCode:     "73301",
			Address:     "1 Main St",
		},
		Lines: []domain.LocalOrderLine{{ProductRef: product.ID, Quantity: 2}},
	}
	require.NoError(t, f.repos.LocalOrder.Create(ctx, order))
	return order
}

// seedDraft creates a draft supplier order for a mapped local order
func (f *fixture) seedDraft(t *testing.T) *domain.SupplierOrder {
	t.Helper()
	local := f.seedLocalOrder(t, true)
	order, created, err := f.orders.EnsureSupplierOrder(context.Background(), local.ID, f.config.ID)
	require.NoError(t, err)
	require.True(t, created)
	return order
}

// seedSubmitted stores an order the supplier already accepted as remoteID
func (f *fixture) seedSubmitted(t *testing.T, remoteID string, state domain.OrderState) *domain.SupplierOrder {
	t.Helper()
	order := f.seedDraft(t)
	order.SupplierOrderID = &remoteID
	order.State = state
	require.NoError(t, f.repos.SupplierOrder.Update(context.Background(), order))
	return order
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *domain.SupplierOrder {
	t.Helper()
	order, err := f.repos.SupplierOrder.GetByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func (f *fixture) events(t *testing.T, localOrderID uuid.UUID, eventType string) []*domain.OrderEvent {
	t.Helper()
	all, err := f.repos.OrderEvent.ListByLocalOrderID(context.Background(), localOrderID)
	require.NoError(t, err)
	var out []*domain.OrderEvent
	for _, e := range all {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
