package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/internal/repository"
	"github.com/jafarshop/dropsync/pkg/errors"
)

func strPtr(s string) *string { return &s }

func TestSupplierOrders_Uniqueness(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()
	configID := uuid.New()

	first := domain.NewSupplierOrder(uuid.New(), configID)
	first.SupplierOrderID = strPtr("CJ1")
	require.NoError(t, repos.SupplierOrder.Create(ctx, first))

	t.Run("same local order", func(t *testing.T) {
		err := repos.SupplierOrder.Create(ctx, domain.NewSupplierOrder(first.LocalOrderID, configID))
		assert.True(t, errors.IsConflict(err))
	})

	t.Run("supplier id held by another order", func(t *testing.T) {
		second := domain.NewSupplierOrder(uuid.New(), configID)
		require.NoError(t, repos.SupplierOrder.Create(ctx, second))

		second.SupplierOrderID = strPtr("CJ1")
		err := repos.SupplierOrder.Update(ctx, second)
		var conflict *errors.ErrConflict
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "supplier_order_id", conflict.Field)

		stored, err := repos.SupplierOrder.GetByID(ctx, second.ID)
		require.NoError(t, err)
		assert.False(t, stored.HasRemoteID())
	})
}

func TestSupplierOrders_ReadsAreCopies(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()

	order := domain.NewSupplierOrder(uuid.New(), uuid.New())
	require.NoError(t, repos.SupplierOrder.Create(ctx, order))

	got, err := repos.SupplierOrder.GetByID(ctx, order.ID)
	require.NoError(t, err)
	got.State = domain.OrderStateShipped

	again, err := repos.SupplierOrder.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateDraft, again.State)
}

func TestSupplierOrders_ClaimForSubmit(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()
	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	ttl := 90 * time.Second

	order := domain.NewSupplierOrder(uuid.New(), uuid.New())
	require.NoError(t, repos.SupplierOrder.Create(ctx, order))

	ok, err := repos.SupplierOrder.ClaimForSubmit(ctx, order.ID, at, ttl)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = repos.SupplierOrder.ClaimForSubmit(ctx, order.ID, at.Add(time.Second), ttl)
	assert.False(t, ok, "live claim blocks a second submitter")

	ok, _ = repos.SupplierOrder.ClaimForSubmit(ctx, order.ID, at.Add(2*ttl), ttl)
	assert.True(t, ok, "stale claim can be taken over")

	require.NoError(t, repos.SupplierOrder.ReleaseClaim(ctx, order.ID))
	order.SupplierOrderID = strPtr("CJ9")
	order.State = domain.OrderStateSubmitted
	require.NoError(t, repos.SupplierOrder.Update(ctx, order))

	ok, _ = repos.SupplierOrder.ClaimForSubmit(ctx, order.ID, at.Add(time.Hour), ttl)
	assert.False(t, ok, "submitted orders cannot be claimed")
}

func TestSupplierOrders_UpdateRejectsStaleVersion(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()

	order := domain.NewSupplierOrder(uuid.New(), uuid.New())
	require.NoError(t, repos.SupplierOrder.Create(ctx, order))
	assert.Equal(t, 1, order.Version)

	poller, err := repos.SupplierOrder.GetByID(ctx, order.ID)
	require.NoError(t, err)
	webhook, err := repos.SupplierOrder.GetByID(ctx, order.ID)
	require.NoError(t, err)

	webhook.State = domain.OrderStateShipped
	require.NoError(t, repos.SupplierOrder.Update(ctx, webhook))
	assert.Equal(t, 2, webhook.Version)

	poller.State = domain.OrderStateProcessing
	err = repos.SupplierOrder.Update(ctx, poller)
	assert.True(t, errors.IsConcurrentUpdate(err))
	assert.Equal(t, 1, poller.Version)

	stored, err := repos.SupplierOrder.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateShipped, stored.State)
}

func TestSupplierOrders_ClaimStampsFirstAttempt(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()
	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	order := domain.NewSupplierOrder(uuid.New(), uuid.New())
	require.NoError(t, repos.SupplierOrder.Create(ctx, order))

	_, err := repos.SupplierOrder.ClaimForSubmit(ctx, order.ID, at, time.Minute)
	require.NoError(t, err)
	require.NoError(t, repos.SupplierOrder.ReleaseClaim(ctx, order.ID))
	_, err = repos.SupplierOrder.ClaimForSubmit(ctx, order.ID, at.Add(time.Hour), time.Minute)
	require.NoError(t, err)

	stored, err := repos.SupplierOrder.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.SubmitAttemptedAt)
	assert.Equal(t, at, *stored.SubmitAttemptedAt)
	assert.Equal(t, order.Version, stored.Version, "claims do not count as writes")
}

func TestSupplierOrders_ListFilters(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()
	configID := uuid.New()

	for _, state := range []domain.OrderState{domain.OrderStateSubmitted, domain.OrderStateShipped, domain.OrderStateDelivered} {
		o := domain.NewSupplierOrder(uuid.New(), configID)
		o.State = state
		require.NoError(t, repos.SupplierOrder.Create(ctx, o))
	}
	require.NoError(t, repos.SupplierOrder.Create(ctx, domain.NewSupplierOrder(uuid.New(), uuid.New())))

	open, err := repos.SupplierOrder.List(ctx, repository.OrderFilter{
		ConfigID: &configID,
		States:   []domain.OrderState{domain.OrderStateSubmitted, domain.OrderStateShipped},
	})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	limited, err := repos.SupplierOrder.List(ctx, repository.OrderFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSupplierProducts_UpsertByKey(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()
	localRef := uuid.New()

	base := &domain.SupplierProduct{SupplierProductID: "P1", CostPrice: decimal.NewFromInt(10), LocalProductRef: &localRef, Active: true}
	require.NoError(t, repos.SupplierProduct.Upsert(ctx, base))

	again := &domain.SupplierProduct{SupplierProductID: "P1", CostPrice: decimal.NewFromInt(12), Active: true}
	require.NoError(t, repos.SupplierProduct.Upsert(ctx, again))
	assert.Equal(t, base.ID, again.ID)
	require.NotNil(t, again.LocalProductRef, "existing mapping survives an upsert without one")

	variant := &domain.SupplierProduct{SupplierProductID: "P1", SupplierVariantID: "V1", Active: true}
	require.NoError(t, repos.SupplierProduct.Upsert(ctx, variant))
	assert.NotEqual(t, base.ID, variant.ID)

	all, err := repos.SupplierProduct.ListBySupplierProductID(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "", all[0].SupplierVariantID)
	assert.True(t, decimal.NewFromInt(12).Equal(all[0].CostPrice))

	require.NoError(t, repos.SupplierProduct.UpdateStock(ctx, variant.ID, 7, time.Now()))
	got, err := repos.SupplierProduct.GetByKey(ctx, "P1", "V1")
	require.NoError(t, err)
	assert.Equal(t, 7, got.StockQty)
	assert.NotNil(t, got.SyncedAt)
}

func TestSupplierProducts_LinkAndSyncError(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()

	record := &domain.SupplierProduct{SupplierProductID: "P1", Active: true}
	require.NoError(t, repos.SupplierProduct.Upsert(ctx, record))

	err := repos.SupplierProduct.LinkLocalProduct(ctx, record.ID, uuid.New())
	assert.True(t, errors.IsNotFound(err), "unknown local product")

	local := &domain.LocalProduct{Name: "Mug"}
	require.NoError(t, repos.LocalProduct.Create(ctx, local))
	require.NoError(t, repos.SupplierProduct.LinkLocalProduct(ctx, record.ID, local.ID))

	require.NoError(t, repos.SupplierProduct.RecordSyncError(ctx, record.ID, "product offline"))
	got, err := repos.SupplierProduct.GetByID(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LocalProductRef)
	assert.Equal(t, local.ID, *got.LocalProductRef)
	assert.Equal(t, "product offline", got.LastError)

	got.LastError = ""
	require.NoError(t, repos.SupplierProduct.Upsert(ctx, got))
	cleared, err := repos.SupplierProduct.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Empty(t, cleared.LastError)
	assert.NotNil(t, cleared.LocalProductRef)
}

func TestWebhookRecords_MarkProcessedOnce(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()

	rec := &domain.WebhookRecord{Type: domain.WebhookTypeOther, RawPayload: []byte(`{}`)}
	require.NoError(t, repos.WebhookRecord.Create(ctx, rec))

	require.NoError(t, repos.WebhookRecord.RecordError(ctx, rec.ID, "temporary"))
	pending, err := repos.WebhookRecord.ListUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "temporary", pending[0].Error)

	ok, err := repos.WebhookRecord.MarkProcessed(ctx, rec.ID, time.Now(), "", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.WebhookRecord.MarkProcessed(ctx, rec.ID, time.Now(), "late", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repos.WebhookRecord.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Processed)
	assert.Equal(t, "", got.Error)
}

func TestLocalOrders_ResolveSupplierMapping(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()

	mapped := &domain.LocalProduct{Name: "Mug", SupplierFulfilled: true}
	plain := &domain.LocalProduct{Name: "Gift card"}
	require.NoError(t, repos.LocalProduct.Create(ctx, mapped))
	require.NoError(t, repos.LocalProduct.Create(ctx, plain))
	require.NoError(t, repos.SupplierProduct.Upsert(ctx, &domain.SupplierProduct{
		SupplierProductID: "P1", SupplierVariantID: "V1", LocalProductRef: &mapped.ID, Active: true,
	}))

	order := &domain.LocalOrder{
		Name: "SO001",
		Lines: []domain.LocalOrderLine{
			{ProductRef: mapped.ID, Quantity: 2},
			{ProductRef: plain.ID, Quantity: 1},
		},
	}
	require.NoError(t, repos.LocalOrder.Create(ctx, order))

	got, err := repos.LocalOrder.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	assert.True(t, got.Lines[0].IsEligible())
	assert.Equal(t, "P1", got.Lines[0].SupplierProductID)
	assert.False(t, got.Lines[1].SupplierFulfilled)
}

func TestSupplierConfigs_DefaultIsOldestActive(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()

	inactive := &domain.SupplierConfig{Name: "old", Active: false}
	first := &domain.SupplierConfig{Name: "first", Active: true}
	second := &domain.SupplierConfig{Name: "second", Active: true}
	for _, c := range []*domain.SupplierConfig{inactive, first, second} {
		require.NoError(t, repos.SupplierConfig.Create(ctx, c))
	}

	def, err := repos.SupplierConfig.GetDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, def.ID)

	require.NoError(t, repos.SupplierConfig.UpdateConnectionStatus(ctx, first.ID, domain.ConnectionStatusConnected, "ok"))
	got, err := repos.SupplierConfig.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionStatusConnected, got.ConnectionStatus)
}

func TestSupplierConfigs_UpdateCredentialResetsStatus(t *testing.T) {
	repos := NewRepositories()
	ctx := context.Background()

	cfg := &domain.SupplierConfig{Name: "main", Active: true, Credential: domain.Credential{Email: "a@example.com", Secret: "k1"}}
	require.NoError(t, repos.SupplierConfig.Create(ctx, cfg))
	require.NoError(t, repos.SupplierConfig.UpdateConnectionStatus(ctx, cfg.ID, domain.ConnectionStatusConnected, "Connection successful"))

	require.NoError(t, repos.SupplierConfig.UpdateCredential(ctx, cfg.ID, domain.Credential{Email: "a@example.com", Secret: "k2"}))
	stored, err := repos.SupplierConfig.GetByID(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, "k2", stored.Credential.Secret)
	assert.Equal(t, domain.ConnectionStatusNotTested, stored.ConnectionStatus)
	assert.Empty(t, stored.ConnectionMessage)

	err = repos.SupplierConfig.UpdateCredential(ctx, uuid.New(), domain.Credential{})
	assert.True(t, errors.IsNotFound(err))
}
