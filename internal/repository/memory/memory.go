// Package memory provides process-local repositories with the same
// uniqueness guarantees as the PostgreSQL schema. It backs tests and
// single-process tooling.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/internal/repository"
	"github.com/jafarshop/dropsync/pkg/errors"
)

type orderRow struct {
	order     domain.SupplierOrder
	claimedAt *time.Time
}

// Store holds every table. All repositories returned by NewRepositories
// share one lock so cross-table reads are consistent.
type Store struct {
	mu            sync.Mutex
	configs       map[uuid.UUID]domain.SupplierConfig
	orders        map[uuid.UUID]*orderRow
	products      map[uuid.UUID]domain.SupplierProduct
	webhooks      map[uuid.UUID]domain.WebhookRecord
	localOrders   map[uuid.UUID]domain.LocalOrder
	localProducts map[uuid.UUID]domain.LocalProduct
	events        []domain.OrderEvent
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		configs:       make(map[uuid.UUID]domain.SupplierConfig),
		orders:        make(map[uuid.UUID]*orderRow),
		products:      make(map[uuid.UUID]domain.SupplierProduct),
		webhooks:      make(map[uuid.UUID]domain.WebhookRecord),
		localOrders:   make(map[uuid.UUID]domain.LocalOrder),
		localProducts: make(map[uuid.UUID]domain.LocalProduct),
	}
}

// NewRepositories returns repositories backed by a fresh store
func NewRepositories() *repository.Repositories {
	return NewStore().Repositories()
}

// Repositories returns repositories backed by s
func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		SupplierConfig:  (*configRepo)(s),
		SupplierOrder:   (*orderRepo)(s),
		SupplierProduct: (*productRepo)(s),
		WebhookRecord:   (*webhookRepo)(s),
		LocalOrder:      (*localOrderRepo)(s),
		LocalProduct:    (*localProductRepo)(s),
		OrderEvent:      (*eventRepo)(s),
	}
}

func now() time.Time {
	return time.Now().UTC()
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return bytes.Clone(b)
}

func cloneOrder(o domain.SupplierOrder) *domain.SupplierOrder {
	if o.SupplierOrderID != nil {
		id := *o.SupplierOrderID
		o.SupplierOrderID = &id
	}
	if o.LastLogisticsAt != nil {
		t := *o.LastLogisticsAt
		o.LastLogisticsAt = &t
	}
	if o.SubmitAttemptedAt != nil {
		t := *o.SubmitAttemptedAt
		o.SubmitAttemptedAt = &t
	}
	o.LogisticsSnapshot = cloneBytes(o.LogisticsSnapshot)
	o.RequestData = cloneBytes(o.RequestData)
	o.ResponseData = cloneBytes(o.ResponseData)
	return &o
}

// configRepo

type configRepo Store

func (r *configRepo) Create(_ context.Context, cfg *domain.SupplierConfig) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	if cfg.ConnectionStatus == "" {
		cfg.ConnectionStatus = domain.ConnectionStatusNotTested
	}
	// strictly increasing so GetDefault is deterministic
	cfg.CreatedAt = now()
	for _, existing := range s.configs {
		if !cfg.CreatedAt.After(existing.CreatedAt) {
			cfg.CreatedAt = existing.CreatedAt.Add(time.Microsecond)
		}
	}
	cfg.UpdatedAt = cfg.CreatedAt
	s.configs[cfg.ID] = *cfg
	return nil
}

func (r *configRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.SupplierConfig, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "supplier config", ID: id.String()}
	}
	return &cfg, nil
}

func (r *configRepo) sorted() []*domain.SupplierConfig {
	s := (*Store)(r)
	configs := make([]*domain.SupplierConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		c := cfg
		configs = append(configs, &c)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].CreatedAt.Before(configs[j].CreatedAt) })
	return configs
}

func (r *configRepo) GetDefault(_ context.Context) (*domain.SupplierConfig, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cfg := range r.sorted() {
		if cfg.Active {
			return cfg, nil
		}
	}
	return nil, &errors.ErrNotFound{Resource: "supplier config", ID: "default"}
}

func (r *configRepo) List(_ context.Context) ([]*domain.SupplierConfig, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.sorted(), nil
}

func (r *configRepo) UpdateConnectionStatus(_ context.Context, id uuid.UUID, status domain.ConnectionStatus, message string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[id]
	if !ok {
		return &errors.ErrNotFound{Resource: "supplier config", ID: id.String()}
	}
	cfg.ConnectionStatus = status
	cfg.ConnectionMessage = message
	cfg.UpdatedAt = now()
	s.configs[id] = cfg
	return nil
}

func (r *configRepo) UpdateCredential(_ context.Context, id uuid.UUID, cred domain.Credential) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[id]
	if !ok {
		return &errors.ErrNotFound{Resource: "supplier config", ID: id.String()}
	}
	cfg.Credential = cred
	cfg.ConnectionStatus = domain.ConnectionStatusNotTested
	cfg.ConnectionMessage = ""
	cfg.UpdatedAt = now()
	s.configs[id] = cfg
	return nil
}

// orderRepo

type orderRepo Store

// checkUnique enforces the local_order_id and supplier_order_id constraints
func (r *orderRepo) checkUnique(o *domain.SupplierOrder) error {
	s := (*Store)(r)
	for id, row := range s.orders {
		if id == o.ID {
			continue
		}
		if row.order.LocalOrderID == o.LocalOrderID {
			return &errors.ErrConflict{Resource: "supplier order", Field: "local_order_id", Value: o.LocalOrderID.String()}
		}
		if o.HasRemoteID() && row.order.RemoteID() == o.RemoteID() {
			return &errors.ErrConflict{Resource: "supplier order", Field: "supplier_order_id", Value: o.RemoteID()}
		}
	}
	return nil
}

func (r *orderRepo) Create(_ context.Context, o *domain.SupplierOrder) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if _, exists := s.orders[o.ID]; exists {
		return &errors.ErrConflict{Resource: "supplier order", Field: "id", Value: o.ID.String()}
	}
	if err := r.checkUnique(o); err != nil {
		return err
	}
	if o.State == "" {
		o.State = domain.OrderStateDraft
	}
	o.Version = 1
	o.CreatedAt = now()
	o.UpdatedAt = o.CreatedAt
	s.orders[o.ID] = &orderRow{order: *cloneOrder(*o)}
	return nil
}

func (r *orderRepo) find(match func(o *domain.SupplierOrder) bool, key string) (*domain.SupplierOrder, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.orders {
		if match(&row.order) {
			return cloneOrder(row.order), nil
		}
	}
	return nil, &errors.ErrNotFound{Resource: "supplier order", ID: key}
}

func (r *orderRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.SupplierOrder, error) {
	return r.find(func(o *domain.SupplierOrder) bool { return o.ID == id }, id.String())
}

func (r *orderRepo) GetByLocalOrderID(_ context.Context, localOrderID uuid.UUID) (*domain.SupplierOrder, error) {
	return r.find(func(o *domain.SupplierOrder) bool { return o.LocalOrderID == localOrderID }, localOrderID.String())
}

func (r *orderRepo) GetBySupplierOrderID(_ context.Context, supplierOrderID string) (*domain.SupplierOrder, error) {
	return r.find(func(o *domain.SupplierOrder) bool {
		return supplierOrderID != "" && o.RemoteID() == supplierOrderID
	}, supplierOrderID)
}

func (r *orderRepo) List(_ context.Context, filter repository.OrderFilter) ([]*domain.SupplierOrder, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var orders []*domain.SupplierOrder
	for _, row := range s.orders {
		o := &row.order
		if filter.ConfigID != nil && o.ConfigID != *filter.ConfigID {
			continue
		}
		if len(filter.States) > 0 && !containsState(filter.States, o.State) {
			continue
		}
		orders = append(orders, cloneOrder(*o))
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(orders) {
			return nil, nil
		}
		orders = orders[filter.Offset:]
	}
	if filter.Limit > 0 && len(orders) > filter.Limit {
		orders = orders[:filter.Limit]
	}
	return orders, nil
}

func containsState(states []domain.OrderState, state domain.OrderState) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

func (r *orderRepo) Update(_ context.Context, o *domain.SupplierOrder) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.orders[o.ID]
	if !ok {
		return &errors.ErrNotFound{Resource: "supplier order", ID: o.ID.String()}
	}
	if row.order.Version != o.Version {
		return &errors.ErrConcurrentUpdate{Resource: "supplier order", ID: o.ID.String()}
	}
	if err := r.checkUnique(o); err != nil {
		return err
	}

	o.UpdatedAt = now()
	o.Version++
	updated := cloneOrder(*o)
	// identity and claim columns are not written by Update
	updated.LocalOrderID = row.order.LocalOrderID
	updated.ConfigID = row.order.ConfigID
	updated.CreatedAt = row.order.CreatedAt
	updated.SubmitAttemptedAt = row.order.SubmitAttemptedAt
	row.order = *updated
	return nil
}

func (r *orderRepo) ClaimForSubmit(_ context.Context, id uuid.UUID, at time.Time, ttl time.Duration) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.orders[id]
	if !ok {
		return false, nil
	}
	if row.order.State != domain.OrderStateDraft || row.order.HasRemoteID() {
		return false, nil
	}
	if row.claimedAt != nil && !row.claimedAt.Before(at.Add(-ttl)) {
		return false, nil
	}
	claimed := at
	row.claimedAt = &claimed
	if row.order.SubmitAttemptedAt == nil {
		attempted := at
		row.order.SubmitAttemptedAt = &attempted
	}
	return true, nil
}

func (r *orderRepo) ReleaseClaim(_ context.Context, id uuid.UUID) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if row, ok := s.orders[id]; ok {
		row.claimedAt = nil
	}
	return nil
}

// productRepo

type productRepo Store

func (r *productRepo) Upsert(_ context.Context, p *domain.SupplierProduct) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	for id, existing := range s.products {
		if existing.SupplierProductID != p.SupplierProductID || existing.SupplierVariantID != p.SupplierVariantID {
			continue
		}
		p.ID = id
		p.CreatedAt = existing.CreatedAt
		if p.LocalProductRef == nil {
			p.LocalProductRef = existing.LocalProductRef
		}
		p.UpdatedAt = ts
		s.products[id] = *p
		return nil
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = ts
	p.UpdatedAt = ts
	s.products[p.ID] = *p
	return nil
}

func (r *productRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.SupplierProduct, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "supplier product", ID: id.String()}
	}
	return &p, nil
}

func (r *productRepo) GetByKey(_ context.Context, supplierProductID, supplierVariantID string) (*domain.SupplierProduct, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.products {
		if p.SupplierProductID == supplierProductID && p.SupplierVariantID == supplierVariantID {
			found := p
			return &found, nil
		}
	}
	return nil, &errors.ErrNotFound{Resource: "supplier product", ID: supplierProductID + "/" + supplierVariantID}
}

func (r *productRepo) list(match func(p *domain.SupplierProduct) bool) []*domain.SupplierProduct {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var products []*domain.SupplierProduct
	for _, p := range s.products {
		if match(&p) {
			found := p
			products = append(products, &found)
		}
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].SupplierProductID != products[j].SupplierProductID {
			return products[i].SupplierProductID < products[j].SupplierProductID
		}
		return products[i].SupplierVariantID < products[j].SupplierVariantID
	})
	return products
}

func (r *productRepo) ListBySupplierProductID(_ context.Context, supplierProductID string) ([]*domain.SupplierProduct, error) {
	return r.list(func(p *domain.SupplierProduct) bool { return p.SupplierProductID == supplierProductID }), nil
}

func (r *productRepo) ListByConfig(_ context.Context, configID uuid.UUID) ([]*domain.SupplierProduct, error) {
	return r.list(func(p *domain.SupplierProduct) bool { return p.ConfigID == configID && p.Active }), nil
}

func (r *productRepo) UpdateStock(_ context.Context, id uuid.UUID, qty int, syncedAt time.Time) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return &errors.ErrNotFound{Resource: "supplier product", ID: id.String()}
	}
	at := syncedAt.UTC()
	p.StockQty = qty
	p.SyncedAt = &at
	p.UpdatedAt = at
	s.products[id] = p
	return nil
}

func (r *productRepo) LinkLocalProduct(_ context.Context, id, localProductID uuid.UUID) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return &errors.ErrNotFound{Resource: "supplier product", ID: id.String()}
	}
	if _, ok := s.localProducts[localProductID]; !ok {
		return &errors.ErrNotFound{Resource: "local product", ID: localProductID.String()}
	}
	ref := localProductID
	p.LocalProductRef = &ref
	p.UpdatedAt = now()
	s.products[id] = p
	return nil
}

func (r *productRepo) RecordSyncError(_ context.Context, id uuid.UUID, message string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return &errors.ErrNotFound{Resource: "supplier product", ID: id.String()}
	}
	p.LastError = message
	p.UpdatedAt = now()
	s.products[id] = p
	return nil
}

// webhookRepo

type webhookRepo Store

func cloneWebhook(w domain.WebhookRecord) *domain.WebhookRecord {
	w.RawPayload = cloneBytes(w.RawPayload)
	if w.Headers != nil {
		headers := make(map[string]string, len(w.Headers))
		for k, v := range w.Headers {
			headers[k] = v
		}
		w.Headers = headers
	}
	return &w
}

func (r *webhookRepo) Create(_ context.Context, rec *domain.WebhookRecord) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = now()
	s.webhooks[rec.ID] = *cloneWebhook(*rec)
	return nil
}

func (r *webhookRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.WebhookRecord, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.webhooks[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "webhook record", ID: id.String()}
	}
	return cloneWebhook(rec), nil
}

func (r *webhookRepo) ListUnprocessed(_ context.Context, limit int) ([]*domain.WebhookRecord, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []*domain.WebhookRecord
	for _, rec := range s.webhooks {
		if !rec.Processed {
			records = append(records, cloneWebhook(rec))
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.Before(records[j].CreatedAt) })
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (r *webhookRepo) MarkProcessed(_ context.Context, id uuid.UUID, processedAt time.Time, note string, orderRef *uuid.UUID) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.webhooks[id]
	if !ok || rec.Processed {
		return false, nil
	}
	at := processedAt.UTC()
	rec.Processed = true
	rec.ProcessedAt = &at
	rec.Error = note
	if orderRef != nil {
		ref := *orderRef
		rec.SupplierOrderRef = &ref
	}
	s.webhooks[id] = rec
	return true, nil
}

func (r *webhookRepo) RecordError(_ context.Context, id uuid.UUID, message string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.webhooks[id]
	if !ok || rec.Processed {
		return nil
	}
	rec.Error = message
	s.webhooks[id] = rec
	return nil
}

// localOrderRepo

type localOrderRepo Store

func (r *localOrderRepo) Create(_ context.Context, order *domain.LocalOrder) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	stored := *order
	stored.Lines = append([]domain.LocalOrderLine(nil), order.Lines...)
	s.localOrders[order.ID] = stored
	return nil
}

// GetByID resolves each line against local_products and the most recently
// updated active supplier product mapped to it
func (r *localOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.LocalOrder, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.localOrders[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "local order", ID: id.String()}
	}

	order := stored
	order.Lines = make([]domain.LocalOrderLine, len(stored.Lines))
	for i, line := range stored.Lines {
		resolved := domain.LocalOrderLine{ProductRef: line.ProductRef, Quantity: line.Quantity}
		if lp, ok := s.localProducts[line.ProductRef]; ok {
			resolved.SupplierFulfilled = lp.SupplierFulfilled
		}
		var best *domain.SupplierProduct
		for _, p := range s.products {
			if !p.Active || p.LocalProductRef == nil || *p.LocalProductRef != line.ProductRef {
				continue
			}
			if best == nil || p.UpdatedAt.After(best.UpdatedAt) {
				candidate := p
				best = &candidate
			}
		}
		if best != nil {
			resolved.SupplierProductID = best.SupplierProductID
			resolved.SupplierVariantID = best.SupplierVariantID
		}
		order.Lines[i] = resolved
	}
	return &order, nil
}

// localProductRepo

type localProductRepo Store

func (r *localProductRepo) Create(_ context.Context, p *domain.LocalProduct) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.UpdatedAt = now()
	s.localProducts[p.ID] = *p
	return nil
}

func (r *localProductRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.LocalProduct, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.localProducts[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "local product", ID: id.String()}
	}
	return &p, nil
}

func (r *localProductRepo) UpdatePricing(_ context.Context, id uuid.UUID, listPrice, costPrice decimal.Decimal) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.localProducts[id]
	if !ok {
		return &errors.ErrNotFound{Resource: "local product", ID: id.String()}
	}
	p.ListPrice = listPrice
	p.CostPrice = costPrice
	p.UpdatedAt = now()
	s.localProducts[id] = p
	return nil
}

func (r *localProductRepo) Update(_ context.Context, p *domain.LocalProduct) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.localProducts[p.ID]; !ok {
		return &errors.ErrNotFound{Resource: "local product", ID: p.ID.String()}
	}
	p.UpdatedAt = now()
	s.localProducts[p.ID] = *p
	return nil
}

// eventRepo

type eventRepo Store

func (r *eventRepo) Create(_ context.Context, e *domain.OrderEvent) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = now()
	s.events = append(s.events, *e)
	return nil
}

func (r *eventRepo) ListByLocalOrderID(_ context.Context, localOrderID uuid.UUID) ([]*domain.OrderEvent, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []*domain.OrderEvent
	for _, e := range s.events {
		if e.LocalOrderID == localOrderID {
			found := e
			events = append(events, &found)
		}
	}
	return events, nil
}
