package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/internal/metrics"
	"github.com/jafarshop/dropsync/internal/repository"
	"github.com/jafarshop/dropsync/internal/supplier"
	"github.com/jafarshop/dropsync/pkg/errors"
)

// DefaultSubmitClaimTTL bounds how long a crashed submitter blocks a retry
const DefaultSubmitClaimTTL = 90 * time.Second

// action names an operation in invalid state errors
type action string

func (a action) String() string { return string(a) }

const (
	actionRefresh   action = "refresh status"
	actionLogistics action = "refresh logistics"
)

// OrderSyncEngine drives supplier orders through their lifecycle
type OrderSyncEngine struct {
	repos    *repository.Repositories
	clients  ClientProvider
	activity ActivitySink
	metrics  metrics.Recorder
	logger   *zap.Logger
	claimTTL time.Duration

	now         func() time.Time
	retryPolicy func() backoff.BackOff
}

// NewOrderSyncEngine creates a new order sync engine
func NewOrderSyncEngine(
	repos *repository.Repositories,
	clients ClientProvider,
	activity ActivitySink,
	rec metrics.Recorder,
	logger *zap.Logger,
	claimTTL time.Duration,
) *OrderSyncEngine {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if claimTTL <= 0 {
		claimTTL = DefaultSubmitClaimTTL
	}
	return &OrderSyncEngine{
		repos:       repos,
		clients:     clients,
		activity:    activity,
		metrics:     rec,
		logger:      logger,
		claimTTL:    claimTTL,
		now:         time.Now,
		retryPolicy: defaultRetryPolicy,
	}
}

func defaultRetryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second
	return backoff.WithMaxRetries(b, 2)
}

// withRetry runs op again on retryable supplier errors. Rate limits are
// returned at once since their delay exceeds a request's patience.
func withRetry(ctx context.Context, policy func() backoff.BackOff, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		var rateErr *errors.RateLimitError
		if !errors.IsRetryable(err) || stderrors.As(err, &rateErr) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy(), ctx))
}

// maxSaveAttempts bounds the reload and reapply rounds of save
const maxSaveAttempts = 3

// save applies mutate to order and stores it. When another writer updated
// the record since it was read, the record is reloaded and mutate applied
// again to the fresh copy. mutate reports whether there is anything to
// write. On return order holds the stored record.
func (s *OrderSyncEngine) save(ctx context.Context, order *domain.SupplierOrder, mutate func(o *domain.SupplierOrder) bool) (bool, error) {
	for attempt := 1; ; attempt++ {
		if !mutate(order) {
			return false, nil
		}
		err := s.repos.SupplierOrder.Update(ctx, order)
		if err == nil {
			return true, nil
		}
		if !errors.IsConcurrentUpdate(err) || attempt == maxSaveAttempts {
			return false, err
		}
		s.logger.Debug("Supplier order changed concurrently, reapplying",
			zap.String("order_id", order.ID.String()),
			zap.Int("attempt", attempt),
		)
		fresh, err := s.repos.SupplierOrder.GetByID(ctx, order.ID)
		if err != nil {
			return false, err
		}
		*order = *fresh
	}
}

// Submit sends a draft order to the supplier. An order that was claimed
// before is first looked up with the supplier so that a submission whose
// outcome was lost is adopted instead of placed twice.
func (s *OrderSyncEngine) Submit(ctx context.Context, orderID uuid.UUID) (*domain.SupplierOrder, error) {
	order, err := s.repos.SupplierOrder.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.State != domain.OrderStateDraft {
		return nil, &errors.ErrInvalidStateTransition{
			From:   order.State,
			To:     domain.OrderStateSubmitted,
			Reason: "only draft orders can be submitted",
		}
	}
	if order.HasRemoteID() {
		return nil, &errors.ErrInvalidStateTransition{
			From:   order.State,
			To:     domain.OrderStateSubmitted,
			Reason: fmt.Sprintf("already submitted as supplier order %s", order.RemoteID()),
		}
	}

	local, err := s.repos.LocalOrder.GetByID(ctx, order.LocalOrderID)
	if err != nil {
		return nil, err
	}

	lines := local.EligibleLines()
	if len(lines) == 0 {
		noItems := &errors.NoEligibleItemsError{LocalOrderID: local.Name}
		if _, err := s.save(ctx, order, func(o *domain.SupplierOrder) bool {
			o.LastError = noItems.Error()
			return true
		}); err != nil {
			s.logger.Error("Failed to record submit error", zap.String("order_id", order.ID.String()), zap.Error(err))
		}
		return nil, noItems
	}

	attemptedBefore := order.SubmitAttemptedAt != nil
	claimed, err := s.repos.SupplierOrder.ClaimForSubmit(ctx, order.ID, s.now(), s.claimTTL)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, &errors.ErrInvalidStateTransition{
			From:   order.State,
			To:     domain.OrderStateSubmitted,
			Reason: "a submission for this order is already in progress",
		}
	}
	// the claim stays when the supplier accepted an order whose id could
	// not be stored, so nobody submits it again until the claim expires
	keepClaim := false
	defer func() {
		if keepClaim {
			return
		}
		if err := s.repos.SupplierOrder.ReleaseClaim(context.WithoutCancel(ctx), order.ID); err != nil {
			s.logger.Warn("Failed to release submit claim", zap.String("order_id", order.ID.String()), zap.Error(err))
		}
	}()

	req := buildOrderRequest(local, lines)
	var requestData json.RawMessage
	if payload, err := json.Marshal(req); err == nil {
		requestData = payload
	}

	client, err := s.clients.Client(ctx, order.ConfigID)
	if err != nil {
		return nil, s.failSubmit(ctx, order, requestData, err)
	}

	var result *supplier.CreateOrderResult
	adopted := false
	if attemptedBefore {
		existing, err := client.FindOrderByNumber(ctx, req.OrderNumber)
		if err != nil {
			return nil, s.failSubmit(ctx, order, requestData, fmt.Errorf("checking for an earlier submission: %w", err))
		}
		if existing != nil && existing.OrderID != "" {
			result = &supplier.CreateOrderResult{
				OrderID:  domain.FlexString(existing.OrderID),
				OrderNum: domain.FlexString(existing.OrderNum),
			}
			adopted = true
		}
	}
	if result == nil {
		result, err = client.CreateOrder(ctx, req)
		if err != nil {
			return nil, s.failSubmit(ctx, order, requestData, err)
		}
	}

	remoteID := string(result.OrderID)
	orderNumber := string(result.OrderNum)
	if orderNumber == "" {
		orderNumber = local.Name
	}
	responseData, _ := json.Marshal(result)

	if err := s.storeAccepted(ctx, order, remoteID, orderNumber, requestData, responseData); err != nil {
		s.logger.Error("Failed to store supplier order id",
			zap.String("order_id", order.ID.String()),
			zap.String("supplier_order_id", remoteID),
			zap.Error(err),
		)
		if !errors.IsConflict(err) {
			keepClaim = true
			return nil, err
		}
		if _, uerr := s.save(ctx, order, func(o *domain.SupplierOrder) bool {
			o.SupplierOrderID = nil
			o.State = domain.OrderStateError
			o.LastError = err.Error()
			return true
		}); uerr != nil {
			s.logger.Error("Failed to record submit error", zap.String("order_id", order.ID.String()), zap.Error(uerr))
		}
		return nil, err
	}

	s.metrics.RecordOrderTransition(string(domain.OrderStateDraft), string(domain.OrderStateSubmitted))
	s.logger.Info("Supplier order submitted",
		zap.String("order_id", order.ID.String()),
		zap.String("supplier_order_id", remoteID),
		zap.Bool("adopted", adopted),
	)
	message := fmt.Sprintf("Order submitted to supplier: %s", remoteID)
	if adopted {
		message = fmt.Sprintf("Supplier already held this order as %s", remoteID)
	}
	postActivity(ctx, s.activity, s.logger, order.LocalOrderID, "supplier_order_submitted", message,
		map[string]interface{}{
			"supplier_order_id":     remoteID,
			"supplier_order_number": order.SupplierOrderNumber,
		})

	return order, nil
}

// storeAccepted records the supplier's identifiers on order. Failures other
// than a uniqueness conflict are retried, since the supplier already holds
// the order.
func (s *OrderSyncEngine) storeAccepted(ctx context.Context, order *domain.SupplierOrder, remoteID, orderNumber string, requestData, responseData json.RawMessage) error {
	accept := func(o *domain.SupplierOrder) bool {
		if o.RemoteID() == remoteID {
			return false
		}
		id := remoteID
		o.SupplierOrderID = &id
		o.SupplierOrderNumber = orderNumber
		o.State = domain.OrderStateSubmitted
		o.LastError = ""
		o.RequestData = requestData
		o.ResponseData = responseData
		return true
	}

	saveCtx := context.WithoutCancel(ctx)
	return backoff.Retry(func() error {
		// a failed write must not leave the id on the copy the next
		// attempt starts from
		attempt := *order
		if _, err := s.save(saveCtx, &attempt, accept); err != nil {
			if errors.IsConflict(err) || errors.IsNotFound(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		*order = attempt
		return nil
	}, backoff.WithContext(s.retryPolicy(), saveCtx))
}

// failSubmit records a failed submission and moves the order to error
func (s *OrderSyncEngine) failSubmit(ctx context.Context, order *domain.SupplierOrder, requestData json.RawMessage, cause error) error {
	from := order.State
	stored, err := s.save(ctx, order, func(o *domain.SupplierOrder) bool {
		if o.HasRemoteID() {
			return false
		}
		o.State = domain.OrderStateError
		o.LastError = cause.Error()
		if requestData != nil {
			o.RequestData = requestData
		}
		return true
	})
	if err != nil {
		s.logger.Error("Failed to record submit error", zap.String("order_id", order.ID.String()), zap.Error(err))
	} else if stored {
		s.metrics.RecordOrderTransition(string(from), string(domain.OrderStateError))
	}

	s.logger.Warn("Supplier order submission failed",
		zap.String("order_id", order.ID.String()),
		zap.Error(cause),
	)
	postActivity(ctx, s.activity, s.logger, order.LocalOrderID, "supplier_order_failed",
		fmt.Sprintf("Supplier order submission failed: %s", cause.Error()),
		map[string]interface{}{"error": cause.Error()})

	return cause
}

func buildOrderRequest(local *domain.LocalOrder, lines []domain.LocalOrderLine) supplier.CreateOrderRequest {
	products := make([]supplier.OrderProduct, 0, len(lines))
	for _, l := range lines {
		products = append(products, supplier.OrderProduct{
			ProductID: l.SupplierProductID,
			VariantID: l.SupplierVariantID,
			Quantity:  l.Quantity,
		})
	}
	return supplier.CreateOrderRequest{
		OrderNumber:     local.Name,
		Products:        products,
		ShippingAddress: supplier.AddressFrom(local.Shipping),
		Remark:          local.Note,
	}
}

// Retry moves a failed order back to draft so it can be submitted again
func (s *OrderSyncEngine) Retry(ctx context.Context, orderID uuid.UUID) (*domain.SupplierOrder, error) {
	order, err := s.repos.SupplierOrder.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.State != domain.OrderStateError {
		return nil, &errors.ErrInvalidStateTransition{
			From:   order.State,
			To:     domain.OrderStateDraft,
			Reason: "only failed orders can be retried",
		}
	}
	if order.HasRemoteID() {
		return nil, &errors.ErrInvalidStateTransition{
			From:   order.State,
			To:     domain.OrderStateDraft,
			Reason: fmt.Sprintf("supplier already accepted this order as %s", order.RemoteID()),
		}
	}

	order.State = domain.OrderStateDraft
	order.LastError = ""
	if err := s.repos.SupplierOrder.Update(ctx, order); err != nil {
		return nil, err
	}

	s.metrics.RecordOrderTransition(string(domain.OrderStateError), string(domain.OrderStateDraft))
	postActivity(ctx, s.activity, s.logger, order.LocalOrderID, "supplier_order_reset",
		"Supplier order reset to draft for resubmission", nil)

	return order, nil
}

// RefreshStatus queries the supplier for the order's current status.
// Failures are recorded on the order and leave its state untouched.
func (s *OrderSyncEngine) RefreshStatus(ctx context.Context, orderID uuid.UUID) (*domain.SupplierOrder, error) {
	order, err := s.repos.SupplierOrder.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !order.State.IsOpen() || !order.HasRemoteID() {
		return nil, &errors.ErrInvalidStateTransition{
			From:   order.State,
			To:     actionRefresh,
			Reason: "only submitted, processing or shipped orders can be refreshed",
		}
	}

	client, err := s.clients.Client(ctx, order.ConfigID)
	if err != nil {
		return nil, s.recordFailure(ctx, order, err)
	}

	var detail *supplier.OrderDetail
	err = withRetry(ctx, s.retryPolicy, func() error {
		var qerr error
		detail, qerr = client.GetOrder(ctx, order.RemoteID())
		return qerr
	})
	if err != nil {
		return nil, s.recordFailure(ctx, order, err)
	}

	update := detail.Update()
	var ch domain.Change
	if _, err := s.save(ctx, order, func(o *domain.SupplierOrder) bool {
		hadError := o.LastError != ""
		o.LastError = ""
		ch = o.ApplyRemoteStatus(update)
		return ch.Changed() || hadError
	}); err != nil {
		return nil, err
	}
	s.announce(ctx, order, ch, "refresh")

	return order, nil
}

// RefreshLogistics pulls tracking data for a submitted order
func (s *OrderSyncEngine) RefreshLogistics(ctx context.Context, orderID uuid.UUID) (*domain.SupplierOrder, error) {
	order, err := s.repos.SupplierOrder.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !order.HasRemoteID() {
		return nil, &errors.ErrInvalidStateTransition{
			From:   order.State,
			To:     actionLogistics,
			Reason: "order has not been submitted to the supplier",
		}
	}

	client, err := s.clients.Client(ctx, order.ConfigID)
	if err != nil {
		return nil, s.recordFailure(ctx, order, err)
	}

	var logistics *supplier.Logistics
	err = withRetry(ctx, s.retryPolicy, func() error {
		var qerr error
		logistics, qerr = client.QueryLogistics(ctx, order.RemoteID())
		return qerr
	})
	if err != nil {
		return nil, s.recordFailure(ctx, order, err)
	}

	if _, err := s.RecordLogistics(ctx, order, logistics.Update(), "refresh"); err != nil {
		return nil, err
	}
	return order, nil
}

// recordFailure keeps the error message on the order without touching its
// state
func (s *OrderSyncEngine) recordFailure(ctx context.Context, order *domain.SupplierOrder, cause error) error {
	if _, err := s.save(ctx, order, func(o *domain.SupplierOrder) bool {
		o.LastError = cause.Error()
		return true
	}); err != nil {
		s.logger.Error("Failed to record order error", zap.String("order_id", order.ID.String()), zap.Error(err))
	}
	s.logger.Warn("Supplier order query failed",
		zap.String("order_id", order.ID.String()),
		zap.String("supplier_order_id", order.RemoteID()),
		zap.Error(cause),
	)
	return cause
}

// ApplyRemoteStatus merges a remote status into order and persists it when
// anything changed. Repeated or stale updates are no-ops. A write that races
// another is reapplied onto the stored record, so the state never moves
// backwards.
func (s *OrderSyncEngine) ApplyRemoteStatus(ctx context.Context, order *domain.SupplierOrder, u domain.RemoteOrderUpdate, source string) (domain.Change, error) {
	if _, known := domain.MapRemoteStatus(u.Status); !known && u.Status != "" {
		s.logger.Debug("Ignoring unknown supplier status",
			zap.String("order_id", order.ID.String()),
			zap.String("status", u.Status),
		)
	}

	var ch domain.Change
	if _, err := s.save(ctx, order, func(o *domain.SupplierOrder) bool {
		ch = o.ApplyRemoteStatus(u)
		return ch.Changed()
	}); err != nil {
		return ch, err
	}
	s.announce(ctx, order, ch, source)
	return ch, nil
}

// RecordLogistics merges tracking data into order and persists it when
// anything changed
func (s *OrderSyncEngine) RecordLogistics(ctx context.Context, order *domain.SupplierOrder, u domain.LogisticsUpdate, source string) (domain.Change, error) {
	at := s.now()
	var ch domain.Change
	if _, err := s.save(ctx, order, func(o *domain.SupplierOrder) bool {
		ch = o.RecordLogistics(u, at)
		return ch.Changed()
	}); err != nil {
		return ch, err
	}
	s.announce(ctx, order, ch, source)
	return ch, nil
}

// announce reports customer-visible changes to metrics and the activity trail
func (s *OrderSyncEngine) announce(ctx context.Context, order *domain.SupplierOrder, ch domain.Change, source string) {
	if ch.StateChanged {
		s.metrics.RecordOrderTransition(string(ch.From), string(ch.To))
		s.logger.Info("Supplier order status changed",
			zap.String("order_id", order.ID.String()),
			zap.String("from", string(ch.From)),
			zap.String("to", string(ch.To)),
			zap.String("source", source),
		)
		postActivity(ctx, s.activity, s.logger, order.LocalOrderID, "status_change",
			fmt.Sprintf("Supplier order status: %s → %s", ch.From, ch.To),
			map[string]interface{}{"from": ch.From, "to": ch.To, "source": source})
	}
	if ch.TrackingChanged {
		postActivity(ctx, s.activity, s.logger, order.LocalOrderID, "tracking_update",
			fmt.Sprintf("Tracking number: %s", order.TrackingNumber),
			map[string]interface{}{
				"tracking_number": order.TrackingNumber,
				"shipping_method": order.ShippingMethod,
				"source":          source,
			})
	}
}

// EnsureSupplierOrder returns the supplier order of a local order, creating
// a draft when there is none. created reports whether a draft was made.
func (s *OrderSyncEngine) EnsureSupplierOrder(ctx context.Context, localOrderID, configID uuid.UUID) (order *domain.SupplierOrder, created bool, err error) {
	existing, err := s.repos.SupplierOrder.GetByLocalOrderID(ctx, localOrderID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.IsNotFound(err) {
		return nil, false, err
	}

	local, err := s.repos.LocalOrder.GetByID(ctx, localOrderID)
	if err != nil {
		return nil, false, err
	}
	if !local.HasSupplierLines() {
		return nil, false, &errors.NoEligibleItemsError{LocalOrderID: local.Name}
	}

	order = domain.NewSupplierOrder(localOrderID, configID)
	if err := s.repos.SupplierOrder.Create(ctx, order); err != nil {
		if errors.IsConflict(err) {
			existing, gerr := s.repos.SupplierOrder.GetByLocalOrderID(ctx, localOrderID)
			if gerr != nil {
				return nil, false, gerr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	postActivity(ctx, s.activity, s.logger, localOrderID, "supplier_order_created",
		"Supplier order created", map[string]interface{}{"supplier_order": order.ID.String()})

	return order, true, nil
}

// SubmitLocalOrder creates the supplier order of a local order under the
// default config when needed and submits it
func (s *OrderSyncEngine) SubmitLocalOrder(ctx context.Context, localOrderID uuid.UUID) (*domain.SupplierOrder, error) {
	cfg, err := s.repos.SupplierConfig.GetDefault(ctx)
	if err != nil {
		return nil, err
	}

	order, _, err := s.EnsureSupplierOrder(ctx, localOrderID, cfg.ID)
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, order.ID)
}

// OnOrderConfirmed is the host's order confirmation hook. It never fails
// the confirmation; problems are logged and posted to the activity trail.
func (s *OrderSyncEngine) OnOrderConfirmed(ctx context.Context, localOrderID uuid.UUID) {
	logger := s.logger.With(zap.String("local_order_id", localOrderID.String()))

	cfg, err := s.repos.SupplierConfig.GetDefault(ctx)
	if err != nil {
		if errors.IsNotFound(err) {
			logger.Debug("No active supplier config, skipping confirmation hook")
		} else {
			logger.Error("Failed to load supplier config", zap.Error(err))
		}
		return
	}

	order, _, err := s.EnsureSupplierOrder(ctx, localOrderID, cfg.ID)
	if err != nil {
		var noItems *errors.NoEligibleItemsError
		if stderrors.As(err, &noItems) {
			return
		}
		logger.Error("Failed to create supplier order", zap.Error(err))
		postActivity(ctx, s.activity, logger, localOrderID, "supplier_order_failed",
			fmt.Sprintf("Failed to create supplier order: %s", err.Error()), nil)
		return
	}

	if !cfg.AutoFulfillOrders || order.State != domain.OrderStateDraft {
		return
	}

	if _, err := s.Submit(ctx, order.ID); err != nil {
		logger.Warn("Automatic supplier submission failed", zap.Error(err))
	}
}

// RefreshOpenOrders refreshes the status of up to limit open orders
func (s *OrderSyncEngine) RefreshOpenOrders(ctx context.Context, limit int) (BatchResult, error) {
	var result BatchResult

	orders, err := s.repos.SupplierOrder.List(ctx, repository.OrderFilter{
		States: []domain.OrderState{domain.OrderStateSubmitted, domain.OrderStateProcessing, domain.OrderStateShipped},
		Limit:  limit,
	})
	if err != nil {
		return result, err
	}

	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Processed++
		if _, err := s.RefreshStatus(ctx, order.ID); err != nil {
			result.Failed++
		}
	}

	s.logger.Info("Refreshed open supplier orders",
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}
