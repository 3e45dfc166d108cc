package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tws-bridge/internal/broker"
	apperrors "tws-bridge/internal/errors"
	"tws-bridge/internal/logging"
	"tws-bridge/internal/models"
	"tws-bridge/internal/store"
)

// Orchestrator turns order intents into correctly sequenced gateway commands
// and reconciles asynchronous acknowledgements into order records. It owns
// order-identifier allocation for the session: bracket legs need sequential
// ids with no interleaving from concurrent callers.
type Orchestrator struct {
	gw    broker.Gateway
	guard *SessionGuard
	store store.OrderStore // optional; nil disables the audit journal
	log   zerolog.Logger

	ackTimeout      time.Duration
	snapshotTimeout time.Duration
	defaultTIF      models.TimeInForce
	strategy        string

	idMu   sync.Mutex
	nextID int64
	seeded bool

	done      chan struct{}
	closeOnce sync.Once
	trackers  sync.WaitGroup
}

// OrchestratorConfig holds orchestrator construction parameters.
type OrchestratorConfig struct {
	Gateway         broker.Gateway
	Guard           *SessionGuard
	Store           store.OrderStore
	Logger          zerolog.Logger
	AckTimeout      time.Duration
	SnapshotTimeout time.Duration
	DefaultTIF      models.TimeInForce
	Strategy        string
}

// NewOrchestrator creates an orchestrator for one broker session.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	ackTimeout := cfg.AckTimeout
	if ackTimeout == 0 {
		ackTimeout = 5 * time.Second
	}
	snapshotTimeout := cfg.SnapshotTimeout
	if snapshotTimeout == 0 {
		snapshotTimeout = 5 * time.Second
	}
	tif := cfg.DefaultTIF
	if tif == "" {
		tif = models.TIFDay
	}
	return &Orchestrator{
		gw:              cfg.Gateway,
		guard:           cfg.Guard,
		store:           cfg.Store,
		log:             cfg.Logger,
		ackTimeout:      ackTimeout,
		snapshotTimeout: snapshotTimeout,
		defaultTIF:      tif,
		strategy:        cfg.Strategy,
		done:            make(chan struct{}),
	}
}

// Close stops background order tracking. It does not cancel resting orders.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() { close(o.done) })
	o.trackers.Wait()
}

// reserveIDs allocates n sequential order identifiers, seeding the counter
// from the gateway on first use.
func (o *Orchestrator) reserveIDs(ctx context.Context, n int64) (int64, error) {
	o.idMu.Lock()
	defer o.idMu.Unlock()
	if !o.seeded {
		first, err := o.gw.NextValidID(ctx)
		if err != nil {
			return 0, fmt.Errorf("seeding order id allocator: %w", err)
		}
		o.nextID = first
		o.seeded = true
	}
	first := o.nextID
	o.nextID += n
	return first, nil
}

// PlaceOrder validates the request, consults the risk gate, submits the order
// and resolves once the gateway acknowledges receipt or the ack timeout
// elapses.
func (o *Orchestrator) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	req = o.applyDefaults(req)

	result := ValidateOrder(req)
	for _, note := range result.Notes {
		o.log.Warn().Str("symbol", req.Symbol).Msg(note)
	}
	if !result.Valid {
		return nil, apperrors.NewValidationError(result.Errors)
	}

	if err := o.checkGate(req); err != nil {
		return nil, err
	}

	orderID, err := o.reserveIDs(ctx, 1)
	if err != nil {
		return nil, err
	}

	order := orderFromRequest(orderID, req)
	order.CorrelationID = uuid.NewString()

	track := o.journalSubscription(orderID)
	status, err := o.submitAndAwait(ctx, orderID, req)
	if err != nil {
		o.releaseSubscription(orderID, track)
		return nil, apperrors.NewOrderError(orderID, req.Symbol, "place", "submission not acknowledged", err)
	}
	order.Status = status

	o.persist(ctx, *order)
	o.trackOrder(orderID, track)
	logging.LogOrder(o.log, orderID, order.Symbol, string(order.Side), string(order.Status))
	return order, nil
}

// PlaceBracket places a simple bracket: the entry order plus a limit
// take-profit and a stop-loss, linked as one OCA-paired unit.
func (o *Orchestrator) PlaceBracket(ctx context.Context, req models.BracketRequest) (*models.BracketResult, error) {
	adv := models.AdvancedBracketRequest{
		Symbol:          req.Symbol,
		Side:            req.Side,
		Quantity:        req.Quantity,
		EntryType:       req.EntryType,
		EntryLimitPrice: req.EntryLimitPrice,
		TakeProfitPrice: req.TakeProfitPrice,
		StopType:        models.OrderTypeStop,
		StopPrice:       &req.StopLossPrice,
		TIF:             req.TIF,
		Strategy:        req.Strategy,
	}
	return o.PlaceAdvancedBracket(ctx, adv)
}

// PlaceAdvancedBracket places a bracket whose stop leg may be a plain stop, a
// stop-limit or a trailing stop. The three legs get sequential order ids; the
// exit legs carry the reversed side, the entry's id as parent and a generated
// OCA group. Transmit is suppressed on the first two legs and enabled only on
// the stop-loss leg, so the gateway activates the whole chain atomically.
func (o *Orchestrator) PlaceAdvancedBracket(ctx context.Context, req models.AdvancedBracketRequest) (*models.BracketResult, error) {
	legs, err := o.buildBracketLegs(req)
	if err != nil {
		return nil, err
	}

	if err := o.checkGate(legs.entry); err != nil {
		return nil, err
	}

	entryID, err := o.reserveIDs(ctx, 3)
	if err != nil {
		return nil, err
	}
	takeProfitID := entryID + 1
	stopLossID := entryID + 2

	correlationID := uuid.NewString()
	ocaGroup := fmt.Sprintf("OCA-%d-%d", entryID, time.Now().Unix())
	log := logging.WithCorrelation(o.log, correlationID)

	legs.takeProfit.ParentID = entryID
	legs.takeProfit.OCAGroup = ocaGroup
	legs.takeProfit.OCAType = models.OCACancelWithBlock
	legs.stopLoss.ParentID = entryID
	legs.stopLoss.OCAGroup = ocaGroup
	legs.stopLoss.OCAType = models.OCACancelWithBlock

	// Submission order is load-bearing: entry and take-profit are staged
	// untransmitted, the stop-loss leg transmits and activates the chain.
	submissions := []struct {
		name string
		id   int64
		req  models.OrderRequest
	}{
		{"entry", entryID, legs.entry},
		{"takeProfit", takeProfitID, legs.takeProfit},
		{"stopLoss", stopLossID, legs.stopLoss},
	}

	result := &models.BracketResult{CorrelationID: correlationID, OCAGroup: ocaGroup}
	var placed []int64
	for _, sub := range submissions {
		track := o.journalSubscription(sub.id)
		status, err := o.submitAndAwait(ctx, sub.id, sub.req)
		if err != nil {
			o.releaseSubscription(sub.id, track)
			log.Error().Err(err).Str("leg", sub.name).Int64("order_id", sub.id).Msg("Bracket leg failed")
			if len(placed) == 0 {
				return nil, apperrors.NewOrderError(sub.id, req.Symbol, "bracket", "entry leg not acknowledged", err)
			}
			// Placed legs are not rolled back; the caller reconciles via the
			// open-order snapshot.
			return result, &apperrors.PartialBracketError{
				CorrelationID: correlationID,
				PlacedIDs:     placed,
				FailedLeg:     sub.name,
				Err:           err,
			}
		}
		placed = append(placed, sub.id)

		order := orderFromRequest(sub.id, sub.req)
		order.CorrelationID = correlationID
		order.Status = status
		o.persist(ctx, *order)
		o.trackOrder(sub.id, track)

		switch sub.name {
		case "entry":
			result.Entry = order
		case "takeProfit":
			result.TakeProfit = order
		case "stopLoss":
			result.StopLoss = order
		}
	}

	log.Info().
		Int64("entry_id", entryID).
		Int64("take_profit_id", takeProfitID).
		Int64("stop_loss_id", stopLossID).
		Str("oca_group", ocaGroup).
		Msg("Bracket placed")
	return result, nil
}

// bracketLegs holds the three built order requests before submission.
type bracketLegs struct {
	entry      models.OrderRequest
	takeProfit models.OrderRequest
	stopLoss   models.OrderRequest
}

func (o *Orchestrator) buildBracketLegs(req models.AdvancedBracketRequest) (*bracketLegs, error) {
	tif := req.TIF
	if tif == "" {
		tif = o.defaultTIF
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = o.strategy
	}
	exitSide := req.Side.Reverse()

	entryType := req.EntryType
	if entryType == "" {
		entryType = models.OrderTypeMarket
	}
	entry := models.OrderRequest{
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       entryType,
		Quantity:   req.Quantity,
		LimitPrice: req.EntryLimitPrice,
		TIF:        tif,
		Transmit:   false,
		Strategy:   strategy,
	}

	tpPrice := req.TakeProfitPrice
	takeProfit := models.OrderRequest{
		Symbol:     req.Symbol,
		Side:       exitSide,
		Type:       models.OrderTypeLimit,
		Quantity:   req.Quantity,
		LimitPrice: &tpPrice,
		TIF:        tif,
		Transmit:   false,
		Strategy:   strategy,
	}

	stopType := req.StopType
	if stopType == "" {
		stopType = models.OrderTypeStop
	}
	stopLoss := models.OrderRequest{
		Symbol:   req.Symbol,
		Side:     exitSide,
		Type:     stopType,
		Quantity: req.Quantity,
		TIF:      tif,
		Transmit: true,
		Strategy: strategy,
	}
	switch stopType {
	case models.OrderTypeStop:
		stopLoss.TriggerPrice = req.StopPrice
	case models.OrderTypeStopLimit:
		stopLoss.TriggerPrice = req.StopPrice
		stopLoss.LimitPrice = req.StopLimitPrice
	case models.OrderTypeTrail:
		// A trailing leg takes the absolute amount or the percent, never both.
		stopLoss.TriggerPrice = req.StopPrice
		stopLoss.TrailingPercent = req.TrailPercent
	case models.OrderTypeTrailLimit:
		stopLoss.TriggerPrice = req.StopPrice
		stopLoss.TrailingPercent = req.TrailPercent
		stopLoss.LimitPrice = req.StopLimitPrice
	default:
		return nil, apperrors.NewValidationError([]string{
			fmt.Sprintf("stop leg type must be STP, STP LMT, TRAIL or TRAIL LIMIT, got %q", stopType),
		})
	}

	var errs []string
	for _, leg := range []struct {
		name string
		req  models.OrderRequest
	}{
		{"entry", entry},
		{"takeProfit", takeProfit},
		{"stopLoss", stopLoss},
	} {
		result := ValidateOrder(leg.req)
		for _, e := range result.Errors {
			errs = append(errs, fmt.Sprintf("%s leg: %s", leg.name, e))
		}
	}
	if len(errs) > 0 {
		return nil, apperrors.NewValidationError(errs)
	}

	return &bracketLegs{entry: entry, takeProfit: takeProfit, stopLoss: stopLoss}, nil
}

// CancelOrder cancels a resting order, resolving on the gateway's cancel
// confirmation or the ack timeout.
func (o *Orchestrator) CancelOrder(ctx context.Context, orderID int64) error {
	open, err := o.openOrderSnapshot(ctx)
	if err != nil {
		return err
	}
	target := findOrder(open, orderID)
	if target == nil {
		return apperrors.Wrapf(apperrors.ErrOrderNotFound, "cancel order %d", orderID)
	}

	ch := o.gw.Subscribe(orderID)
	defer o.gw.Unsubscribe(orderID, ch)

	if err := o.gw.CancelOrder(ctx, orderID); err != nil {
		return apperrors.NewOrderError(orderID, target.Symbol, "cancel", "cancel request failed", err)
	}

	status, err := o.awaitSettlement(ctx, ch, func(ev broker.OrderEvent) bool {
		return ev.Status == models.StatusCancelled || ev.Status == models.StatusPendingCancel
	})
	if err != nil {
		return apperrors.NewOrderError(orderID, target.Symbol, "cancel", "cancel not confirmed", err)
	}

	if o.store != nil {
		if err := o.store.UpdateOrderStatus(ctx, orderID, status, target.FilledQty, target.AvgFillPrice); err != nil {
			o.log.Warn().Err(err).Int64("order_id", orderID).Msg("Failed to journal cancel")
		}
	}
	logging.LogOrder(o.log, orderID, target.Symbol, string(target.Side), string(status))
	return nil
}

// CancelAll asks the gateway to cancel every open order. Confirmation arrives
// per order on the event stream; callers needing certainty should re-query
// the open-order snapshot.
func (o *Orchestrator) CancelAll(ctx context.Context) error {
	if err := o.gw.CancelAll(ctx); err != nil {
		return apperrors.Wrap(err, "cancel all")
	}
	o.log.Info().Msg("Cancel-all issued")
	return nil
}

// OpenOrders returns the gateway's live open-order snapshot.
func (o *Orchestrator) OpenOrders(ctx context.Context) ([]models.Order, error) {
	return o.openOrderSnapshot(ctx)
}

// openOrderSnapshot queries the gateway with the snapshot timeout applied.
// A timed-out snapshot resolves with whatever partial data the gateway
// returned; reads are best-effort.
func (o *Orchestrator) openOrderSnapshot(ctx context.Context) ([]models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, o.snapshotTimeout)
	defer cancel()
	open, err := o.gw.OpenOrders(ctx)
	if err != nil && ctx.Err() != nil {
		o.log.Warn().Err(err).Msg("Open-order snapshot timed out; using partial data")
		return open, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "querying open orders")
	}
	return open, nil
}

// checkGate runs the pre-trade risk gate for a built request.
func (o *Orchestrator) checkGate(req models.OrderRequest) error {
	if o.guard == nil {
		return nil
	}
	decision := o.guard.CheckRisk(OrderIntent{
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
	})
	if !decision.Allowed {
		state := o.guard.Snapshot()
		switch decision.Rule {
		case RuleDailyLossLimit:
			return apperrors.NewRiskError(decision.Rule, -state.RealizedPnL, state.MaxDailyLoss, decision.Reason)
		case RuleConsecutiveLosses:
			return apperrors.NewRiskError(decision.Rule, float64(state.ConsecutiveLosses), float64(state.MaxConsecutiveLosses), decision.Reason)
		default:
			return apperrors.NewRiskError(decision.Rule, 0, 0, decision.Reason)
		}
	}
	return nil
}

// submitAndAwait submits one order and blocks until the gateway acknowledges
// receipt, a fatal error event arrives, or the ack timeout elapses. Exactly
// one of those wins; the subscription is dropped on return so stale events
// cannot settle the request twice.
func (o *Orchestrator) submitAndAwait(ctx context.Context, orderID int64, req models.OrderRequest) (models.OrderStatus, error) {
	ch := o.gw.Subscribe(orderID)
	defer o.gw.Unsubscribe(orderID, ch)

	if err := o.gw.SubmitOrder(ctx, orderID, req); err != nil {
		return "", err
	}
	return o.awaitSettlement(ctx, ch, func(ev broker.OrderEvent) bool {
		return true // any status event is the receipt acknowledgement
	})
}

// awaitSettlement resolves exactly once: the first matching status event, the
// first fatal error event, or the timeout. Nonfatal gateway codes are
// filtered and ignored.
func (o *Orchestrator) awaitSettlement(ctx context.Context, ch <-chan broker.OrderEvent, match func(broker.OrderEvent) bool) (models.OrderStatus, error) {
	timer := time.NewTimer(o.ackTimeout)
	defer timer.Stop()

	for {
		select {
		case ev := <-ch:
			switch ev.Type {
			case broker.EventError:
				if broker.IsNonFatalCode(ev.Code) {
					o.log.Debug().Int("code", ev.Code).Str("msg", ev.Message).Msg("Ignoring informational gateway code")
					continue
				}
				return "", apperrors.NewBrokerError(ev.OrderID, ev.Code, ev.Message, nil)
			case broker.EventStatus:
				if match(ev) {
					return ev.Status, nil
				}
			}
		case <-timer.C:
			return "", apperrors.ErrTimeout
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// journalSubscription opens the tracker's event channel. It is taken out
// before submission so that transitions emitted while the placement settles
// cannot slip past the audit trail. Nil when no store is configured.
func (o *Orchestrator) journalSubscription(orderID int64) <-chan broker.OrderEvent {
	if o.store == nil {
		return nil
	}
	return o.gw.Subscribe(orderID)
}

// releaseSubscription drops a journal subscription that will not be tracked.
func (o *Orchestrator) releaseSubscription(orderID int64, ch <-chan broker.OrderEvent) {
	if ch != nil {
		o.gw.Unsubscribe(orderID, ch)
	}
}

// trackOrder follows an order's event stream in the background and journals
// status transitions until the order reaches a terminal state.
func (o *Orchestrator) trackOrder(orderID int64, ch <-chan broker.OrderEvent) {
	if ch == nil {
		return
	}
	o.trackers.Add(1)
	go func() {
		defer o.trackers.Done()
		defer o.gw.Unsubscribe(orderID, ch)
		for {
			select {
			case ev := <-ch:
				if ev.Type != broker.EventStatus {
					continue
				}
				ctx, cancel := context.WithTimeout(context.Background(), o.snapshotTimeout)
				err := o.store.UpdateOrderStatus(ctx, orderID, ev.Status, ev.FilledQty, ev.AvgFillPrice)
				cancel()
				if err != nil {
					o.log.Warn().Err(err).Int64("order_id", orderID).Msg("Failed to journal status transition")
				}
				if ev.Status.IsTerminal() {
					return
				}
			case <-o.done:
				return
			}
		}
	}()
}

func (o *Orchestrator) applyDefaults(req models.OrderRequest) models.OrderRequest {
	if req.TIF == "" {
		req.TIF = o.defaultTIF
	}
	if req.Strategy == "" {
		req.Strategy = o.strategy
	}
	if req.Type == "" {
		req.Type = models.OrderTypeMarket
	}
	// Standalone orders always transmit; only bracket legs, which carry a
	// parent id or an OCA group, are staged.
	if req.ParentID == 0 && req.OCAGroup == "" {
		req.Transmit = true
	}
	return req
}

func (o *Orchestrator) persist(ctx context.Context, order models.Order) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveOrder(ctx, order); err != nil {
		o.log.Warn().Err(err).Int64("order_id", order.OrderID).Msg("Failed to journal order")
	}
}

// orderFromRequest builds the engine's order record from a request.
func orderFromRequest(orderID int64, req models.OrderRequest) *models.Order {
	order := &models.Order{
		OrderID:  orderID,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Type:     req.Type,
		Quantity: req.Quantity,
		TIF:      req.TIF,
		Status:   models.StatusPendingSubmit,
		Strategy: req.Strategy,
		ParentID: req.ParentID,
		OCAGroup: req.OCAGroup,
		OCAType:  req.OCAType,
		Transmit: req.Transmit,
		PlacedAt: time.Now(),
	}
	if req.LimitPrice != nil {
		order.LimitPrice = *req.LimitPrice
	}
	if req.TriggerPrice != nil {
		order.TriggerPrice = *req.TriggerPrice
	}
	if req.TrailingPercent != nil {
		order.TrailingPercent = *req.TrailingPercent
	}
	order.UpdatedAt = order.PlacedAt
	return order
}

func findOrder(orders []models.Order, orderID int64) *models.Order {
	for i := range orders {
		if orders[i].OrderID == orderID {
			return &orders[i]
		}
	}
	return nil
}

func describeChange(field string, from, to interface{}) string {
	return fmt.Sprintf("%s: %v -> %v", field, from, to)
}
