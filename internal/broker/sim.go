package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tws-bridge/internal/models"
)

// SimGateway implements Gateway as an in-process broker simulation. It mirrors
// the session semantics the engine depends on: acknowledgements arrive
// asynchronously as events, untransmitted orders are staged until a
// transmitting order activates the chain, and a filled OCA leg cancels its
// siblings.
type SimGateway struct {
	mu        sync.RWMutex
	connected bool
	nextID    int64
	orders    map[int64]*models.Order
	subs      map[int64][]chan OrderEvent

	equity float64
	funds  float64

	// rejects maps symbols to a scripted fatal error, used to exercise the
	// engine's failure paths.
	rejects map[string]OrderEvent

	// rejectFrom, when nonzero, fails every submission with an order id at
	// or above it. Lets tests fail a specific bracket leg.
	rejectFrom  int64
	rejectEvent OrderEvent

	// FillMarketOrders makes market orders fill immediately on activation at
	// the price set via SetPrice.
	FillMarketOrders bool
	prices           map[string]float64

	// AckDelay is applied before each emitted event to keep acknowledgement
	// asynchronous with respect to SubmitOrder.
	AckDelay time.Duration
}

// SimConfig holds configuration for the simulated gateway.
type SimConfig struct {
	StartingEquity float64
	FirstOrderID   int64
}

// NewSimGateway creates a new simulated gateway.
func NewSimGateway(cfg SimConfig) *SimGateway {
	equity := cfg.StartingEquity
	if equity == 0 {
		equity = 100000
	}
	firstID := cfg.FirstOrderID
	if firstID == 0 {
		firstID = 1
	}
	return &SimGateway{
		nextID:   firstID,
		orders:   make(map[int64]*models.Order),
		subs:     make(map[int64][]chan OrderEvent),
		rejects:  make(map[string]OrderEvent),
		prices:   make(map[string]float64),
		equity:   equity,
		funds:    equity,
		AckDelay: time.Millisecond,
	}
}

// Connect marks the session as connected.
func (g *SimGateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = true
	return nil
}

// Disconnect marks the session as disconnected.
func (g *SimGateway) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = false
	return nil
}

// IsConnected reports the session state.
func (g *SimGateway) IsConnected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.connected
}

// NextValidID returns the next usable order identifier.
func (g *SimGateway) NextValidID(ctx context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nextID, nil
}

// SetPrice sets the simulated market price for a symbol.
func (g *SimGateway) SetPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[symbol] = price
}

// SetEquity sets account equity and available funds.
func (g *SimGateway) SetEquity(equity, funds float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.equity = equity
	g.funds = funds
}

// RejectFrom scripts a fatal error event for every submission with an order
// id at or above orderID.
func (g *SimGateway) RejectFrom(orderID int64, code int, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rejectFrom = orderID
	g.rejectEvent = OrderEvent{Type: EventError, Code: code, Message: message}
}

// RejectSymbol scripts a fatal error event for every submission of symbol.
func (g *SimGateway) RejectSymbol(symbol string, code int, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rejects[symbol] = OrderEvent{Type: EventError, Code: code, Message: message}
}

// SubmitOrder records the order and emits acknowledgement events. An order id
// already present amends the resting order in place, preserving its bracket
// linkage; the gateway re-acknowledges under the same id.
func (g *SimGateway) SubmitOrder(ctx context.Context, orderID int64, req models.OrderRequest) error {
	g.mu.Lock()
	if !g.connected {
		g.mu.Unlock()
		return fmt.Errorf("sim gateway: not connected")
	}

	if rej, ok := g.rejects[req.Symbol]; ok {
		g.mu.Unlock()
		rej.OrderID = orderID
		g.emitAfterDelay(rej)
		return nil
	}
	if g.rejectFrom > 0 && orderID >= g.rejectFrom {
		rej := g.rejectEvent
		g.mu.Unlock()
		rej.OrderID = orderID
		g.emitAfterDelay(rej)
		return nil
	}

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
	if prev, ok := g.orders[orderID]; ok {
		// Amendment: keep original placement time and fill progress.
		order.PlacedAt = prev.PlacedAt
		order.FilledQty = prev.FilledQty
		order.AvgFillPrice = prev.AvgFillPrice
		order.Status = prev.Status
	}
	order.UpdatedAt = time.Now()
	g.orders[orderID] = order

	if orderID >= g.nextID {
		g.nextID = orderID + 1
	}

	// Receipt acknowledgement always comes first, even for staged legs.
	events := []OrderEvent{statusEvent(order, models.StatusPendingSubmit)}

	if req.Transmit {
		// Transmit activates this order and every staged order of the chain.
		events = append(events, g.activateChainLocked(order)...)
	}
	g.mu.Unlock()

	g.emitAfterDelay(events...)
	return nil
}

// activateChainLocked moves the given order and all staged untransmitted
// orders to Submitted, filling market orders when configured. Caller holds mu.
func (g *SimGateway) activateChainLocked(trigger *models.Order) []OrderEvent {
	var events []OrderEvent
	activate := func(o *models.Order) {
		if o.Status != models.StatusPendingSubmit {
			return
		}
		o.Status = models.StatusPreSubmitted
		events = append(events, statusEvent(o, models.StatusPreSubmitted))
		o.Status = models.StatusSubmitted
		events = append(events, statusEvent(o, models.StatusSubmitted))

		if g.FillMarketOrders && o.Type == models.OrderTypeMarket {
			events = append(events, g.fillLocked(o)...)
		}
	}

	for _, o := range g.orders {
		if o.OrderID != trigger.OrderID && !o.Transmit {
			activate(o)
		}
	}
	activate(trigger)
	return events
}

// fillLocked marks an order filled and cancels its OCA siblings.
func (g *SimGateway) fillLocked(o *models.Order) []OrderEvent {
	o.Status = models.StatusFilled
	o.FilledQty = o.Quantity
	o.AvgFillPrice = g.prices[o.Symbol]
	events := []OrderEvent{statusEvent(o, models.StatusFilled)}

	if o.OCAGroup != "" {
		for _, sib := range g.orders {
			if sib.OrderID != o.OrderID && sib.OCAGroup == o.OCAGroup && !sib.Status.IsTerminal() {
				sib.Status = models.StatusCancelled
				events = append(events, statusEvent(sib, models.StatusCancelled))
			}
		}
	}
	return events
}

// CancelOrder cancels a resting order.
func (g *SimGateway) CancelOrder(ctx context.Context, orderID int64) error {
	g.mu.Lock()
	order, ok := g.orders[orderID]
	if !ok || order.Status.IsTerminal() {
		g.mu.Unlock()
		return fmt.Errorf("sim gateway: no open order %d", orderID)
	}
	order.Status = models.StatusCancelled
	ev := statusEvent(order, models.StatusCancelled)
	g.mu.Unlock()

	g.emitAfterDelay(ev)
	return nil
}

// CancelAll cancels every non-terminal order.
func (g *SimGateway) CancelAll(ctx context.Context) error {
	g.mu.Lock()
	var events []OrderEvent
	for _, o := range g.orders {
		if !o.Status.IsTerminal() {
			o.Status = models.StatusCancelled
			events = append(events, statusEvent(o, models.StatusCancelled))
		}
	}
	g.mu.Unlock()

	g.emitAfterDelay(events...)
	return nil
}

// OpenOrders returns a snapshot copy of all non-terminal orders.
func (g *SimGateway) OpenOrders(ctx context.Context) ([]models.Order, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var open []models.Order
	for _, o := range g.orders {
		if !o.Status.IsTerminal() {
			open = append(open, *o)
		}
	}
	return open, nil
}

// Subscribe registers a listener for events on one order id.
func (g *SimGateway) Subscribe(orderID int64) <-chan OrderEvent {
	ch := make(chan OrderEvent, 16)
	g.mu.Lock()
	g.subs[orderID] = append(g.subs[orderID], ch)
	g.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener. Pending events for it are dropped.
func (g *SimGateway) Unsubscribe(orderID int64, ch <-chan OrderEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	listeners := g.subs[orderID]
	for i, c := range listeners {
		if (<-chan OrderEvent)(c) == ch {
			g.subs[orderID] = append(listeners[:i], listeners[i+1:]...)
			break
		}
	}
	if len(g.subs[orderID]) == 0 {
		delete(g.subs, orderID)
	}
}

// AccountEquity returns simulated account equity.
func (g *SimGateway) AccountEquity(ctx context.Context) (float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.equity, nil
}

// AvailableFunds returns simulated available funds.
func (g *SimGateway) AvailableFunds(ctx context.Context) (float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.funds, nil
}

// Order returns a copy of the gateway's record for an id, for tests.
func (g *SimGateway) Order(orderID int64) (models.Order, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	o, ok := g.orders[orderID]
	if !ok {
		return models.Order{}, false
	}
	return *o, true
}

func (g *SimGateway) emitAfterDelay(events ...OrderEvent) {
	if len(events) == 0 {
		return
	}
	delay := g.AckDelay
	go func() {
		for _, ev := range events {
			if delay > 0 {
				time.Sleep(delay)
			}
			g.mu.RLock()
			listeners := append([]chan OrderEvent(nil), g.subs[ev.OrderID]...)
			g.mu.RUnlock()
			for _, ch := range listeners {
				select {
				case ch <- ev:
				default:
					// Listener stopped reading; it has already settled.
				}
			}
		}
	}()
}

func statusEvent(o *models.Order, status models.OrderStatus) OrderEvent {
	return OrderEvent{
		OrderID:      o.OrderID,
		Type:         EventStatus,
		Status:       status,
		FilledQty:    o.FilledQty,
		AvgFillPrice: o.AvgFillPrice,
	}
}
