// Package broker provides the gateway interface and implementations.
package broker

import (
	"context"

	"tws-bridge/internal/models"
)

// Gateway defines the broker session the engine drives. All mutating calls
// are asynchronous at the broker side: SubmitOrder returns once the request
// is written to the session, and the outcome arrives as OrderEvents on the
// subscription for that order id.
type Gateway interface {
	// Session
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool

	// NextValidID returns the first order identifier the session may use.
	// Subsequent ids are allocated locally by the engine.
	NextValidID(ctx context.Context) (int64, error)

	// Orders
	SubmitOrder(ctx context.Context, orderID int64, req models.OrderRequest) error
	CancelOrder(ctx context.Context, orderID int64) error
	CancelAll(ctx context.Context) error

	// OpenOrders returns a snapshot of all currently open orders with their
	// live status. This, not any local cache, is the source of truth for
	// modify and cancel decisions.
	OpenOrders(ctx context.Context) ([]models.Order, error)

	// Events
	Subscribe(orderID int64) <-chan OrderEvent
	Unsubscribe(orderID int64, ch <-chan OrderEvent)

	// Account
	AccountEquity(ctx context.Context) (float64, error)
	AvailableFunds(ctx context.Context) (float64, error)
}
