// Package store provides data persistence implementations.
package store

import (
	"context"

	"tws-bridge/internal/models"
)

// OrderStore records orders and their status transitions for audit. It is a
// passive record: modify and cancel decisions are always made against the
// gateway's live open-order snapshot, never against this store.
type OrderStore interface {
	SaveOrder(ctx context.Context, order models.Order) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus, filledQty int, avgFillPrice float64) error
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	OrdersByCorrelation(ctx context.Context, correlationID string) ([]models.Order, error)

	// LiveBracketCorrelations returns correlation ids that still have at
	// least one non-terminal leg.
	LiveBracketCorrelations(ctx context.Context) ([]string, error)

	Close() error
}
