package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tws-bridge/internal/models"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleOrder(orderID int64, correlationID string) models.Order {
	now := time.Now().UTC().Truncate(time.Second)
	return models.Order{
		OrderID:       orderID,
		Symbol:        "AAPL",
		Side:          models.OrderSideBuy,
		Type:          models.OrderTypeLimit,
		Quantity:      100,
		LimitPrice:    185.50,
		TIF:           models.TIFDay,
		Status:        models.StatusSubmitted,
		CorrelationID: correlationID,
		Strategy:      "manual",
		PlacedAt:      now,
		UpdatedAt:     now,
	}
}

func TestSaveAndGetOrder(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	order := sampleOrder(1, "corr-1")
	require.NoError(t, store.SaveOrder(ctx, order))

	got, err := store.GetOrder(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, order.Symbol, got.Symbol)
	assert.Equal(t, order.Side, got.Side)
	assert.Equal(t, order.Type, got.Type)
	assert.Equal(t, order.Quantity, got.Quantity)
	assert.InDelta(t, order.LimitPrice, got.LimitPrice, 1e-9)
	assert.Equal(t, order.Status, got.Status)
	assert.Equal(t, order.CorrelationID, got.CorrelationID)

	_, err = store.GetOrder(ctx, 99)
	assert.Error(t, err)
}

func TestSaveOrderUpsert(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	order := sampleOrder(1, "corr-1")
	require.NoError(t, store.SaveOrder(ctx, order))

	order.LimitPrice = 186.25
	order.Status = models.StatusPreSubmitted
	require.NoError(t, store.SaveOrder(ctx, order))

	got, err := store.GetOrder(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 186.25, got.LimitPrice, 1e-9)
	assert.Equal(t, models.StatusPreSubmitted, got.Status)
}

func TestUpdateOrderStatus(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveOrder(ctx, sampleOrder(1, "corr-1")))
	require.NoError(t, store.UpdateOrderStatus(ctx, 1, models.StatusFilled, 100, 185.42))

	got, err := store.GetOrder(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, got.Status)
	assert.Equal(t, 100, got.FilledQty)
	assert.InDelta(t, 185.42, got.AvgFillPrice, 1e-9)

	// A transition for an order the journal never saw is an error, not a
	// silent insert.
	err = store.UpdateOrderStatus(ctx, 99, models.StatusFilled, 0, 0)
	assert.Error(t, err)
}

func TestOrdersByCorrelation(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		order := sampleOrder(id, "bracket-1")
		if id > 1 {
			order.ParentID = 1
			order.OCAGroup = "OCA-1"
			order.OCAType = models.OCACancelWithBlock
			order.Side = models.OrderSideSell
		}
		require.NoError(t, store.SaveOrder(ctx, order))
	}
	require.NoError(t, store.SaveOrder(ctx, sampleOrder(9, "other")))

	legs, err := store.OrdersByCorrelation(ctx, "bracket-1")
	require.NoError(t, err)
	require.Len(t, legs, 3)
	// Ordered by order id, entry first.
	assert.Equal(t, int64(1), legs[0].OrderID)
	assert.Equal(t, int64(1), legs[1].ParentID)
	assert.Equal(t, "OCA-1", legs[2].OCAGroup)
	assert.Equal(t, models.OCACancelWithBlock, legs[2].OCAType)
}

func TestLiveBracketCorrelations(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	live := sampleOrder(1, "live-bracket")
	require.NoError(t, store.SaveOrder(ctx, live))

	done := sampleOrder(2, "done-bracket")
	done.Status = models.StatusFilled
	require.NoError(t, store.SaveOrder(ctx, done))

	cancelled := sampleOrder(3, "cancelled-bracket")
	cancelled.Status = models.StatusCancelled
	require.NoError(t, store.SaveOrder(ctx, cancelled))

	// One terminal and one resting leg still counts as live.
	mixedA := sampleOrder(4, "mixed-bracket")
	mixedA.Status = models.StatusFilled
	require.NoError(t, store.SaveOrder(ctx, mixedA))
	mixedB := sampleOrder(5, "mixed-bracket")
	require.NoError(t, store.SaveOrder(ctx, mixedB))

	ids, err := store.LiveBracketCorrelations(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"live-bracket", "mixed-bracket"}, ids)
}
