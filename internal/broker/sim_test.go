package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tws-bridge/internal/models"
)

func connectedSim(t *testing.T) *SimGateway {
	t.Helper()
	gw := NewSimGateway(SimConfig{})
	require.NoError(t, gw.Connect(context.Background()))
	return gw
}

func collect(t *testing.T, ch <-chan OrderEvent, n int) []OrderEvent {
	t.Helper()
	events := make([]OrderEvent, 0, n)
	timeout := time.After(time.Second)
	for len(events) < n {
		select {
		case ev := <-ch:
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("got %d of %d events: %v", len(events), n, events)
		}
	}
	return events
}

func limitRequest(symbol string, transmit bool) models.OrderRequest {
	price := 100.0
	return models.OrderRequest{
		Symbol:     symbol,
		Side:       models.OrderSideBuy,
		Type:       models.OrderTypeLimit,
		Quantity:   10,
		LimitPrice: &price,
		Transmit:   transmit,
	}
}

func TestSimSubmitRequiresConnection(t *testing.T) {
	gw := NewSimGateway(SimConfig{})
	err := gw.SubmitOrder(context.Background(), 1, limitRequest("AAPL", true))
	assert.Error(t, err)
}

// An untransmitted order is staged: the gateway acknowledges receipt but the
// order does not enter the live status machine until a transmitting order
// activates the chain.
func TestSimStagingAndChainActivation(t *testing.T) {
	gw := connectedSim(t)

	ch1 := gw.Subscribe(1)
	defer gw.Unsubscribe(1, ch1)
	require.NoError(t, gw.SubmitOrder(context.Background(), 1, limitRequest("AAPL", false)))

	events := collect(t, ch1, 1)
	assert.Equal(t, models.StatusPendingSubmit, events[0].Status)

	// Still staged after the receipt ack.
	time.Sleep(10 * time.Millisecond)
	staged, ok := gw.Order(1)
	require.True(t, ok)
	assert.Equal(t, models.StatusPendingSubmit, staged.Status)

	// A transmitting order activates every staged order.
	require.NoError(t, gw.SubmitOrder(context.Background(), 2, limitRequest("AAPL", true)))

	events = collect(t, ch1, 2)
	assert.Equal(t, models.StatusPreSubmitted, events[0].Status)
	assert.Equal(t, models.StatusSubmitted, events[1].Status)

	active, _ := gw.Order(1)
	assert.Equal(t, models.StatusSubmitted, active.Status)
	active, _ = gw.Order(2)
	assert.Equal(t, models.StatusSubmitted, active.Status)
}

// A filled leg of an OCA group cancels its siblings.
func TestSimOCAFillCancelsSibling(t *testing.T) {
	gw := connectedSim(t)
	gw.FillMarketOrders = true
	gw.SetPrice("AAPL", 200)

	tp := limitRequest("AAPL", false)
	tp.Side = models.OrderSideSell
	tp.OCAGroup = "OCA-1"
	require.NoError(t, gw.SubmitOrder(context.Background(), 1, tp))

	sl := models.OrderRequest{
		Symbol:   "AAPL",
		Side:     models.OrderSideSell,
		Type:     models.OrderTypeMarket,
		Quantity: 10,
		OCAGroup: "OCA-1",
		Transmit: true,
	}
	require.NoError(t, gw.SubmitOrder(context.Background(), 2, sl))

	require.Eventually(t, func() bool {
		filled, _ := gw.Order(2)
		cancelled, _ := gw.Order(1)
		return filled.Status == models.StatusFilled && cancelled.Status == models.StatusCancelled
	}, time.Second, 5*time.Millisecond)

	filled, _ := gw.Order(2)
	assert.Equal(t, 10, filled.FilledQty)
	assert.InDelta(t, 200, filled.AvgFillPrice, 1e-9)

	open, err := gw.OpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

// Resubmitting under an existing id amends the resting order instead of
// creating a new one.
func TestSimAmendmentKeepsIdentity(t *testing.T) {
	gw := connectedSim(t)
	require.NoError(t, gw.SubmitOrder(context.Background(), 1, limitRequest("AAPL", true)))
	before, ok := gw.Order(1)
	require.True(t, ok)

	time.Sleep(10 * time.Millisecond)
	amended := limitRequest("AAPL", true)
	newPrice := 105.0
	amended.LimitPrice = &newPrice
	amended.Quantity = 20
	require.NoError(t, gw.SubmitOrder(context.Background(), 1, amended))

	after, ok := gw.Order(1)
	require.True(t, ok)
	assert.InDelta(t, 105, after.LimitPrice, 1e-9)
	assert.Equal(t, 20, after.Quantity)
	assert.Equal(t, before.PlacedAt, after.PlacedAt)

	open, err := gw.OpenOrders(context.Background())
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestSimCancel(t *testing.T) {
	gw := connectedSim(t)
	require.NoError(t, gw.SubmitOrder(context.Background(), 1, limitRequest("AAPL", true)))

	require.NoError(t, gw.CancelOrder(context.Background(), 1))
	cancelled, _ := gw.Order(1)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	// Cancelling a terminal or unknown order is an error.
	assert.Error(t, gw.CancelOrder(context.Background(), 1))
	assert.Error(t, gw.CancelOrder(context.Background(), 99))
}

func TestSimCancelAll(t *testing.T) {
	gw := connectedSim(t)
	require.NoError(t, gw.SubmitOrder(context.Background(), 1, limitRequest("AAPL", true)))
	require.NoError(t, gw.SubmitOrder(context.Background(), 2, limitRequest("MSFT", true)))

	require.NoError(t, gw.CancelAll(context.Background()))
	open, err := gw.OpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestSimNextValidIDAdvances(t *testing.T) {
	gw := connectedSim(t)
	id, err := gw.NextValidID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	require.NoError(t, gw.SubmitOrder(context.Background(), 5, limitRequest("AAPL", true)))
	id, err = gw.NextValidID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(6), id)
}

func TestNonFatalCodes(t *testing.T) {
	for _, code := range []int{399, 2104, 2106, 2107, 2108, 2109, 2158} {
		assert.True(t, IsNonFatalCode(code), "code %d", code)
	}
	assert.False(t, IsNonFatalCode(201))
	assert.False(t, IsNonFatalCode(0))

	info := OrderEvent{Type: EventError, Code: 2104}
	assert.False(t, info.IsFatal())
	rejected := OrderEvent{Type: EventError, Code: 201}
	assert.True(t, rejected.IsFatal())
	status := OrderEvent{Type: EventStatus, Status: models.StatusSubmitted}
	assert.False(t, status.IsFatal())
}
