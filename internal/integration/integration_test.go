// Package integration exercises the full execution path: configuration,
// sizing, risk gating, bracket placement, amendment and the audit journal
// working against the simulated gateway.
package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tws-bridge/internal/broker"
	"tws-bridge/internal/config"
	"tws-bridge/internal/engine"
	apperrors "tws-bridge/internal/errors"
	"tws-bridge/internal/models"
	"tws-bridge/internal/store"
)

type bridge struct {
	cfg          *config.Config
	gateway      *broker.SimGateway
	store        *store.SQLiteStore
	guard        *engine.SessionGuard
	sizer        *engine.PositionSizer
	orchestrator *engine.Orchestrator
}

func newBridge(t *testing.T) *bridge {
	t.Helper()

	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	gw := broker.NewSimGateway(broker.SimConfig{StartingEquity: cfg.Gateway.SimEquity})
	require.NoError(t, gw.Connect(context.Background()))

	orderStore, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { orderStore.Close() })

	guard := engine.NewSessionGuard(cfg.Risk.MaxDailyLoss, cfg.Risk.MaxConsecutiveLosses, zerolog.Nop())
	orchestrator := engine.NewOrchestrator(engine.OrchestratorConfig{
		Gateway:    gw,
		Guard:      guard,
		Store:      orderStore,
		Logger:     zerolog.Nop(),
		AckTimeout: 2 * time.Second,
		DefaultTIF: models.TimeInForce(cfg.Trading.DefaultTIF),
		Strategy:   cfg.Trading.Strategy,
	})
	t.Cleanup(orchestrator.Close)

	return &bridge{
		cfg:          cfg,
		gateway:      gw,
		store:        orderStore,
		guard:        guard,
		sizer:        engine.NewPositionSizer(gw, cfg.Sizing, zerolog.Nop()),
		orchestrator: orchestrator,
	}
}

// Size a position with the stock defaults, place it as a bracket, amend the
// take-profit, and confirm the journal tracks the whole lifecycle.
func TestSizedBracketLifecycle(t *testing.T) {
	b := newBridge(t)
	ctx := context.Background()

	// 100k equity with the defaults: 1% risk on a 5-point stop allows 200
	// shares, the 25% per-position cap allows only 125. The cap binds.
	size, err := b.sizer.Calculate(ctx, models.SizingRequest{
		Symbol:     "AAPL",
		EntryPrice: 200,
		StopPrice:  195,
		Regime:     models.RegimeLow,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, size.SharesByRisk)
	assert.Equal(t, "config", size.BindingConstraint)
	assert.Equal(t, 125, size.RecommendedShares)

	bracket, err := b.orchestrator.PlaceBracket(ctx, models.BracketRequest{
		Symbol:          "AAPL",
		Side:            models.OrderSideBuy,
		Quantity:        size.RecommendedShares,
		TakeProfitPrice: 210,
		StopLossPrice:   195,
	})
	require.NoError(t, err)

	// All three legs land in the journal under one correlation id.
	legs, err := b.store.OrdersByCorrelation(ctx, bracket.CorrelationID)
	require.NoError(t, err)
	require.Len(t, legs, 3)
	assert.Equal(t, bracket.Entry.OrderID, legs[0].OrderID)

	live, err := b.store.LiveBracketCorrelations(ctx)
	require.NoError(t, err)
	assert.Contains(t, live, bracket.CorrelationID)

	// Amend the take-profit; the bracket linkage survives at the gateway.
	modified, err := b.orchestrator.ModifyOrder(ctx, bracket.TakeProfit.OrderID, models.OrderChanges{
		LimitPrice: limitPtr(212),
	})
	require.NoError(t, err)
	assert.Equal(t, bracket.OCAGroup, modified.Order.OCAGroup)

	resting, ok := b.gateway.Order(bracket.TakeProfit.OrderID)
	require.True(t, ok)
	assert.InDelta(t, 212, resting.LimitPrice, 1e-9)
	assert.Equal(t, bracket.Entry.OrderID, resting.ParentID)

	// Cancel everything; the background trackers journal the transitions
	// until no bracket is live.
	require.NoError(t, b.orchestrator.CancelAll(ctx))
	require.Eventually(t, func() bool {
		open, err := b.orchestrator.OpenOrders(ctx)
		if err != nil || len(open) != 0 {
			return false
		}
		live, err := b.store.LiveBracketCorrelations(ctx)
		return err == nil && len(live) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

// Losses beyond the daily limit lock the session; the gate then blocks new
// placements until the session is reset for a new day.
func TestGuardrailLocksAndResets(t *testing.T) {
	b := newBridge(t)
	ctx := context.Background()

	req := models.OrderRequest{
		Symbol:   "AAPL",
		Side:     models.OrderSideBuy,
		Type:     models.OrderTypeMarket,
		Quantity: 10,
	}
	_, err := b.orchestrator.PlaceOrder(ctx, req)
	require.NoError(t, err)

	b.guard.RecordTradeResult(-b.cfg.Risk.MaxDailyLoss)
	require.True(t, b.guard.Snapshot().Locked)

	_, err = b.orchestrator.PlaceOrder(ctx, req)
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryRiskGate, apperrors.Category(err))

	b.guard.Reset()
	_, err = b.orchestrator.PlaceOrder(ctx, req)
	assert.NoError(t, err)
}

// A market entry fills on chain activation and the fill makes it into the
// journal through the background tracker.
func TestMarketEntryFillReachesJournal(t *testing.T) {
	b := newBridge(t)
	b.gateway.FillMarketOrders = true
	b.gateway.SetPrice("AAPL", 200)
	ctx := context.Background()

	bracket, err := b.orchestrator.PlaceBracket(ctx, models.BracketRequest{
		Symbol:          "AAPL",
		Side:            models.OrderSideBuy,
		Quantity:        50,
		TakeProfitPrice: 210,
		StopLossPrice:   195,
	})
	require.NoError(t, err)

	var entry *models.Order
	require.Eventually(t, func() bool {
		entry, err = b.store.GetOrder(ctx, bracket.Entry.OrderID)
		return err == nil && entry.Status == models.StatusFilled
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 50, entry.FilledQty)
	assert.InDelta(t, 200, entry.AvgFillPrice, 1e-9)

	// The exits stay working after the entry fill.
	open, err := b.orchestrator.OpenOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func limitPtr(v float64) *float64 { return &v }
