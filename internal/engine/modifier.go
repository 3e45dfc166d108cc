package engine

import (
	"context"
	"fmt"

	apperrors "tws-bridge/internal/errors"
	"tws-bridge/internal/logging"
	"tws-bridge/internal/models"
)

// ModifyResult reports the merged order after an amendment plus a
// human-readable list of which fields changed and to what value.
type ModifyResult struct {
	Order   models.Order
	Changes []string
}

// ModifyOrder amends a resting order in place. The gateway's current
// open-order set, not the local journal, decides whether the order exists and
// whether its status allows amendment. The resubmission starts from every
// field of the live order and overlays only the fields present in changes, so
// the parent id and OCA group that tie the order into its bracket survive
// untouched. Resubmitting under the same id makes the gateway treat it as an
// amendment rather than a new order.
func (o *Orchestrator) ModifyOrder(ctx context.Context, orderID int64, changes models.OrderChanges) (*ModifyResult, error) {
	if changes.IsEmpty() {
		return nil, apperrors.ErrNoChanges
	}
	if errs := validateChanges(changes); len(errs) > 0 {
		return nil, apperrors.NewValidationError(errs)
	}

	open, err := o.openOrderSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	live := findOrder(open, orderID)
	if live == nil {
		return nil, apperrors.Wrapf(apperrors.ErrOrderNotFound, "modify order %d", orderID)
	}
	if !live.Status.IsModifiable() {
		return nil, apperrors.NewStateConflictError(orderID, live.Status, "modify")
	}

	merged, changed := mergeChanges(*live, changes)
	if len(changed) == 0 {
		return nil, apperrors.ErrNoChanges
	}

	req := requestFromOrder(merged)
	status, err := o.submitAndAwait(ctx, orderID, req)
	if err != nil {
		return nil, apperrors.NewOrderError(orderID, live.Symbol, "modify", "amendment not acknowledged", err)
	}
	merged.Status = status

	o.persist(ctx, merged)
	log := logging.WithOrderID(o.log, orderID)
	log.Info().Strs("changes", changed).Msg("Order modified")

	return &ModifyResult{Order: merged, Changes: changed}, nil
}

// validateChanges rejects negative numeric changes and non-positive quantity.
func validateChanges(changes models.OrderChanges) []string {
	var errs []string
	if changes.Quantity != nil && *changes.Quantity <= 0 {
		errs = append(errs, fmt.Sprintf("quantity must be positive, got %d", *changes.Quantity))
	}
	check := func(name string, v *float64) {
		if v != nil && *v < 0 {
			errs = append(errs, fmt.Sprintf("%s must not be negative, got %.4f", name, *v))
		}
	}
	check("limit price", changes.LimitPrice)
	check("trigger price", changes.TriggerPrice)
	check("trailing percent", changes.TrailingPercent)
	if changes.TIF != nil && *changes.TIF == "" {
		errs = append(errs, "time-in-force must not be empty")
	}
	return errs
}

// mergeChanges overlays the provided fields onto the live order and returns
// the merged order with a description of each applied change. Fields absent
// from the request are never touched.
func mergeChanges(live models.Order, changes models.OrderChanges) (models.Order, []string) {
	merged := live
	var changed []string

	if changes.Quantity != nil && *changes.Quantity != live.Quantity {
		changed = append(changed, describeChange("quantity", live.Quantity, *changes.Quantity))
		merged.Quantity = *changes.Quantity
	}
	if changes.LimitPrice != nil && *changes.LimitPrice != live.LimitPrice {
		changed = append(changed, describeChange("lmtPrice", live.LimitPrice, *changes.LimitPrice))
		merged.LimitPrice = *changes.LimitPrice
	}
	if changes.TriggerPrice != nil && *changes.TriggerPrice != live.TriggerPrice {
		changed = append(changed, describeChange("auxPrice", live.TriggerPrice, *changes.TriggerPrice))
		merged.TriggerPrice = *changes.TriggerPrice
	}
	if changes.TrailingPercent != nil && *changes.TrailingPercent != live.TrailingPercent {
		changed = append(changed, describeChange("trailingPercent", live.TrailingPercent, *changes.TrailingPercent))
		merged.TrailingPercent = *changes.TrailingPercent
	}
	if changes.TIF != nil && *changes.TIF != live.TIF {
		changed = append(changed, describeChange("tif", live.TIF, *changes.TIF))
		merged.TIF = *changes.TIF
	}
	return merged, changed
}

// requestFromOrder rebuilds the full submission shape from an order record,
// for resubmission under the same id.
func requestFromOrder(o models.Order) models.OrderRequest {
	req := models.OrderRequest{
		Symbol:   o.Symbol,
		Side:     o.Side,
		Type:     o.Type,
		Quantity: o.Quantity,
		TIF:      o.TIF,
		OCAGroup: o.OCAGroup,
		OCAType:  o.OCAType,
		ParentID: o.ParentID,
		Transmit: true,
		Strategy: o.Strategy,
	}
	if o.LimitPrice != 0 {
		lp := o.LimitPrice
		req.LimitPrice = &lp
	}
	if o.TriggerPrice != 0 {
		tp := o.TriggerPrice
		req.TriggerPrice = &tp
	}
	if o.TrailingPercent != 0 {
		pct := o.TrailingPercent
		req.TrailingPercent = &pct
	}
	return req
}
