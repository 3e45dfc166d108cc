// Package engine implements the order execution and risk-gated sizing core.
package engine

import (
	"fmt"

	"tws-bridge/internal/models"
)

// ValidationResult reports every rule an order request violates, plus notes
// that do not block submission.
type ValidationResult struct {
	Valid  bool
	Errors []string
	Notes  []string
}

// ValidateOrder checks an order request against its order type's structural
// requirements. All violated rules are reported together rather than
// short-circuiting on the first.
//
// Order types without known rules pass with a note: the gateway grows types
// faster than this bridge, and rejecting them here would be a false positive.
func ValidateOrder(req models.OrderRequest) ValidationResult {
	var errs []string
	var notes []string

	if req.Symbol == "" {
		errs = append(errs, "symbol must not be empty")
	}
	if !req.Side.IsValid() {
		errs = append(errs, fmt.Sprintf("side must be BUY or SELL, got %q", req.Side))
	}
	if req.Quantity <= 0 {
		errs = append(errs, fmt.Sprintf("quantity must be positive, got %d", req.Quantity))
	}

	errs = append(errs, negativeFieldErrors(req)...)

	switch req.Type {
	case models.OrderTypeLimit:
		if req.LimitPrice == nil {
			errs = append(errs, "LMT orders require a limit price")
		}
	case models.OrderTypeStop:
		if req.TriggerPrice == nil {
			errs = append(errs, "STP orders require a trigger price")
		}
	case models.OrderTypeStopLimit:
		if req.TriggerPrice == nil {
			errs = append(errs, "STP LMT orders require a trigger price")
		}
		if req.LimitPrice == nil {
			errs = append(errs, "STP LMT orders require a limit price")
		}
	case models.OrderTypeTrail:
		errs = append(errs, trailErrors(req, "TRAIL")...)
	case models.OrderTypeTrailLimit:
		errs = append(errs, trailErrors(req, "TRAIL LIMIT")...)
		if req.LimitPrice == nil {
			errs = append(errs, "TRAIL LIMIT orders require a limit price")
		}
	case models.OrderTypeMarket, models.OrderTypeRelative, models.OrderTypeMarketOnClose:
		// No required prices.
	default:
		notes = append(notes, fmt.Sprintf("order type %q has no structural rules here and is forwarded as-is", req.Type))
	}

	if req.DiscretionaryAmount != nil && req.Type != models.OrderTypeRelative {
		errs = append(errs, fmt.Sprintf("discretionary amount is only valid for REL orders, not %q", req.Type))
	}

	if !req.OCAType.IsValid() {
		errs = append(errs, fmt.Sprintf("OCA type must be 1 (cancel with block), 2 (reduce with block) or 3 (reduce non-block), got %d", req.OCAType))
	}

	return ValidationResult{
		Valid:  len(errs) == 0,
		Errors: errs,
		Notes:  notes,
	}
}

// trailErrors enforces that a trailing order carries exactly one of the
// trailing amount (carried in the trigger-price field) and trailing percent.
func trailErrors(req models.OrderRequest, typeName string) []string {
	hasAmount := req.TriggerPrice != nil
	hasPercent := req.TrailingPercent != nil
	switch {
	case hasAmount && hasPercent:
		return []string{fmt.Sprintf("%s orders accept a trailing amount or a trailing percent, not both", typeName)}
	case !hasAmount && !hasPercent:
		return []string{fmt.Sprintf("%s orders require a trailing amount or a trailing percent", typeName)}
	}
	return nil
}

func negativeFieldErrors(req models.OrderRequest) []string {
	var errs []string
	check := func(name string, v *float64) {
		if v != nil && *v < 0 {
			errs = append(errs, fmt.Sprintf("%s must not be negative, got %.4f", name, *v))
		}
	}
	check("limit price", req.LimitPrice)
	check("trigger price", req.TriggerPrice)
	check("trailing percent", req.TrailingPercent)
	check("discretionary amount", req.DiscretionaryAmount)
	return errs
}
