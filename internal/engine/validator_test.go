package engine

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"tws-bridge/internal/models"
)

func f(v float64) *float64 { return &v }

func validLimitRequest() models.OrderRequest {
	return models.OrderRequest{
		Symbol:     "AAPL",
		Side:       models.OrderSideBuy,
		Type:       models.OrderTypeLimit,
		Quantity:   100,
		LimitPrice: f(185.50),
		TIF:        models.TIFDay,
	}
}

func TestValidateOrder(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.OrderRequest)
		wantErr []string
	}{
		{
			name:   "valid limit order",
			mutate: func(r *models.OrderRequest) {},
		},
		{
			name: "market order needs no prices",
			mutate: func(r *models.OrderRequest) {
				r.Type = models.OrderTypeMarket
				r.LimitPrice = nil
			},
		},
		{
			name:    "limit without limit price",
			mutate:  func(r *models.OrderRequest) { r.LimitPrice = nil },
			wantErr: []string{"LMT orders require a limit price"},
		},
		{
			name: "stop without trigger price",
			mutate: func(r *models.OrderRequest) {
				r.Type = models.OrderTypeStop
				r.LimitPrice = nil
			},
			wantErr: []string{"STP orders require a trigger price"},
		},
		{
			name: "stop limit missing both prices",
			mutate: func(r *models.OrderRequest) {
				r.Type = models.OrderTypeStopLimit
				r.LimitPrice = nil
			},
			wantErr: []string{
				"STP LMT orders require a trigger price",
				"STP LMT orders require a limit price",
			},
		},
		{
			name: "trail with amount only is valid",
			mutate: func(r *models.OrderRequest) {
				r.Type = models.OrderTypeTrail
				r.LimitPrice = nil
				r.TriggerPrice = f(2.50)
			},
		},
		{
			name: "trail with percent only is valid",
			mutate: func(r *models.OrderRequest) {
				r.Type = models.OrderTypeTrail
				r.LimitPrice = nil
				r.TrailingPercent = f(1.5)
			},
		},
		{
			name: "trail with both amount and percent",
			mutate: func(r *models.OrderRequest) {
				r.Type = models.OrderTypeTrail
				r.LimitPrice = nil
				r.TriggerPrice = f(2.50)
				r.TrailingPercent = f(1.5)
			},
			wantErr: []string{"TRAIL orders accept a trailing amount or a trailing percent, not both"},
		},
		{
			name: "trail with neither amount nor percent",
			mutate: func(r *models.OrderRequest) {
				r.Type = models.OrderTypeTrail
				r.LimitPrice = nil
			},
			wantErr: []string{"TRAIL orders require a trailing amount or a trailing percent"},
		},
		{
			name: "trail limit without limit price",
			mutate: func(r *models.OrderRequest) {
				r.Type = models.OrderTypeTrailLimit
				r.LimitPrice = nil
				r.TrailingPercent = f(1.5)
			},
			wantErr: []string{"TRAIL LIMIT orders require a limit price"},
		},
		{
			name: "discretionary amount on a non-REL order",
			mutate: func(r *models.OrderRequest) {
				r.DiscretionaryAmount = f(0.05)
			},
			wantErr: []string{`discretionary amount is only valid for REL orders, not "LMT"`},
		},
		{
			name: "discretionary amount on REL is valid",
			mutate: func(r *models.OrderRequest) {
				r.Type = models.OrderTypeRelative
				r.LimitPrice = nil
				r.DiscretionaryAmount = f(0.05)
			},
		},
		{
			name:    "negative limit price",
			mutate:  func(r *models.OrderRequest) { r.LimitPrice = f(-1) },
			wantErr: []string{"limit price must not be negative, got -1.0000"},
		},
		{
			name:    "OCA type out of range",
			mutate:  func(r *models.OrderRequest) { r.OCAType = 4 },
			wantErr: []string{"OCA type must be 1 (cancel with block), 2 (reduce with block) or 3 (reduce non-block), got 4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validLimitRequest()
			tt.mutate(&req)

			result := ValidateOrder(req)
			if len(tt.wantErr) == 0 {
				assert.True(t, result.Valid, "errors: %v", result.Errors)
				assert.Empty(t, result.Errors)
				return
			}
			assert.False(t, result.Valid)
			for _, want := range tt.wantErr {
				assert.Contains(t, result.Errors, want)
			}
		})
	}
}

// An order type outside the known vocabulary is forwarded, not rejected: the
// gateway grows types faster than the bridge does.
func TestValidateOrderUnknownTypePassesWithNote(t *testing.T) {
	req := validLimitRequest()
	req.Type = "PEG MID"
	req.LimitPrice = nil

	result := ValidateOrder(req)
	assert.True(t, result.Valid, "errors: %v", result.Errors)
	assert.Len(t, result.Notes, 1)
	assert.Contains(t, result.Notes[0], "PEG MID")
}

// Property: validation reports every violated rule together rather than
// stopping at the first. A request with a broken symbol, side and quantity
// must list all three, no matter what order type it carries.
func TestProperty_ValidationReportsAllViolations(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	typeGen := gen.OneConstOf(
		models.OrderTypeMarket, models.OrderTypeLimit, models.OrderTypeStop,
		models.OrderTypeStopLimit, models.OrderTypeTrail, models.OrderTypeTrailLimit,
	)
	qtyGen := gen.IntRange(-100, 0)

	properties.Property("empty symbol, bad side and non-positive quantity all reported", prop.ForAll(
		func(orderType models.OrderType, qty int) bool {
			req := models.OrderRequest{
				Symbol:   "",
				Side:     "HOLD",
				Type:     orderType,
				Quantity: qty,
			}
			result := ValidateOrder(req)
			if result.Valid {
				return false
			}
			found := 0
			for _, e := range result.Errors {
				switch {
				case e == "symbol must not be empty":
					found++
				case e == `side must be BUY or SELL, got "HOLD"`:
					found++
				}
			}
			// Two universal rules plus at least one type-specific rule for
			// every generated type except MKT.
			if found != 2 {
				return false
			}
			return len(result.Errors) >= 3 || orderType == models.OrderTypeMarket
		},
		typeGen,
		qtyGen,
	))

	properties.Property("negative optional prices are always rejected", prop.ForAll(
		func(price float64) bool {
			req := validLimitRequest()
			req.LimitPrice = f(price)
			result := ValidateOrder(req)
			return result.Valid == (price >= 0)
		},
		gen.Float64Range(-1000, 1000),
	))

	properties.TestingRun(t)
}
