// Package models provides domain models for the execution bridge.
package models

import "time"

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Reverse returns the opposite side. Exit legs of a bracket always carry
// the reverse of the entry side.
func (s OrderSide) Reverse() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// IsValid reports whether the side is one of the two known values.
func (s OrderSide) IsValid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderType represents the type of an order, using the gateway's vocabulary.
// Types outside this list are forwarded to the gateway unchanged.
type OrderType string

const (
	OrderTypeMarket        OrderType = "MKT"
	OrderTypeLimit         OrderType = "LMT"
	OrderTypeStop          OrderType = "STP"
	OrderTypeStopLimit     OrderType = "STP LMT"
	OrderTypeTrail         OrderType = "TRAIL"
	OrderTypeTrailLimit    OrderType = "TRAIL LIMIT"
	OrderTypeRelative      OrderType = "REL"
	OrderTypeMarketOnClose OrderType = "MOC"
)

// IsKnown reports whether the order type has type-specific validation rules.
func (t OrderType) IsKnown() bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStop, OrderTypeStopLimit,
		OrderTypeTrail, OrderTypeTrailLimit, OrderTypeRelative, OrderTypeMarketOnClose:
		return true
	}
	return false
}

// TimeInForce represents order validity.
type TimeInForce string

const (
	TIFDay TimeInForce = "DAY"
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
)

// OCAType represents the gateway's mutual-exclusion policy for an OCA group.
type OCAType int

const (
	OCANone            OCAType = 0
	OCACancelWithBlock OCAType = 1
	OCAReduceWithBlock OCAType = 2
	OCAReduceNonBlock  OCAType = 3
)

// IsValid reports whether the OCA type is one of the gateway-defined values.
// Zero means no OCA group membership.
func (t OCAType) IsValid() bool {
	return t >= OCANone && t <= OCAReduceNonBlock
}

// OrderStatus represents the live status of an order at the gateway.
type OrderStatus string

const (
	StatusPendingSubmit OrderStatus = "PendingSubmit"
	StatusPreSubmitted  OrderStatus = "PreSubmitted"
	StatusSubmitted     OrderStatus = "Submitted"
	StatusFilled        OrderStatus = "Filled"
	StatusPendingCancel OrderStatus = "PendingCancel"
	StatusCancelled     OrderStatus = "Cancelled"
)

// IsModifiable reports whether an order in this status accepts amendments.
func (s OrderStatus) IsModifiable() bool {
	switch s {
	case StatusPendingSubmit, StatusPreSubmitted, StatusSubmitted:
		return true
	}
	return false
}

// IsTerminal reports whether the status is final.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled
}

// OrderRequest is the caller-supplied shape of a single order. Optional
// numeric fields are pointers so that "absent" is distinguishable from zero;
// which fields must be present depends on the order type.
type OrderRequest struct {
	Symbol              string
	Side                OrderSide
	Type                OrderType
	Quantity            int
	LimitPrice          *float64
	TriggerPrice        *float64
	TrailingPercent     *float64
	DiscretionaryAmount *float64 // REL orders only
	TIF                 TimeInForce
	OCAGroup            string
	OCAType             OCAType
	ParentID            int64
	Transmit            bool
	Strategy            string
}

// OrderChanges carries the fields of a modify request. Nil fields are left
// untouched on the resting order.
type OrderChanges struct {
	Quantity        *int
	LimitPrice      *float64
	TriggerPrice    *float64
	TrailingPercent *float64
	TIF             *TimeInForce
}

// IsEmpty reports whether no change was requested.
func (c OrderChanges) IsEmpty() bool {
	return c.Quantity == nil && c.LimitPrice == nil && c.TriggerPrice == nil &&
		c.TrailingPercent == nil && c.TIF == nil
}

// Order is the engine's record of an order. While the order is live it is
// owned by the orchestrator; the store keeps a passive copy for audit.
type Order struct {
	OrderID         int64
	Symbol          string
	Side            OrderSide
	Type            OrderType
	Quantity        int
	LimitPrice      float64
	TriggerPrice    float64
	TrailingPercent float64
	TIF             TimeInForce
	Status          OrderStatus
	FilledQty       int
	AvgFillPrice    float64
	CorrelationID   string
	Strategy        string
	ParentID        int64
	OCAGroup        string
	OCAType         OCAType
	Transmit        bool
	PlacedAt        time.Time
	UpdatedAt       time.Time
}
