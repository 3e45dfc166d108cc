package broker

import "tws-bridge/internal/models"

// OrderEventType distinguishes status updates from error events.
type OrderEventType string

const (
	EventStatus OrderEventType = "status"
	EventError  OrderEventType = "error"
)

// OrderEvent is an asynchronous gateway notification for one order.
type OrderEvent struct {
	OrderID      int64
	Type         OrderEventType
	Status       models.OrderStatus
	FilledQty    int
	AvgFillPrice float64
	Code         int
	Message      string
}

// Informational gateway codes that do not indicate a failed request. The
// gateway emits these on the error channel alongside real errors; they are
// filtered before reaching the engine's settlement logic.
var nonFatalCodes = map[int]bool{
	399:  true, // order message: warning only
	2104: true, // market data farm connection is OK
	2106: true, // historical data farm connection is OK
	2107: true, // historical data farm inactive
	2108: true, // market data farm inactive
	2109: true, // order event warning on attribute
	2158: true, // sec-def data farm connection is OK
}

// IsNonFatalCode reports whether a gateway error code is informational.
func IsNonFatalCode(code int) bool {
	return nonFatalCodes[code]
}

// IsFatal reports whether an error event should fail the pending request.
func (e OrderEvent) IsFatal() bool {
	return e.Type == EventError && !IsNonFatalCode(e.Code)
}
