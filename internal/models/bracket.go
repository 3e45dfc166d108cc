package models

// BracketRequest describes a simple bracket: an entry order plus fixed
// take-profit and stop-loss exit prices.
type BracketRequest struct {
	Symbol          string
	Side            OrderSide
	Quantity        int
	EntryType       OrderType // MKT or LMT
	EntryLimitPrice *float64  // required when EntryType is LMT
	TakeProfitPrice float64
	StopLossPrice   float64
	TIF             TimeInForce
	Strategy        string
}

// AdvancedBracketRequest extends BracketRequest with a configurable stop leg:
// plain stop, stop-limit, or a trailing stop by absolute amount or percent.
type AdvancedBracketRequest struct {
	Symbol          string
	Side            OrderSide
	Quantity        int
	EntryType       OrderType
	EntryLimitPrice *float64
	TakeProfitPrice float64

	StopType       OrderType // STP, STP LMT, TRAIL or TRAIL LIMIT
	StopPrice      *float64  // trigger for STP/STP LMT, trailing amount for TRAIL
	StopLimitPrice *float64  // required for STP LMT and TRAIL LIMIT
	TrailPercent   *float64  // alternative to StopPrice for TRAIL legs

	TIF      TimeInForce
	Strategy string
}

// BracketResult holds the three linked legs of a placed bracket. All legs
// share CorrelationID; the two exits share OCAGroup and carry the entry's
// order id as parent.
type BracketResult struct {
	CorrelationID string
	OCAGroup      string
	Entry         *Order
	TakeProfit    *Order
	StopLoss      *Order
}

// Legs returns the three legs in submission order.
func (r *BracketResult) Legs() []*Order {
	return []*Order{r.Entry, r.TakeProfit, r.StopLoss}
}
