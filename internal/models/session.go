package models

import "time"

// SessionState is a snapshot of the trading session's guardrail counters.
type SessionState struct {
	RealizedPnL          float64
	TradeCount           int
	ConsecutiveLosses    int
	Locked               bool
	LockReason           string
	MaxDailyLoss         float64
	MaxConsecutiveLosses int
	StartedAt            time.Time
}

// DailyLossRemaining returns how much further loss the session can absorb
// before the daily limit locks it.
func (s SessionState) DailyLossRemaining() float64 {
	remaining := s.MaxDailyLoss + s.RealizedPnL
	if remaining < 0 {
		return 0
	}
	return remaining
}
