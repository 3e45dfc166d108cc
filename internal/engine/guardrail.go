package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tws-bridge/internal/logging"
	"tws-bridge/internal/models"
)

// Guardrail rule names, surfaced in rejections and lock reasons.
const (
	RuleSessionLocked     = "session_locked"
	RuleDailyLossLimit    = "daily_loss_limit"
	RuleConsecutiveLosses = "consecutive_losses"
)

// RiskDecision is the outcome of a pre-trade check.
type RiskDecision struct {
	Allowed bool
	Rule    string
	Reason  string
}

// OrderIntent is the minimal description of a prospective order the guardrail
// evaluates. It exists so callers can ask before building a full request.
type OrderIntent struct {
	Symbol   string
	Side     models.OrderSide
	Quantity int
}

// SessionGuard tracks the trading session's realized P&L, trade counters and
// lock status, and gates every order placement. One guard exists per broker
// session; all read-modify-write goes through its mutex.
type SessionGuard struct {
	mu    sync.Mutex
	state models.SessionState
	log   zerolog.Logger
}

// NewSessionGuard creates a guard with the configured limits, unlocked and
// with zero counters.
func NewSessionGuard(maxDailyLoss float64, maxConsecutiveLosses int, log zerolog.Logger) *SessionGuard {
	return &SessionGuard{
		state: models.SessionState{
			MaxDailyLoss:         maxDailyLoss,
			MaxConsecutiveLosses: maxConsecutiveLosses,
			StartedAt:            time.Now(),
		},
		log: log,
	}
}

// CheckRisk evaluates whether a new order may be placed. It never mutates
// state: breaches lock the session in RecordTradeResult, not here.
func (g *SessionGuard) CheckRisk(intent OrderIntent) RiskDecision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.Locked {
		d := RiskDecision{
			Rule:   RuleSessionLocked,
			Reason: "session is locked: " + g.state.LockReason,
		}
		logging.LogRiskRejection(g.log, intent.Symbol, d.Rule, d.Reason)
		return d
	}

	if g.state.MaxDailyLoss > 0 && -g.state.RealizedPnL >= g.state.MaxDailyLoss {
		d := RiskDecision{
			Rule:   RuleDailyLossLimit,
			Reason: "daily loss limit reached",
		}
		logging.LogRiskRejection(g.log, intent.Symbol, d.Rule, d.Reason)
		return d
	}

	if g.state.MaxConsecutiveLosses > 0 && g.state.ConsecutiveLosses >= g.state.MaxConsecutiveLosses {
		d := RiskDecision{
			Rule:   RuleConsecutiveLosses,
			Reason: "consecutive loss limit reached",
		}
		logging.LogRiskRejection(g.log, intent.Symbol, d.Rule, d.Reason)
		return d
	}

	return RiskDecision{Allowed: true}
}

// RecordTradeResult folds a realized trade P&L into the session and
// auto-locks when a limit is breached. A non-loss resets the consecutive-loss
// counter.
func (g *SessionGuard) RecordTradeResult(realizedPnL float64) models.SessionState {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state.RealizedPnL += realizedPnL
	g.state.TradeCount++
	if realizedPnL < 0 {
		g.state.ConsecutiveLosses++
	} else {
		g.state.ConsecutiveLosses = 0
	}

	if !g.state.Locked {
		if g.state.MaxDailyLoss > 0 && -g.state.RealizedPnL >= g.state.MaxDailyLoss {
			g.lockLocked(RuleDailyLossLimit)
		} else if g.state.MaxConsecutiveLosses > 0 && g.state.ConsecutiveLosses >= g.state.MaxConsecutiveLosses {
			g.lockLocked(RuleConsecutiveLosses)
		}
	}

	logging.LogTradeResult(g.log, realizedPnL, g.state.RealizedPnL, g.state.ConsecutiveLosses)
	return g.state
}

// Lock manually locks the session.
func (g *SessionGuard) Lock(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lockLocked(reason)
}

func (g *SessionGuard) lockLocked(reason string) {
	g.state.Locked = true
	g.state.LockReason = reason
	g.log.Warn().Str("reason", reason).Msg("Session locked")
}

// Unlock manually unlocks the session, keeping counters intact.
func (g *SessionGuard) Unlock() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.Locked = false
	g.state.LockReason = ""
	g.log.Info().Msg("Session unlocked")
}

// Reset clears all counters and unlocks, for the start of a new trading day.
// Configured limits survive the reset.
func (g *SessionGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = models.SessionState{
		MaxDailyLoss:         g.state.MaxDailyLoss,
		MaxConsecutiveLosses: g.state.MaxConsecutiveLosses,
		StartedAt:            time.Now(),
	}
	g.log.Info().Msg("Session reset")
}

// Snapshot returns a copy of the current session state.
func (g *SessionGuard) Snapshot() models.SessionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
