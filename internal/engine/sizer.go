package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"tws-bridge/internal/config"
	"tws-bridge/internal/models"
)

// Relative gap between entry and stop above which the binding share count is
// halved before regime scaling.
const wideStopGapThreshold = 0.20

// AccountSource provides the account figures the sizer consults.
type AccountSource interface {
	AccountEquity(ctx context.Context) (float64, error)
	AvailableFunds(ctx context.Context) (float64, error)
}

// PositionSizer computes a recommended share count bounded by several
// independent constraints: dollars at risk, capital budget, margin and the
// configured per-position cap.
type PositionSizer struct {
	account AccountSource
	cfg     config.SizingConfig
	log     zerolog.Logger
}

// NewPositionSizer creates a position sizer.
func NewPositionSizer(account AccountSource, cfg config.SizingConfig, log zerolog.Logger) *PositionSizer {
	return &PositionSizer{account: account, cfg: cfg, log: log}
}

// Calculate computes the position size for the given entry and stop. Every
// intermediate candidate is reported so the recommendation can be audited.
func (s *PositionSizer) Calculate(ctx context.Context, req models.SizingRequest) (*models.PositionSizeResult, error) {
	if req.EntryPrice <= 0 {
		return nil, fmt.Errorf("entry price must be positive, got %.4f", req.EntryPrice)
	}
	if req.StopPrice < 0 {
		return nil, fmt.Errorf("stop price must not be negative, got %.4f", req.StopPrice)
	}

	if req.RiskAmount < 0 {
		return nil, fmt.Errorf("risk amount must not be negative, got %.2f", req.RiskAmount)
	}

	riskPercent := req.RiskPercent
	if req.RiskAmount == 0 && riskPercent == 0 {
		riskPercent = s.cfg.DefaultRiskPercent
	}
	if req.RiskAmount == 0 && (riskPercent <= 0 || riskPercent > 100) {
		return nil, fmt.Errorf("risk percent must be in (0,100], got %.2f", riskPercent)
	}
	capitalPercent := req.MaxCapitalPercent
	if capitalPercent == 0 {
		capitalPercent = s.cfg.MaxCapitalPercent
	}
	if capitalPercent <= 0 || capitalPercent > 100 {
		return nil, fmt.Errorf("capital percent must be in (0,100], got %.2f", capitalPercent)
	}

	equity, err := s.account.AccountEquity(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading account equity: %w", err)
	}
	funds, err := s.account.AvailableFunds(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading available funds: %w", err)
	}

	regime := req.Regime
	if regime == "" {
		regime = models.RegimeNormal
	}

	result := &models.PositionSizeResult{
		Symbol:       req.Symbol,
		EntryPrice:   req.EntryPrice,
		StopPrice:    req.StopPrice,
		Regime:       regime,
		RegimeScalar: regime.Scalar(),
	}

	result.RiskPerShare = math.Abs(req.EntryPrice - req.StopPrice)
	if result.RiskPerShare == 0 {
		result.Warnings = append(result.Warnings, "no risk buffer between entry and stop; cannot size position")
		return result, nil
	}

	riskDollars := req.RiskAmount
	if riskDollars == 0 {
		riskDollars = equity * riskPercent / 100
	}
	result.TotalRiskDollars = riskDollars

	result.SharesByRisk = int(math.Floor(riskDollars / result.RiskPerShare))
	result.SharesByCapital = int(math.Floor(equity * capitalPercent / 100 / req.EntryPrice))
	result.SharesByMargin = int(math.Floor(funds / (req.EntryPrice * s.cfg.MarginFactor)))
	result.SharesByConfig = int(math.Floor(equity * s.cfg.MaxPositionFraction / req.EntryPrice))

	// Binding constraint is the smallest candidate; on ties the earlier
	// computed one wins.
	binding := result.SharesByRisk
	result.BindingConstraint = "risk"
	for _, c := range []struct {
		name   string
		shares int
	}{
		{"capital", result.SharesByCapital},
		{"margin", result.SharesByMargin},
		{"config", result.SharesByConfig},
	} {
		if c.shares < binding {
			binding = c.shares
			result.BindingConstraint = c.name
		}
	}

	gap := result.RiskPerShare / req.EntryPrice
	if gap > wideStopGapThreshold {
		binding = binding / 2
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("stop is %.1f%% away from entry; halving position size", gap*100))
	}

	result.RecommendedShares = int(math.Floor(float64(binding) * regime.Scalar()))
	result.CapitalDeployed = float64(result.RecommendedShares) * req.EntryPrice
	if equity > 0 {
		result.PercentOfEquity = result.CapitalDeployed / equity * 100
	}

	if funds < req.EntryPrice {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("available funds %.2f cover less than one share at %.2f", funds, req.EntryPrice))
	}
	if result.RecommendedShares == 0 {
		result.Warnings = append(result.Warnings, "constraints leave no room for a position")
	}

	s.log.Debug().
		Str("symbol", req.Symbol).
		Int("shares", result.RecommendedShares).
		Str("binding", result.BindingConstraint).
		Str("regime", string(regime)).
		Msg("Position size computed")

	return result, nil
}
