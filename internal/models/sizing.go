package models

// VolatilityRegime is a coarse volatility classification used to scale
// position size down under less favorable conditions.
type VolatilityRegime string

const (
	RegimeLow    VolatilityRegime = "low"
	RegimeNormal VolatilityRegime = "normal"
	RegimeHigh   VolatilityRegime = "high"
)

// Scalar returns the position-size multiplier for the regime.
func (r VolatilityRegime) Scalar() float64 {
	switch r {
	case RegimeLow:
		return 1.0
	case RegimeHigh:
		return 0.5
	default:
		return 0.75
	}
}

// SizingRequest carries the inputs of a position-size calculation. Exactly
// one of RiskPercent and RiskAmount should be set; RiskAmount wins when both
// are present.
type SizingRequest struct {
	Symbol            string
	EntryPrice        float64
	StopPrice         float64
	RiskPercent       float64 // percent of equity, (0,100]
	RiskAmount        float64 // explicit dollars at risk
	MaxCapitalPercent float64 // percent of equity deployable, (0,100]
	Regime            VolatilityRegime
}

// PositionSizeResult reports the recommended share count together with every
// intermediate candidate for auditability.
type PositionSizeResult struct {
	Symbol            string
	EntryPrice        float64
	StopPrice         float64
	RiskPerShare      float64
	TotalRiskDollars  float64
	SharesByRisk      int
	SharesByCapital   int
	SharesByMargin    int
	SharesByConfig    int
	BindingConstraint string
	Regime            VolatilityRegime
	RegimeScalar      float64
	RecommendedShares int
	CapitalDeployed   float64
	PercentOfEquity   float64
	Warnings          []string
}
