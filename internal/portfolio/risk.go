package portfolio

import "cryptoengine/internal/fixedpoint"

// RiskLimits defines configurable risk management thresholds checked
// before a candidate order is routed to the active account (§4.7).
type RiskLimits struct {
	MaxPositionSize  fixedpoint.Value `json:"maxPositionSize"`  // max |qty| per symbol
	MaxDailyLoss     fixedpoint.Value `json:"maxDailyLoss"`     // max cumulative realized+unrealized loss
	MaxOpenPositions int              `json:"maxOpenPositions"` // max number of concurrent non-flat positions
	MaxExposure      fixedpoint.Value `json:"maxExposure"`      // max total |qty * lastPrice| across positions
}

// DefaultRiskLimits returns conservative default limits.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxPositionSize:  fixedpoint.FromInt(10),
		MaxDailyLoss:     fixedpoint.FromInt(5000),
		MaxOpenPositions: 5,
		MaxExposure:      fixedpoint.FromInt(100000),
	}
}

// RiskManager validates candidate orders against risk limits before they
// reach the executor.
type RiskManager struct {
	limits    RiskLimits
	portfolio *Portfolio
}

// NewRiskManager creates a RiskManager with the given limits and portfolio.
func NewRiskManager(limits RiskLimits, pf *Portfolio) *RiskManager {
	return &RiskManager{limits: limits, portfolio: pf}
}

// CanTrade checks whether a candidate order for (provider, symbol) at the
// given signed quantity (positive=buy, negative=sell) would violate any
// risk limit. Returns true if allowed, false with a reason if not.
func (rm *RiskManager) CanTrade(provider, symbol string, qty fixedpoint.Value) (bool, string) {
	positions := rm.portfolio.GetPositions()

	if _, exists := rm.portfolio.Position(provider, symbol); !exists {
		if len(positions) >= rm.limits.MaxOpenPositions {
			return false, "max open positions reached"
		}
	}

	if abs(qty).GreaterThan(rm.limits.MaxPositionSize) {
		return false, "position size exceeds limit"
	}

	totalLoss := rm.portfolio.TotalRealizedPnL().Add(rm.portfolio.TotalUnrealizedPnL())
	if totalLoss.IsNegative() && abs(totalLoss).GreaterThan(rm.limits.MaxDailyLoss) {
		return false, "max daily loss reached"
	}

	exposure := fixedpoint.Zero
	for _, p := range positions {
		exposure = exposure.Add(abs(p.Qty).Mul(p.LastPrice))
	}
	if exposure.Add(abs(qty)).GreaterThan(rm.limits.MaxExposure) {
		return false, "max total exposure reached"
	}

	return true, ""
}
