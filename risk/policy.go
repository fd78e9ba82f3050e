package risk

import "fmt"

// Policy holds the sizing and exit parameters applied to every entry.
type Policy struct {
	Leverage      float64 // 20
	TakeProfitPct float64 // 0.0005
	StopLossPct   float64 // 0.0015
}

func (p Policy) Validate() error {
	if p.Leverage <= 0 {
		return fmt.Errorf("leverage must be > 0, got %v", p.Leverage)
	}
	if p.TakeProfitPct <= 0 || p.TakeProfitPct >= 1 {
		return fmt.Errorf("take profit pct must be in (0,1), got %v", p.TakeProfitPct)
	}
	if p.StopLossPct <= 0 || p.StopLossPct >= 1 {
		return fmt.Errorf("stop loss pct must be in (0,1), got %v", p.StopLossPct)
	}
	return nil
}
