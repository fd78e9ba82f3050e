package risk

import (
	"fmt"
	"math"
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation
	Sizing     Result

	PlannedRisk float64
	PlannedRR   float64
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Reason joins the violation codes, or returns "" when allowed.
func (d Decision) Reason() string {
	if d.Allowed || len(d.Violations) == 0 {
		return ""
	}
	s := d.Violations[0].Code
	for _, v := range d.Violations[1:] {
		s += "," + v.Code
	}
	return s
}

// Evaluate sizes an entry and rejects it when the result cannot form a
// valid position.
func Evaluate(p Policy, in Inputs) Decision {
	d := Decision{Allowed: true}

	if !in.Direction.Valid() {
		d.add("BAD_DIRECTION", fmt.Sprintf("direction %q", in.Direction))
		return d
	}
	if in.EntryPrice <= 0 || math.IsNaN(in.EntryPrice) || math.IsInf(in.EntryPrice, 0) {
		d.add("BAD_ENTRY", fmt.Sprintf("entry price %v", in.EntryPrice))
		return d
	}
	if in.Balance <= 0 {
		d.add("NO_BALANCE", fmt.Sprintf("balance %.2f is not positive", in.Balance))
		return d
	}

	d.Sizing = Calculate(p, in)
	if d.Sizing.Quantity <= 0 {
		d.add("NO_QUANTITY", "quantity must be positive")
		return d
	}
	if d.Sizing.StopLoss <= 0 {
		d.add("BAD_STOP", fmt.Sprintf("stop loss %v", d.Sizing.StopLoss))
	}

	d.PlannedRisk = PlannedRisk(d.Sizing.Quantity, in.EntryPrice, d.Sizing.StopLoss)
	d.PlannedRR = RR(in.EntryPrice, d.Sizing.StopLoss, d.Sizing.TakeProfit)
	return d
}
