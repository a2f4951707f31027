// Package reserve implements the Reserve Manager (spec.md §4.8): the final
// pre-execution gate, checking that the capital available after the
// proposed notional still clears the configured reserve floor.
package reserve

import (
	"spotengine/internal/domain"
	"spotengine/internal/money"
)

// Decision is the Reserve Manager's approve/reject outcome.
type Decision struct {
	Approved bool
	Reason   string
}

// Check enforces availableCapital = equity - sum(position notionals) >=
// proposedNotional + reserve.floor_pct * equity (spec.md §4.8).
func Check(cfg domain.ReserveConfig, equity money.Decimal, openNotional money.Decimal, proposedNotional money.Decimal) Decision {
	available := equity.Sub(openNotional)
	required := proposedNotional.Add(equity.Mul(money.FromFloat(cfg.FloorPct)))
	if available.LessThan(required) {
		return Decision{Approved: false, Reason: "insufficient capital above reserve floor"}
	}
	return Decision{Approved: true}
}
