package discount

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// VolumeConfiguration discounts every line bought in at least Quantity units.
type VolumeConfiguration struct {
	Quantity   int
	Percentage decimal.Decimal
}

// EvaluateVolume applies the volume rule to the cart.
func EvaluateVolume(cfg VolumeConfiguration, cart []CartLine) Decision {
	if cfg.Quantity <= 0 || !cfg.Percentage.IsPositive() {
		return NoDiscount(ReasonIncompleteConfiguration)
	}
	value, ok := ResolveValue(Percentage{Value: cfg.Percentage})
	if !ok {
		return NoDiscount(ReasonInvalidDiscountValue)
	}
	eligible := lo.Filter(cart, func(line CartLine, _ int) bool {
		return line.Quantity >= cfg.Quantity
	})
	if len(eligible) == 0 {
		return NoDiscount(ReasonNoMatchingTargets)
	}
	return Decision{
		Targets: lo.Map(eligible, func(line CartLine, _ int) Target {
			return Target{CartLineID: line.ID, VariantID: line.VariantID}
		}),
		Value:  value,
		Reason: ReasonApplied,
		Tier:   0,
	}
}
