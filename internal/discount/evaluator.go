package discount

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Evaluate maps a configuration and a cart snapshot to a decision. It never fails: every
// incomplete or malformed input degrades to a NoDiscount decision carrying the reason.
func Evaluate(cfg Configuration, cart []CartLine) Decision {
	if cfg.Buys == nil || cfg.Rule == RuleNone || len(cfg.Conditions) == 0 {
		return NoDiscount(ReasonIncompleteConfiguration)
	}
	gifts := GiftUniverse(cfg.Conditions)
	scope := SelectScope(cfg.Buys, cart, gifts)
	measurement, ok := Measure(cfg.Rule, scope)
	if !ok {
		return NoDiscount(ReasonIncompleteConfiguration)
	}

	idx, ok := SelectTier(cfg.Conditions, measurement)
	if !ok {
		d := NoDiscount(ReasonNoQualifyingTier)
		d.Measurement = measurement
		return d
	}
	tier := cfg.Conditions[idx]

	targets := SelectTargets(tier, cart)
	if len(targets) == 0 {
		d := NoDiscount(ReasonNoMatchingTargets)
		d.Tier = idx
		d.Measurement = measurement
		return d
	}

	value, ok := ResolveValue(tier.Discount)
	if !ok {
		d := NoDiscount(ReasonInvalidDiscountValue)
		d.Tier = idx
		d.Measurement = measurement
		return d
	}

	return Decision{
		Targets:     targets,
		Value:       value,
		Reason:      ReasonApplied,
		Tier:        idx,
		Measurement: measurement,
	}
}

// GiftUniverse is the union of every tier's gift variants.
func GiftUniverse(tiers []Tier) IDSet {
	gifts := IDSet{}
	for _, tier := range tiers {
		for id := range tier.GiftVariantIDs {
			gifts[id] = struct{}{}
		}
	}
	return gifts
}

// SelectScope returns, in cart order, the lines counting toward the measurement. Lines
// whose variant is in gifts are excluded for every scope kind.
func SelectScope(buys BuyScope, cart []CartLine, gifts IDSet) []CartLine {
	return lo.Filter(cart, func(line CartLine, _ int) bool {
		if gifts.Has(line.VariantID) {
			return false
		}
		switch scope := buys.(type) {
		case AllProducts:
			return true
		case ProductList:
			return scope.VariantIDs.Has(line.VariantID)
		case CollectionList:
			return line.Product.InCollections.Intersects(scope.CollectionIDs)
		case TagList:
			return line.Product.HasAnyTag(scope.Tags)
		case FilterScope:
			return Matches(line, scope.Logic, scope.Predicates, gifts)
		default:
			return false
		}
	})
}

// Measure reduces the scope subset to a single number according to rule. It reports false
// for an unrecognised rule.
func Measure(rule Rule, scope []CartLine) (decimal.Decimal, bool) {
	switch rule {
	case RuleQuantity:
		var total int64
		for _, line := range scope {
			if line.Quantity > 0 {
				total += int64(line.Quantity)
			}
		}
		return decimal.NewFromInt(total), true
	case RuleUniqueCount:
		return decimal.NewFromInt(int64(len(scope))), true
	case RuleAmount:
		total := decimal.Zero
		for _, line := range scope {
			total = total.Add(line.LineTotal)
		}
		return total, true
	default:
		return decimal.Zero, false
	}
}

// SelectTier returns the index of the tier with the greatest threshold not above
// measurement. Ties keep the earliest tier.
func SelectTier(tiers []Tier, measurement decimal.Decimal) (int, bool) {
	best := -1
	for i, tier := range tiers {
		if tier.Threshold == nil || tier.Threshold.GreaterThan(measurement) {
			continue
		}
		if best < 0 || tier.Threshold.GreaterThan(*tiers[best].Threshold) {
			best = i
		}
	}
	return best, best >= 0
}

// SelectTargets returns, in cart order, the lines holding one unit of a gift variant of tier.
func SelectTargets(tier Tier, cart []CartLine) []Target {
	eligible := lo.Filter(cart, func(line CartLine, _ int) bool {
		return line.Quantity == 1 && tier.GiftVariantIDs.Has(line.VariantID)
	})
	return lo.Map(eligible, func(line CartLine, _ int) Target {
		return Target{CartLineID: line.ID, VariantID: line.VariantID}
	})
}

// ResolveValue turns a configured value into the value applied to targets: Free becomes
// a 100% percentage. Out-of-range or missing values report false.
func ResolveValue(v DiscountValue) (DiscountValue, bool) {
	switch value := v.(type) {
	case Free:
		return Percentage{Value: hundred}, true
	case Percentage:
		if value.Value.IsNegative() || value.Value.GreaterThan(hundred) {
			return nil, false
		}
		return value, true
	case FixedAmountPerUnit:
		if value.Amount.IsNegative() {
			return nil, false
		}
		return value, true
	default:
		return nil, false
	}
}
