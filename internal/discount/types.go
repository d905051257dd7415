package discount

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ID identifies a product, variant or collection by the trailing segment of its global id,
// so "gid://shopify/ProductVariant/10", "10" and 10 all resolve to ID("10").
type ID string

// NormalizeID strips whitespace and any global-id prefix from raw.
func NormalizeID(raw string) ID {
	trimmed := strings.TrimSpace(raw)
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	return ID(trimmed)
}

// IDSet is an unordered set of ids.
type IDSet map[ID]struct{}

// NewIDSet builds a set from ids, skipping empty values.
func NewIDSet(ids ...ID) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

// Has reports whether id is a member of the set. A nil set has no members.
func (s IDSet) Has(id ID) bool {
	if len(s) == 0 || id == "" {
		return false
	}
	_, ok := s[id]
	return ok
}

// Intersects reports whether the two sets share at least one member.
func (s IDSet) Intersects(other IDSet) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for id := range small {
		if large.Has(id) {
			return true
		}
	}
	return false
}

// Logic selects how the predicates of a filter are combined.
type Logic int

const (
	// LogicAll requires every predicate to match.
	LogicAll Logic = iota
	// LogicAny requires at least one predicate to match.
	LogicAny
)

func (l Logic) String() string {
	if l == LogicAny {
		return "any_conditions"
	}
	return "all_conditions"
}

// Rule selects how the scope subset is reduced to a measurement.
type Rule int

const (
	// RuleNone marks an absent or unrecognised rule.
	RuleNone Rule = iota
	// RuleQuantity sums line quantities.
	RuleQuantity
	// RuleUniqueCount counts distinct lines.
	RuleUniqueCount
	// RuleAmount sums line totals.
	RuleAmount
)

func (r Rule) String() string {
	switch r {
	case RuleQuantity:
		return "QUANTITY"
	case RuleUniqueCount:
		return "UNIQUE"
	case RuleAmount:
		return "AMOUNT"
	default:
		return ""
	}
}

// BuyScope decides which cart lines count toward unlocking a tier.
// Implementations: AllProducts, ProductList, CollectionList, TagList, FilterScope.
type BuyScope interface {
	isBuyScope()
}

// AllProducts counts every line outside the gift universe.
type AllProducts struct{}

// ProductList counts lines whose variant is listed.
type ProductList struct {
	VariantIDs IDSet
}

// CollectionList counts lines whose product belongs to any listed collection.
type CollectionList struct {
	CollectionIDs IDSet
}

// TagList counts lines whose product carries any listed tag.
type TagList struct {
	Tags []string
}

// FilterScope counts lines accepted by the filter engine.
type FilterScope struct {
	Logic      Logic
	Predicates []Predicate
}

func (AllProducts) isBuyScope()    {}
func (ProductList) isBuyScope()    {}
func (CollectionList) isBuyScope() {}
func (TagList) isBuyScope()        {}
func (FilterScope) isBuyScope()    {}

// DiscountValue is the configured reward of a tier.
// Implementations: Free, Percentage, FixedAmountPerUnit.
type DiscountValue interface {
	isDiscountValue()
}

// Free gives the target away.
type Free struct{}

// Percentage takes Value percent (0-100) off each target.
type Percentage struct {
	Value decimal.Decimal
}

// FixedAmountPerUnit takes Amount off every unit of each target.
type FixedAmountPerUnit struct {
	Amount decimal.Decimal
}

func (Free) isDiscountValue()               {}
func (Percentage) isDiscountValue()         {}
func (FixedAmountPerUnit) isDiscountValue() {}

// Tier is one threshold/gift/value triple of a configuration.
type Tier struct {
	// Threshold is nil when the tier carries no usable threshold for the configured rule;
	// such a tier can never be selected.
	Threshold      *decimal.Decimal
	GiftVariantIDs IDSet
	// Discount is nil when the stored value could not be interpreted.
	Discount DiscountValue
}

// Configuration is the decoded form of a persisted discount blob.
type Configuration struct {
	Buys       BuyScope
	Rule       Rule
	Conditions []Tier
}

// WeightUnit is the unit a variant weight is expressed in.
type WeightUnit string

const (
	WeightGrams     WeightUnit = "GRAMS"
	WeightKilograms WeightUnit = "KILOGRAMS"
	WeightOunces    WeightUnit = "OUNCES"
	WeightPounds    WeightUnit = "POUNDS"
)

// Product carries the catalog attributes resolved for a cart line.
type Product struct {
	ID            ID
	Title         string
	Type          string
	Vendor        string
	Tags          []string
	InCollections IDSet
}

// HasTag reports whether the product carries tag, ignoring case.
func (p Product) HasTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return false
	}
	for _, t := range p.Tags {
		if strings.EqualFold(strings.TrimSpace(t), tag) {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the product carries at least one of tags.
func (p Product) HasAnyTag(tags []string) bool {
	for _, tag := range tags {
		if p.HasTag(tag) {
			return true
		}
	}
	return false
}

// HasAllTags reports whether the product carries every one of tags.
func (p Product) HasAllTags(tags []string) bool {
	for _, tag := range tags {
		if !p.HasTag(tag) {
			return false
		}
	}
	return true
}

// CartLine is a read-only snapshot of one line of the cart.
type CartLine struct {
	ID           string
	VariantID    ID
	Quantity     int
	LineTotal    decimal.Decimal
	Product      Product
	VariantTitle string
	Weight       *decimal.Decimal
	WeightUnit   WeightUnit
}

// Reason explains why a decision was reached.
type Reason string

const (
	ReasonApplied                 Reason = "applied"
	ReasonIncompleteConfiguration Reason = "incomplete_configuration"
	ReasonNoQualifyingTier        Reason = "no_qualifying_tier"
	ReasonNoMatchingTargets       Reason = "no_matching_targets"
	ReasonInvalidDiscountValue    Reason = "invalid_discount_value"
)

// Target references a cart line that receives the discount.
type Target struct {
	CartLineID string
	VariantID  ID
}

// Decision is the outcome of one evaluation. When Reason is not ReasonApplied the
// decision carries no targets and a nil Value.
type Decision struct {
	Targets []Target
	// Value is either Percentage or FixedAmountPerUnit once resolved.
	Value       DiscountValue
	Reason      Reason
	Tier        int
	Measurement decimal.Decimal
}

// NoDiscount builds an empty decision for the given reason.
func NoDiscount(reason Reason) Decision {
	return Decision{Reason: reason, Tier: -1}
}

// Applied reports whether the decision discounts at least one line.
func (d Decision) Applied() bool {
	return d.Reason == ReasonApplied && len(d.Targets) > 0 && d.Value != nil
}
