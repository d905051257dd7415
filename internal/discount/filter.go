package discount

import (
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Field is the product attribute a predicate inspects.
type Field int

const (
	FieldUnknown Field = iota
	FieldTitle
	FieldType
	FieldVendor
	FieldTag
	FieldPrice
	FieldWeight
	FieldVariantTitle
)

// Operator is the comparison a predicate applies.
type Operator int

const (
	OperatorUnknown Operator = iota
	OperatorEqual
	OperatorNotEqual
	OperatorStartsWith
	OperatorEndsWith
	OperatorContains
	OperatorNotContains
	OperatorGreaterThan
	OperatorLessThan
)

// Predicate is a single condition of a custom buys filter.
type Predicate struct {
	Field    Field
	Operator Operator
	Value    string
}

var (
	gramsPerKilogram  = decimal.NewFromInt(1000)
	ouncesPerKilogram = decimal.RequireFromString("35.27396")
	poundsPerKilogram = decimal.RequireFromString("2.20462")
)

// Matches reports whether line satisfies predicates combined with logic. Lines whose
// variant belongs to gifts never match, whatever the predicates say.
//
// Tag predicates ignore their operator: under LogicAll every tag predicate resolves to
// "has all tag values", under LogicAny to "has any tag value".
func Matches(line CartLine, logic Logic, predicates []Predicate, gifts IDSet) bool {
	if gifts.Has(line.VariantID) {
		return false
	}
	tags := lo.FilterMap(predicates, func(p Predicate, _ int) (string, bool) {
		return p.Value, p.Field == FieldTag
	})
	tagMatch := false
	if len(tags) > 0 {
		if logic == LogicAny {
			tagMatch = line.Product.HasAnyTag(tags)
		} else {
			tagMatch = line.Product.HasAllTags(tags)
		}
	}

	for _, p := range predicates {
		var ok bool
		if p.Field == FieldTag {
			ok = tagMatch
		} else {
			ok = matchPredicate(line, p)
		}
		if logic == LogicAny && ok {
			return true
		}
		if logic != LogicAny && !ok {
			return false
		}
	}
	return logic != LogicAny
}

func matchPredicate(line CartLine, p Predicate) bool {
	switch p.Field {
	case FieldTitle:
		return compareStrings(line.Product.Title, p.Operator, p.Value)
	case FieldType:
		return compareStrings(line.Product.Type, p.Operator, p.Value)
	case FieldVendor:
		return compareStrings(line.Product.Vendor, p.Operator, p.Value)
	case FieldVariantTitle:
		return compareStrings(line.VariantTitle, p.Operator, p.Value)
	case FieldPrice:
		price, ok := unitPrice(line)
		if !ok {
			return false
		}
		return compareNumbers(price, p.Operator, p.Value)
	case FieldWeight:
		kg, ok := weightInKilograms(line.Weight, line.WeightUnit)
		if !ok {
			return false
		}
		return compareNumbers(kg, p.Operator, p.Value)
	default:
		return false
	}
}

func compareStrings(field string, op Operator, value string) bool {
	field = strings.ToLower(field)
	value = strings.ToLower(value)
	switch op {
	case OperatorEqual:
		return field == value
	case OperatorNotEqual:
		return field != value
	case OperatorStartsWith:
		return strings.HasPrefix(field, value)
	case OperatorEndsWith:
		return strings.HasSuffix(field, value)
	case OperatorContains:
		return strings.Contains(field, value)
	case OperatorNotContains:
		return !strings.Contains(field, value)
	case OperatorGreaterThan:
		return field > value
	case OperatorLessThan:
		return field < value
	default:
		return false
	}
}

// maxExponent bounds the scale of parsed numbers so comparisons stay cheap.
const maxExponent = 64

// ParseNumber parses a decimal literal, rejecting values whose exponent is out of range.
func ParseNumber(raw string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, false
	}
	if exp := d.Exponent(); exp > maxExponent || exp < -maxExponent {
		return decimal.Zero, false
	}
	return d, true
}

func compareNumbers(field decimal.Decimal, op Operator, raw string) bool {
	value, ok := ParseNumber(raw)
	if !ok {
		return false
	}
	switch op {
	case OperatorEqual:
		return field.Equal(value)
	case OperatorNotEqual:
		return !field.Equal(value)
	case OperatorGreaterThan:
		return field.GreaterThan(value)
	case OperatorLessThan:
		return field.LessThan(value)
	default:
		return false
	}
}

func unitPrice(line CartLine) (decimal.Decimal, bool) {
	if line.Quantity <= 0 {
		return decimal.Zero, false
	}
	return line.LineTotal.Div(decimal.NewFromInt(int64(line.Quantity))), true
}

func weightInKilograms(weight *decimal.Decimal, unit WeightUnit) (decimal.Decimal, bool) {
	if weight == nil {
		return decimal.Zero, false
	}
	switch WeightUnit(strings.ToUpper(strings.TrimSpace(string(unit)))) {
	case WeightKilograms:
		return *weight, true
	case WeightGrams:
		return weight.Div(gramsPerKilogram), true
	case WeightOunces:
		return weight.Div(ouncesPerKilogram), true
	case WeightPounds:
		return weight.Div(poundsPerKilogram), true
	default:
		return decimal.Zero, false
	}
}
