package discount

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Location of the configuration blob on the discount node.
const (
	MetafieldNamespace = "$app:auto-gift"
	MetafieldKey       = "amount-configuration"
)

// DecodeConfiguration decodes a persisted configuration blob. Decoding never fails:
// anything it cannot interpret is left empty so that Evaluate returns NoDiscount.
func DecodeConfiguration(raw []byte) Configuration {
	fields := decodeObject(raw)
	if fields == nil {
		return Configuration{}
	}
	rule := decodeRule(fields["rule"])
	legacy := false
	if rule == RuleNone && decodeScalar(fields["triggerType"]) != "" {
		// first-generation blobs count matching lines and carry {value, gets} tiers
		rule = RuleUniqueCount
		legacy = true
	}
	return Configuration{
		Buys:       decodeBuys(fields["buys"], fields["inCollectionIds"], fields["inTags"]),
		Rule:       rule,
		Conditions: decodeTiers(fields["conditions"], rule, legacy),
	}
}

// DecodeVolumeConfiguration decodes a {quantity, percentage} blob.
func DecodeVolumeConfiguration(raw []byte) VolumeConfiguration {
	fields := decodeObject(raw)
	if fields == nil {
		return VolumeConfiguration{}
	}
	var cfg VolumeConfiguration
	if q, ok := coerceDecimal(fields["quantity"]); ok && q.IsPositive() {
		q = q.Ceil()
		if q.GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
			cfg.Quantity = math.MaxInt32
		} else {
			cfg.Quantity = int(q.IntPart())
		}
	}
	if p, ok := coerceDecimal(fields["percentage"]); ok {
		cfg.Percentage = p
	}
	return cfg
}

func decodeRule(raw json.RawMessage) Rule {
	switch strings.ToUpper(decodeScalar(raw)) {
	case "QUANTITY":
		return RuleQuantity
	case "UNIQUE", "UNIQUE_COUNT":
		return RuleUniqueCount
	case "AMOUNT":
		return RuleAmount
	default:
		return RuleNone
	}
}

func decodeBuys(raw, inCollections, inTags json.RawMessage) BuyScope {
	fields := decodeObject(raw)
	if fields == nil {
		return nil
	}
	value := fields["value"]
	switch strings.ToUpper(decodeScalar(fields["type"])) {
	case "ALL_PRODUCTS":
		return AllProducts{}
	case "PRODUCT", "PRODUCTS":
		return ProductList{VariantIDs: decodeVariantIDs(value)}
	case "COLLECTION", "COLLECTIONS":
		ids := decodeIDList(value)
		if len(ids) == 0 {
			ids = decodeIDList(inCollections)
		}
		return CollectionList{CollectionIDs: NewIDSet(ids...)}
	case "TAG", "TAGS":
		tags := decodeStringList(value)
		if len(tags) == 0 {
			tags = decodeStringList(inTags)
		}
		return TagList{Tags: tags}
	case "FILTER":
		return decodeFilter(value)
	default:
		return nil
	}
}

func decodeFilter(raw json.RawMessage) BuyScope {
	fields := decodeObject(raw)
	if fields == nil {
		return nil
	}
	logic := LogicAll
	if strings.EqualFold(decodeScalar(fields["filterType"]), "any_conditions") {
		logic = LogicAny
	}
	var predicates []Predicate
	for _, item := range decodeArrayOrObject(fields["conditions"]) {
		p := decodeObject(item)
		if p == nil {
			continue
		}
		predicates = append(predicates, Predicate{
			Field:    parseField(decodeScalar(p["condition"])),
			Operator: parseOperator(decodeScalar(p["operator"])),
			Value:    decodeScalar(p["value"]),
		})
	}
	return FilterScope{Logic: logic, Predicates: predicates}
}

func decodeTiers(raw json.RawMessage, rule Rule, legacy bool) []Tier {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	tiers := make([]Tier, 0, len(items))
	for _, item := range items {
		fields := decodeObject(item)
		if fields == nil {
			continue
		}
		tiers = append(tiers, decodeTier(fields, rule, legacy))
	}
	return tiers
}

func decodeTier(fields map[string]json.RawMessage, rule Rule, legacy bool) Tier {
	var tier Tier
	if legacy {
		if threshold, ok := coerceDecimal(fields["value"]); ok {
			tier.Threshold = &threshold
		}
		tier.GiftVariantIDs = NewIDSet(decodeIDList(fields["gets"])...)
		tier.Discount = Free{}
		return tier
	}

	key := "quantity"
	if rule == RuleAmount {
		key = "amount"
	}
	if threshold, ok := coerceDecimal(fields[key]); ok {
		tier.Threshold = &threshold
	}
	tier.GiftVariantIDs = decodeVariantIDs(fields["products"])

	switch strings.ToUpper(decodeScalar(fields["discounted"])) {
	case "", "FREE":
		tier.Discount = Free{}
	case "PERCENTAGE":
		if pct, ok := coerceDecimal(fields["discountedPercentage"]); ok {
			tier.Discount = Percentage{Value: pct}
		}
	case "FIXED_AMOUNT":
		if amount, ok := coerceDecimal(fields["discountedEachOff"]); ok {
			tier.Discount = FixedAmountPerUnit{Amount: amount}
		}
	}
	return tier
}

// decodeVariantIDs accepts [{productId, variants: [...]}] as well as a flat id list.
func decodeVariantIDs(raw json.RawMessage) IDSet {
	set := IDSet{}
	for _, item := range decodeArrayOrObject(raw) {
		if fields := decodeObject(item); fields != nil {
			for _, id := range decodeIDList(fields["variants"]) {
				set[id] = struct{}{}
			}
			continue
		}
		if id := decodeID(item); id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

func decodeIDList(raw json.RawMessage) []ID {
	return lo.Uniq(lo.FilterMap(decodeArrayOrObject(raw), func(item json.RawMessage, _ int) (ID, bool) {
		id := decodeID(item)
		return id, id != ""
	}))
}

func decodeID(raw json.RawMessage) ID {
	if fields := decodeObject(raw); fields != nil {
		for _, key := range []string{"id", "collectionId", "variantId", "productId"} {
			if v := decodeScalar(fields[key]); v != "" {
				return NormalizeID(v)
			}
		}
		return ""
	}
	return NormalizeID(decodeScalar(raw))
}

func decodeStringList(raw json.RawMessage) []string {
	return lo.Uniq(lo.FilterMap(decodeArrayOrObject(raw), func(item json.RawMessage, _ int) (string, bool) {
		v := decodeScalar(item)
		return v, v != ""
	}))
}

func parseField(raw string) Field {
	switch normalizeKey(raw) {
	case "title", "product_title":
		return FieldTitle
	case "type", "product_type":
		return FieldType
	case "vendor":
		return FieldVendor
	case "tag", "tags":
		return FieldTag
	case "price":
		return FieldPrice
	case "weight":
		return FieldWeight
	case "variant_title", "variant":
		return FieldVariantTitle
	default:
		return FieldUnknown
	}
}

func parseOperator(raw string) Operator {
	switch normalizeKey(raw) {
	case "equal", "equals", "is_equal_to":
		return OperatorEqual
	case "not_equal", "not_equals", "is_not_equal_to":
		return OperatorNotEqual
	case "starts_with":
		return OperatorStartsWith
	case "ends_with":
		return OperatorEndsWith
	case "contains":
		return OperatorContains
	case "not_contains", "does_not_contain":
		return OperatorNotContains
	case "greater_than":
		return OperatorGreaterThan
	case "less_than":
		return OperatorLessThan
	default:
		return OperatorUnknown
	}
}

func normalizeKey(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	return strings.ReplaceAll(key, " ", "_")
}

func coerceDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	s := decodeScalar(raw)
	if s == "" {
		return decimal.Zero, false
	}
	return ParseNumber(s)
}

// decodeScalar renders a JSON string or number as text. Objects, arrays, booleans and
// null yield "".
func decodeScalar(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '{', '[', 't', 'f', 'n':
		return ""
	default:
		return string(trimmed)
	}
}

func decodeObject(raw json.RawMessage) map[string]json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil
	}
	return fields
}

// decodeArrayOrObject returns the items of a JSON array, or the value itself when it is a
// lone object or scalar.
func decodeArrayOrObject(raw json.RawMessage) []json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] != '[' {
		return []json.RawMessage{trimmed}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil
	}
	return items
}
