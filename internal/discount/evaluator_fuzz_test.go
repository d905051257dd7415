package discount

import (
	"testing"

	"github.com/shopspring/decimal"
)

// FuzzEvaluate checks that decoding and evaluating arbitrary blobs never panics and that a
// decision which is not applied carries nothing.
func FuzzEvaluate(f *testing.F) {
	f.Add([]byte(`{"buys":{"type":"PRODUCT","value":[{"variants":[10]}]},"rule":"QUANTITY","conditions":[{"quantity":2,"products":[{"variants":[20]}]}]}`), 3)
	f.Add([]byte(`{"buys":{"type":"FILTER","value":{"filterType":"any_conditions","conditions":[{"condition":"weight","operator":"less_than","value":"x"}]}},"rule":"AMOUNT","conditions":[{"amount":"1e400"}]}`), 0)
	f.Add([]byte(`{"triggerType":"x","conditions":[{"value":-1,"gets":[null,{},[]]}]}`), -4)
	f.Add([]byte(`not json`), 1)

	f.Fuzz(func(t *testing.T, raw []byte, qty int) {
		cart := []CartLine{
			weighted(cartLine("a", "10", qty, "12.5"), "500", WeightGrams),
			{ID: "b", VariantID: "20", Quantity: 1, LineTotal: decimal.NewFromInt(7)},
			{ID: "c", Quantity: qty},
		}
		d := Evaluate(DecodeConfiguration(raw), cart)
		if !d.Applied() && (len(d.Targets) != 0 || d.Value != nil) {
			t.Fatalf("unapplied decision carries output: %+v", d)
		}
		for _, target := range d.Targets {
			if target.CartLineID == "" {
				t.Fatalf("target without line id: %+v", d)
			}
		}
		_ = EvaluateVolume(DecodeVolumeConfiguration(raw), cart)
	})
}

func FuzzMatches(f *testing.F) {
	f.Add("price", "greater_than", "10", "2", 3)
	f.Add("weight", "equal", "0", "0", 0)
	f.Add("tag", "contains", "", "", -1)

	f.Fuzz(func(t *testing.T, field, operator, value, weight string, qty int) {
		line := cartLine("a", "10", qty, "99.99")
		if w, err := decimal.NewFromString(weight); err == nil {
			line.Weight = &w
			line.WeightUnit = WeightOunces
		}
		p := Predicate{Field: parseField(field), Operator: parseOperator(operator), Value: value}
		_ = Matches(line, LogicAll, []Predicate{p}, nil)
		_ = Matches(line, LogicAny, []Predicate{p, p}, NewIDSet("11"))
	})
}
