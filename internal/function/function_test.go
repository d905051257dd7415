package function

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autogift/internal/discount"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return raw
}

func TestRunJSONAutoGift(t *testing.T) {
	out, decision, err := RunJSON(HandleAutoGift, loadFixture(t, "auto_gift_input.json"))
	require.NoError(t, err)
	require.True(t, decision.Applied())
	require.Equal(t, []discount.Target{{CartLineID: "gid://shopify/CartLine/3", VariantID: "20"}}, decision.Targets)
	require.JSONEq(t, string(loadFixture(t, "auto_gift_output.json")), string(out))
}

func TestCartLinesResolveAttributes(t *testing.T) {
	in, err := ParseInput(loadFixture(t, "auto_gift_input.json"))
	require.NoError(t, err)

	lines := in.CartLines()
	require.Len(t, lines, 3)
	first := lines[0]
	require.Equal(t, "gid://shopify/CartLine/1", first.ID)
	require.Equal(t, discount.ID("10"), first.VariantID)
	require.Equal(t, "25", first.LineTotal.String())
	require.Equal(t, discount.ID("1"), first.Product.ID)
	require.Equal(t, "Hydrogen", first.Product.Vendor)
	require.Equal(t, []string{"winter"}, first.Product.Tags)
	require.True(t, first.Product.InCollections.Has("7"))
	require.NotNil(t, first.Weight)
	require.Equal(t, "250", first.Weight.String())
	require.Equal(t, discount.WeightGrams, first.WeightUnit)

	require.Nil(t, lines[1].Weight)
	require.Empty(t, lines[1].Product.Tags)
}

func TestRunWithoutMetafieldIsEmpty(t *testing.T) {
	in := Input{Cart: Cart{Lines: []Line{{ID: "l1", Quantity: 4, Merchandise: Merchandise{ID: "gid://shopify/ProductVariant/1"}}}}}
	for _, handle := range Handles() {
		result, decision, err := Run(handle, in)
		require.NoError(t, err)
		require.Equal(t, discount.ReasonIncompleteConfiguration, decision.Reason)
		require.Equal(t, EmptyResult(), result)
	}
}

func TestRunVolumeDiscount(t *testing.T) {
	in := Input{
		Cart: Cart{Lines: []Line{
			{ID: "l1", Quantity: 1, Merchandise: Merchandise{ID: "gid://shopify/ProductVariant/1"}},
			{ID: "l2", Quantity: 5, Merchandise: Merchandise{ID: "gid://shopify/ProductVariant/2"}},
		}},
		DiscountNode: DiscountNode{Metafield: &Metafield{Value: `{"quantity": 3, "percentage": 15}`}},
	}
	result, _, err := Run(HandleVolume, in)
	require.NoError(t, err)
	require.Len(t, result.Discounts, 1)
	require.Equal(t, []Target{{CartLine: CartLineTarget{ID: "l2"}}}, result.Discounts[0].Targets)
	require.Equal(t, &PercentageValue{Value: "15"}, result.Discounts[0].Value.Percentage)
}

func TestResultFromDecisionFixedAmount(t *testing.T) {
	d := discount.Decision{
		Targets: []discount.Target{{CartLineID: "l1"}, {CartLineID: "l2"}},
		Value:   discount.FixedAmountPerUnit{Amount: decimal.RequireFromString("3.50")},
		Reason:  discount.ReasonApplied,
	}
	raw, err := json.Marshal(ResultFromDecision(d))
	require.NoError(t, err)
	require.JSONEq(t, `{
		"discountApplicationStrategy": "FIRST",
		"discounts": [{
			"targets": [{"cartLine": {"id": "l1"}}, {"cartLine": {"id": "l2"}}],
			"value": {"fixedAmount": {"amount": "3.5", "appliesToEachItem": true}}
		}]
	}`, string(raw))
}

func TestEmptyResultEncodesEmptyList(t *testing.T) {
	raw, err := json.Marshal(ResultFromDecision(discount.NoDiscount(discount.ReasonNoQualifyingTier)))
	require.NoError(t, err)
	require.JSONEq(t, `{"discountApplicationStrategy":"FIRST","discounts":[]}`, string(raw))
}

func TestMalformedNumbersDoNotFailTheDocument(t *testing.T) {
	in, err := ParseInput([]byte(`{"cart":{"lines":[{"id":"l1","quantity":1,
		"cost":{"totalAmount":{"amount":"n/a"}},
		"merchandise":{"id":"gid://shopify/ProductVariant/1","weight":{"value":1}}}]}}`))
	require.NoError(t, err)
	lines := in.CartLines()
	require.True(t, lines[0].LineTotal.IsZero())
	require.Nil(t, lines[0].Weight)
}

func TestCustomProductHasNoVariant(t *testing.T) {
	in, err := ParseInput([]byte(`{"cart":{"lines":[{"id":"l1","quantity":1,"merchandise":{"__typename":"CustomProduct","title":"Gift wrap"}}]}}`))
	require.NoError(t, err)
	require.Equal(t, discount.ID(""), in.CartLines()[0].VariantID)
}

func TestParseErrors(t *testing.T) {
	_, err := ParseInput([]byte(`{"cart":`))
	require.True(t, errors.Is(err, ErrInvalidInput))

	_, _, err = RunJSON("order-discount", []byte(`{}`))
	require.True(t, errors.Is(err, ErrUnknownHandle))

	h, err := ParseHandle(" Volume-Discount ")
	require.NoError(t, err)
	require.Equal(t, HandleVolume, h)

	_, err = ParseHandle("shipping")
	require.ErrorIs(t, err, ErrUnknownHandle)
}

func FuzzRunJSON(f *testing.F) {
	f.Add([]byte(`{"cart":{"lines":[{"id":"a","quantity":2,"merchandise":{"id":"1"}}]},"discountNode":{"metafield":{"value":"{\"quantity\":1,\"percentage\":5}"}}}`))
	f.Add([]byte(`{"cart":{"lines":null},"discountNode":{"metafield":null}}`))
	f.Fuzz(func(t *testing.T, raw []byte) {
		for _, h := range Handles() {
			out, _, err := RunJSON(h, raw)
			if err == nil && !json.Valid(out) {
				t.Fatalf("invalid output %s", out)
			}
		}
	})
}

func TestMistypedFieldsYieldEmptyResult(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"decimal quantity", `{"cart":{"lines":[{"id":"l1","quantity":1.0,"merchandise":{"id":"gid://shopify/ProductVariant/1"}}]}}`},
		{"string quantity", `{"cart":{"lines":[{"id":"l1","quantity":"1","merchandise":{"id":"gid://shopify/ProductVariant/1"}}]}}`},
		{"string tags", `{"cart":{"lines":[{"id":"l1","quantity":1,"merchandise":{"id":"gid://shopify/ProductVariant/1","product":{"id":"gid://shopify/Product/1","tags":"winter"}}}]}}`},
		{"object metafield", `{"cart":{"lines":[]},"discountNode":{"metafield":{"value":{"rule":"QUANTITY"}}}}`},
		{"numeric line id", `{"cart":{"lines":[{"id":5,"quantity":2}]}}`},
		{"cart is a string", `{"cart":"none"}`},
		{"document is a list", `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, handle := range Handles() {
				out, decision, err := RunJSON(handle, []byte(tt.doc))
				require.NoError(t, err)
				require.False(t, decision.Applied())
				require.JSONEq(t, `{"discountApplicationStrategy":"FIRST","discounts":[]}`, string(out))
			}
		})
	}
}

func TestLenientLineDecoding(t *testing.T) {
	in, err := ParseInput([]byte(`{"cart":{"lines":[
		{"id":"l1","quantity":2.0,"merchandise":{"id":"1","product":{"id":"9","tags":" winter "}}},
		{"id":"l2","quantity":"3","merchandise":{"id":"2","product":{"tags":["sale",7,"new"]}}},
		{"id":"l3","quantity":1.5},
		{"id":"l4","quantity":4,"merchandise":{"title":12}}
	]},"discountNode":{"metafield":{"value":{"quantity": 3, "percentage": 15}}}}`))
	require.NoError(t, err)

	lines := in.CartLines()
	require.Len(t, lines, 4)
	require.Equal(t, 2, lines[0].Quantity)
	require.Equal(t, []string{"winter"}, lines[0].Product.Tags)
	require.Equal(t, 3, lines[1].Quantity)
	require.Equal(t, []string{"sale", "new"}, lines[1].Product.Tags)
	require.Equal(t, 0, lines[2].Quantity)
	require.Equal(t, "l4", lines[3].ID)
	require.Equal(t, 0, lines[3].Quantity, "a line with unreadable fields is inert")
	require.JSONEq(t, `{"quantity":3,"percentage":15}`, string(in.Configuration()))

	result, _, err := Run(HandleVolume, in)
	require.NoError(t, err)
	require.Equal(t, []Target{{CartLine: CartLineTarget{ID: "l2"}}}, result.Discounts[0].Targets)
}
