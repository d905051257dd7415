// Package function adapts the discount core to the checkout function document format.
package function

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/noah-isme/autogift/internal/discount"
)

// Handle names a discount function.
type Handle string

const (
	HandleAutoGift Handle = "auto-gift"
	HandleVolume   Handle = "volume-discount"
)

var (
	ErrUnknownHandle = errors.New("function: unknown handle")
	ErrInvalidInput  = errors.New("function: invalid input document")
)

// Handles lists every supported function in a stable order.
func Handles() []Handle {
	return []Handle{HandleAutoGift, HandleVolume}
}

// ParseHandle validates a handle name.
func ParseHandle(raw string) (Handle, error) {
	h := Handle(strings.ToLower(strings.TrimSpace(raw)))
	if !lo.Contains(Handles(), h) {
		return "", fmt.Errorf("%w: %q", ErrUnknownHandle, raw)
	}
	return h, nil
}

// ParseInput decodes a function input document. Only malformed JSON is an error: values
// of the wrong type are skipped, which leaves the affected parts of the cart inert.
func ParseInput(raw []byte) (Input, error) {
	if !json.Valid(raw) {
		return Input{}, fmt.Errorf("%w: malformed JSON", ErrInvalidInput)
	}
	var in Input
	if err := decodeLenient(raw, &in); err != nil {
		return Input{}, err
	}
	return in, nil
}

// ParseCart decodes a bare cart snapshot with the same tolerance as ParseInput.
func ParseCart(raw []byte) (Cart, error) {
	if !json.Valid(raw) {
		return Cart{}, fmt.Errorf("%w: malformed JSON", ErrInvalidInput)
	}
	var cart Cart
	if err := decodeLenient(raw, &cart); err != nil {
		return Cart{}, err
	}
	return cart, nil
}

func decodeLenient(raw []byte, dst any) error {
	err := json.Unmarshal(raw, dst)
	var typeErr *json.UnmarshalTypeError
	if err == nil || errors.As(err, &typeErr) {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

// Configuration returns the raw metafield value, or nil when the node carries none.
func (in Input) Configuration() []byte {
	if in.DiscountNode.Metafield == nil {
		return nil
	}
	return []byte(in.DiscountNode.Metafield.Value)
}

// CartLines converts the document lines into the evaluator's cart snapshot. Line ids are
// kept verbatim; variant, product and collection ids are normalised.
func (in Input) CartLines() []discount.CartLine {
	return lo.Map(in.Cart.Lines, func(line Line, _ int) discount.CartLine {
		return line.cartLine()
	})
}

func (l Line) cartLine() discount.CartLine {
	m := l.Merchandise
	out := discount.CartLine{
		ID:           l.ID,
		Quantity:     l.Quantity,
		LineTotal:    l.Cost.TotalAmount.Amount.Value,
		VariantTitle: m.Title,
		WeightUnit:   discount.WeightUnit(m.WeightUnit),
	}
	if m.Typename == "" || m.Typename == "ProductVariant" {
		out.VariantID = discount.NormalizeID(m.ID)
	}
	if m.Weight.Valid {
		w := m.Weight.Value
		out.Weight = &w
	}
	if p := m.Product; p != nil {
		tagged := lo.FilterMap(p.HasTags, func(t HasTag, _ int) (string, bool) {
			return t.Tag, t.HasTag
		})
		out.Product = discount.Product{
			ID:     discount.NormalizeID(p.ID),
			Title:  p.Title,
			Type:   p.ProductType,
			Vendor: p.Vendor,
			Tags:   lo.Uniq(append(append([]string{}, p.Tags...), tagged...)),
			InCollections: discount.NewIDSet(lo.FilterMap(p.InCollections, func(c CollectionFlag, _ int) (discount.ID, bool) {
				return discount.NormalizeID(c.CollectionID), c.IsMember
			})...),
		}
	}
	return out
}

// Evaluate decodes the node configuration for handle and evaluates it against the cart.
func Evaluate(handle Handle, in Input) (discount.Decision, error) {
	cart := in.CartLines()
	switch handle {
	case HandleAutoGift:
		return discount.Evaluate(discount.DecodeConfiguration(in.Configuration()), cart), nil
	case HandleVolume:
		return discount.EvaluateVolume(discount.DecodeVolumeConfiguration(in.Configuration()), cart), nil
	default:
		return discount.Decision{}, fmt.Errorf("%w: %q", ErrUnknownHandle, handle)
	}
}

// Run evaluates the document and renders the result document.
func Run(handle Handle, in Input) (Result, discount.Decision, error) {
	decision, err := Evaluate(handle, in)
	if err != nil {
		return Result{}, decision, err
	}
	return ResultFromDecision(decision), decision, nil
}

// RunJSON is Run over encoded documents.
func RunJSON(handle Handle, raw []byte) ([]byte, discount.Decision, error) {
	in, err := ParseInput(raw)
	if err != nil {
		return nil, discount.Decision{}, err
	}
	result, decision, err := Run(handle, in)
	if err != nil {
		return nil, decision, err
	}
	out, err := json.Marshal(result)
	if err != nil {
		return nil, decision, fmt.Errorf("encode result: %w", err)
	}
	return out, decision, nil
}

// EmptyResult is the result document for a decision that discounts nothing.
func EmptyResult() Result {
	return Result{DiscountApplicationStrategy: ApplicationStrategyFirst, Discounts: []Discount{}}
}

// ResultFromDecision renders a decision. Unapplied decisions render as EmptyResult.
func ResultFromDecision(d discount.Decision) Result {
	if !d.Applied() {
		return EmptyResult()
	}
	var value Value
	switch v := d.Value.(type) {
	case discount.Percentage:
		value.Percentage = &PercentageValue{Value: v.Value.String()}
	case discount.FixedAmountPerUnit:
		value.FixedAmount = &FixedAmountValue{Amount: v.Amount.String(), AppliesToEachItem: true}
	default:
		return EmptyResult()
	}
	targets := lo.Map(d.Targets, func(t discount.Target, _ int) Target {
		return Target{CartLine: CartLineTarget{ID: t.CartLineID}}
	})
	return Result{
		DiscountApplicationStrategy: ApplicationStrategyFirst,
		Discounts:                   []Discount{{Targets: targets, Value: value}},
	}
}
