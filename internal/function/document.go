package function

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/autogift/internal/discount"
)

// Input is the function input document: the cart with resolved product attributes and
// the discount node carrying the configuration metafield.
type Input struct {
	Cart         Cart         `json:"cart"`
	DiscountNode DiscountNode `json:"discountNode"`
}

type Cart struct {
	Lines []Line `json:"lines"`
}

type Line struct {
	ID          string      `json:"id"`
	Quantity    int         `json:"quantity"`
	Cost        Cost        `json:"cost"`
	Merchandise Merchandise `json:"merchandise"`
}

// UnmarshalJSON accepts quantities as integers, integral decimals or numeric strings. A
// line whose fields cannot be read keeps what decoded but gets quantity 0, so it never
// counts toward a discount.
func (l *Line) UnmarshalJSON(b []byte) error {
	type plain Line
	var wire struct {
		plain
		Quantity Number `json:"quantity"`
	}
	err := json.Unmarshal(b, &wire)
	*l = Line(wire.plain)
	l.Quantity = 0
	if err != nil {
		return nil
	}
	if q := wire.Quantity; q.Valid && q.Value.IsInteger() && q.Value.Abs().LessThan(maxQuantity) {
		l.Quantity = int(q.Value.IntPart())
	}
	return nil
}

var maxQuantity = decimal.NewFromInt(1 << 30)

type Cost struct {
	TotalAmount Money `json:"totalAmount"`
}

type Money struct {
	Amount       Number `json:"amount"`
	CurrencyCode string `json:"currencyCode,omitempty"`
}

// Merchandise is a product variant; custom products carry only the typename.
type Merchandise struct {
	Typename   string   `json:"__typename"`
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Weight     Number   `json:"weight"`
	WeightUnit string   `json:"weightUnit"`
	Product    *Product `json:"product"`
}

type Product struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	ProductType   string           `json:"productType"`
	Vendor        string           `json:"vendor"`
	Tags          []string         `json:"tags"`
	HasTags       []HasTag         `json:"hasTags"`
	InCollections []CollectionFlag `json:"inCollections"`
}

// UnmarshalJSON reads tags given as a list or as a single string. Non-string entries are
// dropped.
func (p *Product) UnmarshalJSON(b []byte) error {
	type plain Product
	var wire struct {
		plain
		Tags json.RawMessage `json:"tags"`
	}
	_ = json.Unmarshal(b, &wire)
	*p = Product(wire.plain)
	p.Tags = decodeTags(wire.Tags)
	return nil
}

func decodeTags(raw json.RawMessage) []string {
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if one = strings.TrimSpace(one); one != "" {
			return []string{one}
		}
		return nil
	}
	var many []json.RawMessage
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil
	}
	tags := make([]string, 0, len(many))
	for _, item := range many {
		if err := json.Unmarshal(item, &one); err == nil {
			tags = append(tags, one)
		}
	}
	return tags
}

type HasTag struct {
	Tag    string `json:"tag"`
	HasTag bool   `json:"hasTag"`
}

type CollectionFlag struct {
	CollectionID string `json:"collectionId"`
	IsMember     bool   `json:"isMember"`
}

type DiscountNode struct {
	Metafield *Metafield `json:"metafield"`
}

type Metafield struct {
	Value string `json:"value"`
}

// UnmarshalJSON takes the value as a JSON string or, when the caller inlined the
// configuration, as raw JSON which is kept in compact form.
func (m *Metafield) UnmarshalJSON(b []byte) error {
	var wire struct {
		Value json.RawMessage `json:"value"`
	}
	*m = Metafield{}
	if err := json.Unmarshal(b, &wire); err != nil {
		return nil
	}
	raw := bytes.TrimSpace(wire.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		_ = json.Unmarshal(raw, &m.Value)
		return nil
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return nil
	}
	m.Value = compact.String()
	return nil
}

// ApplicationStrategyFirst applies the first discount of the result only.
const ApplicationStrategyFirst = "FIRST"

// Result is the function result document.
type Result struct {
	DiscountApplicationStrategy string     `json:"discountApplicationStrategy"`
	Discounts                   []Discount `json:"discounts"`
}

type Discount struct {
	Targets []Target `json:"targets"`
	Value   Value    `json:"value"`
	Message string   `json:"message,omitempty"`
}

type Target struct {
	CartLine CartLineTarget `json:"cartLine"`
}

type CartLineTarget struct {
	ID string `json:"id"`
}

// Value holds exactly one of Percentage or FixedAmount.
type Value struct {
	Percentage  *PercentageValue  `json:"percentage,omitempty"`
	FixedAmount *FixedAmountValue `json:"fixedAmount,omitempty"`
}

type PercentageValue struct {
	Value string `json:"value"`
}

type FixedAmountValue struct {
	Amount            string `json:"amount"`
	AppliesToEachItem bool   `json:"appliesToEachItem"`
}

// Number is a decimal read from a JSON number or numeric string. Values that are neither
// leave it invalid rather than failing the whole document.
type Number struct {
	Value decimal.Decimal
	Valid bool
}

func NewNumber(v decimal.Decimal) Number {
	return Number{Value: v, Valid: true}
}

func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}
	s := strings.TrimSpace(string(b))
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
	}
	n.Value, n.Valid = discount.ParseNumber(s)
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(n.Value.String())), nil
}
