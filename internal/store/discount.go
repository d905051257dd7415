package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is derived from the active window of a discount.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusScheduled Status = "SCHEDULED"
	StatusExpired   Status = "EXPIRED"
)

// CombinesWith records which other discount classes may stack with a discount.
type CombinesWith struct {
	OrderDiscounts    bool `json:"orderDiscounts"`
	ProductDiscounts  bool `json:"productDiscounts"`
	ShippingDiscounts bool `json:"shippingDiscounts"`
}

// Discount is a persisted discount record. Configuration is stored verbatim and only
// interpreted at evaluation time.
type Discount struct {
	ID             uuid.UUID       `json:"id"`
	Shop           string          `json:"shop"`
	Title          string          `json:"title"`
	FunctionHandle string          `json:"functionHandle"`
	StartsAt       time.Time       `json:"startsAt"`
	EndsAt         *time.Time      `json:"endsAt,omitempty"`
	CombinesWith   CombinesWith    `json:"combinesWith"`
	Configuration  json.RawMessage `json:"configuration"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Status reports where now falls relative to the discount window. The window is
// [StartsAt, EndsAt).
func (d Discount) Status(now time.Time) Status {
	if now.Before(d.StartsAt) {
		return StatusScheduled
	}
	if d.EndsAt != nil && !now.Before(*d.EndsAt) {
		return StatusExpired
	}
	return StatusActive
}

// ActiveAt reports whether the discount applies at now.
func (d Discount) ActiveAt(now time.Time) bool {
	return d.Status(now) == StatusActive
}
