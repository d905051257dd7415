// Package discounts manages stored discounts and evaluates them against carts.
package discounts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/autogift/internal/discount"
	"github.com/noah-isme/autogift/internal/function"
	"github.com/noah-isme/autogift/internal/obs"
	"github.com/noah-isme/autogift/internal/store"
)

// ReasonInactive is reported when a stored discount is evaluated outside its window.
const ReasonInactive discount.Reason = "inactive"

var (
	ErrNotFound             = errors.New("discounts: not found")
	ErrConflict             = errors.New("discounts: title already used")
	ErrInvalidConfiguration = errors.New("discounts: configuration must be a JSON object")
	ErrShopRequired         = errors.New("discounts: shop required")
	ErrInvalidWindow        = errors.New("discounts: endsAt must be after startsAt")
)

// Repository persists discount records.
type Repository interface {
	Create(ctx context.Context, d store.Discount) (store.Discount, error)
	Get(ctx context.Context, shop string, id uuid.UUID) (store.Discount, error)
	List(ctx context.Context, shop string, limit, offset int) ([]store.Discount, int, error)
	Update(ctx context.Context, d store.Discount) (store.Discount, error)
	Delete(ctx context.Context, shop string, id uuid.UUID) error
}

// Cache is the read-through cache in front of the repository.
type Cache interface {
	GetDiscount(ctx context.Context, shop string, id uuid.UUID) (store.Discount, bool, error)
	PutDiscount(ctx context.Context, d store.Discount) error
	EvictDiscount(ctx context.Context, shop string, id uuid.UUID) error
}

// Evaluation is the outcome of evaluating a stored discount.
type Evaluation struct {
	Discount store.Discount
	Status   store.Status
	Decision discount.Decision
	Result   function.Result
}

// Service coordinates the repository, the cache and the evaluator.
type Service struct {
	Repo   Repository
	Cache  Cache
	Now    func() time.Time
	Logger zerolog.Logger
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// ValidConfiguration reports whether raw is a JSON object.
func ValidConfiguration(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}

// maxOffset bounds list offsets; pages past it are empty.
const maxOffset = math.MaxInt32

func validWindow(d store.Discount) bool {
	return d.EndsAt == nil || d.EndsAt.After(d.StartsAt)
}

// Create stores a new discount for d.Shop. A zero StartsAt means now.
func (s *Service) Create(ctx context.Context, d store.Discount) (store.Discount, error) {
	if d.Shop == "" {
		return store.Discount{}, ErrShopRequired
	}
	if !ValidConfiguration(d.Configuration) {
		return store.Discount{}, ErrInvalidConfiguration
	}
	if d.StartsAt.IsZero() {
		d.StartsAt = s.now()
	}
	if !validWindow(d) {
		return store.Discount{}, ErrInvalidWindow
	}
	created, err := s.Repo.Create(ctx, d)
	if err != nil {
		return store.Discount{}, mapStoreError(err)
	}
	s.Logger.Info().Str("shop", created.Shop).Str("discount_id", created.ID.String()).Str("function", created.FunctionHandle).Msg("discount created")
	return created, nil
}

// Get loads a discount, preferring the cache. Cache failures fall back to the repository.
func (s *Service) Get(ctx context.Context, shop string, id uuid.UUID) (store.Discount, error) {
	if shop == "" {
		return store.Discount{}, ErrShopRequired
	}
	if s.Cache != nil {
		cached, ok, err := s.Cache.GetDiscount(ctx, shop, id)
		switch {
		case err != nil:
			obs.ObserveCache("error")
			s.Logger.Warn().Err(err).Str("discount_id", id.String()).Msg("discount cache read failed")
		case ok:
			obs.ObserveCache("hit")
			return cached, nil
		default:
			obs.ObserveCache("miss")
		}
	}
	d, err := s.Repo.Get(ctx, shop, id)
	if err != nil {
		return store.Discount{}, mapStoreError(err)
	}
	if s.Cache != nil {
		if err := s.Cache.PutDiscount(ctx, d); err != nil {
			s.Logger.Warn().Err(err).Str("discount_id", id.String()).Msg("discount cache write failed")
		}
	}
	return d, nil
}

// List returns one page of a shop's discounts and the total count.
func (s *Service) List(ctx context.Context, shop string, page, perPage int) ([]store.Discount, int, error) {
	if shop == "" {
		return nil, 0, ErrShopRequired
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	offset := maxOffset
	if page-1 <= maxOffset/perPage {
		offset = (page - 1) * perPage
	}
	items, total, err := s.Repo.List(ctx, shop, perPage, offset)
	if err != nil {
		return nil, 0, mapStoreError(err)
	}
	return items, total, nil
}

// Update replaces the mutable fields of an existing discount. A zero StartsAt keeps the
// stored one.
func (s *Service) Update(ctx context.Context, d store.Discount) (store.Discount, error) {
	if d.Shop == "" {
		return store.Discount{}, ErrShopRequired
	}
	if !ValidConfiguration(d.Configuration) {
		return store.Discount{}, ErrInvalidConfiguration
	}
	if d.StartsAt.IsZero() {
		existing, err := s.Repo.Get(ctx, d.Shop, d.ID)
		if err != nil {
			return store.Discount{}, mapStoreError(err)
		}
		d.StartsAt = existing.StartsAt
	}
	if !validWindow(d) {
		return store.Discount{}, ErrInvalidWindow
	}
	updated, err := s.Repo.Update(ctx, d)
	if err != nil {
		return store.Discount{}, mapStoreError(err)
	}
	s.evict(ctx, d.Shop, d.ID)
	return updated, nil
}

// Delete removes a discount.
func (s *Service) Delete(ctx context.Context, shop string, id uuid.UUID) error {
	if shop == "" {
		return ErrShopRequired
	}
	if err := s.Repo.Delete(ctx, shop, id); err != nil {
		return mapStoreError(err)
	}
	s.evict(ctx, shop, id)
	return nil
}

func (s *Service) evict(ctx context.Context, shop string, id uuid.UUID) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.EvictDiscount(ctx, shop, id); err != nil {
		s.Logger.Warn().Err(err).Str("discount_id", id.String()).Msg("discount cache evict failed")
	}
}

// Evaluate runs a stored discount against cart. A discount outside its window yields
// a decision with ReasonInactive rather than an error.
func (s *Service) Evaluate(ctx context.Context, shop string, id uuid.UUID, cart function.Cart) (Evaluation, error) {
	ctx, span := otel.Tracer("autogift/discounts").Start(ctx, "discounts.evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("discount.id", id.String()), attribute.Int("cart.lines", len(cart.Lines)))

	d, err := s.Get(ctx, shop, id)
	if err != nil {
		return Evaluation{}, err
	}
	handle, err := function.ParseHandle(d.FunctionHandle)
	if err != nil {
		return Evaluation{}, err
	}
	now := s.now()
	status := d.Status(now)
	if !d.ActiveAt(now) {
		decision := discount.NoDiscount(ReasonInactive)
		s.logDecision(handle, decision)
		return Evaluation{Discount: d, Status: status, Decision: decision, Result: function.EmptyResult()}, nil
	}

	in := function.Input{
		Cart:         cart,
		DiscountNode: function.DiscountNode{Metafield: &function.Metafield{Value: string(d.Configuration)}},
	}
	start := time.Now()
	result, decision, err := function.Run(handle, in)
	if err != nil {
		return Evaluation{}, err
	}
	obs.ObserveEvaluation(string(handle), string(decision.Reason), time.Since(start))
	span.SetAttributes(attribute.String("discount.reason", string(decision.Reason)))
	s.logDecision(handle, decision)
	return Evaluation{Discount: d, Status: status, Decision: decision, Result: result}, nil
}

// RunFunction evaluates a complete function input document without touching storage.
func (s *Service) RunFunction(handle function.Handle, raw []byte) ([]byte, discount.Decision, error) {
	start := time.Now()
	out, decision, err := function.RunJSON(handle, raw)
	if err != nil {
		return nil, decision, err
	}
	obs.ObserveEvaluation(string(handle), string(decision.Reason), time.Since(start))
	s.logDecision(handle, decision)
	return out, decision, nil
}

func (s *Service) logDecision(handle function.Handle, d discount.Decision) {
	s.Logger.Debug().
		Str("function", string(handle)).
		Str("reason", string(d.Reason)).
		Int("tier", d.Tier).
		Int("targets", len(d.Targets)).
		Msg("discount evaluated")
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, store.ErrShopMissing):
		return ErrShopRequired
	default:
		return err
	}
}
