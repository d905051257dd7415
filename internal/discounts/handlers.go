package discounts

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autogift/internal/common"
	"github.com/noah-isme/autogift/internal/discount"
	"github.com/noah-isme/autogift/internal/function"
	"github.com/noah-isme/autogift/internal/store"
	"github.com/noah-isme/autogift/internal/tenant"
)

// Handler exposes discount administration, evaluation and function runs over HTTP.
type Handler struct {
	Service        *Service
	Validate       *validator.Validate
	Logger         zerolog.Logger
	DefaultPerPage int
	MaxPerPage     int
}

// NewValidator returns a validator that reports json field names and understands the
// json_object tag.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("json_object", func(fl validator.FieldLevel) bool {
		raw, ok := fl.Field().Interface().(json.RawMessage)
		return ok && ValidConfiguration(raw)
	})
	return v
}

type discountPayload struct {
	Title          string             `json:"title" validate:"required,max=255"`
	FunctionHandle string             `json:"functionHandle" validate:"required,oneof=auto-gift volume-discount"`
	StartsAt       *time.Time         `json:"startsAt"`
	EndsAt         *time.Time         `json:"endsAt"`
	CombinesWith   store.CombinesWith `json:"combinesWith"`
	Configuration  json.RawMessage    `json:"configuration" validate:"required,json_object"`
}

type metafieldRef struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
}

type discountView struct {
	store.Discount
	Status    store.Status `json:"status"`
	Metafield metafieldRef `json:"metafield"`
}

type targetView struct {
	CartLineID string `json:"cartLineId"`
	VariantID  string `json:"variantId,omitempty"`
}

type decisionView struct {
	DiscountID  uuid.UUID       `json:"discountId"`
	Function    string          `json:"function"`
	Status      store.Status    `json:"status"`
	Applied     bool            `json:"applied"`
	Reason      discount.Reason `json:"reason"`
	Tier        int             `json:"tier"`
	Measurement string          `json:"measurement"`
	Targets     []targetView    `json:"targets"`
	Result      function.Result `json:"result"`
}

// AdminRoutes registers the discount administration endpoints on r.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// Create stores a discount for the request shop.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	shop, ok := h.shop(w, r)
	if !ok {
		return
	}
	d, ok := h.decodeDiscount(w, r)
	if !ok {
		return
	}
	d.Shop = shop
	created, err := h.Service.Create(r.Context(), d)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": h.view(created)})
}

// List returns a page of the shop's discounts.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	shop, ok := h.shop(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, h.defaultPerPage())
	if h.MaxPerPage > 0 && perPage > h.MaxPerPage {
		perPage = h.MaxPerPage
	}
	items, total, err := h.Service.List(r.Context(), shop, page, perPage)
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]discountView, 0, len(items))
	for _, d := range items {
		views = append(views, h.view(d))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       views,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

// Get returns one discount.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	shop, ok := h.shop(w, r)
	if !ok {
		return
	}
	id, ok := discountID(w, r)
	if !ok {
		return
	}
	d, err := h.Service.Get(r.Context(), shop, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.view(d)})
}

// Update replaces a discount.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	shop, ok := h.shop(w, r)
	if !ok {
		return
	}
	id, ok := discountID(w, r)
	if !ok {
		return
	}
	d, ok := h.decodeDiscount(w, r)
	if !ok {
		return
	}
	d.ID = id
	d.Shop = shop
	updated, err := h.Service.Update(r.Context(), d)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.view(updated)})
}

// Delete removes a discount.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	shop, ok := h.shop(w, r)
	if !ok {
		return
	}
	id, ok := discountID(w, r)
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), shop, id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Evaluate runs a stored discount against the cart snapshot in the body.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	shop, ok := h.shop(w, r)
	if !ok {
		return
	}
	id, ok := discountID(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unable to read body", nil)
		return
	}
	cart, err := function.ParseCart(raw)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart payload", nil)
		return
	}
	eval, err := h.Service.Evaluate(r.Context(), shop, id, cart)
	if err != nil {
		h.writeError(w, err)
		return
	}
	targets := make([]targetView, 0, len(eval.Decision.Targets))
	for _, t := range eval.Decision.Targets {
		targets = append(targets, targetView{CartLineID: t.CartLineID, VariantID: string(t.VariantID)})
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": decisionView{
		DiscountID:  eval.Discount.ID,
		Function:    eval.Discount.FunctionHandle,
		Status:      eval.Status,
		Applied:     eval.Decision.Applied(),
		Reason:      eval.Decision.Reason,
		Tier:        eval.Decision.Tier,
		Measurement: eval.Decision.Measurement.String(),
		Targets:     targets,
		Result:      eval.Result,
	}})
}

// RunFunction evaluates a function input document and writes the result document.
func (h *Handler) RunFunction(w http.ResponseWriter, r *http.Request) {
	handle, err := function.ParseHandle(chi.URLParam(r, "handle"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "UNKNOWN_FUNCTION", "unknown function handle", nil)
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unable to read body", nil)
		return
	}
	out, _, err := h.Service.RunFunction(handle, raw)
	if err != nil {
		if errors.Is(err, function.ErrInvalidInput) {
			common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "input is not a valid function document", nil)
			return
		}
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (h *Handler) decodeDiscount(w http.ResponseWriter, r *http.Request) (store.Discount, bool) {
	var payload discountPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return store.Discount{}, false
	}
	payload.Title = strings.TrimSpace(payload.Title)
	payload.FunctionHandle = strings.ToLower(strings.TrimSpace(payload.FunctionHandle))
	if err := h.validator().Struct(payload); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid discount", validationDetails(err))
		return store.Discount{}, false
	}
	// A zero StartsAt is filled in by the service: now on create, the stored value on update.
	var startsAt time.Time
	if payload.StartsAt != nil {
		startsAt = payload.StartsAt.UTC()
	}
	var endsAt *time.Time
	if payload.EndsAt != nil {
		end := payload.EndsAt.UTC()
		endsAt = &end
	}
	return store.Discount{
		Title:          payload.Title,
		FunctionHandle: payload.FunctionHandle,
		StartsAt:       startsAt,
		EndsAt:         endsAt,
		CombinesWith:   payload.CombinesWith,
		Configuration:  payload.Configuration,
	}, true
}

func (h *Handler) validator() *validator.Validate {
	if h.Validate == nil {
		h.Validate = NewValidator()
	}
	return h.Validate
}

func (h *Handler) defaultPerPage() int {
	if h.DefaultPerPage > 0 {
		return h.DefaultPerPage
	}
	return 20
}

func (h *Handler) shop(w http.ResponseWriter, r *http.Request) (string, bool) {
	shop, ok := tenant.ShopFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "SHOP_REQUIRED", "shop could not be resolved", nil)
		return "", false
	}
	return shop, true
}

func (h *Handler) view(d store.Discount) discountView {
	return discountView{
		Discount:  d,
		Status:    d.Status(h.Service.now()),
		Metafield: metafieldRef{Namespace: discount.MetafieldNamespace, Key: discount.MetafieldKey},
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "discount not found", nil)
	case errors.Is(err, ErrConflict):
		common.JSONError(w, http.StatusConflict, "CONFLICT", "a discount with this title already exists", nil)
	case errors.Is(err, ErrInvalidWindow):
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid discount", map[string]string{"endsAt": "gtfield"})
	case errors.Is(err, ErrInvalidConfiguration):
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, ErrShopRequired):
		common.JSONError(w, http.StatusBadRequest, "SHOP_REQUIRED", "shop could not be resolved", nil)
	case errors.Is(err, function.ErrUnknownHandle):
		common.JSONError(w, http.StatusUnprocessableEntity, "UNKNOWN_FUNCTION", "stored discount names an unknown function", nil)
	default:
		h.Logger.Error().Err(err).Msg("discount request failed")
		common.WriteError(w, err)
	}
}

func discountID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid discount id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}
