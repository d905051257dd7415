// Package store persists discount records in PostgreSQL and caches them in Redis.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates the discount does not exist for the shop.
	ErrNotFound = errors.New("store: discount not found")
	// ErrConflict indicates a uniqueness constraint was violated.
	ErrConflict = errors.New("store: discount conflict")
	// ErrShopMissing indicates the operation was attempted without a shop.
	ErrShopMissing = errors.New("store: shop missing")
)

const uniqueViolation = "23505"

// DBTX is the subset of pgx used by the repository; *pgxpool.Pool and pgx.Tx satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository runs shop-scoped discount queries.
type Repository struct {
	DB DBTX
}

const discountColumns = `id, shop, title, function_handle, starts_at, ends_at,
	combines_order, combines_product, combines_shipping, configuration, created_at, updated_at`

const insertDiscount = `INSERT INTO discounts (id, shop, title, function_handle, starts_at, ends_at,
	combines_order, combines_product, combines_shipping, configuration)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING created_at, updated_at`

const selectDiscount = `SELECT ` + discountColumns + ` FROM discounts WHERE shop = $1 AND id = $2`

const listDiscounts = `SELECT ` + discountColumns + ` FROM discounts WHERE shop = $1
ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`

const countDiscounts = `SELECT count(*) FROM discounts WHERE shop = $1`

const updateDiscount = `UPDATE discounts SET title = $3, function_handle = $4, starts_at = $5, ends_at = $6,
	combines_order = $7, combines_product = $8, combines_shipping = $9, configuration = $10, updated_at = now()
WHERE shop = $1 AND id = $2
RETURNING created_at, updated_at`

const deleteDiscount = `DELETE FROM discounts WHERE shop = $1 AND id = $2`

// Create inserts d. A zero ID is replaced by a new random one.
func (r Repository) Create(ctx context.Context, d Discount) (Discount, error) {
	if d.Shop == "" {
		return Discount{}, ErrShopMissing
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	err := r.DB.QueryRow(ctx, insertDiscount,
		d.ID, d.Shop, d.Title, d.FunctionHandle, d.StartsAt, d.EndsAt,
		d.CombinesWith.OrderDiscounts, d.CombinesWith.ProductDiscounts, d.CombinesWith.ShippingDiscounts,
		[]byte(d.Configuration),
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Discount{}, mapError("create discount", err)
	}
	return d, nil
}

// Get loads a discount owned by shop.
func (r Repository) Get(ctx context.Context, shop string, id uuid.UUID) (Discount, error) {
	if shop == "" {
		return Discount{}, ErrShopMissing
	}
	d, err := scanDiscount(r.DB.QueryRow(ctx, selectDiscount, shop, id))
	if err != nil {
		return Discount{}, mapError("get discount", err)
	}
	return d, nil
}

// List returns a page of the shop's discounts, newest first, and the total count.
func (r Repository) List(ctx context.Context, shop string, limit, offset int) ([]Discount, int, error) {
	if shop == "" {
		return nil, 0, ErrShopMissing
	}
	var total int
	if err := r.DB.QueryRow(ctx, countDiscounts, shop).Scan(&total); err != nil {
		return nil, 0, mapError("count discounts", err)
	}
	rows, err := r.DB.Query(ctx, listDiscounts, shop, limit, offset)
	if err != nil {
		return nil, 0, mapError("list discounts", err)
	}
	defer rows.Close()

	out := make([]Discount, 0, limit)
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, 0, mapError("scan discount", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapError("list discounts", err)
	}
	return out, total, nil
}

// Update replaces the mutable fields of d, identified by d.Shop and d.ID.
func (r Repository) Update(ctx context.Context, d Discount) (Discount, error) {
	if d.Shop == "" {
		return Discount{}, ErrShopMissing
	}
	err := r.DB.QueryRow(ctx, updateDiscount,
		d.Shop, d.ID, d.Title, d.FunctionHandle, d.StartsAt, d.EndsAt,
		d.CombinesWith.OrderDiscounts, d.CombinesWith.ProductDiscounts, d.CombinesWith.ShippingDiscounts,
		[]byte(d.Configuration),
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Discount{}, mapError("update discount", err)
	}
	return d, nil
}

// Delete removes a discount owned by shop.
func (r Repository) Delete(ctx context.Context, shop string, id uuid.UUID) error {
	if shop == "" {
		return ErrShopMissing
	}
	tag, err := r.DB.Exec(ctx, deleteDiscount, shop, id)
	if err != nil {
		return mapError("delete discount", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDiscount(row pgx.Row) (Discount, error) {
	var (
		d   Discount
		cfg []byte
	)
	err := row.Scan(&d.ID, &d.Shop, &d.Title, &d.FunctionHandle, &d.StartsAt, &d.EndsAt,
		&d.CombinesWith.OrderDiscounts, &d.CombinesWith.ProductDiscounts, &d.CombinesWith.ShippingDiscounts,
		&cfg, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Discount{}, err
	}
	d.Configuration = cfg
	return d, nil
}

func mapError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
