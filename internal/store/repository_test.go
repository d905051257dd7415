package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func discountRow(id uuid.UUID, shop string, ends *time.Time) []any {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return []any{
		id, shop, "Free scraper", "auto-gift", ts, ends,
		true, false, true,
		[]byte(`{"rule":"QUANTITY"}`), ts, ts,
	}
}

func TestRepositoryCreateAssignsIDAndTimestamps(t *testing.T) {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	db := &fakeDB{row: []any{created, created}}
	repo := Repository{DB: db}

	d, err := repo.Create(context.Background(), Discount{
		Shop:           "demo",
		Title:          "Free scraper",
		FunctionHandle: "auto-gift",
		Configuration:  []byte(`{}`),
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, d.ID)
	require.Equal(t, created, d.CreatedAt)
	require.Len(t, db.calls, 1)
	require.Equal(t, d.ID, db.calls[0].args[0])
	require.Equal(t, "demo", db.calls[0].args[1])
	require.Equal(t, []byte(`{}`), db.calls[0].args[9])
}

func TestRepositoryRequiresShop(t *testing.T) {
	repo := Repository{DB: &fakeDB{}}
	ctx := context.Background()

	_, err := repo.Create(ctx, Discount{})
	require.ErrorIs(t, err, ErrShopMissing)
	_, err = repo.Get(ctx, "", uuid.New())
	require.ErrorIs(t, err, ErrShopMissing)
	_, _, err = repo.List(ctx, "", 10, 0)
	require.ErrorIs(t, err, ErrShopMissing)
	require.ErrorIs(t, repo.Delete(ctx, "", uuid.New()), ErrShopMissing)
}

func TestRepositoryGetScansRecord(t *testing.T) {
	id := uuid.New()
	ends := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	db := &fakeDB{row: discountRow(id, "demo", &ends)}

	d, err := Repository{DB: db}.Get(context.Background(), "demo", id)
	require.NoError(t, err)
	require.Equal(t, id, d.ID)
	require.Equal(t, CombinesWith{OrderDiscounts: true, ShippingDiscounts: true}, d.CombinesWith)
	require.JSONEq(t, `{"rule":"QUANTITY"}`, string(d.Configuration))
	require.Equal(t, &ends, d.EndsAt)
	require.Equal(t, []any{"demo", id}, db.calls[0].args)
}

func TestRepositoryMapsErrors(t *testing.T) {
	repo := Repository{DB: &fakeDB{rowErr: pgx.ErrNoRows}}
	_, err := repo.Get(context.Background(), "demo", uuid.New())
	require.ErrorIs(t, err, ErrNotFound)

	repo = Repository{DB: &fakeDB{rowErr: &pgconn.PgError{Code: "23505"}}}
	_, err = repo.Create(context.Background(), Discount{Shop: "demo"})
	require.ErrorIs(t, err, ErrConflict)

	boom := errors.New("boom")
	repo = Repository{DB: &fakeDB{rowErr: boom}}
	_, err = repo.Update(context.Background(), Discount{Shop: "demo", ID: uuid.New()})
	require.ErrorIs(t, err, boom)
}

func TestRepositoryList(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	db := &fakeDB{
		row:  []any{7},
		rows: [][]any{discountRow(a, "demo", nil), discountRow(b, "demo", nil)},
	}
	items, total, err := Repository{DB: db}.List(context.Background(), "demo", 2, 4)
	require.NoError(t, err)
	require.Equal(t, 7, total)
	require.Len(t, items, 2)
	require.Equal(t, a, items[0].ID)
	require.Nil(t, items[1].EndsAt)
	require.Equal(t, []any{"demo", 2, 4}, db.calls[1].args)
}

func TestRepositoryDelete(t *testing.T) {
	db := &fakeDB{execTag: "DELETE 1"}
	require.NoError(t, Repository{DB: db}.Delete(context.Background(), "demo", uuid.New()))

	db = &fakeDB{execTag: "DELETE 0"}
	require.ErrorIs(t, Repository{DB: db}.Delete(context.Background(), "demo", uuid.New()), ErrNotFound)
}

func TestDiscountStatus(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)
	d := Discount{StartsAt: start, EndsAt: &end}

	require.Equal(t, StatusScheduled, d.Status(start.Add(-time.Second)))
	require.Equal(t, StatusActive, d.Status(start))
	require.Equal(t, StatusActive, d.Status(end.Add(-time.Second)))
	require.Equal(t, StatusExpired, d.Status(end))

	d.EndsAt = nil
	require.True(t, d.ActiveAt(start.AddDate(10, 0, 0)))
}
