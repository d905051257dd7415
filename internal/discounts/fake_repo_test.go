package discounts_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/autogift/internal/store"
)

type fakeRepo struct {
	mu    sync.Mutex
	now   time.Time
	items map[uuid.UUID]store.Discount
	order []uuid.UUID
	gets  int
}

func newFakeRepo(now time.Time) *fakeRepo {
	return &fakeRepo{now: now, items: map[uuid.UUID]store.Discount{}}
}

func (f *fakeRepo) Create(_ context.Context, d store.Discount) (store.Discount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if existing.Shop == d.Shop && existing.Title == d.Title {
			return store.Discount{}, store.ErrConflict
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = f.now.Add(time.Duration(len(f.order)) * time.Second)
	d.UpdatedAt = d.CreatedAt
	f.items[d.ID] = d
	f.order = append(f.order, d.ID)
	return d, nil
}

func (f *fakeRepo) Get(_ context.Context, shop string, id uuid.UUID) (store.Discount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	d, ok := f.items[id]
	if !ok || d.Shop != shop {
		return store.Discount{}, store.ErrNotFound
	}
	return d, nil
}

func (f *fakeRepo) List(_ context.Context, shop string, limit, offset int) ([]store.Discount, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []store.Discount
	for _, id := range f.order {
		if d, ok := f.items[id]; ok && d.Shop == shop {
			all = append(all, d)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return []store.Discount{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (f *fakeRepo) Update(_ context.Context, d store.Discount) (store.Discount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.items[d.ID]
	if !ok || existing.Shop != d.Shop {
		return store.Discount{}, store.ErrNotFound
	}
	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = existing.UpdatedAt.Add(time.Minute)
	f.items[d.ID] = d
	return d, nil
}

func (f *fakeRepo) Delete(_ context.Context, shop string, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.items[id]
	if !ok || d.Shop != shop {
		return store.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeRepo) getCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}
