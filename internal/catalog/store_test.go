package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/imrishuroy/go-esewa-storefront/internal/dynamotest"
	"github.com/imrishuroy/go-esewa-storefront/internal/txn"
)

const productsTable = "products-table"

// memCache is a map-backed Cache for asserting cache traffic.
type memCache struct {
	mu    sync.Mutex
	items map[string]Product
	hits  int
}

func newMemCache() *memCache { return &memCache{items: map[string]Product{}} }

func (c *memCache) GetProduct(_ context.Context, id string) (*Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.items[id]
	if !ok {
		return nil, false
	}
	c.hits++
	return &p, true
}

func (c *memCache) SetProduct(_ context.Context, p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[p.ProductID] = p
}

func (c *memCache) Invalidate(_ context.Context, ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.items, id)
	}
}

func newTestStore(cache Cache) (*Store, *dynamotest.Fake) {
	fake := dynamotest.New()
	fake.CreateTable(productsTable, "product_id")
	return NewStore(fake, productsTable, cache), fake
}

func seedProduct(t *testing.T, s *Store, id string, price float64, stock int) *Product {
	t.Helper()
	p, err := s.Create(context.Background(), Product{
		ProductID: id,
		Title:     "Product " + id,
		Price:     price,
		Stock:     stock,
	})
	if err != nil {
		t.Fatalf("Create(%s) error: %v", id, err)
	}
	return p
}

func TestCreateAndGet(t *testing.T) {
	s, _ := newTestStore(nil)
	ctx := context.Background()

	created, err := s.Create(ctx, Product{Title: "Dhaka topi", Description: "hand woven", Price: 450, Stock: 3})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if created.ProductID == "" {
		t.Fatalf("expected generated id")
	}
	if created.CreatedAt.IsZero() || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("expected timestamps to be set, got %v / %v", created.CreatedAt, created.UpdatedAt)
	}

	got, err := s.Get(ctx, created.ProductID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got == nil || got.Title != "Dhaka topi" || got.Description != "hand woven" || got.Stock != 3 {
		t.Fatalf("unexpected product: %+v", got)
	}

	missing, err := s.Get(ctx, "nope")
	if err != nil {
		t.Fatalf("Get missing error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing product")
	}
}

func TestGetUsesCache(t *testing.T) {
	cache := newMemCache()
	s, fake := newTestStore(cache)
	ctx := context.Background()
	seedProduct(t, s, "p1", 100, 5)

	for i := 0; i < 3; i++ {
		if _, err := s.Get(ctx, "p1"); err != nil {
			t.Fatalf("Get error: %v", err)
		}
	}
	if n := fake.Calls("GetItem"); n != 1 {
		t.Fatalf("expected 1 GetItem, got %d", n)
	}
	if cache.hits != 2 {
		t.Fatalf("expected 2 cache hits, got %d", cache.hits)
	}
}

func TestListReturnsEmptySlice(t *testing.T) {
	s, _ := newTestStore(nil)
	list, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", list)
	}

	seedProduct(t, s, "a", 1, 1)
	seedProduct(t, s, "b", 2, 2)
	list, err = s.List(context.Background())
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 products, got %d", len(list))
	}
}

func TestUpdatePartial(t *testing.T) {
	cache := newMemCache()
	s, _ := newTestStore(cache)
	ctx := context.Background()
	seedProduct(t, s, "p1", 100, 5)
	if _, err := s.Get(ctx, "p1"); err != nil {
		t.Fatalf("Get error: %v", err)
	}

	price := 120.5
	desc := "updated"
	updated, err := s.Update(ctx, "p1", ProductUpdate{Price: &price, Description: &desc})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if updated.Price != 120.5 || updated.Description != "updated" {
		t.Fatalf("fields not applied: %+v", updated)
	}
	if updated.Title != "Product p1" || updated.Stock != 5 {
		t.Fatalf("untouched fields changed: %+v", updated)
	}
	if _, ok := cache.items["p1"]; ok {
		t.Fatalf("expected cache entry to be invalidated")
	}

	if _, err := s.Update(ctx, "missing", ProductUpdate{Price: &price}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s, fake := newTestStore(nil)
	ctx := context.Background()
	seedProduct(t, s, "p1", 100, 5)

	deleted, err := s.Delete(ctx, "p1")
	if err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if deleted.ProductID != "p1" {
		t.Fatalf("expected deleted product returned, got %+v", deleted)
	}
	if fake.Len(productsTable) != 0 {
		t.Fatalf("expected table to be empty")
	}
	if _, err := s.Delete(ctx, "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestAdjustStock(t *testing.T) {
	s, _ := newTestStore(nil)
	ctx := context.Background()
	seedProduct(t, s, "p1", 100, 5)

	stock, err := s.AdjustStock(ctx, "p1", -2)
	if err != nil {
		t.Fatalf("AdjustStock error: %v", err)
	}
	if stock != 3 {
		t.Fatalf("expected 3, got %d", stock)
	}

	stock, err = s.AdjustStock(ctx, "p1", 4)
	if err != nil {
		t.Fatalf("AdjustStock error: %v", err)
	}
	if stock != 7 {
		t.Fatalf("expected 7, got %d", stock)
	}

	if _, err := s.AdjustStock(ctx, "p1", -8); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if _, err := s.AdjustStock(ctx, "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	p, _ := s.Get(ctx, "p1")
	if p.Stock != 7 {
		t.Fatalf("failed adjustment must not change stock, got %d", p.Stock)
	}
}

func TestAdjustStockConcurrentNoLostUpdate(t *testing.T) {
	s, _ := newTestStore(nil)
	ctx := context.Background()
	seedProduct(t, s, "p1", 100, 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AdjustStock(ctx, "p1", 1); err != nil {
				t.Errorf("AdjustStock error: %v", err)
			}
		}()
	}
	wg.Wait()

	p, err := s.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if p.Stock != 20 {
		t.Fatalf("expected 20, got %d", p.Stock)
	}
}

func TestTransactAdjustStock(t *testing.T) {
	s, fake := newTestStore(nil)
	ctx := context.Background()
	seedProduct(t, s, "p1", 100, 2)
	seedProduct(t, s, "p2", 100, 1)

	var b txn.Batch
	b.Add("stock:p1", s.TransactAdjustStock("p1", -2))
	b.Add("stock:p2", s.TransactAdjustStock("p2", -2))
	err := b.Commit(ctx, fake)
	var canceled *txn.CanceledError
	if !errors.As(err, &canceled) {
		t.Fatalf("expected CanceledError, got %v", err)
	}
	if f, ok := canceled.FailedCondition("stock:"); !ok || f.Label != "stock:p2" {
		t.Fatalf("expected stock:p2 to fail, got %+v", canceled.Failures)
	}

	p1, _ := s.Get(ctx, "p1")
	if p1.Stock != 2 {
		t.Fatalf("canceled transaction changed stock: %d", p1.Stock)
	}

	var restore txn.Batch
	restore.Add("stock:p1", s.TransactAdjustStock("p1", 3))
	restore.Add("stock:gone", s.TransactAdjustStock("gone", 1))
	if err := restore.Commit(ctx, fake); !errors.As(err, &canceled) {
		t.Fatalf("increment on missing product should cancel, got %v", err)
	}
}

func TestCategories(t *testing.T) {
	fake := dynamotest.New()
	fake.CreateTable("categories-table", "category_id")
	s := NewCategoryStore(fake, "categories-table")
	ctx := context.Background()

	c, err := s.Create(ctx, "Handicraft")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Handicraft" {
		t.Fatalf("unexpected categories: %+v", list)
	}
	if _, err := s.Delete(ctx, c.CategoryID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := s.Delete(ctx, c.CategoryID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
