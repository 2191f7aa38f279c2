package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
)

// mockCache mirrors the version floor of the Redis cache.
type mockCache struct {
	m             sync.RWMutex
	carts         map[string]*domain.Cart
	floors        map[string]int64
	err           error
	gets          int
	invalidations int
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[string]*domain.Cart), floors: make(map[string]int64)}
}

func (m *mockCache) Get(_ context.Context, userID string) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.gets++
	if m.err != nil {
		return nil, m.err
	}
	cart, ok := m.carts[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cart.Clone(), nil
}

func (m *mockCache) Set(_ context.Context, userID string, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	if floor, ok := m.floors[userID]; ok && floor > cart.Version {
		return nil
	}
	m.carts[userID] = cart.Clone()
	return nil
}

func (m *mockCache) Invalidate(_ context.Context, userID string, version int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.invalidations++
	if version > m.floors[userID] {
		m.floors[userID] = version
	}
	delete(m.carts, userID)
	return m.err
}

func (m *mockCache) has(userID string) bool {
	m.m.RLock()
	defer m.m.RUnlock()
	_, ok := m.carts[userID]
	return ok
}

// countingRepository wraps a repository, counts calls and can inject failures.
type countingRepository struct {
	repository.CartRepository
	mu           sync.Mutex
	reads        int
	writes       int
	conflicts    int // SaveCart fails with ErrVersionConflict this many times
	getErr       error
	onBeforeSave func()
	// afterRead fires once, after the next GetOrCreateCart read returns.
	afterRead func()
}

func (r *countingRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	r.mu.Lock()
	r.reads++
	err := r.getErr
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.CartRepository.GetCart(ctx, userID)
}

func (r *countingRepository) GetOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error) {
	r.mu.Lock()
	r.reads++
	err := r.getErr
	hook := r.afterRead
	r.afterRead = nil
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	cart, err := r.CartRepository.GetOrCreateCart(ctx, userID)
	if err == nil && hook != nil {
		hook()
	}
	return cart, err
}

func (r *countingRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	r.mu.Lock()
	r.writes++
	hook := r.onBeforeSave
	if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return repository.ErrVersionConflict
	}
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return r.CartRepository.SaveCart(ctx, cart)
}

func (r *countingRepository) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads, r.writes
}

type fakeLookup struct {
	mu       sync.Mutex
	products map[int64]*domain.Product
	err      error
	byIDErr  error
	calls    int
}

func (f *fakeLookup) FindByID(_ context.Context, id int64) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.byIDErr != nil {
		return nil, f.byIDErr
	}
	p, ok := f.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return p, nil
}

func (f *fakeLookup) FindByIDs(_ context.Context, ids []int64) (map[int64]*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[int64]*domain.Product)
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeLookup) setPrice(id int64, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[id].Price = mustDecimal(price)
}

type memoryImageStore struct {
	mu      sync.Mutex
	objects map[string]string
	err     error
}

func (s *memoryImageStore) Upload(ctx context.Context, filename, _ string, r io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = make(map[string]string)
	}
	url := "https://img.test/" + filename
	s.objects[url] = string(data)
	return url, nil
}

func upload(name, content string) ImageUpload {
	return ImageUpload{
		Filename:    name,
		ContentType: "image/png",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

// memoryCatalog is a ProductRepository kept in a map.
type memoryCatalog struct {
	mu       sync.Mutex
	nextID   int64
	products map[int64]*domain.Product
	err      error
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{products: make(map[int64]*domain.Product)}
}

func (c *memoryCatalog) ListProducts(_ context.Context, category string) ([]*domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	var out []*domain.Product
	for id := c.nextID; id > 0; id-- {
		p, ok := c.products[id]
		if !ok || (category != "" && p.Category != category) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *memoryCatalog) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	p, ok := c.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (c *memoryCatalog) GetProducts(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	out := make(map[int64]*domain.Product)
	for _, id := range ids {
		p, err := c.GetProduct(ctx, id)
		if errors.Is(err, catalog.ErrProductNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = p
	}
	return out, nil
}

func (c *memoryCatalog) CreateProduct(_ context.Context, p *domain.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.nextID++
	p.ID = c.nextID
	cp := *p
	c.products[p.ID] = &cp
	return nil
}

func (c *memoryCatalog) UpdateProduct(_ context.Context, p *domain.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if _, ok := c.products[p.ID]; !ok {
		return catalog.ErrProductNotFound
	}
	cp := *p
	c.products[p.ID] = &cp
	return nil
}

func (c *memoryCatalog) DeleteProduct(_ context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if _, ok := c.products[id]; !ok {
		return catalog.ErrProductNotFound
	}
	delete(c.products, id)
	return nil
}

var errStoreDown = errors.New("connection refused")
