package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"golang.org/x/sync/singleflight"
)

// maxSaveAttempts bounds how often a mutation is re-applied after losing an
// optimistic version race.
const maxSaveAttempts = 3

const cacheOpTimeout = time.Second

type ProductLookup interface {
	FindByID(ctx context.Context, id int64) (*domain.Product, error)
	FindByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Product, error)
}

type CartService struct {
	repo     repository.CartRepository
	cache    cache.CartCache
	products ProductLookup
	log      *slog.Logger
	sfg      singleflight.Group // Prevents cache stampede
}

func NewCartService(repo repository.CartRepository, c cache.CartCache, products ProductLookup, log *slog.Logger) *CartService {
	if c == nil {
		c = cache.NopCache{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &CartService{
		repo:     repo,
		cache:    c,
		products: products,
		log:      log.With("component", "cart_service"),
	}
}

type AddItemInput struct {
	ProductID int64
	Size      *int
	// Quantity defaults to 1 when nil.
	Quantity *int
}

// GetOrCreate returns the user's cart, creating an empty one on first access.
func (s *CartService) GetOrCreate(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, validationError("user id is required")
	}

	v, err, _ := s.sfg.Do(userID, func() (any, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.WarnContext(ctx, "cache get failed", "user_id", userID, "error", err)
		}

		cart, err = s.repo.GetOrCreateCart(ctx, userID)
		if err != nil {
			return nil, storeError("get cart", err)
		}

		// A write that lands between the read and the fill raises the
		// cache's version floor, so this fill is refused.
		s.fillCache(ctx, cart)
		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	// singleflight hands the same pointer to every waiter.
	return v.(*domain.Cart).Clone(), nil
}

// GetCartView returns the user's cart with product details resolved.
func (s *CartService) GetCartView(ctx context.Context, userID string) (*domain.CartView, error) {
	cart, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, cart), nil
}

func (s *CartService) AddItem(ctx context.Context, userID string, in AddItemInput) (*domain.CartView, error) {
	if userID == "" {
		return nil, validationError("user id is required")
	}
	if in.ProductID <= 0 {
		return nil, validationError("productId must be positive")
	}
	if in.Size == nil {
		return nil, validationError("size is required")
	}
	quantity := 1
	if in.Quantity != nil {
		quantity = *in.Quantity
	}
	if quantity < 1 {
		return nil, validationError("quantity must be at least 1")
	}

	product, err := s.products.FindByID(ctx, in.ProductID)
	if err != nil {
		return nil, storeError("find product", err)
	}

	cart, err := s.mutate(ctx, userID, true, func(c *domain.Cart) error {
		if i := c.FindLine(product.ID, *in.Size); i >= 0 && c.Items[i].Quantity > math.MaxInt-quantity {
			return validationError("quantity too large")
		}
		c.Merge(product.ID, *in.Size, quantity, product.Price)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "item added to cart",
		"user_id", userID, "product_id", product.ID, "size", *in.Size, "quantity", quantity)
	return s.resolve(ctx, cart), nil
}

// UpdateItemQuantity sets the quantity of one line. Quantities below 1 are
// rejected, the same floor AddItem applies.
func (s *CartService) UpdateItemQuantity(ctx context.Context, userID, itemID string, quantity int) (*domain.Cart, error) {
	if userID == "" {
		return nil, validationError("user id is required")
	}
	if itemID == "" {
		return nil, validationError("itemId is required")
	}
	if quantity < 1 {
		return nil, validationError("quantity must be at least 1")
	}

	return s.mutate(ctx, userID, false, func(c *domain.Cart) error {
		idx := c.FindItem(itemID)
		if idx < 0 {
			return ErrItemNotFound
		}
		c.Items[idx].Quantity = quantity
		return nil
	})
}

// RemoveItem drops one line. An id that is not in the cart leaves it unchanged.
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID string) (*domain.CartView, error) {
	if userID == "" {
		return nil, validationError("user id is required")
	}
	if itemID == "" {
		return nil, validationError("itemId is required")
	}

	cart, err := s.mutate(ctx, userID, false, func(c *domain.Cart) error {
		c.RemoveItem(itemID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, cart), nil
}

// Clear empties the cart. The cart document itself is kept.
func (s *CartService) Clear(ctx context.Context, userID string) error {
	if userID == "" {
		return validationError("user id is required")
	}

	_, err := s.mutate(ctx, userID, false, func(c *domain.Cart) error {
		c.Clear()
		return nil
	})
	return err
}

// mutate loads the cart, applies fn, recomputes the total and saves. A lost
// version race re-runs the whole read-modify-write.
func (s *CartService) mutate(ctx context.Context, userID string, create bool, fn func(*domain.Cart) error) (*domain.Cart, error) {
	for attempt := 1; ; attempt++ {
		var (
			cart *domain.Cart
			err  error
		)
		if create {
			cart, err = s.repo.GetOrCreateCart(ctx, userID)
		} else {
			cart, err = s.repo.GetCart(ctx, userID)
		}
		if err != nil {
			return nil, storeError("load cart", err)
		}

		if err := fn(cart); err != nil {
			return nil, err
		}
		cart.Recalculate()

		err = s.repo.SaveCart(ctx, cart)
		if err == nil {
			s.invalidate(ctx, cart)
			return cart, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) || attempt == maxSaveAttempts {
			return nil, storeError("save cart", err)
		}
		s.log.DebugContext(ctx, "cart version conflict, retrying", "user_id", userID, "attempt", attempt)
	}
}

// resolve joins product details into the cart. Lookup failures degrade to a
// view without details; the cart itself is already persisted.
func (s *CartService) resolve(ctx context.Context, cart *domain.Cart) *domain.CartView {
	ids := cart.ProductIDs()
	if len(ids) == 0 {
		return domain.NewCartView(cart, nil)
	}

	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		s.log.WarnContext(ctx, "resolve cart products failed", "user_id", cart.UserID, "error", err)
		return domain.NewCartView(cart, nil)
	}
	return domain.NewCartView(cart, products)
}

func (s *CartService) fillCache(ctx context.Context, cart *domain.Cart) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()
	if err := s.cache.Set(ctx, cart.UserID, cart); err != nil {
		s.log.WarnContext(ctx, "cache set failed", "user_id", cart.UserID, "error", err)
	}
}

// invalidate runs after a successful save, so cart.Version is the new one.
func (s *CartService) invalidate(ctx context.Context, cart *domain.Cart) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()
	if err := s.cache.Invalidate(ctx, cart.UserID, cart.Version); err != nil {
		s.log.WarnContext(ctx, "cache invalidate failed", "user_id", cart.UserID, "version", cart.Version, "error", err)
	}
}
