package repository

import (
	"context"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

var (
	ErrCartNotFound    = fmt.Errorf("cart %w", domain.ErrNotFound)
	ErrVersionConflict = fmt.Errorf("cart version %w", domain.ErrConflict)
)

// CartRepository defines the interface for cart data operations
// Consumers define this interface, not the MongoDB implementation
type CartRepository interface {
	// GetCart returns ErrCartNotFound when the user has no cart.
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	// GetOrCreateCart atomically inserts an empty cart if none exists.
	GetOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error)
	// SaveCart persists items and total if cart.Version still matches the
	// stored version, then bumps cart.Version. A stale cart yields
	// ErrVersionConflict.
	SaveCart(ctx context.Context, cart *domain.Cart) error
}
