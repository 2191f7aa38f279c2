package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/go_cart/storefront/internal/circuitbreaker"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/sony/gobreaker/v2"
)

// BreakerLookup serves cart-side product reads through a circuit breaker so a
// failing catalog store fails fast instead of stalling every cart request.
type BreakerLookup struct {
	repo ProductRepository
	cb   *gobreaker.CircuitBreaker[map[int64]*domain.Product]
}

func NewBreakerLookup(repo ProductRepository, cfg circuitbreaker.Config, log *slog.Logger) *BreakerLookup {
	isSuccessful := func(err error) bool {
		return err == nil || errors.Is(err, context.Canceled)
	}
	return &BreakerLookup{
		repo: repo,
		cb:   circuitbreaker.New[map[int64]*domain.Product]("product-lookup", cfg, isSuccessful, log),
	}
}

func (l *BreakerLookup) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	products, err := l.FindByIDs(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	p, ok := products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return p, nil
}

func (l *BreakerLookup) FindByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	products, err := l.cb.Execute(func() (map[int64]*domain.Product, error) {
		return l.repo.GetProducts(ctx, ids)
	})
	if err != nil {
		return nil, fmt.Errorf("product lookup: %w: %w", domain.ErrDependency, err)
	}
	return products, nil
}
