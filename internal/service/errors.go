package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

var (
	ErrItemNotFound  = fmt.Errorf("cart item %w", domain.ErrNotFound)
	ErrTooManyImages = fmt.Errorf("%w: at most %d images per product", domain.ErrValidation, MaxProductImages)
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}

// storeError tags unexpected store failures as dependency failures while
// keeping the taxonomy errors and context errors callers branch on.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrDependency),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrDependency, err)
	}
}
