package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartView is a cart with product details resolved for each line.
type CartView struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Items       []CartItemView  `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type CartItemView struct {
	CartItem
	// Product is nil when the product has since left the catalog.
	Product *ProductSummary `json:"product"`
}

func NewCartView(c *Cart, products map[int64]*Product) *CartView {
	view := &CartView{
		ID:          c.ID,
		UserID:      c.UserID,
		Items:       make([]CartItemView, len(c.Items)),
		TotalAmount: c.TotalAmount,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	for i, item := range c.Items {
		view.Items[i] = CartItemView{CartItem: item}
		if p, ok := products[item.ProductID]; ok {
			view.Items[i].Product = p.Summary()
		}
	}
	return view
}
