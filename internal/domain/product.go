package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            int64            `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice,omitempty"`
	Discount      string           `json:"discount,omitempty"`
	IsOnSale      bool             `json:"isOnSale"`
	Category      string           `json:"category"`
	ImageURL      string           `json:"imageUrl"`
	Images        []string         `json:"images"`
	Stock         int              `json:"stock"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     *time.Time       `json:"updatedAt,omitempty"`
}

// ProductSummary is the subset of product fields joined into a cart for display.
type ProductSummary struct {
	ID            int64            `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice,omitempty"`
	Discount      string           `json:"discount,omitempty"`
	ImageURL      string           `json:"imageUrl"`
	Images        []string         `json:"images"`
}

func (p *Product) Summary() *ProductSummary {
	return &ProductSummary{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price,
		OriginalPrice: p.OriginalPrice,
		Discount:      p.Discount,
		ImageURL:      p.ImageURL,
		Images:        p.Images,
	}
}
