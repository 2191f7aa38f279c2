package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const MaxProductImages = 5

// ImageUpload is one file received with a product request.
type ImageUpload struct {
	Filename    string
	ContentType string
	Open        func() (io.ReadCloser, error)
}

type ProductInput struct {
	Name          string
	Description   string
	Price         *decimal.Decimal
	OriginalPrice *decimal.Decimal
	Discount      string
	IsOnSale      bool
	Category      string
	Stock         int
	// ExistingImages are kept on update when no new files are uploaded.
	ExistingImages []string
}

type ProductService struct {
	repo   catalog.ProductRepository
	images storage.ImageStore
	log    *slog.Logger
}

func NewProductService(repo catalog.ProductRepository, images storage.ImageStore, log *slog.Logger) *ProductService {
	if log == nil {
		log = slog.Default()
	}
	return &ProductService{
		repo:   repo,
		images: images,
		log:    log.With("component", "product_service"),
	}
}

func (s *ProductService) List(ctx context.Context, category string) ([]*domain.Product, error) {
	products, err := s.repo.ListProducts(ctx, category)
	if err != nil {
		return nil, storeError("list products", err)
	}
	if products == nil {
		products = []*domain.Product{}
	}
	return products, nil
}

func (s *ProductService) Get(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, storeError("get product", err)
	}
	return p, nil
}

func (s *ProductService) Create(ctx context.Context, in ProductInput, uploads []ImageUpload) (*domain.Product, error) {
	if err := validateProduct(in, uploads); err != nil {
		return nil, err
	}

	p := &domain.Product{Images: []string{}}
	applyInput(p, in)

	if len(uploads) > 0 {
		urls, err := s.uploadImages(ctx, uploads)
		if err != nil {
			return nil, err
		}
		p.ImageURL = urls[0]
		p.Images = urls
	}

	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, storeError("create product", err)
	}

	s.log.InfoContext(ctx, "product created", "product_id", p.ID, "images", len(p.Images))
	return p, nil
}

// Update overwrites the product's fields. New uploads replace the image set;
// otherwise ExistingImages, when given, become the image set.
func (s *ProductService) Update(ctx context.Context, id int64, in ProductInput, uploads []ImageUpload) (*domain.Product, error) {
	if err := validateProduct(in, uploads); err != nil {
		return nil, err
	}

	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, storeError("get product", err)
	}
	applyInput(p, in)

	switch {
	case len(uploads) > 0:
		urls, err := s.uploadImages(ctx, uploads)
		if err != nil {
			return nil, err
		}
		p.ImageURL = urls[0]
		p.Images = urls
	case len(in.ExistingImages) > 0:
		p.ImageURL = in.ExistingImages[0]
		p.Images = in.ExistingImages
	}

	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return nil, storeError("update product", err)
	}

	s.log.InfoContext(ctx, "product updated", "product_id", p.ID)
	return p, nil
}

func (s *ProductService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return storeError("delete product", err)
	}
	s.log.InfoContext(ctx, "product deleted", "product_id", id)
	return nil
}

// uploadImages pushes every file concurrently and returns the URLs in upload order.
func (s *ProductService) uploadImages(ctx context.Context, uploads []ImageUpload) ([]string, error) {
	urls := make([]string, len(uploads))
	g, gctx := errgroup.WithContext(ctx)

	for i, u := range uploads {
		g.Go(func() error {
			f, err := u.Open()
			if err != nil {
				return fmt.Errorf("open %s: %w", u.Filename, err)
			}
			defer f.Close()

			url, err := s.images.Upload(gctx, u.Filename, u.ContentType, f)
			if err != nil {
				return err
			}
			urls[i] = url
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, storeError("upload images", err)
	}
	return urls, nil
}

func validateProduct(in ProductInput, uploads []ImageUpload) error {
	if in.Name == "" || in.Price == nil || in.Category == "" {
		return validationError("name, price and category are required")
	}
	if in.Price.IsNegative() {
		return validationError("price cannot be negative")
	}
	if in.OriginalPrice != nil && in.OriginalPrice.IsNegative() {
		return validationError("original price cannot be negative")
	}
	if in.Stock < 0 {
		return validationError("stock cannot be negative")
	}
	if len(uploads) > MaxProductImages {
		return ErrTooManyImages
	}
	return nil
}

func applyInput(p *domain.Product, in ProductInput) {
	p.Name = in.Name
	p.Description = in.Description
	p.Price = *in.Price
	p.OriginalPrice = in.OriginalPrice
	p.Discount = in.Discount
	p.IsOnSale = in.IsOnSale
	p.Category = in.Category
	p.Stock = in.Stock
}
