package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// MaxImageSize is the per-file upload limit.
const MaxImageSize = 5 << 20

type ProductService interface {
	List(ctx context.Context, category string) ([]*domain.Product, error)
	Get(ctx context.Context, id int64) (*domain.Product, error)
	Create(ctx context.Context, in service.ProductInput, uploads []service.ImageUpload) (*domain.Product, error)
	Update(ctx context.Context, id int64, in service.ProductInput, uploads []service.ImageUpload) (*domain.Product, error)
	Delete(ctx context.Context, id int64) error
}

type ProductHandler struct {
	products    ProductService
	timeout     time.Duration
	maxBodySize int64
	log         *slog.Logger
}

func NewProductHandler(products ProductService, timeout time.Duration, maxBodySize int64, log *slog.Logger) *ProductHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ProductHandler{
		products:    products,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		log:         log.With("component", "product_handler"),
	}
}

type ProductResponse struct {
	Success bool   `json:"success"`
	Count   *int   `json:"count,omitempty"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ProductRequestDTO is the JSON form of a product write. Multipart requests
// carry the same fields as form values.
type ProductRequestDTO struct {
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	Price          *decimal.Decimal `json:"price"`
	OriginalPrice  *decimal.Decimal `json:"originalPrice"`
	Discount       string           `json:"discount"`
	IsOnSale       bool             `json:"isOnSale"`
	Category       string           `json:"category"`
	Stock          int              `json:"stock"`
	ExistingImages []string         `json:"existingImages"`
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.products.List(ctx, r.URL.Query().Get("category"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	count := len(products)
	respondJSON(w, http.StatusOK, ProductResponse{Success: true, Count: &count, Data: products})
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := productID(w, r)
	if !ok {
		return
	}

	p, err := h.products.Get(ctx, id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, ProductResponse{Success: true, Data: p})
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	in, uploads, err := h.parseProductRequest(w, r)
	if err != nil {
		respondProductError(w, http.StatusBadRequest, err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	p, err := h.products.Create(ctx, in, uploads)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, ProductResponse{Success: true, Data: p})
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := productID(w, r)
	if !ok {
		return
	}

	in, uploads, err := h.parseProductRequest(w, r)
	if err != nil {
		respondProductError(w, http.StatusBadRequest, err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	p, err := h.products.Update(ctx, id, in, uploads)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, ProductResponse{Success: true, Data: p})
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := productID(w, r)
	if !ok {
		return
	}

	if err := h.products.Delete(ctx, id); err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, ProductResponse{Success: true, Message: "Product deleted successfully"})
}

func (h *ProductHandler) parseProductRequest(w http.ResponseWriter, r *http.Request) (service.ProductInput, []service.ImageUpload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req ProductRequestDTO
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return service.ProductInput{}, nil, errors.New("invalid JSON body")
		}
		return service.ProductInput(req), nil, nil
	}

	if err := r.ParseMultipartForm(h.maxBodySize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return service.ProductInput{}, nil, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return service.ProductInput{}, nil, errors.New("invalid multipart form")
	}

	in, err := productInputFromForm(r.MultipartForm)
	if err != nil {
		return service.ProductInput{}, nil, err
	}
	uploads, err := imageUploads(r.MultipartForm.File["images"])
	if err != nil {
		return service.ProductInput{}, nil, err
	}
	return in, uploads, nil
}

func productInputFromForm(form *multipart.Form) (service.ProductInput, error) {
	value := func(key string) string {
		if v := form.Value[key]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	in := service.ProductInput{
		Name:           value("name"),
		Description:    value("description"),
		Discount:       value("discount"),
		IsOnSale:       value("isOnSale") == "true",
		Category:       value("category"),
		ExistingImages: form.Value["existingImages"],
	}

	if s := value("price"); s != "" {
		price, err := decimal.NewFromString(s)
		if err != nil {
			return in, fmt.Errorf("invalid price %q", s)
		}
		in.Price = &price
	}
	if s := value("originalPrice"); s != "" {
		original, err := decimal.NewFromString(s)
		if err != nil {
			return in, fmt.Errorf("invalid originalPrice %q", s)
		}
		in.OriginalPrice = &original
	}
	if s := value("stock"); s != "" {
		stock, err := strconv.Atoi(s)
		if err != nil {
			return in, fmt.Errorf("invalid stock %q", s)
		}
		in.Stock = stock
	}
	return in, nil
}

func imageUploads(files []*multipart.FileHeader) ([]service.ImageUpload, error) {
	if len(files) > service.MaxProductImages {
		return nil, fmt.Errorf("at most %d images per product", service.MaxProductImages)
	}

	uploads := make([]service.ImageUpload, 0, len(files))
	for _, fh := range files {
		contentType := fh.Header.Get("Content-Type")
		if !strings.HasPrefix(contentType, "image/") {
			return nil, fmt.Errorf("%s is not an image", fh.Filename)
		}
		if fh.Size > MaxImageSize {
			return nil, fmt.Errorf("%s exceeds %d bytes", fh.Filename, MaxImageSize)
		}
		uploads = append(uploads, service.ImageUpload{
			Filename:    fh.Filename,
			ContentType: contentType,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return uploads, nil
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondProductError(w, http.StatusBadRequest, "product id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *ProductHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	logError(r, h.log, status, err)
	respondProductError(w, status, message)
}

func respondProductError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ProductResponse{Success: false, Error: message})
}
