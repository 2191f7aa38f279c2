package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/service"
)

type CartService interface {
	GetCartView(ctx context.Context, userID string) (*domain.CartView, error)
	AddItem(ctx context.Context, userID string, in service.AddItemInput) (*domain.CartView, error)
	UpdateItemQuantity(ctx context.Context, userID, itemID string, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID, itemID string) (*domain.CartView, error)
	Clear(ctx context.Context, userID string) error
}

type CartHandler struct {
	carts       CartService
	timeout     time.Duration
	maxBodySize int64
	log         *slog.Logger
}

func NewCartHandler(carts CartService, timeout time.Duration, maxBodySize int64, log *slog.Logger) *CartHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CartHandler{
		carts:       carts,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		log:         log.With("component", "cart_handler"),
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"productId"`
	Size      *int  `json:"size"`
	Quantity  *int  `json:"quantity"`
}

type UpdateItemRequestDTO struct {
	ItemID   string `json:"itemId"`
	Quantity *int   `json:"quantity"`
}

type RemoveItemRequestDTO struct {
	ItemID string `json:"itemId"`
}

type CartResponse struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := UserIDFromContext(r.Context())
	if userID == "" {
		respondCartError(w, http.StatusUnauthorized, "missing user authentication")
		return
	}

	view, err := h.carts.GetCartView(ctx, userID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, CartResponse{Status: "success", Data: view})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := UserIDFromContext(r.Context())
	if userID == "" {
		respondCartError(w, http.StatusUnauthorized, "missing user authentication")
		return
	}

	var req AddItemRequestDTO
	if err := h.decodeBody(w, r, &req); err != nil {
		respondCartError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.carts.AddItem(ctx, userID, service.AddItemInput{
		ProductID: req.ProductID,
		Size:      req.Size,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, CartResponse{Status: "success", Data: view})
}

// UpdateItem responds with the cart without product details.
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := UserIDFromContext(r.Context())
	if userID == "" {
		respondCartError(w, http.StatusUnauthorized, "missing user authentication")
		return
	}

	var req UpdateItemRequestDTO
	if err := h.decodeBody(w, r, &req); err != nil {
		respondCartError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Quantity == nil {
		respondCartError(w, http.StatusBadRequest, "quantity is required")
		return
	}

	cart, err := h.carts.UpdateItemQuantity(ctx, userID, req.ItemID, *req.Quantity)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, CartResponse{Status: "success", Data: cart})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := UserIDFromContext(r.Context())
	if userID == "" {
		respondCartError(w, http.StatusUnauthorized, "missing user authentication")
		return
	}

	var req RemoveItemRequestDTO
	if err := h.decodeBody(w, r, &req); err != nil {
		respondCartError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.carts.RemoveItem(ctx, userID, req.ItemID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, CartResponse{Status: "success", Data: view})
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := UserIDFromContext(r.Context())
	if userID == "" {
		respondCartError(w, http.StatusUnauthorized, "missing user authentication")
		return
	}

	if err := h.carts.Clear(ctx, userID); err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, CartResponse{Status: "success", Message: "Cart cleared successfully"})
}

func (h *CartHandler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return errors.New("invalid JSON body")
	}
	return nil
}

func (h *CartHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	logError(r, h.log, status, err)
	respondCartError(w, status, message)
}

func respondCartError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, CartResponse{Status: "error", Message: message})
}
