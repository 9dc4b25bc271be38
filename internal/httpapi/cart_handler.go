package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/cartstore"
	"github.com/fjod/go_cart/cartsync/internal/checkout"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/logger"
	"github.com/fjod/go_cart/cartsync/internal/pricing"
	"go.uber.org/zap"
)

type CartMirror interface {
	Push(ctx context.Context, userID string, line domain.CartLine) error
	DeleteLines(ctx context.Context, userID string, keys []domain.LineKey) error
}

type CartFilter interface {
	FilterCart(ctx context.Context, session checkout.Session, lines []domain.CartLine) ([]domain.CartLine, error)
}

type CartHandler struct {
	carts   *cartstore.Registry
	mirror  CartMirror
	filter  CartFilter
	logger  *zap.Logger
	timeout time.Duration
}

func NewCartHandler(carts *cartstore.Registry, mirror CartMirror, filter CartFilter, log *zap.Logger, timeout time.Duration) *CartHandler {
	return &CartHandler{carts: carts, mirror: mirror, filter: filter, logger: log, timeout: timeout}
}

type LineKeyDTO struct {
	ProductID string `json:"product_id"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
}

func (k LineKeyDTO) key() domain.LineKey {
	return domain.LineKey{ProductID: k.ProductID, Color: k.Color, Size: k.Size}
}

type AddItemRequestDTO struct {
	LineKeyDTO
	Name       string `json:"name"`
	ImageURL   string `json:"image_url"`
	UnitPrice  int64  `json:"unit_price"`
	Quantity   int    `json:"quantity"`
	StockLimit int    `json:"stock_limit"`
}

type UpdateQuantityRequestDTO struct {
	LineKeyDTO
	Delta int `json:"delta"`
}

type CartResponseDTO struct {
	Lines  []domain.CartLine `json:"lines"`
	Totals pricing.Totals    `json:"totals"`
}

type LineResponseDTO struct {
	Line    domain.CartLine `json:"line"`
	Clamped bool            `json:"clamped"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	var lines []domain.CartLine
	err := h.carts.With(r.Context(), userID, func(s *cartstore.Store) error {
		lines = s.List()
		return nil
	})
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	shown, err := h.filter.FilterCart(r.Context(), checkout.Session{UserID: userID}, lines)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	if shown == nil {
		shown = []domain.CartLine{}
	}
	respondJSON(w, http.StatusOK, CartResponseDTO{Lines: shown, Totals: pricing.Compute(shown, false)})
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be positive")
		return
	}

	line := domain.CartLine{
		ProductID:  req.ProductID,
		Color:      req.Color,
		Size:       req.Size,
		Name:       req.Name,
		ImageURL:   req.ImageURL,
		UnitPrice:  req.UnitPrice,
		Quantity:   req.Quantity,
		StockLimit: req.StockLimit,
	}
	var (
		stored  domain.CartLine
		clamped bool
	)
	err := h.carts.With(r.Context(), userID, func(s *cartstore.Store) error {
		var err error
		stored, clamped, err = s.Upsert(r.Context(), line)
		return err
	})
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	h.pushMirror(r.Context(), userID, stored)
	respondJSON(w, http.StatusCreated, LineResponseDTO{Line: stored, Clamped: clamped})
}

// PATCH /api/v1/cart/items
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	var (
		updated domain.CartLine
		clamped bool
	)
	err := h.carts.With(r.Context(), userID, func(s *cartstore.Store) error {
		var err error
		updated, clamped, err = s.UpdateQuantity(r.Context(), req.key(), req.Delta)
		return err
	})
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	h.pushMirror(r.Context(), userID, updated)
	respondJSON(w, http.StatusOK, LineResponseDTO{Line: updated, Clamped: clamped})
}

// DELETE /api/v1/cart/items
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	var req LineKeyDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	err := h.carts.With(r.Context(), userID, func(s *cartstore.Store) error {
		return s.Remove(r.Context(), req.key())
	})
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	h.deleteMirror(r.Context(), userID, []domain.LineKey{req.key()})
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	var keys []domain.LineKey
	err := h.carts.With(r.Context(), userID, func(s *cartstore.Store) error {
		keys = domain.Keys(s.List())
		return s.Clear(r.Context())
	})
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	h.deleteMirror(r.Context(), userID, keys)
	w.WriteHeader(http.StatusNoContent)
}

// mirror writes are best-effort; the local cart has already changed
func (h *CartHandler) pushMirror(ctx context.Context, userID string, line domain.CartLine) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := h.mirror.Push(ctx, userID, line); err != nil {
		logger.FromContext(ctx, h.logger).Warn("cart mirror push failed", zap.Error(err))
	}
}

func (h *CartHandler) deleteMirror(ctx context.Context, userID string, keys []domain.LineKey) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := h.mirror.DeleteLines(ctx, userID, keys); err != nil {
		logger.FromContext(ctx, h.logger).Warn("cart mirror delete failed", zap.Error(err))
	}
}
