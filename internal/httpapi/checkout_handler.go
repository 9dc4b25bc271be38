package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/fjod/go_cart/cartsync/internal/checkout"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	coordinator *checkout.Coordinator
	logger      *zap.Logger
}

func NewCheckoutHandler(coordinator *checkout.Coordinator, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{coordinator: coordinator, logger: log}
}

type BeginCheckoutRequestDTO struct {
	BuyNow      []AddItemRequestDTO `json:"buy_now,omitempty"`
	VoucherCode string              `json:"voucher_code,omitempty"`
}

type CommitRequestDTO struct {
	Address       *domain.Address `json:"address"`
	PaymentMethod string          `json:"payment_method"`
}

type CheckoutResponseDTO struct {
	State        string                 `json:"state"`
	Finished     bool                   `json:"finished"`
	OrderPlaced  bool                   `json:"order_placed"`
	FailedStep   string                 `json:"failed_step,omitempty"`
	Staged       *domain.StagedCheckout `json:"staged,omitempty"`
	Order        *domain.Order          `json:"order,omitempty"`
	PendingSteps []string               `json:"pending_steps,omitempty"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Begin(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	var req BeginCheckoutRequestDTO
	// an empty body stages the cart
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	opts := checkout.BeginOptions{VoucherCode: strings.TrimSpace(req.VoucherCode)}
	for _, item := range req.BuyNow {
		if item.ProductID == "" || item.Quantity <= 0 || item.UnitPrice < 0 || item.StockLimit < 0 {
			respondError(w, http.StatusBadRequest, "invalid_line", "buy_now lines need product_id, positive quantity and non-negative price and stock")
			return
		}
		opts.BuyNow = append(opts.BuyNow, domain.CartLine{
			ProductID:  item.ProductID,
			Color:      item.Color,
			Size:       item.Size,
			Name:       item.Name,
			ImageURL:   item.ImageURL,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
			StockLimit: item.StockLimit,
		})
	}

	staged, err := h.coordinator.Begin(r.Context(), checkout.Session{UserID: userID}, opts)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, CheckoutResponseDTO{State: stateName(domain.CheckoutStateStaged), Staged: staged})
}

// GET /api/v1/checkout
func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	staged, err := h.coordinator.Resume(r.Context(), checkout.Session{UserID: userID})
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	resp := CheckoutResponseDTO{State: stateName(domain.CheckoutStateIdle), Staged: staged}
	if last := h.coordinator.LastResult(userID); last != nil {
		resp = toResponse(last)
		resp.Staged = staged
	}
	respondJSON(w, http.StatusOK, resp)
}

// DELETE /api/v1/checkout
func (h *CheckoutHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if err := h.coordinator.Cancel(r.Context(), checkout.Session{UserID: userID}); err != nil {
		handleError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/checkout/commit
func (h *CheckoutHandler) Commit(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	var req CommitRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	res, err := h.coordinator.Commit(r.Context(), checkout.Session{UserID: userID}, checkout.CommitRequest{
		Address:       req.Address,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	// a degraded commit is still a placed order
	respondJSON(w, http.StatusCreated, toResponse(res))
}

func toResponse(res *checkout.Result) CheckoutResponseDTO {
	resp := CheckoutResponseDTO{
		State:       stateName(res.State),
		Finished:    res.State.IsTerminal(),
		OrderPlaced: res.State.OrderExists(),
		FailedStep:  string(res.FailedStep),
		Staged:      res.Staged,
		Order:       res.Order,
	}
	if res.Degradation != nil {
		for _, s := range res.Degradation.Steps {
			resp.PendingSteps = append(resp.PendingSteps, string(s))
		}
	}
	return resp
}

func stateName(s domain.CheckoutState) string {
	return strings.ToLower(string(s))
}
