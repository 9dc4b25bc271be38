package httpapi

import (
	"net/http"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/history"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type HistoryHandler struct {
	history *history.Service
	logger  *zap.Logger
}

func NewHistoryHandler(svc *history.Service, log *zap.Logger) *HistoryHandler {
	return &HistoryHandler{history: svc, logger: log}
}

type NotificationsResponseDTO struct {
	Notifications []*domain.Notification `json:"notifications"`
	Unread        int                    `json:"unread"`
}

// GET /api/v1/orders
func (h *HistoryHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.history.Orders(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// GET /api/v1/orders/{id}
func (h *HistoryHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_id", "order id is required")
		return
	}
	order, err := h.history.Order(r.Context(), userIDFromContext(r.Context()), id)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// GET /api/v1/notifications?unread=true
func (h *HistoryHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	unreadOnly := r.URL.Query().Get("unread") == "true"

	notes, err := h.history.Notifications(r.Context(), userID, unreadOnly)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	unread := len(notes)
	if !unreadOnly {
		if unread, err = h.history.UnreadCount(r.Context(), userID); err != nil {
			handleError(w, h.logger, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, NotificationsResponseDTO{Notifications: notes, Unread: unread})
}

// POST /api/v1/notifications/{id}/read
func (h *HistoryHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_id", "notification id is required")
		return
	}
	if err := h.history.MarkRead(r.Context(), userIDFromContext(r.Context()), id); err != nil {
		handleError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/notifications/read-all
func (h *HistoryHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	marked, err := h.history.MarkAllRead(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"marked": marked})
}
