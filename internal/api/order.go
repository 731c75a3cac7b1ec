package api

import (
	"errors"
	"net/http"

	"orderpay-be/internal/logger"
	"orderpay-be/internal/order"
	"orderpay-be/internal/payment"
	"orderpay-be/internal/reconcile"
	"orderpay-be/internal/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type OrderHandler struct {
	svc reconcile.Service
}

func NewOrderHandler(svc reconcile.Service) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// Routes mounts the order endpoints. adminOnly guards delivery.
func (h *OrderHandler) Routes(r chi.Router, adminOnly func(http.Handler) http.Handler) {
	r.Post("/orders/{id}/pay", h.Pay)
	r.With(adminOnly).Post("/orders/{id}/deliver", h.Deliver)
}

func (h *OrderHandler) Pay(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx := logger.WithOrderID(r.Context(), orderID)

	intent, err := h.svc.InitiatePayment(ctx, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, intent)
}

func (h *OrderHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx := logger.WithOrderID(r.Context(), orderID)

	if err := h.svc.MarkDelivered(ctx, orderID); err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var te *order.TransitionError

	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		utils.WriteJSONError(w, "order not found", http.StatusNotFound)
	case errors.As(err, &te):
		utils.WriteJSON(w, http.StatusConflict, map[string]string{
			"error": "invalid state transition",
			"state": string(te.Current),
		})
	case errors.Is(err, order.ErrInvalidStateTransition):
		utils.WriteJSONError(w, "invalid state transition", http.StatusConflict)
	case errors.Is(err, payment.ErrGatewayUnavailable):
		utils.WriteJSONError(w, "payment gateway unavailable", http.StatusBadGateway)
	default:
		logger.FromCtx(r.Context()).Error("request failed",
			zap.String("layer", "api"),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		utils.WriteJSONError(w, "internal error", http.StatusInternalServerError)
	}
}
