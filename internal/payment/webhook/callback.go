package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"orderpay-be/internal/logger"
	"orderpay-be/internal/order"
	"orderpay-be/internal/payment"
	"orderpay-be/internal/reconcile"
	"orderpay-be/internal/utils"

	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

type response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type Handler struct {
	svc reconcile.Service
}

func NewHandler(svc reconcile.Service) *Handler {
	return &Handler{svc: svc}
}

// Callback receives the gateway's payment confirmation. Only a 200 tells the
// gateway to stop retrying.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	log := logger.FromCtx(r.Context()).With(zap.String("layer", "webhook"))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Warn("failed to read callback body", zap.Error(err))
		utils.WriteJSON(w, http.StatusBadRequest, response{Status: "rejected", Error: "unreadable body"})
		return
	}

	var cb reconcile.Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		log.Warn("malformed callback body", zap.Error(err))
		utils.WriteJSON(w, http.StatusBadRequest, response{Status: "rejected", Error: "invalid JSON payload"})
		return
	}
	cb.Raw = body

	out, err := h.svc.HandleCallback(r.Context(), cb)
	switch {
	case err == nil:
		log.Info("callback confirmed",
			zap.String("order_id", out.OrderID),
			zap.Bool("duplicate", out.Duplicate),
			zap.String("inventory", string(out.Inventory)),
		)
		utils.WriteJSON(w, http.StatusOK, response{Status: "confirmed"})
	case errors.Is(err, payment.ErrSignatureMismatch):
		utils.WriteJSON(w, http.StatusBadRequest, response{Status: "rejected", Error: "invalid signature"})
	case errors.Is(err, order.ErrOrderNotFound):
		utils.WriteJSON(w, http.StatusNotFound, response{Status: "rejected", Error: "order not found"})
	case errors.Is(err, reconcile.ErrConflictingPayment), errors.Is(err, order.ErrInvalidStateTransition):
		utils.WriteJSON(w, http.StatusConflict, response{Status: "rejected", Error: err.Error()})
	default:
		log.Error("callback processing failed", zap.Error(err))
		utils.WriteJSON(w, http.StatusInternalServerError, response{Status: "error", Error: "internal error"})
	}
}
