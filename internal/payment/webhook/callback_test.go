package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"orderpay-be/internal/order"
	"orderpay-be/internal/payment"
	"orderpay-be/internal/reconcile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) InitiatePayment(ctx context.Context, orderID string) (*reconcile.PaymentIntent, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconcile.PaymentIntent), args.Error(1)
}

func (m *MockService) HandleCallback(ctx context.Context, cb reconcile.Callback) (*reconcile.CallbackOutcome, error) {
	args := m.Called(ctx, cb)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconcile.CallbackOutcome), args.Error(1)
}

func (m *MockService) MarkDelivered(ctx context.Context, orderID string) error {
	return m.Called(ctx, orderID).Error(0)
}

func (m *MockService) SweepUnreconciled(ctx context.Context, olderThan time.Duration) (int, error) {
	args := m.Called(ctx, olderThan)
	return args.Int(0), args.Error(1)
}

const validBody = `{"gatewayOrderRef":"order_gw_1","gatewayPaymentId":"pay_1","signature":"abc"}`

func matchCallback(cb reconcile.Callback) bool {
	return cb.GatewayOrderRef == "order_gw_1" &&
		cb.GatewayPaymentID == "pay_1" &&
		cb.Signature == "abc" &&
		string(cb.Raw) == validBody
}

func post(t *testing.T, h *Handler, body string) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payments/callback", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Callback(w, req)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestHandler_Callback(t *testing.T) {
	t.Run("Confirmed", func(t *testing.T) {
		svc := new(MockService)
		svc.On("HandleCallback", mock.Anything, mock.MatchedBy(matchCallback)).
			Return(&reconcile.CallbackOutcome{OrderID: "ord-1", Inventory: order.InventoryApplied}, nil)

		w, resp := post(t, NewHandler(svc), validBody)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "confirmed", resp["status"])
		svc.AssertExpectations(t)
	})

	t.Run("DuplicateStillConfirmed", func(t *testing.T) {
		svc := new(MockService)
		svc.On("HandleCallback", mock.Anything, mock.Anything).
			Return(&reconcile.CallbackOutcome{OrderID: "ord-1", Duplicate: true}, nil)

		w, resp := post(t, NewHandler(svc), validBody)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "confirmed", resp["status"])
	})

	t.Run("MalformedBody", func(t *testing.T) {
		svc := new(MockService)

		w, resp := post(t, NewHandler(svc), `{not json`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "rejected", resp["status"])
		svc.AssertNotCalled(t, "HandleCallback", mock.Anything, mock.Anything)
	})

	tests := []struct {
		name   string
		err    error
		code   int
		status string
	}{
		{"BadSignature", payment.ErrSignatureMismatch, http.StatusBadRequest, "rejected"},
		{"UnknownOrder", order.ErrOrderNotFound, http.StatusNotFound, "rejected"},
		{"Conflict", fmt.Errorf("%w: order ord-1", reconcile.ErrConflictingPayment), http.StatusConflict, "rejected"},
		{"InvalidState", &order.TransitionError{OrderID: "ord-1", Current: order.StateCreated, Target: order.StatePaid}, http.StatusConflict, "rejected"},
		{"StoreDown", errors.New("connection refused"), http.StatusInternalServerError, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("HandleCallback", mock.Anything, mock.Anything).Return(nil, tt.err)

			w, resp := post(t, NewHandler(svc), validBody)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.status, resp["status"])
		})
	}

	t.Run("BodyTooLarge", func(t *testing.T) {
		svc := new(MockService)
		big := `{"signature":"` + strings.Repeat("a", maxBodyBytes) + `"}`

		w, resp := post(t, NewHandler(svc), big)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "rejected", resp["status"])
	})
}
