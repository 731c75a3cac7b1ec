package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"orderpay-be/internal/config"
	"orderpay-be/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRoundTripper allows us to mock the HTTP response
type MockRoundTripper func(req *http.Request) *http.Response

func (f MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

type MockRoundTripperWithError func(req *http.Request) (*http.Response, error)

func (f MockRoundTripperWithError) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestGateway(t *testing.T) *razorpayGateway {
	t.Helper()
	gw, err := NewRazorpayGateway(GatewayConfig{KeyID: "rzp_test_key", KeySecret: "rzp_test_secret"}, metrics.New())
	require.NoError(t, err)
	return gw.(*razorpayGateway)
}

func TestNewRazorpayGateway(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		gw := newTestGateway(t)
		assert.Equal(t, DefaultBaseURL, gw.baseURL)
		assert.Equal(t, DefaultTimeout, gw.httpClient.Timeout)
	})

	t.Run("TrimsBaseURL", func(t *testing.T) {
		gw, err := NewRazorpayGateway(GatewayConfig{
			BaseURL: "http://localhost:9000/", KeyID: "k", KeySecret: "s", Timeout: time.Second,
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:9000", gw.(*razorpayGateway).baseURL)
	})

	t.Run("MissingKeys", func(t *testing.T) {
		_, err := NewRazorpayGateway(GatewayConfig{KeyID: "k"}, nil)
		assert.ErrorIs(t, err, config.ErrConfiguration)
	})
}

func TestRazorpayGateway_CreateOrder(t *testing.T) {
	gw := newTestGateway(t)
	req := CreateOrderRequest{Amount: 73250, Currency: "INR", Receipt: "ord-123"}

	t.Run("Success", func(t *testing.T) {
		respBody := `{
			"id": "order_EKwxwAgItmmXdp",
			"entity": "order",
			"amount": 73250,
			"currency": "INR",
			"receipt": "ord-123",
			"status": "created",
			"created_at": 1582628071
		}`

		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "https://api.razorpay.com/v1/orders", r.URL.String())

			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "rzp_test_key", user)
			assert.Equal(t, "rzp_test_secret", pass)

			var body rzpOrderRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, int64(73250), body.Amount)
			assert.Equal(t, "INR", body.Currency)
			assert.Equal(t, "ord-123", body.Receipt)

			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(bytes.NewBufferString(respBody)),
				Header:     make(http.Header),
			}
		})

		intent, err := gw.CreateOrder(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "order_EKwxwAgItmmXdp", intent.Ref)
		assert.Equal(t, int64(73250), intent.Amount)
		assert.Equal(t, "INR", intent.Currency)
		assert.Equal(t, "created", intent.Status)
	})

	t.Run("ServerError", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return &http.Response{
				StatusCode: http.StatusInternalServerError,
				Body:       io.NopCloser(bytes.NewBufferString(`{"error":{"code":"SERVER_ERROR"}}`)),
				Header:     make(http.Header),
			}
		})

		_, err := gw.CreateOrder(context.Background(), req)
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
		assert.Contains(t, err.Error(), "SERVER_ERROR")
	})

	t.Run("BadRequest", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return &http.Response{
				StatusCode: http.StatusBadRequest,
				Body:       io.NopCloser(bytes.NewBufferString(`{"error":{"code":"BAD_REQUEST_ERROR"}}`)),
				Header:     make(http.Header),
			}
		})

		_, err := gw.CreateOrder(context.Background(), req)
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
	})

	t.Run("NetworkError", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripperWithError(func(r *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		})

		_, err := gw.CreateOrder(context.Background(), req)
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(bytes.NewBufferString(`{invalid-json`)),
				Header:     make(http.Header),
			}
		})

		_, err := gw.CreateOrder(context.Background(), req)
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
	})

	t.Run("MissingID", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(bytes.NewBufferString(`{"status":"created"}`)),
				Header:     make(http.Header),
			}
		})

		_, err := gw.CreateOrder(context.Background(), req)
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
	})

	t.Run("RejectsBadInput", func(t *testing.T) {
		called := false
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			called = true
			return nil
		})

		_, err := gw.CreateOrder(context.Background(), CreateOrderRequest{Amount: 0, Currency: "INR"})
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = gw.CreateOrder(context.Background(), CreateOrderRequest{Amount: 100})
		assert.ErrorIs(t, err, ErrUnsupportedCurrency)
		assert.False(t, called)
	})
}

func TestRazorpayGateway_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	gw, err := NewRazorpayGateway(GatewayConfig{
		BaseURL: srv.URL, KeyID: "k", KeySecret: "s", Timeout: 20 * time.Millisecond,
	}, nil)
	require.NoError(t, err)

	_, err = gw.CreateOrder(context.Background(), CreateOrderRequest{Amount: 100, Currency: "INR", Receipt: "r"})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}
