package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"orderpay-be/internal/config"
	"orderpay-be/internal/logger"
	"orderpay-be/internal/metrics"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.razorpay.com"
	DefaultTimeout = 15 * time.Second

	ordersPath = "/v1/orders"
)

type GatewayConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

type razorpayGateway struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

func NewRazorpayGateway(cfg GatewayConfig, m *metrics.Metrics) (Gateway, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, fmt.Errorf("%w: gateway key id and secret are required", config.ErrConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &razorpayGateway{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		metrics: m,
	}, nil
}

func (g *razorpayGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Intent, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("receipt", req.Receipt),
		zap.Int64("amount", req.Amount),
		zap.String("currency", req.Currency),
	)

	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, req.Amount)
	}
	if req.Currency == "" {
		return nil, fmt.Errorf("%w: empty currency", ErrUnsupportedCurrency)
	}

	timer := metrics.StartTimer()
	intent, err := g.createOrder(ctx, log, req)
	outcome := "ok"
	if err != nil {
		outcome = "unavailable"
	}
	g.metrics.ObserveGateway(outcome, timer.Duration())
	return intent, err
}

func (g *razorpayGateway) createOrder(ctx context.Context, log *zap.Logger, req CreateOrderRequest) (*Intent, error) {
	jsonBody, err := json.Marshal(rzpOrderRequest{
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    map[string]string{"order_id": req.Receipt},
	})
	if err != nil {
		log.Error("Failed to marshal gateway order request", zap.Error(err))
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+ordersPath, bytes.NewBuffer(jsonBody))
	if err != nil {
		log.Error("Failed creating request", zap.Error(err))
		return nil, err
	}
	httpReq.SetBasicAuth(g.keyID, g.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	log.Info("Sending order request to gateway")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		// A timeout here does not prove the gateway dropped the order.
		log.Error("Gateway request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("Failed to read response body", zap.Error(err))
		return nil, fmt.Errorf("%w: read response: %w", ErrGatewayUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Error("Gateway returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return nil, fmt.Errorf("%w: status %d: %s", ErrGatewayUnavailable, resp.StatusCode, string(bodyBytes))
	}

	var res rzpOrderResponse
	if err := json.Unmarshal(bodyBytes, &res); err != nil {
		log.Error("Failed decoding gateway response", zap.Error(err))
		return nil, fmt.Errorf("%w: decode response: %w", ErrGatewayUnavailable, err)
	}
	if res.ID == "" {
		log.Error("Gateway response has no order id", zap.ByteString("response", bodyBytes))
		return nil, fmt.Errorf("%w: response without order id", ErrGatewayUnavailable)
	}

	log.Info("Gateway order created",
		zap.String("gateway_order_ref", res.ID),
		zap.String("status", res.Status),
	)

	amount, currency := res.Amount, res.Currency
	if amount == 0 {
		amount = req.Amount
	}
	if currency == "" {
		currency = req.Currency
	}

	return &Intent{
		Ref:      res.ID,
		Amount:   amount,
		Currency: currency,
		Status:   res.Status,
		Raw:      json.RawMessage(bodyBytes),
	}, nil
}
