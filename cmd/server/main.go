package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"orderpay-be/internal/alert"
	"orderpay-be/internal/api"
	"orderpay-be/internal/auth"
	"orderpay-be/internal/config"
	"orderpay-be/internal/db"
	"orderpay-be/internal/inventory"
	"orderpay-be/internal/logger"
	"orderpay-be/internal/metrics"
	"orderpay-be/internal/middleware"
	"orderpay-be/internal/order"
	"orderpay-be/internal/payment"
	"orderpay-be/internal/payment/webhook"
	"orderpay-be/internal/reconcile"
	"orderpay-be/internal/utils"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const (
	callbackPath = "/payments/callback"
	payPattern   = "/orders/*/pay"
)

var (
	initDBFunc      = db.NewDatabase
	startServerFunc = func(srv *http.Server) error { return srv.ListenAndServe() }
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.L().Fatal("server exited", zap.Error(err))
	}
}

type app struct {
	router  http.Handler
	svc     reconcile.Service
	limiter *middleware.Limiter
	closers []io.Closer
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			logger.L().Warn("failed to close resource", zap.Error(err))
		}
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database, err := initDBFunc(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	a, err := newServer(cfg, database)
	if err != nil {
		return err
	}
	defer a.Close()

	bgCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		reconcile.RunSweeper(bgCtx, a.svc, cfg.SweepInterval, cfg.SweepGrace)
	}()
	go func() {
		defer wg.Done()
		a.limiter.Cleanup(bgCtx, time.Minute)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
		errCh <- startServerFunc(srv)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.L().Info("shutting down")
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		return srv.Shutdown(shutdownCtx)
	}
}

func newServer(cfg *config.Config, database *sql.DB) (*app, error) {
	m := metrics.New()

	gateway, err := payment.NewRazorpayGateway(payment.GatewayConfig{
		BaseURL:   cfg.GatewayBaseURL,
		KeyID:     cfg.GatewayKeyID,
		KeySecret: cfg.GatewayKeySecret,
		Timeout:   cfg.GatewayTimeout,
	}, m)
	if err != nil {
		return nil, err
	}

	verifier, err := payment.NewVerifier(cfg.WebhookSecret)
	if err != nil {
		return nil, err
	}

	alerter, closer, err := alert.FromConfig(cfg, m)
	if err != nil {
		return nil, err
	}

	svc := reconcile.NewService(reconcile.Deps{
		Orders:             order.NewRepository(database),
		Gateway:            gateway,
		Rates:              payment.NewFixedRate(cfg.StoreCurrency, cfg.SettlementCurrency, cfg.FXRate),
		Verifier:           verifier,
		Inventory:          inventory.NewAdjuster(database, m),
		Alerter:            alerter,
		Callbacks:          payment.NewCallbackLog(database),
		Metrics:            m,
		SettlementCurrency: cfg.SettlementCurrency,
	})

	limiter := newLimiter(cfg.InternalKey)
	router := setupRouter(
		api.NewOrderHandler(svc),
		webhook.NewHandler(svc),
		m,
		limiter,
		middleware.RequireRole([]byte(cfg.JWTSecret), auth.RoleAdmin),
		database,
	)

	a := &app{router: router, svc: svc, limiter: limiter}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	return a, nil
}

// newLimiter throttles payment initiation per client. Callbacks are
// authenticated by their signature and come from the gateway's shared
// egress addresses, so they are not limited.
func newLimiter(internalKey string) *middleware.Limiter {
	return middleware.NewLimiter(internalKey, payPattern).Exempt(callbackPath)
}

type pinger interface {
	PingContext(ctx context.Context) error
}

func setupRouter(
	orders *api.OrderHandler,
	callbacks *webhook.Handler,
	m *metrics.Metrics,
	limiter *middleware.Limiter,
	adminOnly func(http.Handler) http.Handler,
	database pinger,
) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(logger.RequestIDMiddleware)
	r.Use(logger.LoggingMiddleware)
	r.Use(m.Middleware)
	r.Use(limiter.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := database.PingContext(ctx); err != nil {
			logger.FromCtx(r.Context()).Warn("health check failed", zap.Error(err))
			utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "DOWN"})
			return
		}
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "OK"})
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	orders.Routes(r, adminOnly)
	r.Post(callbackPath, callbacks.Callback)

	return r
}
