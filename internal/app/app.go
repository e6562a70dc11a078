package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/veristore/veristore/internal/delivery"
	"github.com/veristore/veristore/internal/domain/auth"
	"github.com/veristore/veristore/internal/domain/catalog"
	"github.com/veristore/veristore/internal/domain/checkout"
	"github.com/veristore/veristore/internal/domain/fulfillment"
	"github.com/veristore/veristore/internal/domain/pool"
	"github.com/veristore/veristore/internal/gateway/govcheckout"
	"github.com/veristore/veristore/internal/gateway/mockpay"
	"github.com/veristore/veristore/internal/handler"
	"github.com/veristore/veristore/pkg/health"
	"github.com/veristore/veristore/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("gateway", cfg.Gateway.Mode),
	)

	cat := catalog.Default()
	codes, err := newPool(ctx, lg, cfg.Pool, cat.ActiveKeys())
	if err != nil {
		return err
	}
	store := fulfillment.NewStore()
	outbox := delivery.NewOutbox(cfg.Delivery.OutboxSize)

	coOpts := []checkout.Option{
		checkout.WithMeterProvider(m.MeterProvider()),
		checkout.WithTracerProvider(m.TracerProvider()),
	}
	operatorKeys, err := auth.NewKeys(cfg.Operator.KeyHashes...)
	if err != nil {
		return errors.Wrap(err, "parse operator keys")
	}
	if operatorKeys.Empty() {
		lg.Warn("No operator keys configured, delivery log is served without authentication")
	}

	hOpts := []handler.Option{
		handler.WithDeliveryLog(outbox),
		handler.WithThrottle(httpmiddleware.Throttle(ctx, httpmiddleware.ThrottleConfig{
			Max:               cfg.Throttle.Max,
			Window:            cfg.Throttle.Window,
			TrustProxyHeaders: cfg.Throttle.TrustProxyHeaders,
		})),
	}
	if !operatorKeys.Empty() {
		hOpts = append(hOpts, handler.WithOperatorAuth(operatorKeys.Valid))
	}
	switch cfg.Gateway.Mode {
	case GatewayGov:
		gw, err := govcheckout.New(govcheckout.Config{
			BaseURL:     cfg.Gateway.BaseURL,
			APIKey:      cfg.Gateway.APIKey,
			MDABranch:   cfg.Gateway.MDABranch,
			RedirectURL: cfg.Gateway.RedirectURL,
			PostURL:     cfg.Gateway.PostURL,
			Timeout:     cfg.Gateway.Timeout,
		}, govcheckout.WithTelemetry(m.TracerProvider(), m.MeterProvider()))
		if err != nil {
			return errors.Wrap(err, "create govcheckout client")
		}
		coOpts = append(coOpts, checkout.WithGateway(gw))
	case GatewayMock:
		gw := mockpay.New(cfg.Gateway.PublicURL)
		coOpts = append(coOpts, checkout.WithGateway(gw))
		hOpts = append(hOpts, handler.WithMockGateway(gw))
	}

	coordinator, err := checkout.New(cat, codes, store, outbox, coOpts...)
	if err != nil {
		return errors.Wrap(err, "create checkout coordinator")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("stock", time.Second, health.StockCheck(stockLevels(codes, cat.ActiveKeys()), cfg.Pool.MinStock))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	handler.New(coordinator, store, cat, hOpts...).Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.Instrument("veristore-api", m),
			httpmiddleware.LogRequests("/livez", "/readyz"),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newPool loads provisioned stock, then seeds every active key.
func newPool(ctx context.Context, lg *zap.Logger, cfg PoolConfig, keys []catalog.Key) (*pool.Pool, error) {
	codes := pool.New(pool.Config{
		Replenish:      cfg.Replenish,
		Reserve:        cfg.Seed,
		LedgerCapacity: cfg.LedgerCapacity,
		LedgerFPR:      cfg.LedgerFPR,
	})

	if cfg.StockDir != "" {
		loaded, err := codes.LoadStockDir(ctx, cfg.StockDir, keys)
		if err != nil {
			return nil, errors.Wrap(err, "load stock")
		}
		for key, st := range loaded {
			lg.Info("Stock loaded", zap.Stringer("key", key), zap.Int("codes", st.Accepted))
			if st.Skipped > 0 {
				lg.Warn("Stock codes skipped",
					zap.Stringer("key", key),
					zap.Int("skipped", st.Skipped),
					zap.String("reason", "blank, duplicate or possibly issued before"),
				)
			}
		}
	}
	for _, key := range keys {
		if err := codes.Ensure(key, cfg.Seed); err != nil {
			return nil, errors.Wrapf(err, "seed %s", key)
		}
	}
	return codes, nil
}

func stockLevels(codes *pool.Pool, keys []catalog.Key) func() map[string]int {
	return func() map[string]int {
		out := make(map[string]int, len(keys))
		for _, key := range keys {
			out[key.String()] = codes.Available(key)
		}
		return out
	}
}
