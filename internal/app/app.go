// Package app wires the checkout service together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/offer-checkout/internal/domain/auth"
	"github.com/xenking/offer-checkout/internal/domain/cart"
	"github.com/xenking/offer-checkout/internal/domain/coupon"
	"github.com/xenking/offer-checkout/internal/domain/pricing"
	"github.com/xenking/offer-checkout/internal/handler"
	"github.com/xenking/offer-checkout/internal/repository"
	"github.com/xenking/offer-checkout/internal/sales"
	"github.com/xenking/offer-checkout/pkg/health"
	"github.com/xenking/offer-checkout/pkg/httpmiddleware"
)

const serviceName = "checkout-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("sales_api", cfg.SalesAPI.BaseURL),
	)

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Sales API client, traced with the service providers.
	salesClient, err := sales.NewClient(cfg.SalesAPI, &http.Client{
		Timeout: cfg.SalesAPI.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	})
	if err != nil {
		return errors.Wrap(err, "create sales client")
	}

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	checkoutRepo := repository.NewCheckoutRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// Domain services. Local coupons shadow the sales API ones.
	engineCfg, err := cfg.Pricing.engineConfig()
	if err != nil {
		return errors.Wrap(err, "pricing config")
	}
	engine, err := pricing.NewEngine(engineCfg)
	if err != nil {
		return errors.Wrap(err, "create pricing engine")
	}
	verifier := coupon.NewRepoVerifier(coupon.Chain{couponRepo, sales.NewCouponRepository(salesClient)})
	carts := cart.NewService(salesClient, productRepo, verifier, engine, checkoutRepo, lg.Named("cart"))

	// HTTP handlers.
	h, err := handler.NewHandler(productRepo, engine, verifier, carts, m.MeterProvider().Meter(serviceName))
	if err != nil {
		return errors.Wrap(err, "create handler")
	}
	security := handler.NewSecurity(apikeyRepo, cfg.APIKeyPepper, auth.ScopeCheckout)

	// Health checks.
	checks := []health.Check{
		{Name: "postgres", Kind: health.Readiness, Timeout: 5 * time.Second, Func: health.PingCheck(pool)},
		{Name: "goroutines", Kind: health.Liveness, Timeout: time.Second, Func: health.GoroutineCountCheck(cfg.Health.GoroutineLimit)},
	}
	if cfg.Health.CheckSalesAPI {
		checks = append(checks, health.Check{
			Name:    "sales_api",
			Kind:    health.Readiness,
			Timeout: 5 * time.Second,
			Func: func(ctx context.Context) error {
				return salesClient.Ping(ctx, cfg.Health.SalesAPIPath)
			},
		})
	}
	probes := health.New(cfg.Health.Interval, checks...)

	// Router: health endpoints + API routes on one server.
	router := chi.NewRouter()
	router.Method(http.MethodGet, "/livez", probes.Handler(health.Liveness))
	router.Method(http.MethodGet, "/readyz", probes.Handler(health.Readiness))
	h.Register(router, security.Middleware)
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Checkout can chain several sales API calls.
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:          cfg.CORS.Origins,
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           cfg.CORS.MaxAge,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument(serviceName, routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return probes.Run(gctx)
	})
	g.Go(func() error {
		return carts.Run(gctx, cart.Retention{
			Idle:   cfg.Carts.IdleTimeout,
			Closed: cfg.Carts.ClosedRetention,
		})
	})
	g.Go(func() error {
		// Graceful shutdown: stop advertising readiness, drain, then stop.
		<-gctx.Done()
		probes.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		probes.SetReady(true)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}
