package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/platter/internal/catalog"
	"github.com/xenking/platter/internal/domain/analytics"
	"github.com/xenking/platter/internal/domain/auth"
	"github.com/xenking/platter/internal/domain/delivery"
	"github.com/xenking/platter/internal/domain/order"
	"github.com/xenking/platter/internal/handler"
	"github.com/xenking/platter/internal/storage/memory"
	"github.com/xenking/platter/internal/storage/postgres"
	redisstore "github.com/xenking/platter/internal/storage/redis"
	"github.com/xenking/platter/pkg/health"
	"github.com/xenking/platter/pkg/httpmiddleware"
)

// backend is the storage the services run on.
type backend struct {
	orders     order.Transactor
	deliveries delivery.Transactor
	source     analytics.OrderSource
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	var be backend
	switch cfg.Storage {
	case StorageMemory:
		store := memory.New()
		c, err := catalog.ReadFile(cfg.CatalogFile)
		if err != nil {
			return errors.Wrap(err, "read catalog")
		}
		if err := c.Apply(store); err != nil {
			return errors.Wrap(err, "apply catalog")
		}
		lg.Info("Catalog loaded",
			zap.String("file", cfg.CatalogFile),
			zap.Int("restaurants", len(c.Restaurants)),
			zap.Int("coupons", len(c.Coupons)),
		)
		be = backend{orders: store.OrderTransactor(), deliveries: store.DeliveryTransactor(), source: store}
	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))

		store := postgres.NewStore(pool)
		be = backend{
			orders:     store.OrderTransactor(),
			deliveries: store.DeliveryTransactor(),
			source:     postgres.NewAnalyticsSource(store),
		}
	}

	// Redis mirrors courier locations and backs the shared rate limiter.
	var (
		sink    delivery.LocationSink
		limiter httpmiddleware.Limiter
	)
	if cfg.Redis.Addr != "" {
		client, err := redisstore.NewClient(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = client.Close() }()

		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		sink = redisstore.NewLocationSink(client)
		limiter = redisstore.NewRateLimiter(client, cfg.RateLimit.Max, cfg.RateLimit.Window)
	} else {
		window := httpmiddleware.NewSlidingWindow(cfg.RateLimit.Max, cfg.RateLimit.Window)
		go window.Run(ctx)
		limiter = window
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Domain services.
	taxRate, err := cfg.TaxRate()
	if err != nil {
		return err
	}
	orderService := order.NewService(be.orders, order.Config{TaxRate: taxRate})
	deliveryService := delivery.NewService(be.deliveries, sink)
	aggregator := analytics.NewScanAggregator(be.source, analytics.Config{
		IncludeCancelled: cfg.Analytics.IncludeCancelled,
	})

	// HTTP handlers.
	h := handler.NewHandler(orderService, deliveryService, aggregator)
	securityHandler := handler.NewSecurityHandler(auth.NewTokens([]byte(cfg.JWT.SigningKey), cfg.JWT.Issuer))

	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Route("/api", func(r chi.Router) {
		r.Use(securityHandler.Authenticate)
		h.Mount(r)
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-Request-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{Limiter: limiter}),
			httpmiddleware.Instrument("platter-api", m),
			httpmiddleware.LogRequests(),
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
