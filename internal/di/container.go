// Package di wires the application components together with explicit
// constructor injection. Component singletons live on the Container, one
// per process, so tests can build a fresh graph instead of sharing
// module-level globals.
package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fixia-backend/internal/cache"
	"fixia-backend/internal/config"
	"fixia-backend/internal/handlers"
	"fixia-backend/internal/middleware"
	"fixia-backend/internal/monitoring"
	"fixia-backend/internal/queue"
	"fixia-backend/internal/repository/postgres"
)

// Container holds the process-wide component graph.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Pool    *pgxpool.Pool
	Store   cache.KeyValueStore
	Cache   *cache.Service
	Jobs    *queue.Manager
	Monitor *monitoring.Monitor
	Metrics *monitoring.Metrics
	Router  chi.Router
}

// New builds the full component graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	store := cache.NewStore(cfg.Redis, cfg.Environment, logger)
	cacheSvc := cache.NewService(store, cfg.Cache, logger)

	// Durable queueing rides on the same infrastructure as the cache: if
	// the store never came up, jobs run inline.
	jobs := queue.NewManager(cfg.Queue, cache.Durable(store), logger)

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(registry)

	monitor := monitoring.NewMonitor(
		monitoring.PingerFunc(pool.Ping),
		monitoring.PingerFunc(store.Ping),
		cfg.Monitoring.Interval,
		metrics,
		logger,
	)

	serviceRepo := postgres.NewServiceRepository(pool)
	favoriteRepo := postgres.NewFavoriteRepository(pool)
	analyticsRepo := postgres.NewAnalyticsRepository(pool)

	queue.RegisterDefaults(jobs, analyticsRepo, logger)

	servicesHandler := handlers.NewServicesHandler(serviceRepo, cacheSvc, jobs, logger)
	favoritesHandler := handlers.NewFavoritesHandler(favoriteRepo, cacheSvc, jobs, logger)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsRepo, cacheSvc, jobs, logger)
	healthHandler := handlers.NewHealthHandler(monitor, jobs, logger)

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Store:   store,
		Cache:   cacheSvc,
		Jobs:    jobs,
		Monitor: monitor,
		Metrics: metrics,
	}
	c.Router = c.buildRouter(servicesHandler, favoritesHandler, analyticsHandler, healthHandler, registry)
	return c, nil
}

func (c *Container) buildRouter(
	services *handlers.ServicesHandler,
	favorites *handlers.FavoritesHandler,
	analytics *handlers.AnalyticsHandler,
	health *handlers.HealthHandler,
	registry *prometheus.Registry,
) chi.Router {
	cfg := c.Config
	logger := c.Logger
	cacheSvc := c.Cache

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "X-Cache", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Identity(cfg.Auth.JWTSecret, logger))

	r.Get("/health", health.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	cacheOpts := middleware.CacheResponseOptions{
		TTL:               cfg.Cache.ShortTTL,
		SkipAuthenticated: true,
		OnHit:             c.Metrics.CacheHits.Inc,
		OnMiss:            c.Metrics.CacheMisses.Inc,
	}
	// Response-cache envelopes for listing GETs stay out of the explicit
	// invalidation set: they vary by query string and caller identity, so
	// like filtered listing variants they age out with their TTL.
	invalidateServiceOpts := middleware.InvalidateCacheOptions{
		InvalidateUser: true,
		ServiceID: func(r *http.Request) string {
			return chi.URLParam(r, "serviceID")
		},
	}
	invalidateFavoritesOpts := middleware.InvalidateCacheOptions{
		Keys: func(r *http.Request) []string {
			if userID := middleware.UserID(r.Context()); userID != "" {
				return []string{cacheSvc.Keys().Favorites(userID)}
			}
			return nil
		},
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.CircuitBreaker(middleware.DefaultCircuitBreakerConfig("api"), logger))
		r.Use(middleware.RateLimit(cacheSvc, 100, time.Minute, logger))

		r.Group(func(r chi.Router) {
			r.Use(middleware.CacheResponse(cacheSvc, logger, cacheOpts))
			r.Get("/services", services.List)
			r.Get("/services/{serviceID}", services.Detail)
			r.Get("/categories", services.Categories)
			r.Get("/analytics/summary", analytics.Summary)
		})

		r.Post("/analytics/events", analytics.Track)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)

			r.With(middleware.InvalidateCache(cacheSvc, logger, invalidateServiceOpts)).
				Post("/services", services.Create)
			r.With(middleware.InvalidateCache(cacheSvc, logger, invalidateServiceOpts)).
				Put("/services/{serviceID}", services.Update)

			r.Get("/favorites", favorites.List)
			r.With(middleware.InvalidateCache(cacheSvc, logger, invalidateFavoritesOpts)).
				Post("/favorites/{serviceID}", favorites.Add)
			r.With(middleware.InvalidateCache(cacheSvc, logger, invalidateFavoritesOpts)).
				Delete("/favorites/{serviceID}", favorites.Remove)
		})
	})

	return r
}

// Start launches the background components.
func (c *Container) Start() {
	c.Jobs.Start()
	c.Monitor.Start()
}

// Shutdown stops background components and releases resources.
func (c *Container) Shutdown(ctx context.Context) {
	c.Monitor.Stop()
	c.Jobs.Stop(ctx)
	c.Store.Close()
	c.Pool.Close()
}
