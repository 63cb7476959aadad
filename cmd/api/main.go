package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limitermemory "github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/spn-retail/backend-pos/internal/billing"
	"github.com/spn-retail/backend-pos/internal/catalog"
	"github.com/spn-retail/backend-pos/internal/common"
	"github.com/spn-retail/backend-pos/internal/config"
	"github.com/spn-retail/backend-pos/internal/health"
	"github.com/spn-retail/backend-pos/internal/inventory"
	"github.com/spn-retail/backend-pos/internal/obs"
	"github.com/spn-retail/backend-pos/internal/offers"
	"github.com/spn-retail/backend-pos/internal/store"
	"github.com/spn-retail/backend-pos/internal/store/memory"
	"github.com/spn-retail/backend-pos/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "pos-api",
			Endpoint:      cfg.TracingEndpoint,
			SamplingRatio: cfg.TracingSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	probes := map[string]health.Probe{}

	var repo store.Repository
	if cfg.DatabaseURL != "" {
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
		pg, err := postgres.New(ctx, cfg.DatabaseURL, obs.PGXTracer{})
		if err != nil {
			logger.Fatal().Err(err).Msg("connect database")
		}
		defer pg.Close()
		probes["db"] = pg.Pool().Ping
		repo = pg
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using seeded in-memory store")
		repo = memory.NewSeeded()
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		redisClient = redis.NewClient(redisOpts)
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("ping redis")
		}
		probes["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	} else {
		logger.Warn().Msg("REDIS_URL not set, caching and idempotency disabled")
	}

	catalogService := catalog.New(catalog.Config{
		Store:  repo,
		Cache:  catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		Logger: logger,
	})
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{
		Service:         catalogService,
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
	})

	offersService := offers.New(offers.Config{Store: repo, Logger: logger})
	offersHandler := offers.NewHandler(offers.HandlerConfig{Service: offersService})

	inventoryService := inventory.New(inventory.Config{Store: repo, Logger: logger})
	inventoryHandler := inventory.NewHandler(inventory.HandlerConfig{Service: inventoryService})

	billingService := billing.New(billing.Config{Store: repo, Logger: logger})
	billingHandler := billing.NewHandler(billing.HandlerConfig{Service: billingService})

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	rate, err := limiter.NewRateFromFormatted(cfg.RateLimit)
	if err != nil {
		logger.Fatal().Err(err).Str("rate", cfg.RateLimit).Msg("parse rate limit")
	}
	var limiterStore limiter.Store
	if redisClient != nil {
		limiterStore, err = limiterredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "ratelimit:pos"})
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise rate limiter store")
		}
	} else {
		limiterStore = limitermemory.NewStore()
	}
	rateLimiter := limiterstdlib.NewMiddleware(limiter.New(limiterStore, rate))

	buckets := obs.ParseBucketsCSV(cfg.MetricsBuckets)
	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, buckets, nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	if envBool("ENABLE_PPROF", false) {
		user := os.Getenv("PPROF_BASIC_AUTH_USER")
		pass := os.Getenv("PPROF_BASIC_AUTH_PASS")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{Probes: probes, Timeout: 500 * time.Millisecond}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(rateLimiter.Handler)

		v.Route("/billing", func(b chi.Router) {
			b.Post("/preview", billingHandler.Preview)
			b.With(idem.Middleware).Post("/confirm", billingHandler.Confirm)
			b.Get("/invoices/{invoiceID}", billingHandler.Invoice)
		})

		v.Route("/products", func(p chi.Router) {
			p.Post("/", catalogHandler.Create)
			p.Get("/", catalogHandler.List)
			p.Get("/{code}", catalogHandler.Get)
		})

		v.Route("/offers", func(o chi.Router) {
			o.Post("/", offersHandler.Create)
			o.Get("/{productCode}", offersHandler.Active)
		})

		v.Route("/stock", func(st chi.Router) {
			st.Route("/outlets", func(o chi.Router) {
				o.Post("/", inventoryHandler.CreateOutlet)
				o.Get("/", inventoryHandler.ListOutlets)
				o.Get("/{outletID}", inventoryHandler.GetOutlet)
				o.Put("/{outletID}", inventoryHandler.UpdateOutlet)
				o.Delete("/{outletID}", inventoryHandler.DeleteOutlet)
			})
			st.Get("/low", inventoryHandler.LowStock)
			st.Post("/", inventoryHandler.CreateStock)
			st.Get("/", inventoryHandler.ListStock)
			st.Put("/{stockID}", inventoryHandler.UpdateStock)
			st.Delete("/{stockID}", inventoryHandler.DeleteStock)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-shutdownCtx.Done():
		logger.Info().Msg("shutdown signal received")
		health.SetReady(false)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
