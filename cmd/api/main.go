package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roc-passaporte/backend-passaporte/internal/audit"
	"github.com/roc-passaporte/backend-passaporte/internal/auth"
	"github.com/roc-passaporte/backend-passaporte/internal/common"
	"github.com/roc-passaporte/backend-passaporte/internal/config"
	"github.com/roc-passaporte/backend-passaporte/internal/customer"
	"github.com/roc-passaporte/backend-passaporte/internal/db"
	"github.com/roc-passaporte/backend-passaporte/internal/events"
	"github.com/roc-passaporte/backend-passaporte/internal/health"
	"github.com/roc-passaporte/backend-passaporte/internal/lock"
	"github.com/roc-passaporte/backend-passaporte/internal/notify"
	"github.com/roc-passaporte/backend-passaporte/internal/obs"
	"github.com/roc-passaporte/backend-passaporte/internal/ratelimit"
	"github.com/roc-passaporte/backend-passaporte/internal/restaurant"
	"github.com/roc-passaporte/backend-passaporte/internal/security"
	"github.com/roc-passaporte/backend-passaporte/internal/validation"
	"github.com/roc-passaporte/backend-passaporte/internal/voucher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "passaporte")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "passaporte-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
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

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "passaporte-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	authService, err := auth.NewService(auth.Config{
		Store:           &auth.PGStore{Pool: pool},
		Secret:          cfg.JWTSecret,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		Issuer:          cfg.JWTIssuer,
		Audience:        cfg.JWTAudience,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	authHandler := &auth.Handler{
		Service:           authService,
		AccessCookieName:  envOrDefault("AUTH_ACCESS_COOKIE", "pp_access"),
		RefreshCookieName: envOrDefault("AUTH_REFRESH_COOKIE", "pp_refresh"),
		CookieDomain:      envOrDefault("AUTH_COOKIE_DOMAIN", ""),
		CookieSecure:      cfg.AppEnv != "development",
		CookieSameSite:    http.SameSiteLaxMode,
	}
	authMiddleware := auth.Middleware{
		Service:      authService,
		AccessCookie: envOrDefault("AUTH_ACCESS_COOKIE", "pp_access"),
	}

	customerSvc := &customer.Service{Pool: pool}
	restaurantSvc := &restaurant.Service{
		Pool:  pool,
		Cache: restaurant.Cache{R: redisClient, TTL: cfg.RestaurantCacheTTL},
		Log:   logger,
	}
	restaurantHandler := &restaurant.Handler{Svc: restaurantSvc}

	notifyStore := &notify.PGStore{Pool: pool}
	dispatcher := &notify.Dispatcher{
		Store:              notifyStore,
		Client:             notify.HTTPClient(cfg.WebhookRequestTimeout, cfg.WebhookAllowInsecureTLS),
		BackoffBase:        time.Duration(cfg.WebhookBackoffBaseSec) * time.Second,
		DefaultMaxAttempts: cfg.WebhookDefaultMaxAttempts,
		Enabled:            cfg.WebhookDeliveryEnabled,
		Replay:             notify.RedisReplayProtector{Client: redisClient},
		ReplayTTL:          cfg.WebhookReplayTTL,
	}
	emailNotifier := notify.EmailNotifier{
		Mail:    common.NopEmailSender{},
		Enabled: cfg.NotifyEmailEnabled,
		From:    cfg.NotifyEmailFrom,
	}

	bus := &events.Bus{Store: &events.PGStore{Pool: pool}, Log: logger}
	for _, topic := range events.Topics() {
		topic := topic
		bus.Subscribe(topic, func(ctx context.Context, e events.Event) {
			if err := dispatcher.Schedule(ctx, e); err != nil {
				logger.Error().Err(err).Str("topic", topic).Msg("schedule webhook")
			}
		})
		bus.Subscribe(topic, func(ctx context.Context, e events.Event) {
			if err := emailNotifier.Notify(ctx, e); err != nil {
				logger.Error().Err(err).Str("topic", topic).Msg("send notification email")
			}
		})
	}

	voucherSvc := &voucher.Service{
		Store:       voucher.NewPGStore(pool),
		Restaurants: restaurantSvc,
		Customers:   customerSvc,
		Events:      bus,
		Locker:      lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff},
		Log:         logger,
		BatchSize:   cfg.VoucherBatchSize,
		Validity:    cfg.VoucherValidity,
		LockTTL:     cfg.LockTTL,
	}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	voucherHandler := &voucher.Handler{
		Svc:     voucherSvc,
		Display: &voucher.DisplayStore{R: redisClient, Window: cfg.DisplayWindow},
		Idem:    idem.Middleware,
	}

	auditStore := &audit.PGStore{Pool: pool}
	auditAdmin := &audit.AdminHandler{Store: auditStore}

	limiter := ratelimit.Limiter{Client: redisClient, Prefix: "rl:"}
	validationHandler := &validation.Handler{
		Svc:        voucherSvc,
		Customers:  customerSvc,
		Audit:      auditStore,
		Validate:   validator.New(),
		Limiter:    limiter,
		Log:        logger,
		RateWindow: cfg.ValidatorRateWindow,
		RateMax:    cfg.ValidatorRateMax,
	}
	validatorIPLimit := ratelimit.Handler{
		Limiter: limiter,
		Config: ratelimit.Config{
			Key:    func(r *http.Request) string { return "validator:ip:" + common.ClientIP(r) },
			Window: cfg.ValidatorRateWindow,
			Max:    cfg.ValidatorRateMax * 4,
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("validator rate limit") },
	}

	notifyAdmin := &notify.AdminHandler{Store: notifyStore}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:     envBool("SECURE_HEADERS_ENABLE", true),
		EnableHSTS: cfg.AppEnv == "production",
		HSTSMaxAge: envInt("SECURE_HSTS_MAX_AGE", 31536000),
	}.Middleware)
	r.Use(security.BodyLimit{Max: int64(envInt("SECURE_MAX_BODY_BYTES", 1<<20))}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	pprofEnabled := envBool("OBS_ENABLE_PPROF", true)
	if pprofEnabled {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/restaurants", restaurantHandler.Routes)

		v.Route("/auth", func(a chi.Router) {
			a.Post("/register", authHandler.Register)
			a.Post("/login", authHandler.Login)
			a.Post("/refresh", authHandler.Refresh)
			a.Post("/logout", authHandler.Logout)

			a.Group(func(protected chi.Router) {
				protected.Use(authMiddleware.RequireAuth)
				protected.Get("/me", authHandler.Me)
			})
		})

		v.Route("/passport", func(p chi.Router) {
			p.Use(authMiddleware.RequireAuth)
			p.Group(voucherHandler.Routes)
		})

		v.Route("/validator", func(val chi.Router) {
			val.Use(validatorIPLimit.Middleware)
			val.Group(validationHandler.Routes)
		})

		v.Route("/admin/webhooks", func(admin chi.Router) {
			admin.Use(authMiddleware.RequireAuth)
			admin.Group(notifyAdmin.Routes)
		})

		v.Route("/admin/redemptions", func(admin chi.Router) {
			admin.Use(authMiddleware.RequireAuth)
			admin.Group(auditAdmin.Routes)
		})
	})

	if cfg.WebhookDeliveryEnabled && envBool("WEBHOOK_INLINE_WORKER", false) {
		go func() {
			ticker := time.NewTicker(2 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				if err := dispatcher.WorkOnce(context.Background(), 50); err != nil {
					logger.Error().Err(err).Msg("dispatch webhook")
				}
			}
		}()
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		serverErr <- srv.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-stopCtx.Done():
		health.SetReady(false)
		grace := envDurationMillis("SHUTDOWN_GRACE_MS", 15000)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("forced shutdown")
		}
		logger.Info().Msg("server stopped")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
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

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
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
