package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"presensi/internal/attendance"
	"presensi/internal/auth"
	"presensi/internal/cloudinary"
	"presensi/internal/config"
	"presensi/internal/directory"
	"presensi/internal/gatekeeper"
	"presensi/internal/handler"
	"presensi/internal/httpmiddleware"
	"presensi/internal/memstore"
	"presensi/internal/metrics"
	"presensi/internal/notify"
	"presensi/internal/portal"
	"presensi/internal/queue"
	"presensi/internal/ratelimit"
	"presensi/internal/session"
	"presensi/internal/settings"
	"presensi/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	config.SetupLogging(cfg)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

// backends groups the storage chosen by STORE_BACKEND.
type backends struct {
	dir      directory.Store
	records  attendance.RecordStore
	settings settings.Store
	db       *store.DB
}

func openBackends(ctx context.Context, cfg config.App) (backends, error) {
	if cfg.StoreBackend == "memory" {
		log.Warn().Msg("using in-memory store, data is lost on restart")
		return backends{
			dir:      memstore.NewDirectory(),
			records:  memstore.NewRecords(),
			settings: memstore.NewSettings(),
		}, nil
	}
	if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
		return backends{}, err
	}
	db, err := store.NewDB(ctx, cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		return backends{}, err
	}
	return backends{
		dir:      directory.NewRepository(db.Client),
		records:  attendance.NewRepository(db.Client),
		settings: settings.NewRepository(db.Client),
		db:       db,
	}, nil
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.db.Close()

	var redisClient *store.Redis
	if cfg.LimiterBackend == "redis" || cfg.QueueBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer redisClient.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	holder := config.NewHolder(cfg, config.Load)

	tokens, err := session.NewService([]byte(cfg.SessionSecret), cfg.SessionTTL)
	if err != nil {
		return err
	}

	var counters ratelimit.CounterStore
	memCounters := ratelimit.NewMemoryStore()
	if cfg.LimiterBackend == "redis" {
		counters = ratelimit.NewRedisStore(redisClient.Client, "")
	} else {
		counters = memCounters
	}
	limiter := ratelimit.New(counters, ratelimit.Config{Limit: cfg.RateLimit, Window: cfg.RateWindow}).
		WithObserver(collector.RecordRateLimit)
	holder.OnReload(func(next config.App) {
		limiter.SetConfig(ratelimit.Config{Limit: next.RateLimit, Window: next.RateWindow})
	})

	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(redisClient.Client, "presensi:checkins")
	} else {
		q = queue.NewInMemory(256)
	}

	var photos attendance.PhotoStore
	if cfg.CloudinaryConfigured() {
		photos = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Info().Str("cloud", cfg.CloudinaryCloudName).Msg("cloudinary configured")
	} else {
		log.Info().Msg("cloudinary not configured, scans are stored without photos")
	}

	gate := gatekeeper.New(tokens, b.dir, limiter).WithObserver(collector.RecordAuth)
	engine := attendance.NewEngine(b.dir, b.records, photos, func() attendance.Policy {
		return attendance.PolicyFromConfig(holder.Current())
	}).
		OnAccept(queue.AcceptanceHook(q)).
		OnAccept(func(context.Context, attendance.Acceptance) { collector.RecordScanAccepted() }).
		OnReject(collector.RecordScanRejected)

	push := notify.New(cfg.OneSignalAppID, cfg.OneSignalRESTKey, 5, 10)
	deps := portal.Deps{
		Directory: b.dir,
		Records:   b.records,
		Settings:  b.settings,
		Tokens:    tokens,
		Limiter:   limiter,
		Gate:      gate,
		Engine:    engine,
		Config:    holder,
	}
	if push.Configured() {
		deps.Notifier = push
	}
	svc := portal.New(deps)

	devices, err := auth.NewIssuer(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.DeviceTokenTTL, cfg.RefreshTTL)
	if err != nil {
		return err
	}

	// Without redis there is no separate worker, so notifications are sent
	// from this process.
	if cfg.QueueBackend != "redis" {
		go consumeCheckins(ctx, q, push)
	}

	throttle := httpmiddleware.NewIPThrottle(cfg.ThrottlePerMinute, cfg.ThrottlePerMinute)
	go sweep(ctx, throttle, memCounters, holder)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger("/healthz", "/metrics"))
	r.Use(corsMiddleware(cfg.AllowedOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(collector.GinMiddleware())

	r.GET("/metrics", gin.WrapH(metrics.Handler(reg)))
	r.GET("/healthz", func(c *gin.Context) {
		dbHealthy := b.db == nil || b.db.Healthy(c.Request.Context())
		redisHealthy := redisClient == nil || redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		if !dbHealthy || !redisHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "db": dbHealthy, "redis": redisHealthy})
	})

	handler.New(svc, devices, cfg.MaxPhotoBytes).Register(r, throttle.GinMiddleware())

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("windows", cfg.Window.String()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced shutdown")
	}
	log.Info().Msg("server exited")
	return nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			handler.HeaderSession, handler.HeaderClientRole, handler.HeaderClientEmail, handler.HeaderClientStatus,
		},
		ExposeHeaders: []string{httpmiddleware.RequestIDHeader, "Retry-After"},
		MaxAge:        24 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
		c.AllowCredentials = true
	}
	return cors.New(c)
}

func consumeCheckins(ctx context.Context, q queue.Queue, push *notify.Client) {
	messages, err := q.Consume(ctx)
	if err != nil {
		log.Error().Err(err).Msg("checkin consumer init failed")
		return
	}
	for msg := range messages {
		if !push.Configured() {
			continue
		}
		if err := notify.HandleMessage(ctx, push, msg); err != nil {
			log.Warn().Err(err).Str("type", msg.Type).Msg("checkin notification failed")
		}
	}
}

// sweep drops idle throttle entries and expired in-memory limiter counters.
func sweep(ctx context.Context, throttle *httpmiddleware.IPThrottle, counters *ratelimit.MemoryStore, holder *config.Holder) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			ips := throttle.Sweep()
			keys := counters.Sweep(now.Add(-holder.Current().RateWindow))
			if ips+keys > 0 {
				log.Debug().Int("ips", ips).Int("keys", keys).Msg("rate limit state swept")
			}
		}
	}
}
