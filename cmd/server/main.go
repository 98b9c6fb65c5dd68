// Package main runs the RSVP and check-in HTTP server with the station WebSocket feed and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-invite/backend/config"
	"github.com/aura-invite/backend/internal/analytics"
	"github.com/aura-invite/backend/internal/auth"
	"github.com/aura-invite/backend/internal/checkin"
	"github.com/aura-invite/backend/internal/credential"
	"github.com/aura-invite/backend/internal/guests"
	"github.com/aura-invite/backend/internal/middleware"
	"github.com/aura-invite/backend/internal/models"
	"github.com/aura-invite/backend/internal/realtime"
	"github.com/aura-invite/backend/internal/rsvp"
	"github.com/aura-invite/backend/internal/worker"
	"github.com/aura-invite/backend/pkg/metrics"
	"github.com/aura-invite/backend/pkg/qrcode"
	"github.com/aura-invite/backend/pkg/queue"
	"github.com/aura-invite/backend/pkg/redis"
	"github.com/aura-invite/backend/pkg/response"
	"github.com/aura-invite/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	store, closeStore, err := guests.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err), zap.String("driver", cfg.Database.Driver))
	}
	defer closeStore()

	// Redis is optional: without it the station feed is local to this instance,
	// cards render on request and the RSVP form is not rate limited.
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("redis disabled", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			QRBucket:             cfg.AWS.QRBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		}
	}

	codec, err := credential.NewCodec(cfg.CheckIn.CodePrefix)
	if err != nil {
		logger.Fatal("check-in codes", zap.Error(err))
	}
	renderer, err := qrcode.NewRenderer(cfg.RSVP.QRSize)
	if err != nil {
		logger.Fatal("qr renderer", zap.Error(err))
	}

	collector := metrics.NewCollector()
	if cfg.Server.MetricsEnabled {
		prometheus.MustRegister(collector)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Station feed
	var hub *realtime.Hub
	if rdb != nil {
		redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
		hub = realtime.NewHub(logger, redisPubSub, redisPubSub)
	} else {
		hub = realtime.NewHub(logger, nil, nil)
	}
	hub.SetStationCountHandler(collector.SetStationClients)

	// Aggregation
	summarySvc := analytics.NewService(store)
	summaryHandler := analytics.NewHandler(summarySvc, logger)

	// RSVP intake
	rsvpSvc := rsvp.NewService(store, codec, cfg.RSVP.MaxPax, logger)
	rsvpSvc.SetPublisher(hub)
	rsvpSvc.SetMetrics(collector)
	var jobQueue *queue.Queue
	if rdb != nil {
		jobQueue = queue.NewQueue(rdb.Client, logger)
		rsvpSvc.SetJobs(jobQueue)
	}
	var cards rsvp.CardStore
	if s3Client != nil {
		cards = s3Client
	}
	rsvpHandler := rsvp.NewHandler(rsvpSvc, store, codec, renderer, cards, logger)

	var limiter middleware.Limiter
	if rdb != nil && cfg.RSVP.RateLimitPerMinute > 0 {
		limiter = redis.NewFixedWindowLimiter(rdb.Client, cfg.RSVP.RateLimitPerMinute, time.Minute)
	}

	// Check-in
	checkinSvc := checkin.NewService(store, codec, summarySvc, logger)
	checkinSvc.SetPublisher(hub)
	checkinSvc.SetMetrics(collector)
	stationTTL := time.Duration(cfg.JWT.StationExpireHours) * time.Hour
	checkinHandler := checkin.NewHandler(checkinSvc, store, summarySvc, jwtService, stationTTL, logger)

	// Guest list administration
	guestHandler := guests.NewHandler(store, codec, logger)

	stationValidate := func(token string) (realtime.Identity, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return realtime.Identity{}, err
		}
		return realtime.Identity{OwnerID: claims.UserID, Role: string(claims.Role), Station: claims.Station}, nil
	}
	stationAuthorize := func(ctx context.Context, ownerID, eventID uuid.UUID) error {
		_, err := store.GetEvent(ctx, ownerID, eventID)
		return err
	}

	router := gin.New()
	if err := middleware.TrustProxies(router, cfg.Server.TrustedProxies); err != nil {
		logger.Fatal("trusted proxies", zap.Error(err))
	}
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	if cfg.Server.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// Public: RSVP form and the guest's own code
	router.POST("/rsvp", middleware.RateLimit(limiter, "rsvp", logger), rsvpHandler.Submit)
	router.GET("/rsvp/:guestId/qr", rsvpHandler.QRCode)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Check-in stations (owner or staff)
		stations := api.Group("", middleware.RequireRole(models.RoleOwner, models.RoleStaff))
		stations.GET("/checkin", checkinHandler.List)
		stations.POST("/checkin", checkinHandler.CheckIn)
		stations.GET("/checkin/summary", summaryHandler.Summary)
		stations.GET("/checkin/guests/:guestId", checkinHandler.Lookup)

		// Owner only
		owner := api.Group("", middleware.RequireRole(models.RoleOwner))
		owner.DELETE("/checkin/guests/:guestId", checkinHandler.Undo)
		owner.POST("/stations/token", checkinHandler.StationToken)
		owner.GET("/events", guestHandler.ListEvents)
		owner.POST("/events", guestHandler.CreateEvent)
		owner.POST("/guests", guestHandler.Create)
		owner.PATCH("/guests/:guestId", guestHandler.Update)
		owner.DELETE("/guests/:guestId", guestHandler.Delete)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws/stations", realtime.ServeWs(hub, logger, stationValidate, stationAuthorize))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (QR cards to S3)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil && jobQueue != nil {
		processor := worker.NewQRCardProcessor(store, codec, renderer, s3Client, jobQueue, logger)
		go processor.Run(workerCtx)
		logger.Info("qr card worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("driver", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
