// Package main runs the fest event-management HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/felicity-fest/backend/config"
	"github.com/felicity-fest/backend/internal/attendance"
	"github.com/felicity-fest/backend/internal/auth"
	"github.com/felicity-fest/backend/internal/events"
	"github.com/felicity-fest/backend/internal/middleware"
	"github.com/felicity-fest/backend/internal/payments"
	"github.com/felicity-fest/backend/internal/registrations"
	"github.com/felicity-fest/backend/internal/ticket"
	"github.com/felicity-fest/backend/pkg/database"
	"github.com/felicity-fest/backend/pkg/queue"
	"github.com/felicity-fest/backend/pkg/redis"
	"github.com/felicity-fest/backend/pkg/response"
	"github.com/felicity-fest/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.ProofsBucket != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ProofsBucket:         cfg.AWS.ProofsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	qrRenderer := ticket.NewURLRenderer("")

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)
	if err := auth.EnsureAdmin(ctx, authRepo, cfg.Admin.Email, cfg.Admin.Password, logger); err != nil {
		logger.Fatal("admin bootstrap", zap.Error(err))
	}

	// Events
	eventRepo := events.NewRepository(pool)
	eventHandler := events.NewHandler(eventRepo, authRepo, events.NewDiscordNotifier(), logger)

	// Registrations
	registrationRepo := registrations.NewRepository(pool)
	var proofStorage registrations.ProofStorage
	if s3Client != nil {
		proofStorage = s3Client
	}
	registrationHandler := registrations.NewHandler(registrationRepo, eventRepo, authRepo, jobQueue, proofStorage, qrRenderer, logger)

	// Payment approval
	paymentRepo := payments.NewRepository(pool)
	paymentHandler := payments.NewHandler(paymentRepo, eventRepo, authRepo, jobQueue, qrRenderer, logger)

	// Attendance
	attendanceRepo := attendance.NewRepository(pool)
	attendanceHandler := attendance.NewHandler(attendanceRepo, eventRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/signup", authHandler.Signup)
		authGroup.POST("/login", authHandler.Login)
	}

	// Public browsing. The optional token personalizes followed_only filtering.
	router.GET("/events", middleware.OptionalJWT(jwtService), eventHandler.List)
	router.GET("/events/:id", eventHandler.GetByID)

	// Participant actions
	participant := router.Group("/events")
	participant.Use(middleware.JWT(jwtService), middleware.RequireRole("participant"))
	{
		participant.POST("/:id/register", registrationHandler.Register)
		participant.POST("/:id/purchase", registrationHandler.Purchase)
		participant.PATCH("/:id/registrations/:regId/upload-payment", registrationHandler.UploadPayment)
		participant.POST("/:id/registrations/:regId/proof-upload-url", registrationHandler.ProofUploadURL)
	}

	// Organizer actions
	organizer := router.Group("/events")
	organizer.Use(middleware.JWT(jwtService), middleware.RequireRole("organizer", "admin"))
	{
		organizer.POST("", eventHandler.Create)
		organizer.GET("/organizer/my-events", eventHandler.MyEvents)
		organizer.GET("/organizer/:id", eventHandler.OrganizerGetByID)
		organizer.PATCH("/:id", eventHandler.Update)
		organizer.PATCH("/:id/publish", eventHandler.Publish)

		organizer.GET("/:id/registrations", registrationHandler.ListByEvent)
		organizer.PATCH("/:id/registrations/:regId/approve-payment", paymentHandler.Resolve)

		organizer.PATCH("/:id/registrations/:regId/attendance", attendanceHandler.Mark)
		organizer.PATCH("/:id/registrations/:regId/manual-attend", attendanceHandler.Override)
		organizer.GET("/:id/registrations/scan/:ticketId", attendanceHandler.Scan)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

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
