package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/purchasing_backend/config"
	"github.com/mmdatafocus/purchasing_backend/confirmation"
	"github.com/mmdatafocus/purchasing_backend/internalapi"
	"github.com/mmdatafocus/purchasing_backend/middlewares"
	"github.com/mmdatafocus/purchasing_backend/models"
	"github.com/mmdatafocus/purchasing_backend/utils"
	"github.com/mmdatafocus/purchasing_backend/workflow"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultPort = "8080"

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func corsMiddleware() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	// In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", middlewares.JobTokenHeader, middlewares.CorrelationIdHeader)
	corsConfig.AddExposeHeaders("Content-Length", middlewares.CorrelationIdHeader)
	return cors.New(corsConfig)
}

// Optional rate limiting for the public confirmation link.
// Env:
// - RATE_LIMIT_ENABLED=true
// - RATE_LIMIT_WINDOW_SECONDS=60
// - RATE_LIMIT_MAX_REQUESTS=600
func rateLimitMiddleware() gin.HandlerFunc {
	if !utils.BoolFromEnv("RATE_LIMIT_ENABLED") {
		return nil
	}
	limit := int64(600)
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}
	window := utils.SecondsFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60*time.Second)
	// Redis connects after the port is open
	return middlewares.NewLazyRateLimiter(config.GetRedisDB, limit, window).RateLimitMiddleware
}

// setupRouter builds the engine. ready reports whether the database is connected.
func setupRouter(logger *logrus.Logger, ready func() bool, routes func(r *gin.Engine)) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/healthz", "/metrics":
			c.Next()
			return
		}
		// Gate app endpoints on dependency readiness.
		if !ready() {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.Use(corsMiddleware())
	r.Use(middlewares.ErrorLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	routes(r)
	r.NoRoute(customNotFoundHandler)
	return r
}

func registerRoutes(db *gorm.DB, settings *config.DeliverySettings, logger *logrus.Logger) func(r *gin.Engine) {
	return func(r *gin.Engine) {
		confirmHandler := confirmation.NewHandler(confirmation.NewService(db, logger), logger, settings.Calendar().Location)
		public := r.Group("/")
		if limiter := rateLimitMiddleware(); limiter != nil {
			public.Use(limiter)
		}
		confirmHandler.RegisterRoutes(public)

		reconciler := workflow.NewReconcilerFromSettings(db, settings, logger)
		internal := &internalapi.Handlers{
			Reconciler: reconciler,
			Schedules:  models.NewDeliveryStore(db),
			Results:    reconciler.Results,
			Logger:     logger,
		}
		internal.RegisterRoutes(r, settings.JobTriggerToken)
	}
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()
	settings, err := config.LoadDeliverySettings()
	if err != nil {
		logger.WithField("field", "settings").Fatal(err.Error())
	}
	if settings.JobTriggerToken == "" {
		logger.WithField("field", "settings").Warn("JOB_TRIGGER_TOKEN not set; internal endpoints reject every request")
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		gin.SetMode(gin.ReleaseMode)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Routes need the DB handle, so they are mounted through a handler that swaps in once ready.
	var app http.Handler
	readyCh := make(chan struct{})
	ready := func() bool {
		select {
		case <-readyCh:
			return true
		default:
			return false
		}
	}
	bootstrap := setupRouter(logger, ready, func(r *gin.Engine) {})

	srv := &http.Server{
		Addr: ":" + port,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if ready() {
				app.ServeHTTP(w, req)
				return
			}
			bootstrap.ServeHTTP(w, req)
		}),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry(sigCtx, 3)

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can block tables; allow running it as a separate job instead.
	if !utils.BoolFromEnv("SKIP_MIGRATIONS") {
		if err := models.MigrateTable(db); err != nil {
			logger.WithField("field", "migrations").Fatal(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	app = setupRouter(logger, func() bool { return true }, registerRoutes(db, settings, logger))
	close(readyCh)
	log.Println("Server started successfully on port " + port)

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	config.CloseRedis()
	config.ClosePubSub()
}
