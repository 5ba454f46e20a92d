package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reliefdesk/config"
	"reliefdesk/middleware"
	"reliefdesk/service"
)

func main() {
	cfg := config.Load()

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
		log.Warnf("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
	}
	log.SetLevel(level)
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	svc, err := service.NewService(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to create service")
	}
	if err := svc.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start service")
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: setupRouter(cfg, svc),
	}

	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := svc.Stop(); err != nil {
		log.WithError(err).Error("Error stopping service")
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("Server forced to shutdown")
	}

	log.Info("Server exited")
}

func setupRouter(cfg *config.Config, svc *service.Service) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/requests/listen"})))
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("Request handled")
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/")
	api.Use(middleware.RateLimitMiddleware(cfg.RateLimit, time.Minute))
	svc.GetHandlers().Register(api)

	return router
}
