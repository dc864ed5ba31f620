package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/edgedir/rd/internal/directory"
	"github.com/edgedir/rd/internal/directory/handler"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("rd exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("rd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("rd.port", 8080)
	viper.SetDefault("rd.default_domain", directory.DefaultDomain)
	viper.SetDefault("rd.cors_origins", []string{"*"})
	viper.SetDefault("rd.rate_limit_rps", 20)
	viper.SetDefault("rd.rate_limit_burst", 40)
	viper.SetDefault("rd.release_mode", true)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	// ── Directory engine ─────────────────────────────────────────────────────
	registry := directory.NewRegistry(nil, logger)
	lookup := directory.NewLookup(registry)
	handler.ObserveRegistry(registry)

	// ── HTTP surface ─────────────────────────────────────────────────────────
	if viper.GetBool("rd.release_mode") {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.PrometheusMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: viper.GetStringSlice("rd.cors_origins"),
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Content-Type"},
	}))
	router.Use(handler.RateLimiter(
		viper.GetInt("rd.rate_limit_rps"),
		viper.GetInt("rd.rate_limit_burst"),
	))

	h := handler.NewHandler(registry, lookup, viper.GetString("rd.default_domain"), logger)
	h.Register(&router.RouterGroup)
	router.GET("/metrics", handler.MetricsHandler())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":        "ok",
			"registrations": registry.Count(),
		})
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", viper.GetInt("rd.port")),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("resource directory listening",
			zap.String("addr", srv.Addr),
			zap.String("default_domain", viper.GetString("rd.default_domain")),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── Shutdown ─────────────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
