package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/opencatalog/platform/pkg/auth"
	"github.com/opencatalog/platform/pkg/catalog"
	"github.com/opencatalog/platform/pkg/common/config"
	"github.com/opencatalog/platform/pkg/common/database"
	"github.com/opencatalog/platform/pkg/common/kafka"
	"github.com/opencatalog/platform/pkg/common/logger"
	"github.com/opencatalog/platform/pkg/middleware"
	"github.com/opencatalog/platform/pkg/taxonomy"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	tax, err := taxonomy.Load(cfg.TaxonomyPath)
	if err != nil {
		logger.Log.WithError(err).Warn("failed to load taxonomy, using defaults")
	}

	builder := &catalog.QueryBuilder{
		DefaultLimit: cfg.DefaultPageSize,
		MaxLimit:     cfg.MaxPageSize,
	}
	codec := catalog.NewCursorCodec(cfg.CursorSecret)

	repo := catalog.NewRepository(db, builder, codec)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate catalog tables")
	}

	producer := kafka.NewProducer(cfg.KafkaEventTopic)
	defer producer.Close()

	service := catalog.NewService(
		repo,
		catalog.NewValidator(tax),
		database.GetRedis(),
		cfg.EntityCacheTTL,
		producer,
	)
	handler := catalog.NewHandler(service, codec, cfg.MaxRequestBody)

	jwtManager, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to configure jwt manager")
	}
	validators := []auth.TokenValidator{jwtManager}
	if cfg.OIDCIssuer != "" {
		oidc, err := auth.NewOIDCConfig(cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCClientSecret)
		if err != nil {
			logger.Log.WithError(err).Warn("OIDC disabled")
		} else {
			validators = append(validators, oidc)
			logger.ForComponent("auth").WithField("issuer", cfg.OIDCIssuer).Info("accepting OIDC bearer tokens")
		}
	}

	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	router.Use(middleware.Authenticate(validators...))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	handler.Register(api)

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.ForComponent("http").WithField("addr", address).Info("catalog service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start catalog service")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down catalog service...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("catalog service forced to shutdown")
	}
	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Error("failed to close postgres")
	}
	if err := database.CloseRedis(); err != nil {
		logger.Log.WithError(err).Error("failed to close redis")
	}
	logger.Log.Info("catalog service stopped")
}
