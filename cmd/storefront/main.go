package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/circuitbreaker"
	"github.com/fjod/go_cart/storefront/internal/config"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/poller"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/fjod/go_cart/storefront/internal/storage"
)

func main() {
	cfg := config.Load()
	log := logger.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("storefront stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Cart storage
	var carts repository.CartRepository
	if cfg.MongoURI != "" {
		mongoDB, err := repository.ConnectMongoDB(ctx, repository.MongoOptions{
			URI:         cfg.MongoURI,
			Database:    cfg.MongoDBName,
			AppName:     cfg.MongoAppName,
			MaxPoolSize: cfg.MongoMaxPoolSize,
			MinPoolSize: cfg.MongoMinPoolSize,
		})
		if err != nil {
			return err
		}
		defer func() {
			_ = mongoDB.Client().Disconnect(context.Background())
		}()

		mongoRepo := repository.NewMongoRepository(mongoDB)
		if err := mongoRepo.CreateIndexes(ctx); err != nil {
			return fmt.Errorf("create cart indexes: %w", err)
		}
		carts = mongoRepo
		log.Info("connected to MongoDB", "database", cfg.MongoDBName)
	} else {
		carts = repository.NewMemoryRepository()
		log.Warn("MONGO_URI not set, carts are kept in memory")
	}

	// Cart cache
	var cartCache cache.CartCache = cache.NopCache{}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		cartCache = cache.NewRedisCache(redisClient, cfg.CacheTTL)
		log.Info("redis ping succeeded", "addr", cfg.RedisAddr)
	}

	// Catalog
	productRepo, err := catalog.NewSQLiteRepository(cfg.CatalogDBPath)
	if err != nil {
		return err
	}
	defer productRepo.Close()
	if err := productRepo.RunMigrations(); err != nil {
		return err
	}
	lookup := catalog.NewBreakerLookup(productRepo, circuitbreaker.DefaultConfig(), log)

	// Images
	var (
		images    storage.ImageStore
		uploadDir string
	)
	if cfg.ImageBucket != "" {
		gcsClient, err := gcs.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create storage client: %w", err)
		}
		defer gcsClient.Close()
		images = storage.NewGCSStore(gcsClient, cfg.ImageBucket, cfg.ImagePrefix)
	} else {
		local, err := storage.NewLocalStore(cfg.UploadDir, "/uploads")
		if err != nil {
			return err
		}
		images = local
		uploadDir = local.Dir()
	}

	cartService := service.NewCartService(carts, cartCache, lookup, log)
	productService := service.NewProductService(productRepo, images, log)

	if len(cfg.KafkaBrokers) > 0 {
		p := poller.NewPoller(cartService, poller.NewKafkaReader(cfg.KafkaTopic, cfg.KafkaGroupID, cfg.KafkaBrokers...), log)
		defer p.Close()
		go p.Run(ctx)
		log.Info("checkout consumer started", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroupID)
	}

	router := h.NewRouter(h.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		MaxBodySize:    cfg.MaxRequestBodySize,
		JWTSecret:      []byte(cfg.JWTSecret),
		FrontendURL:    cfg.FrontendURL,
		UploadDir:      uploadDir,
	}, cartService, productService, log)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("storefront starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}
