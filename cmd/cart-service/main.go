package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopease/cart/internal/cache"
	"github.com/shopease/cart/internal/catalog"
	"github.com/shopease/cart/internal/config"
	"github.com/shopease/cart/internal/consumer"
	h "github.com/shopease/cart/internal/http"
	"github.com/shopease/cart/internal/repository"
	"github.com/shopease/cart/internal/service"
	"github.com/shopease/cart/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Service: "cart-service",
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
	})

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if err := run(cfg, log); err != nil {
		log.Error("cart service stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("cart service stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	mongoDB, err := repository.ConnectMongoDB(connectCtx, repository.MongoConfig{
		URI:         cfg.MongoURI,
		Database:    cfg.MongoDBName,
		AppName:     cfg.MongoAppName,
		MaxPoolSize: uint64(cfg.MongoMaxPoolSize),
		MinPoolSize: uint64(cfg.MongoMinPoolSize),
	})
	if err != nil {
		return err
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoDB.Client().Disconnect(disconnectCtx); err != nil {
			log.Warn("mongo disconnect failed", slog.Any("err", err))
		}
	}()

	repo := repository.NewMongoRepository(mongoDB)
	if err := repo.CreateIndexes(connectCtx); err != nil {
		return err
	}
	log.Info("connected to MongoDB", slog.String("database", cfg.MongoDBName))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(connectCtx).Err(); err != nil {
		return err
	}
	log.Info("redis ping succeeded", slog.String("addr", cfg.RedisAddr))

	var products catalog.Reader
	if cfg.ValidateProducts {
		products = catalog.NewMongoCatalog(mongoDB)
	}

	cartService := service.NewCartService(repo, cache.NewRedisCache(redisClient, cfg.CacheTTL), products, log)
	cartHandler := h.NewCartHandler(cartService, cfg.RequestTimeout, cfg.MaxRequestBodySize)

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: h.NewRouter(cartHandler, h.RouterConfig{
			JWTSecret:      []byte(cfg.JWTSecret),
			RequestTimeout: cfg.RequestTimeout,
			Logger:         log,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("cart service listening", slog.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if len(cfg.KafkaBrokers) > 0 {
		orders := consumer.NewConsumer(cartService, consumer.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaOrdersTopic,
			GroupID: cfg.KafkaGroupID,
		}, log)
		defer func() {
			if err := orders.Close(); err != nil {
				log.Warn("order consumer close failed", slog.Any("err", err))
			}
		}()

		g.Go(func() error {
			log.Info("order consumer started", slog.String("topic", cfg.KafkaOrdersTopic))
			return orders.Run(gctx)
		})
	} else {
		log.Warn("KAFKA_BROKERS not set, carts will not be cleared after checkout")
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down cart service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
