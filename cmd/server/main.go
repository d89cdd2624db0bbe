package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"galgame-server/internal/api"
	"galgame-server/internal/config"
	"galgame-server/internal/logger"
	"galgame-server/internal/messaging"
	"galgame-server/internal/narrative"
	"galgame-server/internal/persona"
	"galgame-server/internal/prompts"
	"galgame-server/internal/provider"
	"galgame-server/internal/router"
	"galgame-server/internal/session"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		// zap is not configured yet
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Encoding:   cfg.Log.Encoding,
		OutputPath: cfg.Log.OutputPath,
	})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	zap.ReplaceGlobals(zapLogger)
	zapLogger.Info("Starting galgame-server", cfg.LogFields()...)

	templates, err := prompts.NewStore(map[prompts.Name]string{
		prompts.Scene:    cfg.Prompts.Scene,
		prompts.OptionA:  cfg.Prompts.OptionA,
		prompts.OptionB:  cfg.Prompts.OptionB,
		prompts.OptionC:  cfg.Prompts.OptionC,
		prompts.Response: cfg.Prompts.Response,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to build prompt templates", zap.Error(err))
	}

	registry, err := persona.LoadRegistry(cfg.Persona.File, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to load persona registry", zap.Error(err))
	}

	var conversations persona.ConversationStore
	switch strings.ToLower(cfg.Persona.ConversationBackend) {
	case "redis":
		redisClient, err := setupRedis(cfg.Redis, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		conversations = persona.NewRedisConversationStore(redisClient, cfg.Persona.ConversationTTL, zapLogger)
	default:
		conversations = persona.NewMemoryConversationStore()
	}

	textProvider, err := provider.NewProvider(cfg.AI, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create AI provider", zap.Error(err))
	}

	sessions := session.NewStore(zapLogger)
	prometheus.MustRegister(sessions.Collector())

	engine := narrative.NewEngine(textProvider, templates, conversations, persona.NewResolver(registry, zapLogger), zapLogger)
	inputRouter := router.New(sessions, engine, router.Commands{
		Start: cfg.Game.StartCommand,
		Stop:  cfg.Game.StopCommand,
	}, zapLogger)

	handler := api.NewHandler(inputRouter, sessions, registry, conversations, cfg.WS.JWTSecret, zapLogger)
	ginEngine := api.NewEngine(handler, zapLogger)
	p := ginprometheus.NewPrometheus("gin")
	p.Use(ginEngine)

	var consumer *messaging.Consumer
	if cfg.MQ.Enabled {
		rabbitConn, err := connectRabbitMQ(cfg.MQ.URL, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer rabbitConn.Close()

		publisher, err := messaging.NewRabbitMQPublisher(rabbitConn, cfg.MQ.OutboundQueue, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to create outbound publisher", zap.Error(err))
		}
		defer publisher.Close()

		processor := messaging.NewProcessor(inputRouter, publisher, zapLogger)
		consumer = messaging.NewConsumer(rabbitConn, processor, cfg.MQ.InboundQueue, cfg.MQ.Concurrency, zapLogger)
		go func() {
			if err := consumer.StartConsuming(); err != nil {
				zapLogger.Error("Inbound consumer stopped with error", zap.Error(err))
				return
			}
			zapLogger.Info("Inbound consumer stopped")
		}()
	}

	// a turn holds /api/messages open for up to three generation calls
	writeTimeout := cfg.AI.Timeout*3 + 30*time.Second
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      ginEngine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zapLogger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("HTTP server listen error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	zapLogger.Info("Shutdown signal received", zap.String("signal", sig.String()))

	if consumer != nil {
		consumer.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	cleared := sessions.ClearAll()
	zapLogger.Info("galgame-server stopped", zap.Int("sessionsCleared", cleared))
}

// setupRedis connects to Redis, retrying until the first ping succeeds.
func setupRedis(cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	var lastErr error
	maxRetries := 10
	retryDelay := 3 * time.Second
	for i := 0; i < maxRetries; i++ {
		client := redis.NewClient(opts)

		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(pingCtx).Err()
		pingCancel()
		if err == nil {
			logger.Info("Connected to Redis", zap.String("address", opts.Addr), zap.Int("attempt", i+1))
			return client, nil
		}

		_ = client.Close()
		lastErr = err
		logger.Warn("Redis ping failed, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", maxRetries, lastErr)
}

// connectRabbitMQ dials RabbitMQ with a few attempts.
func connectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 5 * time.Second
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			logger.Info("Connected to RabbitMQ", zap.Int("attempt", i+1))
			return conn, nil
		}
		logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		time.Sleep(retryDelay)
	}
	return nil, err
}
