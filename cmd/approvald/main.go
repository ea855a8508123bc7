package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/approvalflow/internal/handler"
	"github.com/xela07ax/approvalflow/internal/infra"
	"github.com/xela07ax/approvalflow/internal/server"
	"github.com/xela07ax/approvalflow/internal/service"
	"github.com/xela07ax/approvalflow/internal/slack"
	"github.com/xela07ax/approvalflow/internal/store"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Метрики
	reg := prometheus.NewRegistry()
	metrics := infra.NewMetrics(reg)

	// 3. Хранилище заявок (backend выбирается конфигом)
	st, err := buildStore(appCtx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to init approval store", zap.Error(err))
	}

	// Фоновый вытеснитель решенных заявок (memory/postgres; redis живет на TTL ключей)
	if sweeper, ok := st.(store.Sweeper); ok {
		go sweeper.StartSweeper(appCtx)
	}

	// 4. Slack-клиент + слой надежности (CB и исходящий лимитер, без ретраев)
	rawClient := slack.NewClient(cfg.Slack.BaseURL, cfg.Slack.BotToken, cfg.Slack.Timeout, logger)
	slackClient := slack.NewReliableClient(rawClient, cfg.Slack.RateLimit, cfg.Slack.RateBurst, metrics)

	// 5. Сборка слоев (Dependency Injection)
	approvalService := service.NewApprovalService(st, slackClient, metrics, logger)
	commandHandler := handler.NewCommandHandler(approvalService, metrics, logger)
	interactionHandler := handler.NewInteractionHandler(approvalService, metrics, logger)

	srvHandler := server.NewServer(cfg, logger, reg, commandHandler, interactionHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srvHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 6. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("approvalflow started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("approvalflow stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server shutdown failed", zap.Error(err))
	}
	logger.Info("approvalflow exited properly")
}

// buildStore поднимает выбранный конфигом бэкенд хранилища.
func buildStore(ctx context.Context, cfg *infra.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemoryStore(cfg.Store.ResolvedTTL, cfg.Store.SweepInterval, logger), nil

	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		// Проверяем соединение с таймаутом
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("redis unreachable: %w", err)
		}
		return store.NewRedisStore(rdb, cfg.Store.ResolvedTTL, logger), nil

	case "postgres":
		pg, err := store.NewPostgresStore(ctx, cfg.Database.URL,
			cfg.Database.MaxConns, cfg.Database.MinConns,
			cfg.Store.ResolvedTTL, cfg.Store.SweepInterval, logger)
		if err != nil {
			return nil, err
		}
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()
		if err := pg.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("database unreachable: %w", err)
		}
		return pg, nil

	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}
}
