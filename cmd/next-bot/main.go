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

	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/ashwinyue/next-bot/internal/config"
	"github.com/ashwinyue/next-bot/internal/database"
	"github.com/ashwinyue/next-bot/internal/handler"
	"github.com/ashwinyue/next-bot/internal/logger"
	"github.com/ashwinyue/next-bot/internal/metrics"
	"github.com/ashwinyue/next-bot/internal/repository"
	"github.com/ashwinyue/next-bot/internal/router"
	"github.com/ashwinyue/next-bot/internal/service"
	"github.com/ashwinyue/next-bot/internal/service/callback"
)

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)
	callback.SetupGlobalCallbacks(log, cfg.App.Debug)

	// 设置 Gin 模式
	gin.SetMode(cfg.Server.Mode)

	// 初始化数据库
	db, err := database.New(cfg, log)
	if err != nil {
		log.Error("failed to init database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected", "dbname", cfg.Database.DBName)

	// 初始化 Redis
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	// 指标
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.AddBuildInfo(reg, cfg.App.Version); err != nil {
		log.Warn("failed to register build info", "error", err)
	}

	// 初始化各层
	deps := service.Deps{Registerer: reg, Logger: log}
	if redisClient != nil {
		deps.Redis = redisClient
	}
	repos := repository.NewRepositories(db.DB)
	services, err := service.NewServices(context.Background(), repos, cfg, deps)
	if err != nil {
		log.Error("failed to init services", "error", err)
		os.Exit(1)
	}
	handlers := handler.NewHandlers(services)

	// 初始化路由
	r := router.SetupRouter(handlers, router.Options{
		JWTSecret: cfg.Security.JWTSecret,
		Gatherer:  reg,
		Logger:    log,
	})

	// 创建 HTTP 服务器
	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// 启动服务器
	go func() {
		log.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// 优雅关闭
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
