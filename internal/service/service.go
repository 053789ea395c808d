package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/ashwinyue/next-bot/internal/config"
	"github.com/ashwinyue/next-bot/internal/metrics"
	"github.com/ashwinyue/next-bot/internal/repository"
	"github.com/ashwinyue/next-bot/internal/service/agent"
	"github.com/ashwinyue/next-bot/internal/service/calendar"
	"github.com/ashwinyue/next-bot/internal/service/credential"
	"github.com/ashwinyue/next-bot/internal/service/lead"
	"github.com/ashwinyue/next-bot/internal/service/lock"
	"github.com/ashwinyue/next-bot/internal/service/pause"
	"github.com/ashwinyue/next-bot/internal/service/tool"
)

// Services 服务集合
type Services struct {
	// 业务服务
	Tool       *tool.Service
	Credential *credential.Service
	Toolset    *agent.Toolset

	// 执行入口
	Registry *tool.Registry
	Executor *tool.Executor

	// 配置
	Config  *config.Config
	Metrics *metrics.ToolMetrics
}

// Deps 外部依赖，Redis 和 Prometheus 注册器可以为空
type Deps struct {
	Redis      redis.UniversalClient
	Registerer prometheus.Registerer
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewServices 创建所有服务并注册内置工具
func NewServices(ctx context.Context, repo *repository.Repositories, cfg *config.Config, deps Deps) (*Services, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	// 凭证
	cipher := credential.NewCipher(cfg.Security.EncryptionKey, logger)
	credentials := credential.NewService(repo.Credential, cipher, logger)

	// 执行器
	toolMetrics := metrics.NewToolMetrics(deps.Registerer)
	factory := tool.NewCustomToolFactory(httpClient, cfg.Tools.CustomToolTimeoutDuration())
	registry := tool.NewRegistry(logger)

	opts := []tool.ExecutorOption{
		tool.WithLogger(logger),
		tool.WithMetrics(toolMetrics),
		tool.WithCacheTTL(time.Duration(cfg.Tools.MaterializeCacheTTL) * time.Second),
	}
	if cfg.Tools.BookingLock {
		opts = append(opts, tool.WithLocker(newLocker(cfg, deps.Redis, logger)))
	}
	executor := tool.NewExecutor(registry, tool.ExecutorDeps{
		Tools:       repo.Tool,
		BotTools:    repo.BotTool,
		Credentials: credentials,
		Usage:       repo.Metric,
	}, factory, opts...)

	toolService := tool.NewService(repo, executor, factory, logger)
	if err := toolService.RegisterBuiltins(ctx, builtins(cfg, repo, credentials, httpClient, logger)...); err != nil {
		return nil, fmt.Errorf("failed to register builtin tools: %w", err)
	}
	if _, err := toolService.LoadPublicCustomTools(ctx); err != nil {
		logger.Warn("failed to load custom tools", "error", err)
	}

	return &Services{
		Tool:       toolService,
		Credential: credentials,
		Toolset:    agent.NewToolset(repo.BotTool, executor, logger),
		Registry:   registry,
		Executor:   executor,
		Config:     cfg,
		Metrics:    toolMetrics,
	}, nil
}

// builtins 内置工具定义
func builtins(cfg *config.Config, repo *repository.Repositories, tokens calendar.TokenStore, httpClient *http.Client, logger *slog.Logger) []*tool.Definition {
	calendarOpts := []calendar.Option{
		calendar.WithLogger(logger),
		calendar.WithSlotInterval(cfg.Tools.SlotInterval),
	}

	google := calendar.NewGoogleClientFactory(calendar.OAuthSettings{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		TokenURL:     cfg.Google.TokenURL,
		RedirectURL:  cfg.Google.RedirectURL,
	}, cfg.Google.BaseURL, httpClient, tokens, logger)

	ghl := calendar.NewGoHighLevelClientFactory(calendar.OAuthSettings{
		ClientID:     cfg.GoHighLevel.ClientID,
		ClientSecret: cfg.GoHighLevel.ClientSecret,
		TokenURL:     cfg.GoHighLevel.TokenURL,
		RedirectURL:  cfg.GoHighLevel.RedirectURL,
	}, cfg.GoHighLevel.BaseURL, cfg.GoHighLevel.APIVersion, cfg.GoHighLevel.RateLimit, httpClient, tokens, logger)

	return []*tool.Definition{
		calendar.NewGoogleDefinition(google, repo.Appointment, calendarOpts...),
		calendar.NewGoHighLevelDefinition(ghl, repo.Appointment, calendarOpts...),
		lead.NewDefinition(repo.Lead, logger),
		pause.NewDefinition(repo.Conversation, logger),
	}
}

// newLocker Redis 可用时使用跨进程锁，否则退回进程内锁
func newLocker(cfg *config.Config, client redis.UniversalClient, logger *slog.Logger) lock.Locker {
	ttl := time.Duration(cfg.Tools.BookingLockTTL) * time.Second
	if cfg.Redis.Enabled && client != nil {
		return lock.NewRedisLocker(client, ttl, 0)
	}
	logger.Info("booking lock uses in-process locker")
	return lock.NewMemoryLocker(0)
}
