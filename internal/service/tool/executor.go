package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashwinyue/next-bot/internal/metrics"
	"github.com/ashwinyue/next-bot/internal/model"
	"github.com/ashwinyue/next-bot/internal/repository"
	"github.com/ashwinyue/next-bot/internal/service/lock"
)

const tracerName = "github.com/ashwinyue/next-bot/internal/service/tool"

// 调用方使用错误
var (
	ErrInvalidInvocation = errors.New("tool id and function name are required")
	ErrToolNotFound      = errors.New("tool not found")
)

// ToolStore 工具记录存储
type ToolStore interface {
	GetByID(ctx context.Context, id string) (*model.Tool, error)
	FindActiveCustomForBot(ctx context.Context, id, botID string) (*model.Tool, error)
}

// BotToolStore bot 与工具关联存储
type BotToolStore interface {
	Get(ctx context.Context, botID, toolID string) (*model.BotTool, error)
}

// CredentialProvider 返回解密后的凭证，不存在时返回 nil, nil
type CredentialProvider interface {
	GetCredential(ctx context.Context, id string) (*model.Credential, error)
}

// UsageRecorder 使用量和错误日志存储
type UsageRecorder interface {
	IncrementUsage(ctx context.Context, toolID, botID, functionName string, at time.Time) error
	CreateExecutionError(ctx context.Context, e *model.ToolExecutionError) error
}

// ExecutorDeps 执行器依赖
type ExecutorDeps struct {
	Tools       ToolStore
	BotTools    BotToolStore
	Credentials CredentialProvider
	Usage       UsageRecorder
}

// Executor 工具执行服务
// 所有工具调用都经过这里，作者代码或第三方的失败都转换为结构化结果
type Executor struct {
	registry     *Registry
	deps         ExecutorDeps
	materializer *materializer
	locker       lock.Locker
	metrics      *metrics.ToolMetrics
	logger       *slog.Logger
	tracer       trace.Tracer
	now          func() time.Time
	cacheTTL     time.Duration
}

// ExecutorOption 执行器选项
type ExecutorOption func(*Executor)

// WithLogger 设置日志
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// WithMetrics 设置 Prometheus 指标
func WithMetrics(m *metrics.ToolMetrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithLocker 为独占函数启用 (bot, tool) 级别的咨询锁
func WithLocker(l lock.Locker) ExecutorOption {
	return func(e *Executor) { e.locker = l }
}

// WithCacheTTL 自定义工具物化缓存时长，0 表示不缓存
func WithCacheTTL(ttl time.Duration) ExecutorOption {
	return func(e *Executor) { e.cacheTTL = ttl }
}

// WithClock 设置时钟
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// NewExecutor 创建执行器
func NewExecutor(registry *Registry, deps ExecutorDeps, factory *CustomToolFactory, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: registry,
		deps:     deps,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
		cacheTTL: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	if factory == nil {
		factory = NewCustomToolFactory(nil, 0)
	}
	e.materializer = newMaterializer(deps.Tools, factory, e.cacheTTL)
	return e
}

// Registry 返回注册表
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Resolve 先查注册表，再按 bot 可见性物化自定义工具
func (e *Executor) Resolve(ctx context.Context, toolID, botID string) (*Definition, error) {
	if def, ok := e.registry.Get(toolID); ok {
		return def, nil
	}
	if botID == "" || e.deps.Tools == nil {
		return nil, ErrToolNotFound
	}
	def, err := e.materializer.resolve(ctx, toolID, botID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrToolNotFound
	}
	return def, err
}

// Invalidate 清除自定义工具的物化缓存
func (e *Executor) Invalidate(toolID string) {
	e.materializer.invalidate(toolID)
}

// Prime 写入 bot 私有自定义工具的物化缓存
func (e *Executor) Prime(botID string, def *Definition) {
	e.materializer.store(botID, def)
}

// ExecuteTool 执行工具函数
// 只有 toolID 或 functionName 为空时返回 error，其余情况均返回结构化结果
func (e *Executor) ExecuteTool(ctx context.Context, toolID, functionName string, params map[string]interface{}, ec ExecutionContext) (*Result, error) {
	if toolID == "" || functionName == "" {
		return nil, ErrInvalidInvocation
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	start := e.now()
	ctx, span := e.tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("tool.id", toolID),
		attribute.String("tool.function", functionName),
		attribute.String("bot.id", ec.BotID),
	))
	defer span.End()

	result := e.execute(ctx, toolID, functionName, params, &ec)

	outcome := "success"
	if code := result.ErrorCode(); code != "" {
		outcome = code
	}
	span.SetAttributes(attribute.String("tool.outcome", outcome))
	if !result.Success && !result.Skipped {
		span.SetStatus(codes.Error, result.Error.Message)
	}
	e.metrics.ObserveExecution(toolID, functionName, outcome, e.now().Sub(start))

	return result, nil
}

func (e *Executor) execute(ctx context.Context, toolID, functionName string, params map[string]interface{}, ec *ExecutionContext) *Result {
	logger := e.logger.With("tool_id", toolID, "function", functionName, "bot_id", ec.BotID)

	// 1. 查找定义
	def, err := e.Resolve(ctx, toolID, ec.BotID)
	if errors.Is(err, ErrToolNotFound) {
		return Fail(CodeToolNotFound, fmt.Sprintf("Tool %s not found", toolID))
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to resolve tool", "error", err)
		return Fail(CodeExecutionFailed, err.Error())
	}

	// 2. 全局启停，没有记录的工具视为启用
	if e.deps.Tools != nil {
		row, err := e.deps.Tools.GetByID(ctx, toolID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			logger.ErrorContext(ctx, "failed to load tool row", "error", err)
			return Fail(CodeExecutionFailed, err.Error())
		case !row.IsActive:
			return Fail(CodeToolInactive, fmt.Sprintf("Tool %s is inactive", toolID))
		}
	}

	// 3. 函数
	fn, ok := def.Function(functionName)
	if !ok {
		return Fail(CodeFunctionNotFound, fmt.Sprintf("Function %s not found in tool %s", functionName, toolID))
	}

	// 4. bot 关联
	var assoc *model.BotTool
	if ec.BotID != "" && e.deps.BotTools != nil {
		assoc, err = e.deps.BotTools.Get(ctx, ec.BotID, toolID)
		if errors.Is(err, repository.ErrNotFound) {
			assoc, err = nil, nil
		}
		if err != nil {
			logger.ErrorContext(ctx, "failed to load bot tool", "error", err)
			return Fail(CodeExecutionFailed, err.Error())
		}
	}
	if assoc != nil && !assoc.IsEnabled {
		logger.DebugContext(ctx, "tool disabled for bot, skipping")
		return Skip(CodeToolDisabled, fmt.Sprintf("Tool %s is disabled for this bot", toolID))
	}

	// 5. 需要授权的工具必须已关联凭证
	credentialID := ""
	if assoc != nil && assoc.CredentialID != nil {
		credentialID = *assoc.CredentialID
	}
	if def.IntegrationType != "" && credentialID == "" {
		return Fail(CodeAuthRequired, fmt.Sprintf("Tool %s requires %s authorization", toolID, def.IntegrationType))
	}

	// 6. 解析凭证
	if credentialID != "" {
		if e.deps.Credentials == nil {
			return Fail(CodeCredentialNotFound, fmt.Sprintf("Credential %s not found", credentialID))
		}
		cred, err := e.deps.Credentials.GetCredential(ctx, credentialID)
		if err != nil {
			logger.ErrorContext(ctx, "failed to load credential", "credential_id", credentialID, "error", err)
			return Fail(CodeExecutionFailed, err.Error())
		}
		if cred == nil {
			return Fail(CodeCredentialNotFound, fmt.Sprintf("Credential %s not found", credentialID))
		}
		ec.Credentials = cred.Credentials
		ec.CredentialID = credentialID
	}

	var botConfig map[string]interface{}
	if assoc != nil {
		botConfig = assoc.Config
	}
	ec.Config = def.ResolveConfig(botConfig)

	// 7. 使用量
	if e.deps.Usage != nil && ec.BotID != "" {
		at := e.now()
		NonCritical(ctx, logger, "usage_metric", func(ctx context.Context) error {
			return e.deps.Usage.IncrementUsage(ctx, toolID, ec.BotID, functionName, at)
		})
	}

	// 8. 执行
	if fn.Exclusive && e.locker != nil && ec.BotID != "" {
		release, err := e.locker.Acquire(ctx, lockKey(ec.BotID, toolID))
		switch {
		case errors.Is(err, lock.ErrTimeout):
			return Fail(CodeToolBusy, fmt.Sprintf("Tool %s is busy, please retry", toolID))
		case err != nil:
			logger.WarnContext(ctx, "advisory lock unavailable, continuing without it", "error", err)
		default:
			defer release()
		}
	}

	result, err := invoke(ctx, fn, params, ec)
	if err != nil {
		// 9. 记录错误日志
		logger.ErrorContext(ctx, "tool execution failed", "error", err)
		if e.deps.Usage != nil {
			record := &model.ToolExecutionError{
				ToolID:       toolID,
				BotID:        ec.BotID,
				FunctionName: functionName,
				Message:      err.Error(),
				Stack:        errorStack(err),
				Params:       params,
			}
			NonCritical(ctx, logger, "execution_error_log", func(ctx context.Context) error {
				return e.deps.Usage.CreateExecutionError(ctx, record)
			})
		}
		return Fail(CodeExecutionFailed, err.Error())
	}
	if result == nil {
		return OK(nil)
	}
	return result
}

func lockKey(botID, toolID string) string {
	return "tool-lock:" + botID + ":" + toolID
}

// panicError 函数体 panic 后转换的错误
type panicError struct {
	value interface{}
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

func invoke(ctx context.Context, fn *Function, params map[string]interface{}, ec *ExecutionContext) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return fn.Execute(ctx, params, ec)
}

func errorStack(err error) string {
	var p *panicError
	if errors.As(err, &p) {
		return string(p.stack)
	}
	return fmt.Sprintf("%+v", err)
}
