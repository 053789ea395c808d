package tool_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/ashwinyue/next-bot/internal/metrics"
	"github.com/ashwinyue/next-bot/internal/model"
	"github.com/ashwinyue/next-bot/internal/repository"
	"github.com/ashwinyue/next-bot/internal/service/lock"
	"github.com/ashwinyue/next-bot/internal/service/tool"
	dbtest "github.com/ashwinyue/next-bot/internal/testutil"
)

type fakeCredentials map[string]*model.Credential

func (f fakeCredentials) GetCredential(ctx context.Context, id string) (*model.Credential, error) {
	return f[id], nil
}

type harness struct {
	ctx      context.Context
	repos    *repository.Repositories
	registry *tool.Registry
	executor *tool.Executor
	metrics  *metrics.ToolMetrics
	calls    int32
}

func newHarness(t *testing.T, creds fakeCredentials, opts ...tool.ExecutorOption) *harness {
	t.Helper()
	h := &harness{
		ctx:      context.Background(),
		repos:    repository.NewRepositories(dbtest.NewTestDB(t)),
		registry: tool.NewRegistry(nil),
		metrics:  metrics.NewToolMetrics(prometheus.NewRegistry()),
	}
	opts = append([]tool.ExecutorOption{tool.WithMetrics(h.metrics)}, opts...)
	h.executor = tool.NewExecutor(h.registry, tool.ExecutorDeps{
		Tools:       h.repos.Tool,
		BotTools:    h.repos.BotTool,
		Credentials: creds,
		Usage:       h.repos.Metric,
	}, nil, opts...)
	require.NoError(t, h.registry.Register(h.echoTool("echo", "")))
	return h
}

func (h *harness) echoTool(id, integration string) *tool.Definition {
	return &tool.Definition{
		ID:              id,
		Name:            "Echo",
		Type:            tool.TypeDataQuery,
		IntegrationType: integration,
		DefaultConfig:   map[string]interface{}{"greeting": "hello"},
		Functions: map[string]*tool.Function{
			"echo": {
				Execute: func(ctx context.Context, params map[string]interface{}, ec *tool.ExecutionContext) (*tool.Result, error) {
					atomic.AddInt32(&h.calls, 1)
					return tool.OK(map[string]interface{}{
						"params":      params,
						"config":      ec.Config,
						"credentials": ec.Credentials,
					}), nil
				},
			},
			"fail": {
				Execute: func(ctx context.Context, params map[string]interface{}, ec *tool.ExecutionContext) (*tool.Result, error) {
					return nil, errors.New("provider exploded")
				},
			},
			"panic": {
				Execute: func(ctx context.Context, params map[string]interface{}, ec *tool.ExecutionContext) (*tool.Result, error) {
					panic("unexpected state")
				},
			},
			"exclusive": {
				Exclusive: true,
				Execute: func(ctx context.Context, params map[string]interface{}, ec *tool.ExecutionContext) (*tool.Result, error) {
					return tool.OK(nil), nil
				},
			},
		},
	}
}

func (h *harness) run(t *testing.T, toolID, fn string, botID string) *tool.Result {
	t.Helper()
	res, err := h.executor.ExecuteTool(h.ctx, toolID, fn, map[string]interface{}{"q": "x"}, tool.ExecutionContext{
		BotID:  botID,
		UserID: "user-1",
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func TestExecuteTool_InvalidInvocation(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.executor.ExecuteTool(h.ctx, "", "echo", nil, tool.ExecutionContext{})
	assert.ErrorIs(t, err, tool.ErrInvalidInvocation)
	_, err = h.executor.ExecuteTool(h.ctx, "echo", "", nil, tool.ExecutionContext{})
	assert.ErrorIs(t, err, tool.ErrInvalidInvocation)
}

func TestExecuteTool_Success(t *testing.T) {
	h := newHarness(t, nil)

	res := h.run(t, "echo", "echo", "bot-1")
	require.True(t, res.Success)
	data := res.Data.(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"q": "x"}, data["params"])
	assert.Equal(t, map[string]interface{}{"greeting": "hello"}, data["config"])

	usage, err := h.repos.Metric.GetUsage(h.ctx, "echo", "bot-1", "echo")
	require.NoError(t, err)
	assert.Equal(t, int64(1), usage.UsageCount)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Executions().WithLabelValues("echo", "echo", "success")))
}

func TestExecuteTool_BotConfigOverridesDefault(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.repos.BotTool.Create(h.ctx, &model.BotTool{
		BotID: "bot-1", ToolID: "echo", IsEnabled: true,
		Config: datatypes.JSONMap{"greeting": "hej"},
	}))

	res := h.run(t, "echo", "echo", "bot-1")
	require.True(t, res.Success)
	data := res.Data.(map[string]interface{})
	assert.Equal(t, "hej", data["config"].(map[string]interface{})["greeting"])
}

func TestExecuteTool_ErrorCodes(t *testing.T) {
	h := newHarness(t, fakeCredentials{
		"cred-ok": {ID: "cred-ok", Provider: model.ProviderGoogle, Credentials: datatypes.JSONMap{"access_token": "abc"}},
	})
	require.NoError(t, h.registry.Register(h.echoTool("calendar", model.ProviderGoogle)))
	require.NoError(t, h.registry.Register(h.echoTool("inactive", "")))
	require.NoError(t, h.registry.Register(h.echoTool("locked", "")))
	require.NoError(t, h.repos.Tool.Create(h.ctx, &model.Tool{ID: "inactive", Name: "Inactive", IsActive: false}))
	require.NoError(t, h.repos.Tool.Create(h.ctx, &model.Tool{ID: "locked", Name: "Locked", IsActive: true}))

	missing := "cred-missing"
	ok := "cred-ok"
	require.NoError(t, h.repos.BotTool.Create(h.ctx, &model.BotTool{BotID: "bot-missing-cred", ToolID: "echo", IsEnabled: true, CredentialID: &missing}))
	require.NoError(t, h.repos.BotTool.Create(h.ctx, &model.BotTool{BotID: "bot-connected", ToolID: "calendar", IsEnabled: true, CredentialID: &ok}))
	require.NoError(t, h.repos.BotTool.Create(h.ctx, &model.BotTool{BotID: "bot-unconnected", ToolID: "calendar", IsEnabled: true}))

	tests := []struct {
		name   string
		toolID string
		fn     string
		botID  string
		code   string
	}{
		{"unknown tool", "nope", "echo", "bot-1", tool.CodeToolNotFound},
		{"unknown tool without bot", "nope", "echo", "", tool.CodeToolNotFound},
		{"inactive", "inactive", "echo", "bot-1", tool.CodeToolInactive},
		{"active row", "locked", "echo", "bot-1", ""},
		{"unknown function", "echo", "nope", "bot-1", tool.CodeFunctionNotFound},
		{"auth required without association", "calendar", "echo", "bot-1", tool.CodeAuthRequired},
		{"auth required without credential", "calendar", "echo", "bot-unconnected", tool.CodeAuthRequired},
		{"credential missing", "echo", "echo", "bot-missing-cred", tool.CodeCredentialNotFound},
		{"connected", "calendar", "echo", "bot-connected", ""},
		{"body error", "echo", "fail", "bot-1", tool.CodeExecutionFailed},
		{"body panic", "echo", "panic", "bot-1", tool.CodeExecutionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.run(t, tt.toolID, tt.fn, tt.botID)
			assert.Equal(t, tt.code, res.ErrorCode())
			assert.Equal(t, tt.code == "", res.Success)
			assert.False(t, res.Skipped)
		})
	}
}

func TestExecuteTool_CredentialsReachBody(t *testing.T) {
	h := newHarness(t, fakeCredentials{
		"cred-1": {ID: "cred-1", Provider: model.ProviderGoogle, Credentials: datatypes.JSONMap{"access_token": "abc"}},
	})
	require.NoError(t, h.registry.Register(h.echoTool("calendar", model.ProviderGoogle)))
	credID := "cred-1"
	require.NoError(t, h.repos.BotTool.Create(h.ctx, &model.BotTool{BotID: "bot-1", ToolID: "calendar", IsEnabled: true, CredentialID: &credID}))

	res := h.run(t, "calendar", "echo", "bot-1")
	require.True(t, res.Success)
	creds := res.Data.(map[string]interface{})["credentials"]
	assert.Equal(t, "abc", creds.(map[string]interface{})["access_token"])
}

func TestExecuteTool_DisabledSkipsWithoutSideEffects(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.repos.BotTool.Create(h.ctx, &model.BotTool{BotID: "bot-1", ToolID: "echo", IsEnabled: false}))

	res := h.run(t, "echo", "echo", "bot-1")
	assert.True(t, res.Skipped)
	assert.False(t, res.Success)
	assert.Equal(t, tool.CodeToolDisabled, res.ErrorCode())
	assert.Equal(t, int32(0), atomic.LoadInt32(&h.calls))

	_, err := h.repos.Metric.GetUsage(h.ctx, "echo", "bot-1", "echo")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Executions().WithLabelValues("echo", "echo", tool.CodeToolDisabled)))
}

func TestExecuteTool_FailureIsLogged(t *testing.T) {
	h := newHarness(t, nil)

	res := h.run(t, "echo", "fail", "bot-1")
	assert.Equal(t, tool.CodeExecutionFailed, res.ErrorCode())
	assert.Contains(t, res.Error.Message, "provider exploded")

	res = h.run(t, "echo", "panic", "bot-1")
	assert.Contains(t, res.Error.Message, "unexpected state")

	logs, err := h.repos.Metric.ListExecutionErrors(h.ctx, "echo", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.Equal(t, "bot-1", l.BotID)
		assert.NotEmpty(t, l.Stack)
		assert.Equal(t, "x", l.Params["q"])
	}
}

func TestExecuteTool_ExclusiveLock(t *testing.T) {
	locker := lock.NewMemoryLocker(20 * time.Millisecond)
	h := newHarness(t, nil, tool.WithLocker(locker))

	release, err := locker.Acquire(h.ctx, "tool-lock:bot-1:echo")
	require.NoError(t, err)

	res := h.run(t, "echo", "exclusive", "bot-1")
	assert.Equal(t, tool.CodeToolBusy, res.ErrorCode())

	// 非独占函数不受影响
	res = h.run(t, "echo", "echo", "bot-1")
	assert.True(t, res.Success)

	release()
	res = h.run(t, "echo", "exclusive", "bot-1")
	assert.True(t, res.Success)
}

type brokenUsage struct {
	panics bool
}

func (b brokenUsage) IncrementUsage(ctx context.Context, toolID, botID, functionName string, at time.Time) error {
	if b.panics {
		panic("metrics table missing")
	}
	return errors.New("metrics store down")
}

func (b brokenUsage) CreateExecutionError(ctx context.Context, e *model.ToolExecutionError) error {
	if b.panics {
		panic("error log table missing")
	}
	return errors.New("error log store down")
}

func TestExecuteTool_UsageFailuresKeepResult(t *testing.T) {
	for _, usage := range []brokenUsage{{panics: false}, {panics: true}} {
		t.Run(fmt.Sprintf("panics=%v", usage.panics), func(t *testing.T) {
			h := &harness{ctx: context.Background(), registry: tool.NewRegistry(nil)}
			repos := repository.NewRepositories(dbtest.NewTestDB(t))
			h.executor = tool.NewExecutor(h.registry, tool.ExecutorDeps{
				Tools:    repos.Tool,
				BotTools: repos.BotTool,
				Usage:    usage,
			}, nil)
			require.NoError(t, h.registry.Register(h.echoTool("echo", "")))

			res := h.run(t, "echo", "echo", "bot-1")
			require.True(t, res.Success)
			assert.Equal(t, map[string]interface{}{"q": "x"}, res.Data.(map[string]interface{})["params"])
			assert.Equal(t, int32(1), atomic.LoadInt32(&h.calls))

			res = h.run(t, "echo", "fail", "bot-1")
			assert.Equal(t, tool.CodeExecutionFailed, res.ErrorCode())
			assert.Contains(t, res.Error.Message, "provider exploded")
		})
	}
}
