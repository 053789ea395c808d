package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinyue/next-bot/internal/model"
	"github.com/ashwinyue/next-bot/internal/repository"
	bottool "github.com/ashwinyue/next-bot/internal/service/tool"
	"github.com/ashwinyue/next-bot/internal/testutil"
)

type staticCredentials map[string]*model.Credential

func (s staticCredentials) GetCredential(ctx context.Context, id string) (*model.Credential, error) {
	return s[id], nil
}

func echoDefinition(id, integration string) *bottool.Definition {
	return &bottool.Definition{
		ID:              id,
		Name:            "Echo",
		Type:            bottool.TypeDataQuery,
		IntegrationType: integration,
		Functions: map[string]*bottool.Function{
			"run": {
				Description: "Echo the query back",
				Parameters: bottool.MustObjectSchema(
					&bottool.Param{Name: "q", Kind: bottool.KindString, Required: true, Description: "query"},
					&bottool.Param{Name: "mode", Kind: bottool.KindString, Enum: []string{"upper", "lower"}},
					&bottool.Param{Name: "tags", Kind: bottool.KindArray, Items: bottool.KindString},
					&bottool.Param{Name: "extra", Kind: bottool.KindAny},
				),
				Execute: func(ctx context.Context, params map[string]interface{}, ec *bottool.ExecutionContext) (*bottool.Result, error) {
					if err := bottool.MustObjectSchema(&bottool.Param{Name: "q", Kind: bottool.KindString, Required: true}).Validate(params); err != nil {
						return bottool.Fail(bottool.CodeInvalidParameters, err.Error()), nil
					}
					return bottool.OK(map[string]interface{}{"q": params["q"], "bot": ec.BotID}), nil
				},
			},
		},
	}
}

func newToolset(t *testing.T) (*Toolset, *repository.Repositories) {
	t.Helper()
	ctx := context.Background()
	repos := repository.NewRepositories(testutil.NewTestDB(t))
	registry := bottool.NewRegistry(nil)
	for _, def := range []*bottool.Definition{
		echoDefinition("echo.v1", ""),
		echoDefinition("muted", ""),
		echoDefinition("calendar", model.ProviderGoogle),
		echoDefinition("connected-calendar", model.ProviderGoogle),
	} {
		require.NoError(t, registry.Register(def))
	}
	executor := bottool.NewExecutor(registry, bottool.ExecutorDeps{
		Tools:    repos.Tool,
		BotTools: repos.BotTool,
		Credentials: staticCredentials{
			"cred-1": {ID: "cred-1", Provider: model.ProviderGoogle, Credentials: map[string]interface{}{"access_token": "t"}},
		},
	}, nil)

	cred := "cred-1"
	for _, bt := range []*model.BotTool{
		{BotID: "bot-1", ToolID: "echo.v1", IsEnabled: true},
		{BotID: "bot-1", ToolID: "muted", IsEnabled: false},
		{BotID: "bot-1", ToolID: "calendar", IsEnabled: true},
		{BotID: "bot-1", ToolID: "connected-calendar", IsEnabled: true, CredentialID: &cred},
		{BotID: "bot-1", ToolID: "uninstalled-definition", IsEnabled: true},
	} {
		require.NoError(t, repos.BotTool.Create(ctx, bt))
	}
	return NewToolset(repos.BotTool, executor, nil), repos
}

func toolNames(t *testing.T, tools []tool.BaseTool) []string {
	t.Helper()
	names := make([]string, 0, len(tools))
	for _, tl := range tools {
		info, err := tl.Info(context.Background())
		require.NoError(t, err)
		names = append(names, info.Name)
	}
	return names
}

func TestToolset_FiltersDisabledAndUnauthorized(t *testing.T) {
	ts, _ := newToolset(t)

	tools, err := ts.Tools(context.Background(), bottool.ExecutionContext{BotID: "bot-1"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"echo_v1__run", "connected-calendar__run"}, toolNames(t, tools))

	cfg, err := ts.NodeConfig(context.Background(), bottool.ExecutionContext{BotID: "bot-1"})
	require.NoError(t, err)
	assert.Len(t, cfg.Tools, 2)
}

func TestBotTool_Info(t *testing.T) {
	ts, _ := newToolset(t)
	tools, err := ts.Tools(context.Background(), bottool.ExecutionContext{BotID: "bot-1"})
	require.NoError(t, err)

	var echo tool.BaseTool
	for _, tl := range tools {
		if info, _ := tl.Info(context.Background()); info.Name == "echo_v1__run" {
			echo = tl
		}
	}
	require.NotNil(t, echo)

	info, err := echo.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Echo: Echo the query back", info.Desc)

	js, err := info.ParamsOneOf.ToJSONSchema()
	require.NoError(t, err)
	raw, err := json.Marshal(js)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	props := doc["properties"].(map[string]interface{})
	assert.Equal(t, string(schema.String), props["q"].(map[string]interface{})["type"])
	assert.Equal(t, string(schema.Array), props["tags"].(map[string]interface{})["type"])
	_, typed := props["extra"].(map[string]interface{})["type"]
	assert.False(t, typed)
	assert.Contains(t, doc["required"], "q")
}

func TestBotTool_InvokableRun(t *testing.T) {
	ts, _ := newToolset(t)
	tools, err := ts.Tools(context.Background(), bottool.ExecutionContext{BotID: "bot-1"})
	require.NoError(t, err)

	var echo tool.InvokableTool
	for _, tl := range tools {
		if info, _ := tl.Info(context.Background()); info.Name == "echo_v1__run" {
			echo = tl.(tool.InvokableTool)
		}
	}
	require.NotNil(t, echo)

	tests := []struct {
		name    string
		args    string
		success bool
		code    string
	}{
		{"valid", `{"q":"hi"}`, true, ""},
		{"fenced with trailing comma", "```json\n{\"q\": \"hi\",}\n```", true, ""},
		{"surrounding prose", `Sure, calling it: {"q":"hi"} now`, true, ""},
		{"empty arguments", "", false, bottool.CodeInvalidParameters},
		{"not an object", `["q"]`, false, bottool.CodeInvalidParameters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := echo.InvokableRun(context.Background(), tt.args)
			require.NoError(t, err)
			var res bottool.Result
			require.NoError(t, json.Unmarshal([]byte(out), &res))
			assert.Equal(t, tt.success, res.Success, out)
			if tt.code != "" {
				require.NotNil(t, res.Error)
				assert.Equal(t, tt.code, res.Error.Code)
			} else {
				assert.Equal(t, "bot-1", res.Data.(map[string]interface{})["bot"])
			}
		})
	}
}

func TestToolName(t *testing.T) {
	assert.Equal(t, "google-calendar__bookAppointment", ToolName("google-calendar", "bookAppointment"))
	assert.Equal(t, "custom_tool_1__execute", ToolName("custom tool/1", "execute"))
	assert.Len(t, ToolName(strings.Repeat("x", 80), "run"), maxToolNameLen)
}

func TestRepairArguments(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"  ", ""},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{`<|FunctionCallBegin|>{"a":1}<|FunctionCallEnd|>`, `{"a":1}`},
		{`here you go {"a":1} thanks`, `{"a":1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, repairArguments(tt.in))
	}

	repaired := repairArguments(`{"a": 1, "b": 'two',}`)
	var v map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(repaired), &v))
	assert.Equal(t, "two", v["b"])
}
