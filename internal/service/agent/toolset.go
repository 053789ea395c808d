// Package agent 将 bot 已安装的工具暴露为 Eino 工具，供 LLM 调用
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/ashwinyue/next-bot/internal/model"
	"github.com/ashwinyue/next-bot/internal/service/tool"
)

// maxToolNameLen 函数名长度上限
const maxToolNameLen = 64

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Installations bot 工具安装记录
type Installations interface {
	ListByBot(ctx context.Context, botID string) ([]*model.BotTool, error)
}

// Executor 工具执行入口
type Executor interface {
	Resolve(ctx context.Context, toolID, botID string) (*tool.Definition, error)
	ExecuteTool(ctx context.Context, toolID, functionName string, params map[string]interface{}, ec tool.ExecutionContext) (*tool.Result, error)
}

// Toolset 为一次对话构建工具列表
type Toolset struct {
	installs Installations
	executor Executor
	logger   *slog.Logger
}

// NewToolset 创建工具集
func NewToolset(installs Installations, executor Executor, logger *slog.Logger) *Toolset {
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolset{installs: installs, executor: executor, logger: logger}
}

// Tools 返回 bot 可用的工具，跳过已禁用和缺少授权的工具
func (t *Toolset) Tools(ctx context.Context, ec tool.ExecutionContext) ([]einotool.BaseTool, error) {
	rows, err := t.installs.ListByBot(ctx, ec.BotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bot tools: %w", err)
	}

	out := make([]einotool.BaseTool, 0)
	seen := make(map[string]struct{})
	for _, row := range rows {
		if !row.IsEnabled {
			continue
		}
		def, err := t.executor.Resolve(ctx, row.ToolID, ec.BotID)
		if err != nil {
			t.logger.WarnContext(ctx, "installed tool cannot be resolved", "tool_id", row.ToolID, "bot_id", ec.BotID, "error", err)
			continue
		}
		if def.IntegrationType != "" && (row.CredentialID == nil || *row.CredentialID == "") {
			continue
		}
		for _, fn := range def.FunctionNames() {
			name := ToolName(def.ID, fn)
			if _, dup := seen[name]; dup {
				t.logger.WarnContext(ctx, "duplicate tool name after sanitizing", "name", name)
				continue
			}
			seen[name] = struct{}{}
			out = append(out, &botTool{
				name:     name,
				def:      def,
				function: fn,
				executor: t.executor,
				ec:       ec,
			})
		}
	}
	return out, nil
}

// NodeConfig 构建 ToolsNode 配置
func (t *Toolset) NodeConfig(ctx context.Context, ec tool.ExecutionContext) (*compose.ToolsNodeConfig, error) {
	tools, err := t.Tools(ctx, ec)
	if err != nil {
		return nil, err
	}
	return &compose.ToolsNodeConfig{Tools: tools}, nil
}

// ToolName 生成 LLM 可接受的函数名
func ToolName(toolID, function string) string {
	name := invalidNameChars.ReplaceAllString(toolID+"__"+function, "_")
	if len(name) > maxToolNameLen {
		name = name[:maxToolNameLen]
	}
	return name
}

// botTool 单个工具函数
type botTool struct {
	name     string
	def      *tool.Definition
	function string
	executor Executor
	ec       tool.ExecutionContext
}

var _ einotool.InvokableTool = (*botTool)(nil)

// Info 返回函数描述
func (b *botTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	fn, _ := b.def.Function(b.function)
	desc := b.def.Name
	if fn != nil && fn.Description != "" {
		desc = fmt.Sprintf("%s: %s", b.def.Name, fn.Description)
	}

	params := make(map[string]*schema.ParameterInfo)
	if fn != nil && fn.Parameters != nil {
		for _, p := range fn.Parameters.Params() {
			params[p.Name] = parameterInfo(p)
		}
	}
	return &schema.ToolInfo{
		Name:        b.name,
		Desc:        desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

// InvokableRun 执行函数，结构化失败作为结果返回给模型
func (b *botTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...einotool.Option) (string, error) {
	params := make(map[string]interface{})
	if raw := repairArguments(argumentsInJSON); raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			out, _ := json.Marshal(tool.Fail(tool.CodeInvalidParameters, "arguments must be a JSON object"))
			return string(out), nil
		}
	}

	result, err := b.executor.ExecuteTool(ctx, b.def.ID, b.function, params, b.ec)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode tool result: %w", err)
	}
	return string(out), nil
}

func parameterInfo(p *tool.Param) *schema.ParameterInfo {
	info := &schema.ParameterInfo{
		Type:     dataType(p.Kind),
		Desc:     p.Description,
		Required: p.Required,
	}
	if len(p.Enum) > 0 {
		info.Enum = append([]string(nil), p.Enum...)
		sort.Strings(info.Enum)
	}
	if p.Kind == tool.KindArray {
		info.ElemInfo = &schema.ParameterInfo{Type: dataType(p.Items)}
	}
	return info
}

func dataType(k tool.Kind) schema.DataType {
	switch k {
	case tool.KindNumber:
		return schema.Number
	case tool.KindInteger:
		return schema.Integer
	case tool.KindBoolean:
		return schema.Boolean
	case tool.KindArray:
		return schema.Array
	case tool.KindObject:
		return schema.Object
	case tool.KindAny:
		// 不声明类型，任意 JSON 值均可
		return ""
	default:
		return schema.String
	}
}
