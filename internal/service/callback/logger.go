// Package callback 提供 Eino Callback 日志支持
package callback

import (
	"context"
	"log/slog"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

const maxLogged = 200

// Logger 日志回调处理器
// 实现 callbacks.Handler 接口，记录工具调用的参数和结果
type Logger struct {
	logger      *slog.Logger
	EnableDebug bool
}

var _ callbacks.Handler = (*Logger)(nil)

// NewLogger 创建日志回调处理器
func NewLogger(logger *slog.Logger, enableDebug bool) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger, EnableDebug: enableDebug}
}

// OnStart 组件执行开始时调用
func (l *Logger) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if l.EnableDebug {
		l.logger.DebugContext(ctx, "eino component start", append(runAttrs(info), "input", formatInput(info, input))...)
	}
	return ctx
}

// OnEnd 组件执行成功结束时调用
func (l *Logger) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if l.EnableDebug {
		l.logger.DebugContext(ctx, "eino component end", append(runAttrs(info), "output", formatOutput(info, output))...)
	}
	return ctx
}

// OnError 组件执行出错时调用
func (l *Logger) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	l.logger.ErrorContext(ctx, "eino component failed", append(runAttrs(info), "error", err)...)
	return ctx
}

// OnStartWithStreamInput 流式输入开始时调用
func (l *Logger) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo, input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	if l.EnableDebug {
		l.logger.DebugContext(ctx, "eino stream start", runAttrs(info)...)
	}
	return ctx
}

// OnEndWithStreamOutput 流式输出结束时调用
func (l *Logger) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo, output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	if l.EnableDebug {
		l.logger.DebugContext(ctx, "eino stream end", runAttrs(info)...)
	}
	return ctx
}

func runAttrs(info *callbacks.RunInfo) []any {
	if info == nil {
		return nil
	}
	return []any{"name", info.Name, "type", info.Type, "component", string(info.Component)}
}

// formatInput 工具调用只记录参数 JSON
func formatInput(info *callbacks.RunInfo, input callbacks.CallbackInput) interface{} {
	if input == nil {
		return nil
	}
	if info != nil && info.Component == components.ComponentOfTool {
		if in := einotool.ConvCallbackInput(input); in != nil {
			return truncate(in.ArgumentsInJSON)
		}
	}
	if str, ok := input.(string); ok {
		return truncate(str)
	}
	return input
}

// formatOutput 工具调用只记录结果
func formatOutput(info *callbacks.RunInfo, output callbacks.CallbackOutput) interface{} {
	if output == nil {
		return nil
	}
	if info != nil && info.Component == components.ComponentOfTool {
		if out := einotool.ConvCallbackOutput(output); out != nil {
			return truncate(out.Response)
		}
	}
	if str, ok := output.(string); ok {
		return truncate(str)
	}
	return output
}

func truncate(s string) string {
	if len(s) > maxLogged {
		return s[:maxLogged] + "..."
	}
	return s
}

// SetupGlobalCallbacks 设置全局回调
func SetupGlobalCallbacks(logger *slog.Logger, enableDebug bool) {
	handler := NewLogger(logger, enableDebug)
	callbacks.AppendGlobalHandlers(handler)
	handler.logger.Info("eino global callbacks registered", "debug", enableDebug)
}
