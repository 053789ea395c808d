package tool

import (
	"context"
	"fmt"
	"log/slog"
)

// NonCritical 执行非关键副作用，失败或 panic 只记录日志，不影响主流程
func NonCritical(ctx context.Context, logger *slog.Logger, name string, fn func(ctx context.Context) error) {
	if logger == nil {
		logger = slog.Default()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.WarnContext(ctx, "non-critical effect panicked", "effect", name, "panic", fmt.Sprint(r))
		}
	}()
	if err := fn(ctx); err != nil {
		logger.WarnContext(ctx, "non-critical effect failed", "effect", name, "error", err)
	}
}
