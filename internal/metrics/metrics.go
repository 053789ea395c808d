package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "next_bot"

// ToolMetrics 工具执行指标
type ToolMetrics struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewToolMetrics 创建并注册工具执行指标
func NewToolMetrics(reg prometheus.Registerer) *ToolMetrics {
	m := &ToolMetrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tool",
			Name:      "executions_total",
			Help:      "Tool executions labeled by tool, function and outcome.",
		}, []string{"tool_id", "function", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tool",
			Name:      "execution_duration_seconds",
			Help:      "Tool execution latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool_id", "function"}),
	}
	if reg != nil {
		reg.MustRegister(m.executions, m.duration)
	}
	return m
}

// ObserveExecution 记录一次执行
func (m *ToolMetrics) ObserveExecution(toolID, function, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(toolID, function, outcome).Inc()
	m.duration.WithLabelValues(toolID, function).Observe(elapsed.Seconds())
}

// Executions 返回计数器，供测试读取
func (m *ToolMetrics) Executions() *prometheus.CounterVec {
	return m.executions
}

// AddBuildInfo 注册构建信息指标
func AddBuildInfo(reg prometheus.Registerer, version string) error {
	return reg.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "build_info",
			Help:        "A metric with a constant '1' value labeled by version.",
			ConstLabels: prometheus.Labels{"version": version},
		},
		func() float64 { return 1 },
	))
}
