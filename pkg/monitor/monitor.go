package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"flashswap-core/pkg/logger"
)

// WorkflowMetrics 撮合工作流的业务指标
type WorkflowMetrics struct {
	RunsTotal          *prometheus.CounterVec   // result: authorized / pending / aborted
	StageDuration      *prometheus.HistogramVec // 各阶段耗时
	VenueRetriesTotal  prometheus.Counter
	ReplansTotal       prometheus.Counter // nonce 冲突触发的重新规划次数
	BudgetRejectsTotal prometheus.Counter
}

// Global Metrics Instance
var Workflow *WorkflowMetrics

// Init 初始化业务指标
func Init() {
	if Workflow != nil {
		return
	}
	Workflow = &WorkflowMetrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flashswap_runs_total",
			Help: "The total number of workflow runs by terminal result",
		}, []string{"result"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flashswap_stage_duration_seconds",
			Help:    "Duration of workflow stages",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		VenueRetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flashswap_venue_retries_total",
			Help: "The total number of retried venue calls",
		}),
		ReplansTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flashswap_replans_total",
			Help: "The total number of plan rebuilds caused by nonce conflicts",
		}),
		BudgetRejectsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flashswap_budget_rejects_total",
			Help: "The total number of quotes rejected by the budget guard",
		}),
	}
}

// Serve 在独立 goroutine 里暴露 /metrics。port 为空则不启动。
func Serve(port string) {
	if port == "" {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":"+port, mux); err != nil {
			logger.Error("metrics listener stopped", zap.Error(err))
		}
	}()
}
