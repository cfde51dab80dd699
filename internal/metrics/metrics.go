package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 启动的执行记录数
	executionsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "executions_started_total",
			Help: "Total number of executions started",
		},
	)

	// 完成的执行记录数
	executionsFinishedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "executions_finished_total",
			Help: "Total number of executions finished",
		},
	)

	// 因时间窗冲突被拒绝的创建数
	executionConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "execution_conflicts_total",
			Help: "Total number of execution creations rejected by time window conflict",
		},
	)

	// 完成门禁校验失败数
	finishGateFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "finish_gate_failures_total",
			Help: "Total number of finish attempts rejected by the checklist/attachment gate",
		},
	)

	// 持久化的计时心跳数
	executionTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "execution_ticks_total",
			Help: "Total number of elapsed-time ticks persisted",
		},
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	// 执行记录状态分布
	executionsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "executions_by_state",
			Help: "Number of executions by state",
		},
		[]string{"state"},
	)
)

var (
	once sync.Once
)

func init() {
	// 注册指标
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(executionsStartedTotal)
	prometheus.MustRegister(executionsFinishedTotal)
	prometheus.MustRegister(executionConflictsTotal)
	prometheus.MustRegister(finishGateFailuresTotal)
	prometheus.MustRegister(executionTicksTotal)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)
	prometheus.MustRegister(executionsByState)

	// 注册 Go 运行时指标（只注册一次）
	once.Do(func() {
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordExecutionStarted 记录执行启动
func RecordExecutionStarted() {
	executionsStartedTotal.Inc()
}

// RecordExecutionFinished 记录执行完成
func RecordExecutionFinished() {
	executionsFinishedTotal.Inc()
}

// RecordExecutionConflict 记录冲突拒绝
func RecordExecutionConflict() {
	executionConflictsTotal.Inc()
}

// RecordFinishGateFailure 记录完成门禁失败
func RecordFinishGateFailure() {
	finishGateFailuresTotal.Inc()
}

// RecordTick 记录计时心跳
func RecordTick() {
	executionTicksTotal.Inc()
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}

// UpdateExecutionsByState 更新执行状态分布指标
func UpdateExecutionsByState(state string, count float64) {
	executionsByState.WithLabelValues(state).Set(count)
}
