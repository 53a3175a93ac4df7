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

	// 审批操作数
	approvalActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_actions_total",
			Help: "Total number of approval actions by outcome",
		},
		[]string{"action", "result"}, // action: submit/resubmit/approve/reject/request_changes
	)

	// 层级升级数
	approvalEscalationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "approval_escalations_total",
			Help: "Total number of next-level approval records created",
		},
	)

	// 审批链完成数
	approvalCompletionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "approval_completions_total",
			Help: "Total number of approval chains completed",
		},
	)

	// 乐观锁冲突数
	approvalConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_conflicts_total",
			Help: "Total number of storage conflicts on approval actions",
		},
		[]string{"retried"},
	)

	// 事件投递数
	eventDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_event_deliveries_total",
			Help: "Total number of approval event deliveries by sink",
		},
		[]string{"sink", "result"},
	)

	// 事件队列长度
	eventQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "approval_event_queue_depth",
			Help: "Number of approval events waiting in the dispatch queue",
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

	// 待审批记录数
	pendingApprovals = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "approval_pending_records",
			Help: "Number of pending approval records",
		},
	)
)

var (
	once sync.Once
)

func init() {
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(approvalActionsTotal)
	prometheus.MustRegister(approvalEscalationsTotal)
	prometheus.MustRegister(approvalCompletionsTotal)
	prometheus.MustRegister(approvalConflictsTotal)
	prometheus.MustRegister(eventDeliveriesTotal)
	prometheus.MustRegister(eventQueueDepth)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)
	prometheus.MustRegister(pendingApprovals)

	// 注册 Go 运行时指标(只注册一次)
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

// RecordApprovalAction 记录审批操作结果
func RecordApprovalAction(action, result string) {
	approvalActionsTotal.WithLabelValues(action, result).Inc()
}

// RecordEscalation 记录一次层级升级
func RecordEscalation() {
	approvalEscalationsTotal.Inc()
}

// RecordCompletion 记录一次审批链完成
func RecordCompletion() {
	approvalCompletionsTotal.Inc()
}

// RecordConflict 记录一次乐观锁冲突
func RecordConflict(retried bool) {
	approvalConflictsTotal.WithLabelValues(fmt.Sprintf("%t", retried)).Inc()
}

// RecordEventDelivery 记录事件投递结果
func RecordEventDelivery(sink string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	eventDeliveriesTotal.WithLabelValues(sink, result).Inc()
}

// SetEventQueueDepth 更新事件队列长度
func SetEventQueueDepth(depth int) {
	eventQueueDepth.Set(float64(depth))
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

// UpdatePendingApprovals 更新待审批记录数
func UpdatePendingApprovals(db *gorm.DB) error {
	var count int64
	if err := db.Table("approval_records").Where("status = ?", "pending").Count(&count).Error; err != nil {
		return err
	}
	pendingApprovals.Set(float64(count))
	return nil
}
