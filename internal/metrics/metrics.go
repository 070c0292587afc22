// Package metrics 把生命周期事件转换为Prometheus指标
package metrics

import (
	"github.com/hewenyu/kong-orchestrator/pkg/lifecycle"
	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
)

var allStatuses = []model.Status{
	model.StatusStopped,
	model.StatusStarting,
	model.StatusRunning,
	model.StatusStopping,
	model.StatusError,
	model.StatusRestarting,
}

// Metrics 编排器指标，方法对nil接收者安全，未启用指标时直接传nil
type Metrics struct {
	// ServiceStatus 每个服务当前所处状态为1，其余为0
	ServiceStatus *prometheus.GaugeVec

	// TransitionsTotal 按目标状态统计的状态变化次数
	TransitionsTotal *prometheus.CounterVec

	// RestartsTotal 手动和自动重启次数
	RestartsTotal *prometheus.CounterVec

	// HealthCheckFailuresTotal 健康检查失败次数
	HealthCheckFailuresTotal *prometheus.CounterVec

	// HealthCheckDuration 健康检查耗时
	HealthCheckDuration *prometheus.HistogramVec

	// AlertsTotal 告警次数
	AlertsTotal *prometheus.CounterVec
}

// NewMetrics 创建并注册指标，reg为nil时只创建不注册
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orchestrator_service_status",
				Help: "Current lifecycle status of each service (1 for the active status)",
			},
			[]string{"service", "status"},
		),

		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_transitions_total",
				Help: "Total lifecycle transitions by service and target status",
			},
			[]string{"service", "to"},
		),

		RestartsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_restarts_total",
				Help: "Total service restarts by service",
			},
			[]string{"service"},
		),

		HealthCheckFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_health_check_failures_total",
				Help: "Total failed health checks by service",
			},
			[]string{"service"},
		),

		HealthCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_health_check_duration_seconds",
				Help:    "Health check duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),

		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_alerts_total",
				Help: "Total alerts raised by service",
			},
			[]string{"service"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.ServiceStatus,
			m.TransitionsTotal,
			m.RestartsTotal,
			m.HealthCheckFailuresTotal,
			m.HealthCheckDuration,
			m.AlertsTotal,
		)
	}

	return m
}

// Handle 作为生命周期事件监听使用
func (m *Metrics) Handle(evt lifecycle.Event) {
	if m == nil {
		return
	}

	switch evt.Type {
	case lifecycle.EventTransition:
		m.TransitionsTotal.WithLabelValues(evt.ServiceID, string(evt.To)).Inc()
		m.SetStatus(evt.ServiceID, evt.To)
	case lifecycle.EventHealth:
		if evt.Info.LastHealth == nil {
			return
		}
		h := evt.Info.LastHealth
		m.HealthCheckDuration.WithLabelValues(evt.ServiceID).Observe(h.Metrics.ResponseTime.Seconds())
		if !h.Healthy() {
			m.HealthCheckFailuresTotal.WithLabelValues(evt.ServiceID).Inc()
		}
	case lifecycle.EventRestart:
		m.RestartsTotal.WithLabelValues(evt.ServiceID).Inc()
	case lifecycle.EventAlert:
		m.AlertsTotal.WithLabelValues(evt.ServiceID).Inc()
	}
}

// SetStatus 设置服务当前状态
func (m *Metrics) SetStatus(serviceID string, status model.Status) {
	if m == nil {
		return
	}
	for _, s := range allStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		m.ServiceStatus.WithLabelValues(serviceID, string(s)).Set(v)
	}
}

// Seed 按当前快照初始化状态指标，用于订阅前已注册的服务
func (m *Metrics) Seed(infos []model.ServiceInfo) {
	if m == nil {
		return
	}
	for _, info := range infos {
		m.SetStatus(info.ID, info.Status)
	}
}
