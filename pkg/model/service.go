package model

import "time"

// Status 表示服务生命周期状态
type Status string

const (
	// StatusStopped 已停止
	StatusStopped Status = "Stopped"
	// StatusStarting 启动中
	StatusStarting Status = "Starting"
	// StatusRunning 运行中
	StatusRunning Status = "Running"
	// StatusStopping 停止中
	StatusStopping Status = "Stopping"
	// StatusError 错误状态
	StatusError Status = "Error"
	// StatusRestarting 重启中
	StatusRestarting Status = "Restarting"
)

// HealthState 表示健康检查结果
type HealthState string

const (
	// HealthStatusHealthy 健康状态
	HealthStatusHealthy HealthState = "healthy"
	// HealthStatusDegraded 降级状态，仍视为可用
	HealthStatusDegraded HealthState = "degraded"
	// HealthStatusUnhealthy 不健康状态
	HealthStatusUnhealthy HealthState = "unhealthy"
	// HealthStatusUnknown 未知状态
	HealthStatusUnknown HealthState = "unknown"
)

// HealthMetrics 健康检查附带的运行指标
type HealthMetrics struct {
	Uptime       time.Duration `json:"uptime"`        // 运行时长
	MemoryUsage  uint64        `json:"memory_usage"`  // 内存占用(字节)
	CPUUsage     float64       `json:"cpu_usage"`     // CPU占用(百分比)
	ResponseTime time.Duration `json:"response_time"` // 探测耗时
}

// HealthStatus 表示一次健康检查的结果
type HealthStatus struct {
	Status    HealthState   `json:"status"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
	Metrics   HealthMetrics `json:"metrics"`
}

// Healthy 判断结果是否可用，degraded 视为可用
func (h HealthStatus) Healthy() bool {
	return h.Status == HealthStatusHealthy || h.Status == HealthStatusDegraded
}

// ServiceConfig 服务注册参数
type ServiceConfig struct {
	ID                  string        `json:"id" mapstructure:"id"`
	Name                string        `json:"name" mapstructure:"name"`
	Version             string        `json:"version" mapstructure:"version"`
	AutoStart           bool          `json:"auto_start" mapstructure:"auto_start"`                       // 仅供外部引导程序参考
	RestartOnFailure    bool          `json:"restart_on_failure" mapstructure:"restart_on_failure"`       // 健康检查失败时是否自动重启
	MaxRestartAttempts  int           `json:"max_restart_attempts" mapstructure:"max_restart_attempts"`   // 自动重启次数上限
	HealthCheckInterval time.Duration `json:"health_check_interval" mapstructure:"health_check_interval"` // 健康检查周期
	Dependencies        []string      `json:"dependencies" mapstructure:"dependencies"`                   // 依赖的服务ID
}

// ServiceInfo 服务记录的只读快照
type ServiceInfo struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Version        string        `json:"version"`
	Dependencies   []string      `json:"dependencies"`
	Config         ServiceConfig `json:"config"`
	Status         Status        `json:"status"`
	RestartCount   int           `json:"restart_count"`
	LastHealth     *HealthStatus `json:"last_health,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
	RegisteredAt   time.Time     `json:"registered_at"`
	LastTransition time.Time     `json:"last_transition"`
}
