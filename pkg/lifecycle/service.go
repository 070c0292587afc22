// Package lifecycle 管理进程内服务的注册、依赖顺序启停、周期健康检查与重启策略
package lifecycle

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"go.uber.org/zap"
)

// Service 定义被编排服务必须实现的接口
type Service interface {
	// ID 服务唯一标识
	ID() string

	// Name 服务名称
	Name() string

	// Version 服务版本
	Version() string

	// Dependencies 启动前必须处于运行状态的服务ID
	Dependencies() []string

	// Start 初始化服务
	Start(ctx context.Context) error

	// Stop 释放服务资源
	Stop(ctx context.Context) error

	// HealthCheck 返回当前健康状态
	HealthCheck(ctx context.Context) (model.HealthStatus, error)
}

// Logger 编排器使用的日志接口，config.ZapLogger 与 *zap.Logger 均满足
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// Base 可嵌入的服务基础实现，提供标识字段和健康状态辅助方法
type Base struct {
	id           string
	name         string
	version      string
	dependencies []string

	mu        sync.RWMutex
	startedAt time.Time
}

// NewBase 创建服务基础实现
func NewBase(id, name, version string, dependencies ...string) *Base {
	return &Base{
		id:           id,
		name:         name,
		version:      version,
		dependencies: append([]string(nil), dependencies...),
	}
}

// ID 服务唯一标识
func (b *Base) ID() string { return b.id }

// Name 服务名称
func (b *Base) Name() string { return b.name }

// Version 服务版本
func (b *Base) Version() string { return b.version }

// Dependencies 返回依赖列表的副本
func (b *Base) Dependencies() []string {
	return append([]string(nil), b.dependencies...)
}

// MarkStarted 记录启动时间，用于计算运行时长
func (b *Base) MarkStarted() {
	b.mu.Lock()
	b.startedAt = time.Now()
	b.mu.Unlock()
}

// MarkStopped 清除启动时间
func (b *Base) MarkStopped() {
	b.mu.Lock()
	b.startedAt = time.Time{}
	b.mu.Unlock()
}

// Uptime 返回自上次启动以来的时长
func (b *Base) Uptime() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.startedAt.IsZero() {
		return 0
	}
	return time.Since(b.startedAt)
}

// Healthy 构造健康结果
func (b *Base) Healthy(message string, responseTime time.Duration) model.HealthStatus {
	return b.health(model.HealthStatusHealthy, message, responseTime)
}

// Unhealthy 构造不健康结果
func (b *Base) Unhealthy(message string, responseTime time.Duration) model.HealthStatus {
	return b.health(model.HealthStatusUnhealthy, message, responseTime)
}

func (b *Base) health(state model.HealthState, message string, responseTime time.Duration) model.HealthStatus {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return model.HealthStatus{
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
		Metrics: model.HealthMetrics{
			Uptime:       b.Uptime(),
			MemoryUsage:  memStats.Alloc,
			ResponseTime: responseTime,
		},
	}
}
