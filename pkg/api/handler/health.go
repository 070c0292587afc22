package handler

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"github.com/labstack/echo/v4"
)

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// HealthHandler 汇总所有服务状态的健康检查处理器
type HealthHandler struct {
	orch      Orchestrator
	version   string
	startTime time.Time
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(orch Orchestrator, version string) *HealthHandler {
	return &HealthHandler{
		orch:      orch,
		version:   version,
		startTime: time.Now(),
	}
}

// HealthCheck 任一服务处于Error时返回503，存在未运行的服务时为degraded
func (h *HealthHandler) HealthCheck(c echo.Context) error {
	statuses := h.orch.GetAllStatuses()

	counts := make(map[model.Status]int)
	var failed []string
	for id, s := range statuses {
		counts[s]++
		if s == model.StatusError {
			failed = append(failed, id)
		}
	}

	status := string(model.HealthStatusHealthy)
	code := http.StatusOK
	switch {
	case len(failed) > 0:
		status = string(model.HealthStatusUnhealthy)
		code = http.StatusServiceUnavailable
	case counts[model.StatusRunning] != len(statuses):
		status = string(model.HealthStatusDegraded)
	}

	details := map[string]any{
		"version":    h.version,
		"uptime":     time.Since(h.startTime).String(),
		"services":   len(statuses),
		"statuses":   counts,
		"resources":  getResourceUsage(),
		"goroutines": runtime.NumGoroutine(),
	}
	if len(failed) > 0 {
		details["failed"] = failed
	}

	return c.JSON(code, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Details:   details,
	})
}

// Ping 存活探针
func (h *HealthHandler) Ping(c echo.Context) error {
	return c.String(http.StatusOK, "pong")
}

// getResourceUsage 获取资源使用情况
func getResourceUsage() map[string]any {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]any{
		"memory_alloc": formatBytes(memStats.Alloc),
		"memory_sys":   formatBytes(memStats.Sys),
		"memory_heap":  formatBytes(memStats.HeapAlloc),
		"num_gc":       memStats.NumGC,
	}
}

// formatBytes 将字节数格式化为可读形式
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
