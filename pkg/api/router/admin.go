package router

import (
	"github.com/hewenyu/kong-orchestrator/pkg/api/handler"
	"github.com/labstack/echo/v4"
)

// RegisterAdminRoutes 配置管理API路由
func RegisterAdminRoutes(e *echo.Echo, serviceHandler *handler.ServiceHandler, healthHandler *handler.HealthHandler, metricsHandler echo.HandlerFunc) {
	// API分组，版本v1
	api := e.Group("/api/v1")

	// 服务查询与启停
	services := api.Group("/services")
	services.GET("", serviceHandler.ListServices)                       // 查询服务列表
	services.GET("/statuses", serviceHandler.ListStatuses)              // 查询服务状态
	services.GET("/order", serviceHandler.GetStartOrder)                // 查询启动顺序
	services.GET("/:serviceId", serviceHandler.GetService)              // 查询服务详情
	services.POST("/:serviceId/start", serviceHandler.StartService)     // 启动服务
	services.POST("/:serviceId/stop", serviceHandler.StopService)       // 停止服务
	services.POST("/:serviceId/restart", serviceHandler.RestartService) // 重启服务

	// 系统状态
	api.GET("/health", healthHandler.HealthCheck)
	e.GET("/ping", healthHandler.Ping)

	// Prometheus指标
	if metricsHandler != nil {
		e.GET("/metrics", metricsHandler)
	}
}
