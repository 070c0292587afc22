package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/lifecycle"
	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Orchestrator 管理API依赖的编排器操作
type Orchestrator interface {
	GetInfo(id string) (model.ServiceInfo, bool)
	GetAllInfos() []model.ServiceInfo
	GetAllStatuses() map[string]model.Status
	StartOrder(ids ...string) ([]string, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) error
}

// DefaultOperationTimeout 单次启停操作的超时
const DefaultOperationTimeout = 30 * time.Second

// ServiceHandler 处理服务查询与启停API
type ServiceHandler struct {
	orch      Orchestrator
	logger    lifecycle.Logger
	timeout   time.Duration
	protected map[string]struct{}
}

// NewServiceHandler 创建服务处理器，protected中的服务不允许通过API启停
func NewServiceHandler(orch Orchestrator, logger lifecycle.Logger, protected ...string) *ServiceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &ServiceHandler{
		orch:      orch,
		logger:    logger,
		timeout:   DefaultOperationTimeout,
		protected: make(map[string]struct{}, len(protected)),
	}
	for _, id := range protected {
		h.protected[id] = struct{}{}
	}
	return h
}

// ListServices 查询所有服务快照，按注册顺序
func (h *ServiceHandler) ListServices(c echo.Context) error {
	return success(c, h.orch.GetAllInfos())
}

// ListStatuses 查询所有服务当前状态
func (h *ServiceHandler) ListStatuses(c echo.Context) error {
	return success(c, h.orch.GetAllStatuses())
}

// GetStartOrder 查询依赖顺序，可通过ids参数重复指定子集
func (h *ServiceHandler) GetStartOrder(c echo.Context) error {
	order, err := h.orch.StartOrder(c.QueryParams()["ids"]...)
	if err != nil {
		return failureFromError(c, err)
	}
	return success(c, order)
}

// GetService 查询服务详情
func (h *ServiceHandler) GetService(c echo.Context) error {
	id := c.Param("serviceId")
	info, ok := h.orch.GetInfo(id)
	if !ok {
		return failure(c, http.StatusNotFound, "服务不存在: "+id)
	}
	return success(c, info)
}

// StartService 启动服务
func (h *ServiceHandler) StartService(c echo.Context) error {
	return h.operate(c, "start", h.orch.Start)
}

// StopService 停止服务
func (h *ServiceHandler) StopService(c echo.Context) error {
	return h.operate(c, "stop", h.orch.Stop)
}

// RestartService 手动重启服务
func (h *ServiceHandler) RestartService(c echo.Context) error {
	return h.operate(c, "restart", h.orch.Restart)
}

func (h *ServiceHandler) operate(c echo.Context, action string, op func(context.Context, string) error) error {
	id := c.Param("serviceId")
	if _, ok := h.protected[id]; ok {
		return failure(c, http.StatusForbidden, "不允许通过管理API操作该服务: "+id)
	}

	// 客户端断开不应中断正在进行的启停
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), h.timeout)
	defer cancel()

	h.logger.Info("管理API操作服务", zap.String("action", action), zap.String("service_id", id))
	if err := op(ctx, id); err != nil {
		h.logger.Warn("管理API操作失败",
			zap.String("action", action),
			zap.String("service_id", id),
			zap.Error(err))
		return failureFromError(c, err)
	}

	info, _ := h.orch.GetInfo(id)
	return success(c, info)
}
