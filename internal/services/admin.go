package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/api"
	"github.com/hewenyu/kong-orchestrator/pkg/api/handler"
	"github.com/hewenyu/kong-orchestrator/pkg/lifecycle"
	"github.com/hewenyu/kong-orchestrator/pkg/model"
)

// AdminServiceID 管理API服务的ID
const AdminServiceID = "admin-api"

// AdminService 管理API服务
type AdminService struct {
	*lifecycle.Base

	server *api.Server
	client *http.Client
}

// NewAdminService 创建管理API服务，自身ID总是受保护
func NewAdminService(orch handler.Orchestrator, opts api.Options, logger lifecycle.Logger, deps ...string) *AdminService {
	opts.Protected = append(opts.Protected, AdminServiceID)
	return &AdminService{
		Base:   lifecycle.NewBase(AdminServiceID, "管理API", opts.Version, deps...),
		server: api.NewServer(orch, logger, opts),
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Start 监听端口
func (s *AdminService) Start(ctx context.Context) error {
	if err := s.server.Start(); err != nil {
		return err
	}
	s.MarkStarted()
	return nil
}

// Stop 优雅关闭
func (s *AdminService) Stop(ctx context.Context) error {
	s.MarkStopped()
	return s.server.Shutdown(ctx)
}

// HealthCheck 请求自身的/ping
func (s *AdminService) HealthCheck(ctx context.Context) (model.HealthStatus, error) {
	addr := s.server.Addr()
	if addr == "" {
		return s.Unhealthy("管理API未监听", 0), nil
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/ping", nil)
	if err != nil {
		return model.HealthStatus{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return s.Unhealthy(err.Error(), time.Since(start)), nil
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.Unhealthy(fmt.Sprintf("自检返回 %d", resp.StatusCode), time.Since(start)), nil
	}
	return s.Healthy("管理API正常", time.Since(start)), nil
}

// Addr 返回实际监听地址
func (s *AdminService) Addr() string {
	return s.server.Addr()
}
