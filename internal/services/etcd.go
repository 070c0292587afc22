package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/lifecycle"
	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"github.com/hewenyu/kong-orchestrator/pkg/storage/etcd"
	"go.uber.org/zap"
)

// EtcdServiceID etcd连接服务的ID
const EtcdServiceID = "etcd"

// EtcdService 管理到etcd集群的连接
type EtcdService struct {
	*lifecycle.Base

	cfg    etcd.Config
	logger lifecycle.Logger

	mu     sync.RWMutex
	client *etcd.Client
}

// NewEtcdService 创建etcd连接服务
func NewEtcdService(cfg etcd.Config, version string, logger lifecycle.Logger) *EtcdService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EtcdService{
		Base:   lifecycle.NewBase(EtcdServiceID, "etcd连接", version),
		cfg:    cfg,
		logger: logger,
	}
}

// Start 建立连接并测试可用性
func (s *EtcdService) Start(ctx context.Context) error {
	client, err := etcd.NewClient(s.cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	s.MarkStarted()
	s.logger.Info("已连接etcd", zap.Strings("endpoints", s.cfg.Endpoints))
	return nil
}

// Stop 关闭连接
func (s *EtcdService) Stop(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	s.MarkStopped()
	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("关闭etcd连接失败: %w", err)
	}
	return nil
}

// HealthCheck 查询endpoint状态
func (s *EtcdService) HealthCheck(ctx context.Context) (model.HealthStatus, error) {
	client := s.Client()
	if client == nil {
		return s.Unhealthy("etcd未连接", 0), nil
	}

	ctx, cancel := context.WithTimeout(ctx, client.Timeout())
	defer cancel()

	start := time.Now()
	if err := client.Ping(ctx); err != nil {
		return s.Unhealthy(err.Error(), time.Since(start)), nil
	}
	return s.Healthy("etcd连接正常", time.Since(start)), nil
}

// Client 返回当前连接，未启动时为nil
func (s *EtcdService) Client() *etcd.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}
