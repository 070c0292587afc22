package services

import (
	"context"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/dns"
	"github.com/hewenyu/kong-orchestrator/pkg/lifecycle"
	"github.com/hewenyu/kong-orchestrator/pkg/model"
)

// DNSServiceID DNS状态查询服务的ID
const DNSServiceID = "dns"

// DNSService DNS状态查询服务
type DNSService struct {
	*lifecycle.Base

	server *dns.Server
}

// NewDNSService 创建DNS状态查询服务
func NewDNSService(source dns.InfoSource, addr, domain, version string, logger lifecycle.Logger) *DNSService {
	return &DNSService{
		Base:   lifecycle.NewBase(DNSServiceID, "DNS状态查询", version),
		server: dns.NewServer(addr, dns.NewHandler(source, domain, dns.DefaultTTL), logger),
	}
}

// Start 绑定UDP和TCP端口
func (s *DNSService) Start(ctx context.Context) error {
	if err := s.server.Start(ctx); err != nil {
		return err
	}
	s.MarkStarted()
	return nil
}

// Stop 关闭服务器
func (s *DNSService) Stop(ctx context.Context) error {
	s.MarkStopped()
	return s.server.Stop(ctx)
}

// HealthCheck 向自身发起一次查询
func (s *DNSService) HealthCheck(ctx context.Context) (model.HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rtt, err := s.server.Probe(ctx)
	if err != nil {
		return s.Unhealthy(err.Error(), rtt), nil
	}
	return s.Healthy("DNS查询正常", rtt), nil
}

// Addr 返回实际监听地址
func (s *DNSService) Addr() string {
	return s.server.Addr()
}
