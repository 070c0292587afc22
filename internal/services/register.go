// Package services 编排器内置服务：etcd连接、状态镜像、管理API与DNS状态查询
package services

import (
	"fmt"
	"net"
	"strconv"

	"github.com/hewenyu/kong-orchestrator/internal/config"
	"github.com/hewenyu/kong-orchestrator/pkg/api"
	"github.com/hewenyu/kong-orchestrator/pkg/lifecycle"
	"github.com/hewenyu/kong-orchestrator/pkg/storage/etcd"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Builtins 已注册的内置服务，未启用的为nil
type Builtins struct {
	Etcd   *EtcdService
	Mirror *MirrorService
	Admin  *AdminService
	DNS    *DNSService
}

// Register 按配置注册内置服务
func Register(o *lifecycle.Orchestrator, cfg *config.Config, version string, gatherer prometheus.Gatherer, logger lifecycle.Logger) (*Builtins, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Builtins{}

	if cfg.Etcd.Enabled {
		b.Etcd = NewEtcdService(etcd.Config{
			Endpoints:   cfg.Etcd.Endpoints,
			DialTimeout: cfg.Etcd.DialTimeout,
			Username:    cfg.Etcd.Username,
			Password:    cfg.Etcd.Password,
			Prefix:      cfg.Etcd.Prefix,
		}, version, logger)
		if err := o.Register(b.Etcd, cfg.ServiceConfig(EtcdServiceID, true)); err != nil {
			return nil, fmt.Errorf("注册%s失败: %w", EtcdServiceID, err)
		}
	}

	b.Mirror = NewMirrorService(o, b.Etcd, cfg.Etcd.LeaseTTL, version, logger)
	if err := o.Register(b.Mirror, cfg.ServiceConfig(MirrorServiceID, true)); err != nil {
		return nil, fmt.Errorf("注册%s失败: %w", MirrorServiceID, err)
	}

	if cfg.Admin.Enabled {
		b.Admin = NewAdminService(o, api.Options{
			ListenAddress: cfg.Admin.ListenAddress,
			Port:          cfg.Admin.Port,
			Version:       version,
			Gatherer:      gatherer,
		}, logger)
		if err := o.Register(b.Admin, cfg.ServiceConfig(AdminServiceID, true)); err != nil {
			return nil, fmt.Errorf("注册%s失败: %w", AdminServiceID, err)
		}
	}

	if cfg.DNS.Enabled {
		addr := net.JoinHostPort(cfg.DNS.ListenAddress, strconv.Itoa(cfg.DNS.Port))
		b.DNS = NewDNSService(o, addr, cfg.DNS.Domain, version, logger)
		if err := o.Register(b.DNS, cfg.ServiceConfig(DNSServiceID, true)); err != nil {
			return nil, fmt.Errorf("注册%s失败: %w", DNSServiceID, err)
		}
	}

	return b, nil
}
