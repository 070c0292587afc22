package services

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hewenyu/kong-orchestrator/internal/config"
	"github.com/hewenyu/kong-orchestrator/pkg/api"
	"github.com/hewenyu/kong-orchestrator/pkg/lifecycle"
	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"github.com/hewenyu/kong-orchestrator/pkg/storage/etcd"
	"github.com/miekg/dns"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// newTestConfig 使用本地随机端口，不启用etcd
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	cfg.Etcd.Enabled = false
	cfg.Admin.Enabled = true
	cfg.Admin.ListenAddress = "127.0.0.1"
	cfg.Admin.Port = 0
	cfg.DNS.Enabled = true
	cfg.DNS.ListenAddress = "127.0.0.1"
	cfg.DNS.Port = 0
	cfg.Orchestrator.HealthCheckInterval = time.Hour
	return cfg
}

func newTestOrchestrator(t *testing.T) *lifecycle.Orchestrator {
	t.Helper()
	o := lifecycle.New()
	require.NoError(t, o.Initialize())
	t.Cleanup(func() { o.Shutdown(context.Background()) })
	return o
}

func TestRegister_StartAll(t *testing.T) {
	o := newTestOrchestrator(t)
	b, err := Register(o, newTestConfig(t), "test", prometheus.NewRegistry(), nil)
	require.NoError(t, err)

	assert.Nil(t, b.Etcd)
	require.NotNil(t, b.Mirror)
	require.NotNil(t, b.Admin)
	require.NotNil(t, b.DNS)
	assert.Equal(t, []string{MirrorServiceID, AdminServiceID, DNSServiceID}, o.IDs())
	assert.Equal(t, o.IDs(), o.AutoStartIDs())

	ctx := context.Background()
	require.NoError(t, o.StartAll(ctx, o.AutoStartIDs()...))
	for id, status := range o.GetAllStatuses() {
		assert.Equal(t, model.StatusRunning, status, id)
	}

	// 管理API
	resp, err := http.Get("http://" + b.Admin.Addr() + "/api/v1/services")
	require.NoError(t, err)
	var body struct {
		Data []model.ServiceInfo `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Len(t, body.Data, 3)

	// 管理API不能操作自身
	resp, err = http.Post("http://"+b.Admin.Addr()+"/api/v1/services/"+AdminServiceID+"/stop", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// DNS查询
	c := &dns.Client{Timeout: time.Second}
	m := new(dns.Msg)
	m.SetQuestion("admin-api.orchestrator.local.", dns.TypeTXT)
	r, _, err := c.Exchange(m, b.DNS.Addr())
	require.NoError(t, err)
	require.Len(t, r.Answer, 1)
	assert.Contains(t, r.Answer[0].(*dns.TXT).Txt, "status=Running")

	// 状态镜像
	require.Eventually(t, func() bool {
		infos, err := b.Mirror.Store().List(ctx)
		if err != nil || len(infos) != 3 {
			return false
		}
		for _, info := range infos {
			if info.Status != model.StatusRunning {
				return false
			}
		}
		return true
	}, waitFor, tick)

	// 健康检查
	for _, svc := range []lifecycle.Service{b.Mirror, b.Admin, b.DNS} {
		h, err := svc.HealthCheck(ctx)
		require.NoError(t, err)
		assert.True(t, h.Healthy(), svc.ID())
	}

	report := o.Shutdown(ctx)
	assert.NoError(t, report.Err())
	assert.Equal(t, []string{DNSServiceID, AdminServiceID, MirrorServiceID}, report.Order)
	assert.Empty(t, b.Admin.Addr())
	assert.Empty(t, b.DNS.Addr())
}

func TestRegister_Disabled(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Admin.Enabled = false
	cfg.DNS.Enabled = false
	auto := false
	cfg.Services = map[string]config.ServicePolicy{MirrorServiceID: {AutoStart: &auto}}

	o := newTestOrchestrator(t)
	b, err := Register(o, cfg, "test", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, b.Admin)
	assert.Nil(t, b.DNS)
	assert.Equal(t, []string{MirrorServiceID}, o.IDs())
	assert.Empty(t, o.AutoStartIDs())
}

func TestRegister_EtcdDependency(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Etcd.Enabled = true
	cfg.Admin.Enabled = false
	cfg.DNS.Enabled = false

	o := newTestOrchestrator(t)
	b, err := Register(o, cfg, "test", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, b.Etcd)

	info, ok := o.GetInfo(MirrorServiceID)
	require.True(t, ok)
	assert.Equal(t, []string{EtcdServiceID}, info.Dependencies)

	order, err := o.StartOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{EtcdServiceID, MirrorServiceID}, order)

	// 未连接etcd时镜像服务不能启动
	err = o.Start(context.Background(), MirrorServiceID)
	assert.True(t, lifecycle.IsCode(err, lifecycle.ErrDependencyUnavailable))
}

func TestMirrorService_HealthWhenStopped(t *testing.T) {
	o := newTestOrchestrator(t)
	svc := NewMirrorService(o, nil, 0, "test", nil)

	h, err := svc.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.False(t, h.Healthy())
	assert.Nil(t, svc.Store())

	// 未启动时停止无副作用
	assert.NoError(t, svc.Stop(context.Background()))
}

func TestAdminService_HealthWhenStopped(t *testing.T) {
	svc := NewAdminService(newTestOrchestrator(t), apiOptions(), nil)
	h, err := svc.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.False(t, h.Healthy())
}

func TestEtcdService_Integration(t *testing.T) {
	endpoints := os.Getenv("KONG_ORCHESTRATOR_ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("跳过etcd测试：未设置KONG_ORCHESTRATOR_ETCD_ENDPOINTS")
	}

	cfg := newTestConfig(t)
	cfg.Etcd.Enabled = true
	cfg.Etcd.Endpoints = strings.Split(endpoints, ",")
	cfg.Etcd.Prefix = "/kong-orchestrator-test/services-" + time.Now().Format("150405.000000")
	cfg.Admin.Enabled = false
	cfg.DNS.Enabled = false

	o := newTestOrchestrator(t)
	b, err := Register(o, cfg, "test", nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, o.StartAll(ctx))

	h, err := b.Etcd.HealthCheck(ctx)
	require.NoError(t, err)
	assert.True(t, h.Healthy())

	_, ok := b.Mirror.Store().(*etcd.StatusStorage)
	assert.True(t, ok)
	require.Eventually(t, func() bool {
		info, err := b.Mirror.Store().Get(ctx, MirrorServiceID)
		return err == nil && info.Status == model.StatusRunning
	}, waitFor, tick)

	assert.NoError(t, o.Shutdown(ctx).Err())
}

func apiOptions() api.Options {
	return api.Options{ListenAddress: "127.0.0.1", Version: "test"}
}
