package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"github.com/stretchr/testify/require"
)

// fakeService 可控制行为的测试服务
type fakeService struct {
	*Base

	startCalls  atomic.Int32
	stopCalls   atomic.Int32
	healthCalls atomic.Int32

	mu        sync.Mutex
	startErr  error
	stopErr   error
	healthErr error
	unhealthy bool
	onStart   func()
}

func newFakeService(id string, deps ...string) *fakeService {
	return &fakeService{Base: NewBase(id, id+"-name", "1.0.0", deps...)}
}

func (f *fakeService) Start(ctx context.Context) error {
	f.startCalls.Add(1)
	f.mu.Lock()
	err, hook := f.startErr, f.onStart
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return err
	}
	f.MarkStarted()
	return nil
}

func (f *fakeService) Stop(ctx context.Context) error {
	f.stopCalls.Add(1)
	f.MarkStopped()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopErr
}

func (f *fakeService) HealthCheck(ctx context.Context) (model.HealthStatus, error) {
	f.healthCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.healthErr != nil {
		return model.HealthStatus{}, f.healthErr
	}
	if f.unhealthy {
		return f.Unhealthy("模拟故障", 0), nil
	}
	return f.Healthy("ok", 0), nil
}

func (f *fakeService) setStartErr(err error) {
	f.mu.Lock()
	f.startErr = err
	f.mu.Unlock()
}

func (f *fakeService) setStopErr(err error) {
	f.mu.Lock()
	f.stopErr = err
	f.mu.Unlock()
}

func (f *fakeService) setUnhealthy(v bool) {
	f.mu.Lock()
	f.unhealthy = v
	f.mu.Unlock()
}

var errBoom = errors.New("boom")

// newTestOrchestrator 创建已初始化的编排器，测试结束时关闭
func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	o := New()
	require.NoError(t, o.Initialize())
	t.Cleanup(func() {
		o.Shutdown(context.Background())
	})
	return o
}

// register 以较短的健康检查周期注册服务
func register(t *testing.T, o *Orchestrator, svc *fakeService, cfg model.ServiceConfig) {
	t.Helper()

	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = time.Hour
	}
	require.NoError(t, o.Register(svc, cfg))
}

func statusOf(t *testing.T, o *Orchestrator, id string) model.Status {
	t.Helper()

	info, ok := o.GetInfo(id)
	require.True(t, ok, "服务应存在: %s", id)
	return info.Status
}
