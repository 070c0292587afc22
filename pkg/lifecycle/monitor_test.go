package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	probeInterval = 10 * time.Millisecond
	waitFor       = 2 * time.Second
	tick          = 5 * time.Millisecond
)

func TestMonitor_RecordsPeriodicHealth(t *testing.T) {
	o := newTestOrchestrator(t)

	svc := newFakeService("db")
	register(t, o, svc, model.ServiceConfig{HealthCheckInterval: probeInterval})
	require.NoError(t, o.Start(context.Background(), "db"))

	require.Eventually(t, func() bool {
		return svc.healthCalls.Load() >= 3
	}, waitFor, tick)

	info, _ := o.GetInfo("db")
	assert.Equal(t, model.StatusRunning, info.Status)
	require.NotNil(t, info.LastHealth)
	assert.Equal(t, model.HealthStatusHealthy, info.LastHealth.Status)
}

func TestMonitor_FailureWithoutRestartPolicy(t *testing.T) {
	o := newTestOrchestrator(t)

	alerts := make(chan Event, 8)
	o.Subscribe(func(evt Event) {
		if evt.Type == EventAlert {
			alerts <- evt
		}
	})

	svc := newFakeService("db")
	register(t, o, svc, model.ServiceConfig{HealthCheckInterval: probeInterval})
	require.NoError(t, o.Start(context.Background(), "db"))

	svc.setUnhealthy(true)

	require.Eventually(t, func() bool {
		return statusOf(t, o, "db") == model.StatusError
	}, waitFor, tick)

	select {
	case evt := <-alerts:
		assert.Equal(t, "db", evt.ServiceID)
		assert.True(t, IsCode(evt.Err, ErrHealthCheckFailure))
	case <-time.After(waitFor):
		t.Fatal("应发出告警事件")
	}

	require.Eventually(t, func() bool { return !o.monitor.active("db") }, waitFor, tick)
	assert.Equal(t, int32(0), svc.stopCalls.Load())
	assert.Equal(t, int32(1), svc.startCalls.Load())
}

func TestMonitor_RestartPolicyRecovers(t *testing.T) {
	o := newTestOrchestrator(t)

	svc := newFakeService("db")
	// 重启时恢复健康
	svc.onStart = func() { svc.setUnhealthy(false) }
	register(t, o, svc, model.ServiceConfig{
		HealthCheckInterval: probeInterval,
		RestartOnFailure:    true,
		MaxRestartAttempts:  3,
	})
	require.NoError(t, o.Start(context.Background(), "db"))

	svc.setUnhealthy(true)

	require.Eventually(t, func() bool {
		return svc.startCalls.Load() >= 2
	}, waitFor, tick)

	require.Eventually(t, func() bool {
		info, _ := o.GetInfo("db")
		return info.Status == model.StatusRunning && info.RestartCount == 1
	}, waitFor, tick)
	assert.GreaterOrEqual(t, svc.stopCalls.Load(), int32(1))
	assert.True(t, o.monitor.active("db"))
}

func TestMonitor_RestartLimitExceeded(t *testing.T) {
	o := newTestOrchestrator(t)

	var mu sync.Mutex
	var alerts []Event
	o.Subscribe(func(evt Event) {
		if evt.Type == EventAlert {
			mu.Lock()
			alerts = append(alerts, evt)
			mu.Unlock()
		}
	})

	svc := newFakeService("db")
	register(t, o, svc, model.ServiceConfig{
		HealthCheckInterval: probeInterval,
		RestartOnFailure:    true,
		MaxRestartAttempts:  2,
	})
	require.NoError(t, o.Start(context.Background(), "db"))

	// 每次重启后首次健康检查都失败
	svc.setUnhealthy(true)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, evt := range alerts {
			if IsCode(evt.Err, ErrRestartLimitExceeded) {
				return true
			}
		}
		return false
	}, waitFor, tick)

	require.Eventually(t, func() bool { return !o.monitor.active("db") }, waitFor, tick)

	info, _ := o.GetInfo("db")
	assert.Equal(t, model.StatusError, info.Status)
	// 初次启动 + 两次自动重启
	assert.Equal(t, int32(3), svc.startCalls.Load())

	// 次数耗尽后不再尝试
	time.Sleep(5 * probeInterval)
	assert.Equal(t, int32(3), svc.startCalls.Load())

	// 手动启动可再次尝试
	svc.setUnhealthy(false)
	require.NoError(t, o.Start(context.Background(), "db"))
	info, _ = o.GetInfo("db")
	assert.Equal(t, model.StatusRunning, info.Status)
	assert.Equal(t, 0, info.RestartCount)
}

func TestMonitor_StopCancelsSchedule(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	svc := newFakeService("db")
	register(t, o, svc, model.ServiceConfig{HealthCheckInterval: probeInterval})
	require.NoError(t, o.Start(ctx, "db"))
	require.Eventually(t, func() bool { return svc.healthCalls.Load() >= 2 }, waitFor, tick)

	require.NoError(t, o.Stop(ctx, "db"))
	assert.False(t, o.monitor.active("db"))

	calls := svc.healthCalls.Load()
	time.Sleep(5 * probeInterval)
	// 至多允许一次停止前已在进行的检查
	assert.LessOrEqual(t, svc.healthCalls.Load(), calls+1)
	assert.Equal(t, model.StatusStopped, statusOf(t, o, "db"))
}

func TestMonitor_StaleProbeDiscarded(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	svc := newFakeService("db")
	register(t, o, svc, model.ServiceConfig{HealthCheckInterval: time.Hour})
	require.NoError(t, o.Start(ctx, "db"))

	rec, err := o.lookup("db", false)
	require.NoError(t, err)

	// 模拟一个已被取消的任务完成了检查
	taskCtx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.setUnhealthy(true)

	assert.False(t, o.supervise(taskCtx, rec))
	assert.Equal(t, model.StatusRunning, statusOf(t, o, "db"))
}

func TestMonitor_DefaultInterval(t *testing.T) {
	o := New(WithDefaultHealthCheckInterval(probeInterval))
	require.NoError(t, o.Initialize())
	defer o.Shutdown(context.Background())

	svc := newFakeService("db")
	require.NoError(t, o.Register(svc, model.ServiceConfig{}))
	require.NoError(t, o.Start(context.Background(), "db"))

	require.Eventually(t, func() bool {
		return svc.healthCalls.Load() >= 3
	}, waitFor, tick)
}
