package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"go.uber.org/zap"
)

// healthTask 单个运行中服务的周期健康检查任务
type healthTask struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// healthMonitor 按服务ID管理可取消的健康检查任务
type healthMonitor struct {
	o *Orchestrator

	mu     sync.Mutex
	tasks  map[string]*healthTask
	closed bool
	wg     sync.WaitGroup
}

func newHealthMonitor(o *Orchestrator) *healthMonitor {
	return &healthMonitor{
		o:      o,
		tasks:  make(map[string]*healthTask),
		closed: true,
	}
}

// open 允许调度新任务
func (m *healthMonitor) open() {
	m.mu.Lock()
	m.closed = false
	m.mu.Unlock()
}

// schedule 为服务启动周期检查，替换已有任务
func (m *healthMonitor) schedule(rec *record) {
	interval := rec.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = m.o.defaultInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if old, ok := m.tasks[rec.id]; ok {
		old.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &healthTask{ctx: ctx, cancel: cancel}
	m.tasks[rec.id] = task
	m.wg.Add(1)

	go m.run(task, rec, interval)
}

// cancel 立即取消服务的检查任务，不等待其退出
func (m *healthMonitor) cancel(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if task, ok := m.tasks[id]; ok {
		task.cancel()
		delete(m.tasks, id)
	}
}

// cancelAll 取消全部任务并拒绝新的调度
func (m *healthMonitor) cancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for id, task := range m.tasks {
		task.cancel()
		delete(m.tasks, id)
	}
}

// wait 等待所有任务退出，须在 cancelAll 之后调用
func (m *healthMonitor) wait() {
	m.wg.Wait()
}

// active 返回服务是否存在检查任务
func (m *healthMonitor) active(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[id]
	return ok
}

func (m *healthMonitor) release(id string, task *healthTask) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.tasks[id]; ok && current == task {
		delete(m.tasks, id)
	}
	task.cancel()
}

func (m *healthMonitor) run(task *healthTask, rec *record, interval time.Duration) {
	defer m.wg.Done()
	defer m.release(rec.id, task)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-task.ctx.Done():
			return
		case <-ticker.C:
			if !m.o.supervise(task.ctx, rec) {
				return
			}
		}
	}
}

// supervise 执行一个监控周期，返回是否继续监控
func (o *Orchestrator) supervise(ctx context.Context, rec *record) bool {
	switch rec.getStatus() {
	case model.StatusRunning:
		// 检查本身不持有 opMu，任务被取消后结果直接丢弃
		health, probeErr := o.probe(context.WithoutCancel(ctx), rec)

		rec.opMu.Lock()
		defer rec.opMu.Unlock()

		if ctx.Err() != nil || rec.getStatus() != model.StatusRunning {
			o.logger.Debug("丢弃过期的健康检查结果", zap.String("service", rec.id))
			return false
		}

		rec.setHealth(health)
		o.emitHealth(rec, health)
		if probeErr == nil {
			return true
		}

		o.logger.Warn("周期健康检查失败", zap.String("service", rec.id), zap.Error(probeErr))
		if !rec.cfg.RestartOnFailure {
			o.transition(rec, model.StatusError, probeErr)
			o.alert(rec, probeErr.Error(), probeErr)
			return false
		}
		return o.policyRestart(ctx, rec)

	case model.StatusError:
		// 上一次自动重启失败，按周期继续尝试直到次数耗尽
		if !rec.cfg.RestartOnFailure {
			return false
		}

		rec.opMu.Lock()
		defer rec.opMu.Unlock()

		if ctx.Err() != nil || rec.getStatus() != model.StatusError {
			return false
		}
		return o.policyRestart(ctx, rec)

	default:
		return false
	}
}

// policyRestart 调用方持有 opMu；重启期间不受任务取消影响，完成后由后续操作处理
func (o *Orchestrator) policyRestart(ctx context.Context, rec *record) bool {
	err := o.restartLocked(context.WithoutCancel(ctx), rec)
	if err == nil {
		o.logger.Info("服务自动重启成功", zap.String("service", rec.id))
		return ctx.Err() == nil
	}
	if IsCode(err, ErrRestartLimitExceeded) {
		return false
	}
	o.logger.Warn("自动重启失败，下个周期重试", zap.String("service", rec.id), zap.Error(err))
	return ctx.Err() == nil
}
