package lifecycle

import (
	"context"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"go.uber.org/zap"
)

// Start 启动服务：检查依赖、调用服务启动、执行一次健康检查，全部成功后进入 Running。
// 已在运行时直接返回；手动启动会重置自动重启计数
func (o *Orchestrator) Start(ctx context.Context, id string) error {
	rec, err := o.lookup(id, true)
	if err != nil {
		return err
	}

	rec.opMu.Lock()
	defer rec.opMu.Unlock()

	if !o.owns(rec) {
		return NewNotInitializedError()
	}
	if rec.getStatus() == model.StatusRunning {
		o.logger.Debug("服务已在运行", zap.String("service", id))
		return nil
	}

	// Error 状态下可能仍有等待重试的监控任务
	o.monitor.cancel(id)
	rec.resetRestarts()

	if err := o.bringUp(ctx, rec, false); err != nil {
		return err
	}
	o.monitor.schedule(rec)
	return nil
}

// Stop 停止服务；已停止时直接返回。服务自身停止失败会返回 ServiceStopError，
// 但记录状态仍置为 Stopped
func (o *Orchestrator) Stop(ctx context.Context, id string) error {
	rec, err := o.lookup(id, false)
	if err != nil {
		return err
	}

	// 先取消监控，进行中的健康检查结果将被丢弃
	o.monitor.cancel(id)

	rec.opMu.Lock()
	defer rec.opMu.Unlock()
	return o.stopLocked(ctx, rec)
}

// Restart 手动重启：停止后重新启动。
// RestartCount 只统计上次手动启动以来的自动重启，手动重启视同手动启动，
// 计数清零且不受 MaxRestartAttempts 限制；健康检查失败触发的自动重启才会递增计数
func (o *Orchestrator) Restart(ctx context.Context, id string) error {
	rec, err := o.lookup(id, true)
	if err != nil {
		return err
	}

	o.monitor.cancel(id)

	rec.opMu.Lock()
	defer rec.opMu.Unlock()

	if !o.owns(rec) {
		return NewNotInitializedError()
	}

	o.monitor.cancel(id)
	rec.resetRestarts()
	o.emitRestart(rec, "手动重启")

	if err := o.recycle(ctx, rec); err != nil {
		return err
	}
	o.monitor.schedule(rec)
	return nil
}

// restartLocked 按重启策略执行一次自动重启，调用方持有 opMu。
// 超过 MaxRestartAttempts 时置为 Error 并返回 RestartLimitExceededError
func (o *Orchestrator) restartLocked(ctx context.Context, rec *record) error {
	attempts, limit := rec.incrementRestarts()
	if attempts > limit {
		limitErr := NewRestartLimitExceededError(rec.id, attempts-1, limit)
		o.transition(rec, model.StatusError, limitErr)
		o.alert(rec, limitErr.Message, limitErr)
		return limitErr
	}

	o.emitRestart(rec, "自动重启")
	o.logger.Warn("自动重启服务",
		zap.String("service", rec.id),
		zap.Int("attempt", attempts),
		zap.Int("limit", limit),
	)
	return o.recycle(ctx, rec)
}

// recycle 进入 Restarting，停止后重新启动
func (o *Orchestrator) recycle(ctx context.Context, rec *record) error {
	prev := rec.getStatus()
	o.transition(rec, model.StatusRestarting, nil)

	if prev != model.StatusStopped {
		if err := rec.svc.Stop(ctx); err != nil {
			o.logger.Warn("重启时停止服务失败，继续启动",
				zap.String("service", rec.id),
				zap.Error(err),
			)
		}
	}
	return o.bringUp(ctx, rec, true)
}

// bringUp 显式的两段检查：启动结果与首次健康检查结果都成功才进入 Running。
// 健康检查失败不会自动调用 Stop 回滚
func (o *Orchestrator) bringUp(ctx context.Context, rec *record, restarting bool) error {
	if err := o.checkDependencies(rec); err != nil {
		o.logger.Warn("服务依赖不可用", zap.String("service", rec.id), zap.Error(err))
		if restarting {
			o.transition(rec, model.StatusError, err)
		}
		return err
	}

	if !restarting {
		o.transition(rec, model.StatusStarting, nil)
	}

	if err := rec.svc.Start(ctx); err != nil {
		startErr := NewServiceStartError(rec.id, err)
		o.logger.Error("服务启动失败", zap.String("service", rec.id), zap.Error(err))
		o.transition(rec, model.StatusError, startErr)
		return startErr
	}

	health, err := o.probe(ctx, rec)
	rec.setHealth(health)
	o.emitHealth(rec, health)
	if err != nil {
		o.logger.Error("服务首次健康检查失败", zap.String("service", rec.id), zap.Error(err))
		o.transition(rec, model.StatusError, err)
		return err
	}

	o.transition(rec, model.StatusRunning, nil)
	return nil
}

// stopLocked 调用方持有 opMu
func (o *Orchestrator) stopLocked(ctx context.Context, rec *record) error {
	o.monitor.cancel(rec.id)

	if rec.getStatus() == model.StatusStopped {
		return nil
	}

	o.transition(rec, model.StatusStopping, nil)
	if err := rec.svc.Stop(ctx); err != nil {
		stopErr := NewServiceStopError(rec.id, err)
		o.logger.Error("服务停止失败", zap.String("service", rec.id), zap.Error(err))
		o.transition(rec, model.StatusStopped, stopErr)
		return stopErr
	}

	o.transition(rec, model.StatusStopped, nil)
	return nil
}

// probe 执行一次健康检查，返回结果以及失败时的 HealthCheckFailureError
func (o *Orchestrator) probe(ctx context.Context, rec *record) (model.HealthStatus, error) {
	begin := time.Now()
	health, err := rec.svc.HealthCheck(ctx)
	elapsed := time.Since(begin)

	if health.Timestamp.IsZero() {
		health.Timestamp = time.Now()
	}
	if health.Metrics.ResponseTime == 0 {
		health.Metrics.ResponseTime = elapsed
	}

	if err != nil {
		health.Status = model.HealthStatusUnhealthy
		if health.Message == "" {
			health.Message = err.Error()
		}
		return health, NewHealthCheckFailureError(rec.id, health.Message, err)
	}
	if !health.Healthy() {
		if health.Status == "" {
			health.Status = model.HealthStatusUnknown
		}
		return health, NewHealthCheckFailureError(rec.id, "状态为 "+string(health.Status)+" "+health.Message, nil)
	}
	return health, nil
}

// transition 更新状态并发出事件
func (o *Orchestrator) transition(rec *record, to model.Status, cause error) {
	rec.mu.Lock()
	from := rec.status
	rec.status = to
	rec.lastTransition = time.Now()
	if cause != nil {
		rec.lastError = cause.Error()
	} else if to == model.StatusRunning {
		rec.lastError = ""
	}
	info := rec.snapshotLocked()
	rec.mu.Unlock()

	fields := []zap.Field{
		zap.String("service", rec.id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	o.logger.Debug("服务状态变更", fields...)

	evt := newEvent(EventTransition, info)
	evt.From = from
	evt.To = to
	evt.Err = cause
	if cause != nil {
		evt.Message = cause.Error()
	}
	o.emit(evt)
}

// alert 周期性失败不会抛给调用方，只记录日志并发出告警事件
func (o *Orchestrator) alert(rec *record, message string, cause error) {
	o.logger.Error("服务告警",
		zap.String("service", rec.id),
		zap.String("message", message),
		zap.Error(cause),
	)

	evt := newEvent(EventAlert, rec.snapshot())
	evt.To = evt.Info.Status
	evt.Message = message
	evt.Err = cause
	o.emit(evt)
}

func (o *Orchestrator) emitHealth(rec *record, health model.HealthStatus) {
	evt := newEvent(EventHealth, rec.snapshot())
	evt.Message = health.Message
	o.emit(evt)
}

func (o *Orchestrator) emitRestart(rec *record, reason string) {
	evt := newEvent(EventRestart, rec.snapshot())
	evt.Message = reason
	o.emit(evt)
}
