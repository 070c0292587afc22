package lifecycle

import (
	"context"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ShutdownReport 关闭过程汇总，单个服务的失败只记录不传播
type ShutdownReport struct {
	Order    []string                // 实际停止顺序
	Ordered  bool                    // false 表示依赖关系无法排序，按注册逆序停止
	Stopped  []string                // 本次调用了 Stop 的服务
	Failures map[string]error        // 停止失败的服务
	Statuses map[string]model.Status // 关闭后的最终状态
	Duration time.Duration
}

// Err 合并所有停止失败
func (r ShutdownReport) Err() error {
	var err error
	for _, id := range r.Order {
		if e, ok := r.Failures[id]; ok {
			err = multierr.Append(err, e)
		}
	}
	return err
}

// drain 取消所有监控任务，按依赖逆序尽力停止每个未停止的服务
func (o *Orchestrator) drain(ctx context.Context, records map[string]*record, order []string) ShutdownReport {
	begin := time.Now()
	o.monitor.cancelAll()

	stopOrder, ordered := shutdownOrder(records, order)
	if !ordered {
		o.logger.Warn("依赖关系存在环，按注册逆序停止服务", zap.Strings("order", stopOrder))
	}

	report := ShutdownReport{
		Order:    stopOrder,
		Ordered:  ordered,
		Failures: make(map[string]error),
		Statuses: make(map[string]model.Status, len(records)),
	}

	for _, id := range stopOrder {
		rec := records[id]

		rec.opMu.Lock()
		if rec.getStatus() != model.StatusStopped {
			report.Stopped = append(report.Stopped, id)
			if err := o.stopLocked(ctx, rec); err != nil {
				report.Failures[id] = err
			}
		}
		rec.opMu.Unlock()

		report.Statuses[id] = rec.getStatus()
	}

	o.monitor.wait()
	report.Duration = time.Since(begin)

	if err := report.Err(); err != nil {
		o.logger.Warn("部分服务停止失败", zap.Error(err))
	}
	return report
}

// shutdownOrder 依赖方先于被依赖方停止；存在环时退化为注册逆序
func shutdownOrder(records map[string]*record, order []string) ([]string, bool) {
	sorted, cyclic := topoSort(order, func(id string) []string {
		return records[id].cfg.Dependencies
	})

	ordered := len(cyclic) == 0
	if !ordered {
		sorted = order
	}

	reversed := make([]string, len(sorted))
	for i, id := range sorted {
		reversed[len(sorted)-1-i] = id
	}
	return reversed, ordered
}
