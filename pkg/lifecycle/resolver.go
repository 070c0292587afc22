package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"go.uber.org/zap"
)

// checkDependencies 要求所有直接依赖已注册且处于 Running 状态，不会自动启动依赖
func (o *Orchestrator) checkDependencies(rec *record) error {
	for _, depID := range rec.cfg.Dependencies {
		dep, ok := o.peek(depID)
		if !ok {
			return NewDependencyUnavailableError(rec.id, depID, "未注册")
		}
		if status := dep.getStatus(); status != model.StatusRunning {
			return NewDependencyUnavailableError(rec.id, depID, "当前状态为 "+string(status))
		}
	}
	return nil
}

// StartOrder 计算一组服务的启动顺序，依赖在前；ids 为空时计算全部服务。
// 依赖缺失返回 DependencyUnavailableError，存在环返回 ConfigurationError
func (o *Orchestrator) StartOrder(ids ...string) ([]string, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if !o.initialized {
		return nil, NewNotInitializedError()
	}
	if len(ids) == 0 {
		ids = o.order
	}

	// 收集目标集合及其可达依赖，环可能经过集合之外的服务
	closure := make(map[string]bool)
	stack := append([]string(nil), ids...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if closure[id] {
			continue
		}
		rec, ok := o.records[id]
		if !ok {
			return nil, NewServiceNotFoundError(id)
		}
		closure[id] = true
		for _, dep := range rec.cfg.Dependencies {
			if _, ok := o.records[dep]; !ok {
				return nil, NewDependencyUnavailableError(id, dep, "未注册")
			}
			stack = append(stack, dep)
		}
	}

	var nodes []string
	for _, id := range o.order {
		if closure[id] {
			nodes = append(nodes, id)
		}
	}
	sorted, cyclic := topoSort(nodes, func(id string) []string {
		return o.records[id].cfg.Dependencies
	})
	if len(cyclic) > 0 {
		return nil, NewConfigurationError("检测到循环依赖: " + strings.Join(cyclic, ", "))
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	result := make([]string, 0, len(ids))
	for _, id := range sorted {
		if wanted[id] {
			result = append(result, id)
		}
	}
	return result, nil
}

// StartAll 按依赖顺序启动一组服务；顺序无法确定时不启动任何服务，
// 遇到第一个失败即返回，已启动的服务保持运行
func (o *Orchestrator) StartAll(ctx context.Context, ids ...string) error {
	order, err := o.StartOrder(ids...)
	if err != nil {
		o.logger.Error("计算启动顺序失败", zap.Error(err))
		return err
	}

	o.logger.Info("按依赖顺序启动服务", zap.Strings("order", order))
	for _, id := range order {
		if err := o.Start(ctx, id); err != nil {
			return fmt.Errorf("批量启动在服务 %s 处中止: %w", id, err)
		}
	}
	return nil
}

// topoSort Kahn 算法，同层按输入顺序输出；返回排序结果与构成环的节点
func topoSort(nodes []string, deps func(string) []string) ([]string, []string) {
	index := make(map[string]int, len(nodes))
	for i, id := range nodes {
		index[id] = i
	}

	indeg := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, id := range nodes {
		for _, dep := range deps(id) {
			if _, ok := index[dep]; !ok {
				continue
			}
			indeg[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var queue []string
	for _, id := range nodes {
		if indeg[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		order = append(order, u)
		for _, v := range dependents[u] {
			indeg[v]--
			if indeg[v] == 0 {
				queue = insertByIndex(queue, v, index)
			}
		}
	}

	if len(order) == len(nodes) {
		return order, nil
	}
	var cyclic []string
	for _, id := range nodes {
		if indeg[id] > 0 {
			cyclic = append(cyclic, id)
		}
	}
	return order, cyclic
}

// insertByIndex 保持队列按注册顺序有序，使结果稳定
func insertByIndex(queue []string, id string, index map[string]int) []string {
	pos := len(queue)
	for i, q := range queue {
		if index[q] > index[id] {
			pos = i
			break
		}
	}
	queue = append(queue, "")
	copy(queue[pos+1:], queue[pos:])
	queue[pos] = id
	return queue
}
