package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"github.com/hewenyu/kong-orchestrator/pkg/storage"
)

// MemoryStorage 是基于内存的状态存储实现，未启用etcd时使用
type MemoryStorage struct {
	services map[string]model.ServiceInfo
	mutex    sync.RWMutex
}

// NewMemoryStorage 创建新的内存存储
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		services: make(map[string]model.ServiceInfo),
	}
}

// Put 写入服务状态快照
func (m *MemoryStorage) Put(ctx context.Context, info model.ServiceInfo) error {
	if info.ID == "" {
		return storage.NewInvalidArgumentError("服务ID不能为空")
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.services[info.ID] = cloneInfo(info)
	return nil
}

// Delete 删除服务状态快照
func (m *MemoryStorage) Delete(ctx context.Context, serviceID string) error {
	if serviceID == "" {
		return storage.NewInvalidArgumentError("服务ID不能为空")
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.services[serviceID]; !exists {
		return storage.NewNotFoundError("服务不存在: " + serviceID)
	}

	delete(m.services, serviceID)
	return nil
}

// Get 获取服务状态快照
func (m *MemoryStorage) Get(ctx context.Context, serviceID string) (*model.ServiceInfo, error) {
	if serviceID == "" {
		return nil, storage.NewInvalidArgumentError("服务ID不能为空")
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	info, exists := m.services[serviceID]
	if !exists {
		return nil, storage.NewNotFoundError("服务不存在: " + serviceID)
	}

	out := cloneInfo(info)
	return &out, nil
}

// List 获取所有服务状态快照
func (m *MemoryStorage) List(ctx context.Context) ([]model.ServiceInfo, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	infos := make([]model.ServiceInfo, 0, len(m.services))
	for _, info := range m.services {
		infos = append(infos, cloneInfo(info))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	return infos, nil
}

// cloneInfo 复制切片和指针字段，避免调用方修改存储内容
func cloneInfo(info model.ServiceInfo) model.ServiceInfo {
	info.Dependencies = append([]string(nil), info.Dependencies...)
	info.Config.Dependencies = append([]string(nil), info.Config.Dependencies...)
	if info.LastHealth != nil {
		h := *info.LastHealth
		info.LastHealth = &h
	}
	return info
}
