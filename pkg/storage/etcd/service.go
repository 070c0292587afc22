package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"github.com/hewenyu/kong-orchestrator/pkg/storage"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// StatusStorage 基于etcd的状态快照存储
//
// ttl大于0时所有键挂在同一个租约上并持续续约，进程退出后快照随租约过期。
type StatusStorage struct {
	client *Client
	ttl    int64

	mu        sync.Mutex
	leaseID   clientv3.LeaseID
	keepAlive context.CancelFunc
}

// NewStatusStorage 创建etcd状态存储，ttl单位为秒，0表示不使用租约
func NewStatusStorage(client *Client, ttl int64) *StatusStorage {
	return &StatusStorage{
		client: client,
		ttl:    ttl,
	}
}

// Put 写入服务状态快照
func (s *StatusStorage) Put(ctx context.Context, info model.ServiceInfo) error {
	if info.ID == "" {
		return storage.NewInvalidArgumentError("服务ID不能为空")
	}

	// 序列化服务数据
	data, err := json.Marshal(info)
	if err != nil {
		return storage.NewInternalError(fmt.Sprintf("序列化服务数据失败: %v", err))
	}

	key := s.client.GetServiceKey(info.ID)

	var opts []clientv3.OpOption
	if s.ttl > 0 {
		leaseID, err := s.lease(ctx)
		if err != nil {
			return err
		}
		opts = append(opts, clientv3.WithLease(leaseID))
	}

	if _, err := s.client.GetClient().Put(ctx, key, string(data), opts...); err != nil {
		return storage.NewInternalError(fmt.Sprintf("写入etcd失败: %v", err))
	}
	return nil
}

// Delete 删除服务状态快照
func (s *StatusStorage) Delete(ctx context.Context, serviceID string) error {
	if serviceID == "" {
		return storage.NewInvalidArgumentError("服务ID不能为空")
	}

	resp, err := s.client.GetClient().Delete(ctx, s.client.GetServiceKey(serviceID))
	if err != nil {
		return storage.NewInternalError(fmt.Sprintf("从etcd删除服务失败: %v", err))
	}
	if resp.Deleted == 0 {
		return storage.NewNotFoundError("服务不存在: " + serviceID)
	}
	return nil
}

// Get 获取服务状态快照
func (s *StatusStorage) Get(ctx context.Context, serviceID string) (*model.ServiceInfo, error) {
	if serviceID == "" {
		return nil, storage.NewInvalidArgumentError("服务ID不能为空")
	}

	resp, err := s.client.GetClient().Get(ctx, s.client.GetServiceKey(serviceID))
	if err != nil {
		return nil, storage.NewInternalError(fmt.Sprintf("从etcd获取服务失败: %v", err))
	}
	if len(resp.Kvs) == 0 {
		return nil, storage.NewNotFoundError("服务不存在: " + serviceID)
	}

	var info model.ServiceInfo
	if err := json.Unmarshal(resp.Kvs[0].Value, &info); err != nil {
		return nil, storage.NewInternalError(fmt.Sprintf("解析服务数据失败: %v", err))
	}
	return &info, nil
}

// List 获取所有服务状态快照
func (s *StatusStorage) List(ctx context.Context) ([]model.ServiceInfo, error) {
	prefix := s.client.GetServicesPrefix()
	resp, err := s.client.GetClient().Get(ctx, prefix,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, storage.NewInternalError(fmt.Sprintf("从etcd获取服务列表失败: %v", err))
	}

	infos := make([]model.ServiceInfo, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		// 跳过前缀下的嵌套键
		if strings.Contains(strings.TrimPrefix(string(kv.Key), prefix), "/") {
			continue
		}
		var info model.ServiceInfo
		if err := json.Unmarshal(kv.Value, &info); err != nil {
			// 忽略无法解析的数据
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Close 撤销租约并停止续约，不关闭底层客户端
func (s *StatusStorage) Close(ctx context.Context) error {
	s.mu.Lock()
	leaseID, cancel := s.leaseID, s.keepAlive
	s.leaseID, s.keepAlive = 0, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if leaseID == 0 {
		return nil
	}
	if _, err := s.client.GetClient().Revoke(ctx, leaseID); err != nil {
		return storage.NewInternalError(fmt.Sprintf("撤销etcd租约失败: %v", err))
	}
	return nil
}

// lease 返回当前租约，不存在或已失效时重新申请
func (s *StatusStorage) lease(ctx context.Context) (clientv3.LeaseID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.leaseID != 0 {
		return s.leaseID, nil
	}

	resp, err := s.client.GetClient().Grant(ctx, s.ttl)
	if err != nil {
		return 0, storage.NewInternalError(fmt.Sprintf("创建etcd租约失败: %v", err))
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := s.client.GetClient().KeepAlive(kaCtx, resp.ID)
	if err != nil {
		cancel()
		return 0, storage.NewInternalError(fmt.Sprintf("etcd租约续约失败: %v", err))
	}

	s.leaseID = resp.ID
	s.keepAlive = cancel
	go s.drainKeepAlive(resp.ID, ch)

	return resp.ID, nil
}

// drainKeepAlive 消费续约响应，通道关闭说明租约已失效
func (s *StatusStorage) drainKeepAlive(id clientv3.LeaseID, ch <-chan *clientv3.LeaseKeepAliveResponse) {
	for range ch {
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaseID == id {
		s.keepAlive()
		s.leaseID, s.keepAlive = 0, nil
	}
}
