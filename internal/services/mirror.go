package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hewenyu/kong-orchestrator/pkg/lifecycle"
	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"github.com/hewenyu/kong-orchestrator/pkg/storage"
	"github.com/hewenyu/kong-orchestrator/pkg/storage/etcd"
	"github.com/hewenyu/kong-orchestrator/pkg/storage/memory"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// closeTimeout 调用方ctx已结束时释放存储的超时时间
const closeTimeout = 3 * time.Second

// MirrorServiceID 状态镜像服务的ID
const MirrorServiceID = "status-mirror"

// EventSource 状态镜像依赖的编排器能力
type EventSource interface {
	Subscribe(listener lifecycle.EventListener) func()
	GetAllInfos() []model.ServiceInfo
}

// MirrorService 把服务状态快照持续写入存储，配置etcd时写入etcd，否则写入内存
type MirrorService struct {
	*lifecycle.Base

	source   EventSource
	etcdSvc  *EtcdService
	leaseTTL int64
	logger   lifecycle.Logger
	newStore func() (storage.StatusStore, error)

	mu          sync.RWMutex
	store       storage.StatusStore
	mirror      *storage.Mirror
	unsubscribe func()
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewMirrorService 创建状态镜像服务，etcdSvc为nil时使用内存存储
func NewMirrorService(source EventSource, etcdSvc *EtcdService, leaseTTL int64, version string, logger lifecycle.Logger) *MirrorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	var deps []string
	if etcdSvc != nil {
		deps = append(deps, etcdSvc.ID())
	}
	return &MirrorService{
		Base:     lifecycle.NewBase(MirrorServiceID, "状态镜像", version, deps...),
		source:   source,
		etcdSvc:  etcdSvc,
		leaseTTL: leaseTTL,
		logger:   logger,
	}
}

// Start 全量同步后订阅事件
func (s *MirrorService) Start(ctx context.Context) error {
	store, err := s.openStore()
	if err != nil {
		return err
	}

	mirror := storage.NewMirror(store, s.logger, 256, 5*time.Second)
	if err := mirror.Sync(ctx, s.source.GetAllInfos()); err != nil {
		closeStore(ctx, store)
		return fmt.Errorf("同步服务状态失败: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		mirror.Run(runCtx)
	}()

	s.mu.Lock()
	s.store, s.mirror = store, mirror
	s.cancel, s.done = cancel, done
	s.unsubscribe = s.source.Subscribe(mirror.Handle)
	s.mu.Unlock()

	s.MarkStarted()
	return nil
}

// Stop 取消订阅并写完剩余快照
func (s *MirrorService) Stop(ctx context.Context) error {
	s.mu.Lock()
	unsubscribe, cancel, done, store := s.unsubscribe, s.cancel, s.done, s.store
	s.unsubscribe, s.cancel, s.done, s.mirror = nil, nil, nil, nil
	s.mu.Unlock()

	s.MarkStopped()
	if cancel == nil {
		return nil
	}

	unsubscribe()
	cancel()
	select {
	case <-done:
		return closeStore(ctx, store)
	case <-ctx.Done():
		// 剩余快照来不及写完，租约仍需撤销
		closeCtx, cancelClose := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancelClose()
		return multierr.Append(ctx.Err(), closeStore(closeCtx, store))
	}
}

func (s *MirrorService) openStore() (storage.StatusStore, error) {
	if s.newStore != nil {
		return s.newStore()
	}
	if s.etcdSvc == nil {
		return memory.NewMemoryStorage(), nil
	}
	client := s.etcdSvc.Client()
	if client == nil {
		return nil, fmt.Errorf("etcd未连接")
	}
	return etcd.NewStatusStorage(client, s.leaseTTL), nil
}

// HealthCheck 最近一次写入失败时不健康，队列积压或丢弃时降级
func (s *MirrorService) HealthCheck(ctx context.Context) (model.HealthStatus, error) {
	s.mu.RLock()
	mirror := s.mirror
	s.mu.RUnlock()

	if mirror == nil {
		return s.Unhealthy("状态镜像未运行", 0), nil
	}
	if err := mirror.Err(); err != nil {
		return s.Unhealthy(err.Error(), 0), nil
	}
	if dropped := mirror.Dropped(); dropped > 0 {
		h := s.Healthy(fmt.Sprintf("已丢弃 %d 条快照", dropped), 0)
		h.Status = model.HealthStatusDegraded
		return h, nil
	}
	return s.Healthy(fmt.Sprintf("待写入 %d 条", mirror.Pending()), 0), nil
}

// Store 返回当前使用的存储，未启动时为nil
func (s *MirrorService) Store() storage.StatusStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// closeStore 释放存储持有的资源，etcd存储会撤销租约
func closeStore(ctx context.Context, store storage.StatusStore) error {
	if c, ok := store.(interface{ Close(context.Context) error }); ok {
		return c.Close(ctx)
	}
	return nil
}
